package pgpme

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// dataBlockSize is the chunk size ReadAll drains in.
const dataBlockSize = 4096

var (
	errNotReadable = errors.New("pgpme: data object does not support reading")
	errNotWritable = errors.New("pgpme: data object does not support writing")
	errNotSeekable = errors.New("pgpme: data object does not support seeking")
)

// DataCallbacks is the callback triple backing a callback-driven Data.
// Every call receives the hook value the Data was constructed with,
// untouched. Any member may be nil; the corresponding operation then
// fails.
type DataCallbacks struct {
	// Read fills p and returns the number of bytes read; io.EOF at end
	// of stream.
	Read func(hook any, p []byte) (int, error)
	// Write consumes p and returns the number of bytes written.
	Write func(hook any, p []byte) (int, error)
	// Seek repositions the stream. A call with offset 0 and whence
	// io.SeekCurrent is a position query and must return the current
	// position without moving; it is distinct from a seek to offset 0
	// with io.SeekStart.
	Seek func(hook any, offset int64, whence int) (int64, error)
}

type dataBackend interface {
	io.Reader
	io.Writer
	io.Seeker
}

// Data is one byte-oriented resource with a single seek cursor, backed by
// memory, a file, an open descriptor, or a callback triple. A Data must
// not be used by more than one in-flight operation at a time.
type Data struct {
	backend dataBackend
	closer  io.Closer // owned file, if any
}

// NewData creates an empty growable in-memory buffer. Operations that are
// not given an explicit output sink write into one of these.
func NewData() *Data {
	return &Data{backend: &memBackend{}}
}

// NewDataBytes creates a Data over b. With copyBytes true the bytes are
// duplicated, so later mutation of b is invisible to the Data. With
// copyBytes false the Data aliases b; the caller must keep b alive and
// unchanged for the lifetime of the Data.
func NewDataBytes(b []byte, copyBytes bool) *Data {
	if copyBytes {
		b = append([]byte(nil), b...)
	}
	return &Data{backend: &memBackend{data: b}}
}

// NewDataString creates an in-memory Data holding s.
func NewDataString(s string) *Data {
	return &Data{backend: &memBackend{data: []byte(s)}}
}

// NewDataFile creates a Data over the file at path. With copyContents
// true the file is read into memory once; with copyContents false the
// Data operates on the open file and owns it until Close.
func NewDataFile(path string, copyContents bool) (*Data, error) {
	if copyContents {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading data file: %w", err)
		}
		return &Data{backend: &memBackend{data: b}}, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		// Fall back to read-only; output-less inputs are the common case.
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening data file: %w", err)
		}
	}
	return &Data{backend: f, closer: f}, nil
}

// NewDataDescriptor creates a Data over an already-open file. Ownership
// is not transferred: Close on the Data never closes f.
func NewDataDescriptor(f *os.File) *Data {
	return &Data{backend: f}
}

// NewDataCallbacks creates a Data whose reads, writes and seeks are
// forwarded to cbs with hook passed through on every call.
func NewDataCallbacks(cbs DataCallbacks, hook any) *Data {
	return &Data{backend: &callbackBackend{cbs: cbs, hook: hook}}
}

func (d *Data) Read(p []byte) (int, error) { return d.backend.Read(p) }

func (d *Data) Write(p []byte) (int, error) { return d.backend.Write(p) }

func (d *Data) Seek(offset int64, whence int) (int64, error) {
	return d.backend.Seek(offset, whence)
}

// ReadAll drains the buffer from the current position in fixed-size
// chunks until end of stream. End of stream on the first chunk yields an
// empty slice, not an error.
func (d *Data) ReadAll() ([]byte, error) {
	var out []byte
	buf := make([]byte, dataBlockSize)
	for {
		n, err := d.backend.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			if out == nil {
				out = []byte{}
			}
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("draining data: %w", err)
		}
	}
}

// Bytes rewinds the buffer and drains it fully. It is the usual way to
// collect the content of an output sink after an operation.
func (d *Data) Bytes() ([]byte, error) {
	if _, err := d.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding data: %w", err)
	}
	return d.ReadAll()
}

// Close releases an owned file, if any. Data over memory, callbacks or a
// borrowed descriptor closes to a no-op.
func (d *Data) Close() error {
	if d.closer == nil {
		return nil
	}
	c := d.closer
	d.closer = nil
	return c.Close()
}

// memBackend is a growable in-memory buffer with one cursor.
type memBackend struct {
	data []byte
	pos  int64
}

func (m *memBackend) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memBackend) Write(p []byte) (int, error) {
	if need := m.pos + int64(len(p)); need > int64(len(m.data)) {
		grown := make([]byte, need)
		copy(grown, m.data)
		m.data = grown
	}
	n := copy(m.data[m.pos:], p)
	m.pos += int64(n)
	return n, nil
}

func (m *memBackend) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = m.pos + offset
	case io.SeekEnd:
		pos = int64(len(m.data)) + offset
	default:
		return 0, fmt.Errorf("pgpme: invalid seek whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("pgpme: seek to negative position")
	}
	m.pos = pos
	return pos, nil
}

// callbackBackend forwards every call to the user triple.
type callbackBackend struct {
	cbs  DataCallbacks
	hook any
}

func (c *callbackBackend) Read(p []byte) (int, error) {
	if c.cbs.Read == nil {
		return 0, errNotReadable
	}
	return c.cbs.Read(c.hook, p)
}

func (c *callbackBackend) Write(p []byte) (int, error) {
	if c.cbs.Write == nil {
		return 0, errNotWritable
	}
	return c.cbs.Write(c.hook, p)
}

func (c *callbackBackend) Seek(offset int64, whence int) (int64, error) {
	if c.cbs.Seek == nil {
		return 0, errNotSeekable
	}
	return c.cbs.Seek(c.hook, offset, whence)
}
