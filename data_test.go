package pgpme

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestNewDataBytesCopy(t *testing.T) {
	t.Parallel()

	src := []byte("original")
	d := NewDataBytes(src, true)
	src[0] = 'X'

	got, err := d.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "original" {
		t.Errorf("copied data saw mutation: %q", got)
	}
}

func TestNewDataBytesAlias(t *testing.T) {
	t.Parallel()

	src := []byte("original")
	d := NewDataBytes(src, false)
	src[0] = 'X'

	got, err := d.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "Xriginal" {
		t.Errorf("aliased data missed mutation: %q", got)
	}
}

func TestDataWriteThenBytes(t *testing.T) {
	t.Parallel()

	d := NewData()
	if _, err := d.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := d.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := d.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("Bytes = %q, want %q", got, "hello world")
	}
}

func TestDataReadAllEmpty(t *testing.T) {
	t.Parallel()

	got, err := NewData().ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got == nil {
		t.Error("ReadAll of empty data returned nil, want empty slice")
	}
	if len(got) != 0 {
		t.Errorf("ReadAll of empty data returned %d bytes", len(got))
	}
}

func TestDataReadAllLargerThanBlock(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("ab"), dataBlockSize)
	got, err := NewDataBytes(payload, false).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadAll lost data: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestDataSeek(t *testing.T) {
	t.Parallel()

	d := NewDataString("0123456789")
	if _, err := d.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got, err := d.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "456789" {
		t.Errorf("read after seek = %q, want %q", got, "456789")
	}

	if _, err := d.Seek(-1, io.SeekStart); err == nil {
		t.Error("seek to negative position succeeded")
	}
}

func TestNewDataFileCopy(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(path, []byte("file content"), 0600); err != nil {
		t.Fatal(err)
	}

	d, err := NewDataFile(path, true)
	if err != nil {
		t.Fatalf("NewDataFile: %v", err)
	}
	defer d.Close()

	got, err := d.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "file content" {
		t.Errorf("ReadAll = %q", got)
	}
}

func TestNewDataFileDirect(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "io.bin")
	if err := os.WriteFile(path, []byte("payload"), 0600); err != nil {
		t.Fatal(err)
	}

	d, err := NewDataFile(path, false)
	if err != nil {
		t.Fatalf("NewDataFile: %v", err)
	}

	got, err := d.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Bytes = %q", got)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// Close is idempotent for an owned file.
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewDataDescriptorDoesNotOwn(t *testing.T) {
	t.Parallel()

	f, err := os.CreateTemp(t.TempDir(), "desc")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString("via descriptor"); err != nil {
		t.Fatal(err)
	}

	d := NewDataDescriptor(f)
	got, err := d.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if string(got) != "via descriptor" {
		t.Errorf("Bytes = %q", got)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// The descriptor must still be usable: Data never owned it.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Errorf("descriptor closed by Data: %v", err)
	}
}

func TestNewDataCallbacks(t *testing.T) {
	t.Parallel()

	type hookT struct{ calls int }
	hook := &hookT{}
	backing := bytes.NewReader([]byte("cb data"))

	d := NewDataCallbacks(DataCallbacks{
		Read: func(h any, p []byte) (int, error) {
			h.(*hookT).calls++
			return backing.Read(p)
		},
	}, hook)

	got, err := d.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "cb data" {
		t.Errorf("ReadAll = %q", got)
	}
	if hook.calls == 0 {
		t.Error("hook never passed to callback")
	}

	if _, err := d.Write([]byte("x")); !errors.Is(err, errNotWritable) {
		t.Errorf("Write with nil callback = %v, want errNotWritable", err)
	}
	if _, err := d.Seek(0, io.SeekStart); !errors.Is(err, errNotSeekable) {
		t.Errorf("Seek with nil callback = %v, want errNotSeekable", err)
	}
}

// recordingSeeker counts the seeks that actually reach it.
type recordingSeeker struct {
	*bytes.Reader
	seeks int
}

func (r *recordingSeeker) Seek(offset int64, whence int) (int64, error) {
	r.seeks++
	return r.Reader.Seek(offset, whence)
}

func TestStreamPositionQueryAvoidsSeeker(t *testing.T) {
	t.Parallel()

	rs := &recordingSeeker{Reader: bytes.NewReader([]byte("0123456789"))}
	d := NewDataReadWriteSeeker(struct {
		io.Reader
		io.Writer
		io.Seeker
	}{rs, io.Discard, rs})

	buf := make([]byte, 4)
	if _, err := d.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}

	pos, err := d.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("position query: %v", err)
	}
	if pos != 4 {
		t.Errorf("position = %d, want 4", pos)
	}
	if rs.seeks != 0 {
		t.Errorf("position query reached the underlying seeker %d times", rs.seeks)
	}

	// A real seek does reach it.
	if _, err := d.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if rs.seeks != 1 {
		t.Errorf("real seek reached the seeker %d times, want 1", rs.seeks)
	}
}

func TestNewDataReader(t *testing.T) {
	t.Parallel()

	d := NewDataReader(bytes.NewReader([]byte("stream")))
	got, err := d.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "stream" {
		t.Errorf("ReadAll = %q", got)
	}
	// Read-only stream: real seeks fail, position query works.
	if _, err := d.Seek(0, io.SeekStart); err == nil {
		t.Error("real seek on a reader stream succeeded")
	}
	if pos, err := d.Seek(0, io.SeekCurrent); err != nil || pos != 6 {
		t.Errorf("position query = (%d, %v), want (6, nil)", pos, err)
	}
}

func TestNewDataWriter(t *testing.T) {
	t.Parallel()

	var sink bytes.Buffer
	d := NewDataWriter(&sink)
	if _, err := d.Write([]byte("written")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sink.String() != "written" {
		t.Errorf("sink = %q", sink.String())
	}
	if _, err := d.Read(make([]byte, 1)); !errors.Is(err, errNotReadable) {
		t.Errorf("Read on writer stream = %v, want errNotReadable", err)
	}
}
