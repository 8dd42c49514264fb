package pgpme

import "io"

// stream adapts a generic Go stream into the DataCallbacks triple. It
// tracks its own position so that the (0, io.SeekCurrent) position query
// never reaches the underlying seeker.
type stream struct {
	r   io.Reader
	w   io.Writer
	s   io.Seeker
	pos int64
}

func (st *stream) read(_ any, p []byte) (int, error) {
	n, err := st.r.Read(p)
	st.pos += int64(n)
	return n, err
}

func (st *stream) write(_ any, p []byte) (int, error) {
	n, err := st.w.Write(p)
	st.pos += int64(n)
	return n, err
}

func (st *stream) seek(_ any, offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent && offset == 0 {
		return st.pos, nil
	}
	if st.s == nil {
		return 0, errNotSeekable
	}
	pos, err := st.s.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	st.pos = pos
	return pos, nil
}

func (st *stream) data() *Data {
	cbs := DataCallbacks{Seek: st.seek}
	if st.r != nil {
		cbs.Read = st.read
	}
	if st.w != nil {
		cbs.Write = st.write
	}
	return NewDataCallbacks(cbs, nil)
}

// NewDataReader creates a read-only Data over r. Position queries work;
// real seeks fail.
func NewDataReader(r io.Reader) *Data {
	return (&stream{r: r}).data()
}

// NewDataWriter creates a write-only Data over w. Position queries work;
// real seeks fail.
func NewDataWriter(w io.Writer) *Data {
	return (&stream{w: w}).data()
}

// NewDataReadWriteSeeker creates a fully capable Data over rws.
func NewDataReadWriteSeeker(rws io.ReadWriteSeeker) *Data {
	return (&stream{r: rws, w: rws, s: rws}).data()
}
