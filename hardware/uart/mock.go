package uart

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"github.com/juju/errors"
)

// NullUart is Uarter for tests.
// End of input is reported as read timeout, same as idle serial line.
type NullUart struct {
	mu  sync.Mutex
	src *bytes.Buffer
	r   *bufio.Reader
	w   io.Writer
}

func NewNullUart(w io.Writer) *NullUart {
	self := &NullUart{
		src: bytes.NewBuffer(nil),
		w:   w,
	}
	self.r = bufio.NewReader(timeoutReader{self})
	return self
}

// Feed appends b to pending input.
func (self *NullUart) Feed(b []byte) {
	self.mu.Lock()
	self.src.Write(b)
	self.mu.Unlock()
}

func (self *NullUart) Open(path string, baud int) error { return nil }
func (self *NullUart) Close() error                     { return nil }

func (self *NullUart) ReadByte() (byte, error) { return self.r.ReadByte() }

func (self *NullUart) ReadSlice(delim byte) ([]byte, error) { return self.r.ReadSlice(delim) }

func (self *NullUart) Write(p []byte) (int, error) {
	if self.w == nil {
		return len(p), nil
	}
	return self.w.Write(p)
}

func (self *NullUart) ResetRead() error {
	self.mu.Lock()
	self.src.Reset()
	self.mu.Unlock()
	self.r.Reset(timeoutReader{self})
	return nil
}

type timeoutReader struct{ u *NullUart }

func (self timeoutReader) Read(p []byte) (int, error) {
	self.u.mu.Lock()
	defer self.u.mu.Unlock()
	if self.u.src.Len() == 0 {
		return 0, errors.Timeoutf("uart read")
	}
	return self.u.src.Read(p)
}
