// Package uart is byte stream to the MDB converter.
// Only requirement from upper layers: blocking read with timeout and plain write.
package uart

import (
	"bufio"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

const DefaultReadTimeout = time.Second

type Uarter interface {
	Open(path string, baud int) error
	Close() error
	ReadByte() (byte, error)
	// ReadSlice same as bufio.Reader.ReadSlice
	ReadSlice(delim byte) ([]byte, error)
	Write(p []byte) (int, error)
	// ResetRead drops buffered input.
	ResetRead() error
}

type fileUart struct {
	lk      sync.Mutex
	f       *os.File
	reader  fdReader
	r       *bufio.Reader
	timeout time.Duration
}

func NewFileUart(readTimeout time.Duration) *fileUart {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &fileUart{timeout: readTimeout}
}

func (self *fileUart) Open(path string, baud int) (err error) {
	self.lk.Lock()
	defer self.lk.Unlock()

	if self.f != nil {
		self.f.Close()
	}
	self.f, err = os.OpenFile(path, syscall.O_RDWR|syscall.O_NOCTTY, 0600)
	if err != nil {
		return errors.Annotatef(err, "uart open path=%s", path)
	}
	fd := self.f.Fd()
	if err = resetTermios(fd, baud); err != nil {
		self.f.Close()
		self.f = nil
		return errors.Annotatef(err, "uart termios path=%s baud=%d", path, baud)
	}
	self.reader = fdReader{fd: int(fd), timeout: self.timeout}
	self.r = bufio.NewReader(self.reader)
	return nil
}

func (self *fileUart) Close() error {
	self.lk.Lock()
	defer self.lk.Unlock()
	if self.f == nil {
		return nil
	}
	err := self.f.Close()
	self.f = nil
	return err
}

func (self *fileUart) ReadByte() (byte, error) { return self.r.ReadByte() }

func (self *fileUart) ReadSlice(delim byte) ([]byte, error) { return self.r.ReadSlice(delim) }

func (self *fileUart) Write(p []byte) (int, error) { return self.f.Write(p) }

func (self *fileUart) ResetRead() error {
	self.r.Reset(self.reader)
	return errors.Trace(unix.IoctlSetInt(self.reader.fd, unix.TCFLSH, unix.TCIFLUSH))
}

type fdReader struct {
	fd      int
	timeout time.Duration
}

func (self fdReader) Read(p []byte) (int, error) {
	if err := waitRead(self.fd, self.timeout); err != nil {
		return 0, err
	}
	for {
		n, err := unix.Read(self.fd, p)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func waitRead(fd int, timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.Annotate(err, "uart poll")
		}
		if n == 0 {
			return errors.Timeoutf("uart read %v", timeout)
		}
		return nil
	}
}

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// raw 8N1, no flow control
func resetTermios(fd uintptr, baud int) error {
	speed, ok := baudRates[baud]
	if !ok {
		return errors.NotSupportedf("baud rate=%d", baud)
	}
	t, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	// poll() does waiting, read() returns what is available
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(int(fd), unix.TCSETSF, t)
}
