package device

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

type readResult struct {
	line string
	err  error
}

// StreamDevice implements Device over any byte stream. A single reader
// goroutine owns the stream; ReadLine only waits on its output, so a timed
// out call never leaves a stray reader behind.
type StreamDevice struct {
	rw    io.ReadWriteCloser
	lines chan readResult
	done  chan struct{}
	once  sync.Once
	wmu   sync.Mutex
}

// NewStreamDevice starts reading lines from rw.
func NewStreamDevice(rw io.ReadWriteCloser) *StreamDevice {
	d := &StreamDevice{
		rw:    rw,
		lines: make(chan readResult, 64),
		done:  make(chan struct{}),
	}
	go d.readLoop()
	return d
}

func (d *StreamDevice) readLoop() {
	r := bufio.NewReader(d.rw)
	for {
		s, err := r.ReadString('\n')
		if err != nil {
			// a partial line before the error is dropped
			s = ""
		}
		select {
		case d.lines <- readResult{line: strings.TrimRight(s, "\r\n"), err: err}:
		case <-d.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// ReadLine returns the next line. Once the stream has failed, the failure is
// returned once and later calls block until timeout or Close.
func (d *StreamDevice) ReadLine(timeout time.Duration) (string, error) {
	select {
	case <-d.done:
		return "", ErrNotOpen
	default:
	}
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case res := <-d.lines:
		return res.line, res.err
	case <-d.done:
		return "", ErrNotOpen
	case <-expired:
		return "", ErrReadTimeout
	}
}

// WriteLine writes line followed by '\n'.
func (d *StreamDevice) WriteLine(line string) error {
	select {
	case <-d.done:
		return ErrNotOpen
	default:
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	_, err := d.rw.Write(append([]byte(line), '\n'))
	return err
}

// Close closes the stream. It is safe to call more than once.
func (d *StreamDevice) Close() error {
	var err error
	d.once.Do(func() {
		close(d.done)
		err = d.rw.Close()
	})
	return err
}

// SerialDevice implements Device using go.bug.st/serial.
type SerialDevice struct {
	*StreamDevice
	Path string
	Baud int
}

// NewSerialDevice opens the serial port at path with 8N1 framing.
func NewSerialDevice(path string, baud int) (*SerialDevice, error) {
	p, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", path, err)
	}
	// stale bytes from before the open would split the first line
	if err := p.ResetInputBuffer(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("reset serial %s: %w", path, err)
	}
	return &SerialDevice{StreamDevice: NewStreamDevice(p), Path: path, Baud: baud}, nil
}
