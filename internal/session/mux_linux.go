//go:build linux

package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// pollMux waits on the device, the keyboard and a self-pipe used by Wake.
type pollMux struct {
	deviceFd int
	kbFd     int
	wake     *wakePipe
}

// NewMultiplexer polls deviceFd and kbFd. A negative kbFd disables the
// keyboard.
func NewMultiplexer(deviceFd, kbFd int) (Multiplexer, error) {
	w, err := newWakePipe()
	if err != nil {
		return nil, err
	}
	return &pollMux{deviceFd: deviceFd, kbFd: kbFd, wake: w}, nil
}

// wakePipe is a non-blocking self-pipe. Wake after Close is a no-op.
type wakePipe struct {
	mu     sync.Mutex
	r, w   int
	closed bool
}

func newWakePipe() (*wakePipe, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("wake pipe: %w", err)
	}
	return &wakePipe{r: p[0], w: p[1]}, nil
}

func (p *wakePipe) wake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		_, _ = unix.Write(p.w, []byte{0})
	}
}

func (p *wakePipe) drain() {
	var buf [64]byte
	for {
		if n, _ := unix.Read(p.r, buf[:]); n <= 0 {
			return
		}
	}
}

func (p *wakePipe) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := unix.Close(p.r)
	if e := unix.Close(p.w); err == nil {
		err = e
	}
	return err
}

func (m *pollMux) Await(timeout time.Duration) (Readiness, error) {
	fds := []unix.PollFd{
		{Fd: int32(m.deviceFd), Events: unix.POLLIN},
		{Fd: int32(m.wake.r), Events: unix.POLLIN},
	}
	if m.kbFd >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(m.kbFd), Events: unix.POLLIN})
	}
	_, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return Readiness{}, &AwaitError{Err: err}
		}
		return Readiness{}, &AwaitError{Device: true, Err: err}
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		return Readiness{}, &AwaitError{Device: true, Err: fmt.Errorf("device revents=%#x", fds[0].Revents)}
	}
	if fds[1].Revents&unix.POLLIN != 0 {
		m.wake.drain()
	}
	r := Readiness{Device: fds[0].Revents&(unix.POLLIN|unix.POLLHUP) != 0}
	if m.kbFd >= 0 {
		r.Keyboard = fds[2].Revents&(unix.POLLIN|unix.POLLHUP) != 0
	}
	return r, nil
}

func (m *pollMux) Wake() { m.wake.wake() }

func (m *pollMux) Close() error { return m.wake.close() }

// ttyKeyboard reads single keystrokes in rare mode and whole lines in
// cooked mode.
type ttyKeyboard struct {
	f     *os.File
	fd    int
	saved *term.State
	rare  *unix.Termios
	intr  *wakePipe
}

// NewKeyboard puts f into rare mode when it is a terminal. A plain file
// or pipe is read as is.
func NewKeyboard(f *os.File) (Keyboard, error) {
	intr, err := newWakePipe()
	if err != nil {
		return nil, err
	}
	k := &ttyKeyboard{f: f, fd: int(f.Fd()), intr: intr}
	if !term.IsTerminal(k.fd) {
		return k, nil
	}
	saved, err := term.GetState(k.fd)
	if err != nil {
		_ = intr.close()
		return nil, fmt.Errorf("keyboard state: %w", err)
	}
	tio, err := unix.IoctlGetTermios(k.fd, unix.TCGETS)
	if err != nil {
		_ = intr.close()
		return nil, fmt.Errorf("keyboard termios: %w", err)
	}
	tio.Lflag &^= unix.ICANON | unix.ECHO
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0
	k.saved = saved
	k.rare = tio
	if err := k.enterRare(); err != nil {
		_ = intr.close()
		return nil, err
	}
	return k, nil
}

func (k *ttyKeyboard) enterRare() error {
	if k.rare == nil {
		return nil
	}
	if err := unix.IoctlSetTermios(k.fd, unix.TCSETS, k.rare); err != nil {
		return fmt.Errorf("keyboard rare mode: %w", err)
	}
	return nil
}

func (k *ttyKeyboard) ReadByte() (byte, error) {
	var b [1]byte
	for {
		n, err := k.f.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

func (k *ttyKeyboard) Interrupt() { k.intr.wake() }

// awaitInput blocks until the keyboard is readable or Interrupt is
// called; an interrupt wins when both are pending.
func (k *ttyKeyboard) awaitInput() error {
	fds := []unix.PollFd{
		{Fd: int32(k.fd), Events: unix.POLLIN},
		{Fd: int32(k.intr.r), Events: unix.POLLIN},
	}
	for {
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			k.intr.drain()
			return ErrKeyboardInterrupted
		}
		if fds[0].Revents != 0 {
			return nil
		}
	}
}

func (k *ttyKeyboard) ReadLine(first byte) (string, error) {
	if k.saved != nil {
		if err := term.Restore(k.fd, k.saved); err != nil {
			return string(first), err
		}
		defer func() { _ = k.enterRare() }()
	}
	var sb strings.Builder
	sb.WriteByte(first)
	for {
		if err := k.awaitInput(); err != nil {
			return sb.String(), err
		}
		b, err := k.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		if b == '\n' {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}

// Restore returns the terminal to the state it had at startup and
// flushes unread input.
func (k *ttyKeyboard) Restore() error {
	_ = k.intr.close()
	if k.saved == nil {
		return nil
	}
	_ = unix.IoctlSetInt(k.fd, unix.TCFLSH, unix.TCIFLUSH)
	return term.Restore(k.fd, k.saved)
}
