package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"syscall"
	"time"

	"gpsmon-ng/internal/display"
	"gpsmon-ng/internal/gps"
)

// Readiness is the outcome of one multiplexed wait.
type Readiness struct {
	Device   bool
	Keyboard bool
}

// AwaitError is a failed wait. Device is set when the device descriptor
// is implicated; only that case ends the session.
type AwaitError struct {
	Device bool
	Err    error
}

func (e *AwaitError) Error() string {
	return fmt.Sprintf("await failed device=%t: %v", e.Device, e.Err)
}

func (e *AwaitError) Unwrap() error { return e.Err }

// Multiplexer waits on the device and keyboard descriptors.
type Multiplexer interface {
	Await(timeout time.Duration) (Readiness, error)
	// Wake interrupts a pending Await.
	Wake()
	Close() error
}

// ErrKeyboardInterrupted is returned by a Keyboard read cut short by
// Interrupt.
var ErrKeyboardInterrupted = errors.New("keyboard read interrupted")

// maxKeyboardErrors consecutive read failures end the session like EOF.
const maxKeyboardErrors = 3

// Keyboard reads operator input in rare (unbuffered, no echo) mode.
type Keyboard interface {
	ReadByte() (byte, error)
	// ReadLine reads the rest of a line in cooked mode after first, then
	// returns to rare mode.
	ReadLine(first byte) (string, error)
	// Interrupt makes a pending or the next ReadLine return
	// ErrKeyboardInterrupted. Safe to call from any goroutine.
	Interrupt()
	Restore() error
}

// LoopOptions configures a Loop.
type LoopOptions struct {
	// Timeout bounds each wait; zero means two seconds.
	Timeout time.Duration
	// PPS is the pulse capture thread, stopped at cleanup.
	PPS io.Closer
}

// Loop is the event loop around one Session.
type Loop struct {
	s       *Session
	mux     Multiplexer
	kb      Keyboard
	timeout time.Duration
	pps     io.Closer

	sigMu sync.Mutex
	sig   os.Signal

	kbErrors    int
	cleanupOnce sync.Once
}

func NewLoop(s *Session, mux Multiplexer, kb Keyboard, opts LoopOptions) *Loop {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Loop{s: s, mux: mux, kb: kb, timeout: timeout, pps: opts.PPS}
}

func signalCause(sig os.Signal) Cause {
	if sig == syscall.SIGABRT {
		return CauseAbort
	}
	return CauseSignal
}

// Signal records sig for the loop and wakes it out of any wait,
// including a half-typed command line. The first signal wins.
func (l *Loop) Signal(sig os.Signal) {
	l.sigMu.Lock()
	if l.sig == nil {
		l.sig = sig
	}
	l.sigMu.Unlock()
	if l.mux != nil {
		l.mux.Wake()
	}
	if l.kb != nil {
		l.kb.Interrupt()
	}
}

func (l *Loop) pendingSignal() *Termination {
	l.sigMu.Lock()
	sig := l.sig
	l.sigMu.Unlock()
	if sig == nil {
		return nil
	}
	return &Termination{Cause: signalCause(sig), Err: fmt.Errorf("caught %v", sig)}
}

// Run drives the session until something ends it. Cleanup has run by
// the time Run returns, whatever the cause.
func (l *Loop) Run() (term *Termination) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session panic recovered err=%v", r)
			term = &Termination{Cause: CauseAbort, Err: fmt.Errorf("panic: %v", r)}
		}
		l.cleanup()
		log.Printf("session terminated cause=%s", term.Cause)
	}()

	if t := l.s.start(); t != nil {
		return t
	}
	for {
		if t := l.pendingSignal(); t != nil {
			return t
		}
		ready, err := l.mux.Await(l.timeout)
		if err != nil {
			var ae *AwaitError
			if errors.As(err, &ae) && ae.Device {
				return &Termination{Cause: CauseWaitFailed, Err: err}
			}
			log.Printf("session transient wait failure err=%v", err)
			continue
		}
		if t := l.pendingSignal(); t != nil {
			return t
		}

		status, pkts, err := l.s.transport.Poll(ready.Device)
		switch status {
		case gps.PollReady:
			for _, pkt := range pkts {
				l.s.HandlePacket(pkt)
			}
		case gps.PollNotReady:
			return &Termination{Cause: CauseDeviceOffline}
		case gps.PollError:
			return &Termination{Cause: CauseReadError, Err: err}
		case gps.PollEOF:
			return &Termination{Cause: CauseEndOfInput}
		}

		if ready.Keyboard {
			if t := l.keyboard(); t != nil {
				return t
			}
		}
	}
}

// keyboard reads one byte, then the rest of the line unless the byte is
// a complete command on its own. The report lock covers only the prompt
// paint, never the blocking line read.
func (l *Loop) keyboard() *Termination {
	b, err := l.kb.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Termination{Cause: CauseQuit, Err: err}
		}
		l.kbErrors++
		log.Printf("session keyboard read failed count=%d err=%v", l.kbErrors, err)
		if l.kbErrors >= maxKeyboardErrors {
			return &Termination{Cause: CauseQuit, Err: err}
		}
		return nil
	}
	l.kbErrors = 0
	line := string(b)
	if b != 'q' && b != '\n' {
		l.s.paint(display.RegionCommand, fmt.Sprintf("gpsmon: %s> %c", l.s.Prompt(), b))
		line, err = l.kb.ReadLine(b)
		if t := l.pendingSignal(); t != nil {
			return t
		}
		if err != nil && !errors.Is(err, io.EOF) {
			log.Printf("session keyboard line failed err=%v", err)
			return nil
		}
	}
	if !l.s.Do(line) {
		return &Termination{Cause: CauseQuit}
	}
	return nil
}

// cleanup stops the pulse thread, closes the transport and transcript
// and restores the keyboard. It runs once.
func (l *Loop) cleanup() {
	l.cleanupOnce.Do(func() {
		if l.pps != nil {
			if err := l.pps.Close(); err != nil {
				log.Printf("session pps stop failed err=%v", err)
			}
		}
		if err := l.s.Close(); err != nil {
			log.Printf("session transport close failed err=%v", err)
		}
		if l.kb != nil {
			if err := l.kb.Restore(); err != nil {
				log.Printf("session keyboard restore failed err=%v", err)
			}
		}
		if l.mux != nil {
			_ = l.mux.Close()
		}
	})
}
