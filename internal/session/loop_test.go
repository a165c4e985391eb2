package session

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"gpsmon-ng/internal/display"
	"gpsmon-ng/internal/driver"
	"gpsmon-ng/internal/gps"
)

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

func newTestLoop(t *testing.T, tr *fakeTransport, kb *fakeKeyboard, opts LoopOptions) (*Loop, *Session, *fakeMux, *fakeSink) {
	t.Helper()
	s, sink := newTestSession(t, tr)
	mux := &fakeMux{}
	if kb == nil {
		kb = &fakeKeyboard{}
	}
	return NewLoop(s, mux, kb, opts), s, mux, sink
}

func TestRun_EndOfInputCleansUpOnce(t *testing.T) {
	tr := newNetworkTransport()
	gga := gps.Packet{Type: gps.JSONPacket, Raw: []byte(`{"class":"VERSION","release":"3.25"}`)}
	tr.script = []pollResult{
		{status: gps.PollReady, pkts: []gps.Packet{gga}},
		{status: gps.PollUnchanged},
		{status: gps.PollEOF},
	}
	kb := &fakeKeyboard{}
	pps := &closeCounter{}
	l, _, mux, sink := newTestLoop(t, tr, kb, LoopOptions{PPS: pps})

	term := l.Run()
	if term == nil || term.Cause != CauseEndOfInput {
		t.Fatalf("term=%v want end-of-input", term)
	}
	if term.Cause.Explanation() != "Device went offline" {
		t.Fatalf("explanation=%q", term.Cause.Explanation())
	}
	if tr.polls != 3 {
		t.Fatalf("polls=%d want 3", tr.polls)
	}
	l.cleanup()
	if tr.closes != 1 || kb.restores != 1 || mux.closes != 1 || pps.n != 1 || sink.closes != 1 {
		t.Fatalf("closes transport=%d kb=%d mux=%d pps=%d sink=%d want 1 each", tr.closes, kb.restores, mux.closes, pps.n, sink.closes)
	}
}

func TestRun_PollOutcomes(t *testing.T) {
	cases := []struct {
		status gps.PollStatus
		cause  Cause
	}{
		{gps.PollNotReady, CauseDeviceOffline},
		{gps.PollError, CauseReadError},
		{gps.PollEOF, CauseEndOfInput},
	}
	for _, tc := range cases {
		tr := newSerialTransport()
		tr.script = []pollResult{{status: tc.status, err: errors.New("io")}}
		l, _, _, _ := newTestLoop(t, tr, nil, LoopOptions{})
		if term := l.Run(); term.Cause != tc.cause {
			t.Fatalf("status=%s cause=%s want %s", tc.status, term.Cause, tc.cause)
		}
	}
}

func TestRun_KeyboardQuit(t *testing.T) {
	tr := newSerialTransport()
	kb := &fakeKeyboard{keys: []byte{'q'}}
	l, _, mux, _ := newTestLoop(t, tr, kb, LoopOptions{})
	mux.results = []Readiness{{Keyboard: true}}

	term := l.Run()
	if term.Cause != CauseQuit || term.Cause.Explanation() != "" {
		t.Fatalf("term=%v want quit", term)
	}
	if tr.closes != 1 {
		t.Fatalf("transport closes=%d", tr.closes)
	}
}

func TestRun_KeyboardEOFQuits(t *testing.T) {
	l, _, mux, _ := newTestLoop(t, newSerialTransport(), &fakeKeyboard{}, LoopOptions{})
	mux.results = []Readiness{{Keyboard: true}}
	if term := l.Run(); term.Cause != CauseQuit {
		t.Fatalf("cause=%s want quit", term.Cause)
	}
}

func TestRun_KeyboardCommandLine(t *testing.T) {
	tr := newSerialTransport()
	tr.script = []pollResult{{status: gps.PollUnchanged}, {status: gps.PollEOF}}
	kb := &fakeKeyboard{keys: []byte{'t'}, lines: map[byte]string{'t': "tMTK"}}
	l, s, mux, sink := newTestLoop(t, tr, kb, LoopOptions{})
	mux.results = []Readiness{{Keyboard: true}, {Device: true}}

	if term := l.Run(); term.Cause != CauseEndOfInput {
		t.Fatalf("cause=%s", term.Cause)
	}
	if s.Bound() != driver.MTK3301 {
		t.Fatalf("bound=%v want MTK-3301", s.Bound())
	}
	if got := sink.painted[display.RegionCommand]; len(got) != 1 || got[0] != "gpsmon: testhost:/dev/ttyUSB0 9600 8N1> t" {
		t.Fatalf("command line=%v", got)
	}
}

func TestRun_Signals(t *testing.T) {
	cases := []struct {
		sig   os.Signal
		cause Cause
	}{
		{syscall.SIGINT, CauseSignal},
		{syscall.SIGTERM, CauseSignal},
		{syscall.SIGABRT, CauseAbort},
	}
	for _, tc := range cases {
		tr := newSerialTransport()
		l, _, mux, _ := newTestLoop(t, tr, nil, LoopOptions{})
		l.Signal(tc.sig)
		if term := l.Run(); term.Cause != tc.cause {
			t.Fatalf("sig=%v cause=%s want %s", tc.sig, term.Cause, tc.cause)
		}
		if mux.awaits != 0 || tr.closes != 1 {
			t.Fatalf("sig=%v awaits=%d closes=%d", tc.sig, mux.awaits, tr.closes)
		}
	}
}

func TestRun_SignalDuringCommandLine(t *testing.T) {
	tr := newSerialTransport()
	s, _ := newTestSession(t, tr)
	kb := newBlockingKeyboard('c')
	mux := &fakeMux{results: []Readiness{{Keyboard: true}}}
	l := NewLoop(s, mux, kb, LoopOptions{})

	done := make(chan *Termination, 1)
	go func() { done <- l.Run() }()

	select {
	case <-kb.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop never reached ReadLine")
	}

	// The pulse thread must still be able to report while a line is typed.
	reported := make(chan struct{})
	go func() {
		s.ReportPulse("PPS")
		close(reported)
	}()
	select {
	case <-reported:
	case <-time.After(2 * time.Second):
		t.Fatalf("pulse report blocked while a command line was pending")
	}

	l.Signal(syscall.SIGINT)
	select {
	case term := <-done:
		if term.Cause != CauseSignal {
			t.Fatalf("cause=%s want signal", term.Cause)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("signal did not interrupt the command line")
	}
	if tr.closes != 1 || kb.restores != 1 {
		t.Fatalf("cleanup closes=%d restores=%d", tr.closes, kb.restores)
	}
}

func TestRun_RepeatedKeyboardErrorsQuit(t *testing.T) {
	tr := newSerialTransport()
	kb := &fakeKeyboard{readErr: syscall.EIO}
	l, _, mux, _ := newTestLoop(t, tr, kb, LoopOptions{})
	mux.keyboard = true

	term := l.Run()
	if term.Cause != CauseQuit || !errors.Is(term, syscall.EIO) {
		t.Fatalf("term=%v want quit wrapping EIO", term)
	}
	if kb.reads != maxKeyboardErrors {
		t.Fatalf("reads=%d want %d", kb.reads, maxKeyboardErrors)
	}
}

func TestRun_AwaitFailures(t *testing.T) {
	tr := newSerialTransport()
	l, _, mux, _ := newTestLoop(t, tr, nil, LoopOptions{})
	mux.errs = []error{
		&AwaitError{Err: syscall.EINTR},
		&AwaitError{Device: true, Err: syscall.EBADF},
	}
	term := l.Run()
	if term.Cause != CauseWaitFailed {
		t.Fatalf("cause=%s want wait-failed", term.Cause)
	}
	if !errors.Is(term, syscall.EBADF) {
		t.Fatalf("term=%v does not wrap EBADF", term)
	}
	if mux.awaits != 2 {
		t.Fatalf("awaits=%d want 2", mux.awaits)
	}
}

func TestRun_PanicAborts(t *testing.T) {
	tr := newSerialTransport()
	tr.script = []pollResult{{panic: true}}
	kb := &fakeKeyboard{}
	l, _, _, _ := newTestLoop(t, tr, kb, LoopOptions{})
	term := l.Run()
	if term.Cause != CauseAbort {
		t.Fatalf("cause=%s want abort", term.Cause)
	}
	if tr.closes != 1 || kb.restores != 1 {
		t.Fatalf("cleanup closes=%d restores=%d", tr.closes, kb.restores)
	}
}

func TestRun_ForcedTypeWithoutMonitor(t *testing.T) {
	tr := newSerialTransport()
	s, err := New(Options{Transport: tr, Sink: newFakeSink(), Fallback: driver.SiRF, Force: true, Hostname: "h"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mux := &fakeMux{}
	term := NewLoop(s, mux, &fakeKeyboard{}, LoopOptions{}).Run()
	if term.Cause != CauseDriverSwitch {
		t.Fatalf("cause=%s want driver-switch", term.Cause)
	}
	if term.Cause.Explanation() != "Driver type switch failed" {
		t.Fatalf("explanation=%q", term.Cause.Explanation())
	}
	if mux.awaits != 0 {
		t.Fatalf("awaits=%d want 0", mux.awaits)
	}
}

func TestCauseExplanations(t *testing.T) {
	want := map[Cause]string{
		CauseQuit:          "",
		CauseSignal:        "",
		CauseAbort:         "assertion failure, probable I/O error",
		CauseWaitFailed:    "I/O wait on device failed",
		CauseDriverSwitch:  "Driver type switch failed",
		CauseDeviceOffline: "Device went offline",
		CauseReadError:     "Read error from device",
		CauseEndOfInput:    "Device went offline",
	}
	for c, w := range want {
		if got := c.Explanation(); got != w {
			t.Fatalf("%s explanation=%q want %q", c, got, w)
		}
	}
}
