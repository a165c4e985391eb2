package session

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"gpsmon-ng/internal/display"
	"gpsmon-ng/internal/gps"
	"gpsmon-ng/internal/monitor"
)

type pollResult struct {
	status gps.PollStatus
	pkts   []gps.Packet
	err    error
	panic  bool
}

type fakeTransport struct {
	src      gps.Source
	params   gps.SerialParams
	script   []pollResult
	polls    int
	written  [][]byte
	speeds   []gps.SerialParams
	drains   int
	resyncs  int
	closes   int
	writeErr error
}

func newSerialTransport() *fakeTransport {
	return &fakeTransport{
		src:    gps.Source{Serial: true, Device: "/dev/ttyUSB0"},
		params: gps.SerialParams{Baud: 9600, DataBits: 8, Parity: 'N', StopBits: 1},
	}
}

func newNetworkTransport() *fakeTransport {
	return &fakeTransport{src: gps.ParseSource("localhost:2947")}
}

func (t *fakeTransport) Poll(readable bool) (gps.PollStatus, []gps.Packet, error) {
	if t.polls >= len(t.script) {
		t.polls++
		return gps.PollUnchanged, nil, nil
	}
	r := t.script[t.polls]
	t.polls++
	if r.panic {
		panic("poll exploded")
	}
	return r.status, r.pkts, r.err
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	t.written = append(t.written, append([]byte(nil), p...))
	return len(p), nil
}

func (t *fakeTransport) SetSpeed(p gps.SerialParams) error {
	t.speeds = append(t.speeds, p)
	t.params = p
	return nil
}

func (t *fakeTransport) Params() gps.SerialParams { return t.params }
func (t *fakeTransport) Drain() error             { t.drains++; return nil }
func (t *fakeTransport) Resync()                  { t.resyncs++ }
func (t *fakeTransport) Serial() bool             { return t.src.Serial }
func (t *fakeTransport) Source() gps.Source       { return t.src }
func (t *fakeTransport) Fd() int                  { return -1 }
func (t *fakeTransport) Close() error             { t.closes++; return nil }

type fakeSink struct {
	rows, cols int
	painted    map[display.Region][]string
	closes     int
}

func newFakeSink() *fakeSink {
	return &fakeSink{rows: 40, cols: 100, painted: map[display.Region][]string{}}
}

func (s *fakeSink) Paint(r display.Region, text string) { s.painted[r] = append(s.painted[r], text) }
func (s *fakeSink) Clear()                              {}
func (s *fakeSink) Size() (int, int)                    { return s.rows, s.cols }
func (s *fakeSink) Layout(int)                          {}
func (s *fakeSink) Close() error                        { s.closes++; return nil }

func (s *fakeSink) last(r display.Region) string {
	lines := s.painted[r]
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func (s *fakeSink) contains(r display.Region, sub string) bool {
	for _, l := range s.painted[r] {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

type countingObject struct {
	name    string
	inits   int
	wraps   int
	updates int
}

func (o *countingObject) Name() string                    { return o.name }
func (o *countingObject) MinSize() (int, int)             { return 4, 40 }
func (o *countingObject) Initialize(*monitor.Env)         { o.inits++ }
func (o *countingObject) Wrap(*monitor.Env)               { o.wraps++ }
func (o *countingObject) Update(*monitor.Env, gps.Packet) { o.updates++ }

type bufferLog struct {
	strings.Builder
	closed bool
}

func (b *bufferLog) Close() error { b.closed = true; return nil }

type fakeMux struct {
	results []Readiness
	errs    []error
	// keyboard marks the keyboard ready once results run out.
	keyboard bool
	awaits   int
	closes   int
}

func (m *fakeMux) Await(time.Duration) (Readiness, error) {
	i := m.awaits
	m.awaits++
	if i < len(m.errs) && m.errs[i] != nil {
		return Readiness{}, m.errs[i]
	}
	if i < len(m.results) {
		return m.results[i], nil
	}
	return Readiness{Device: true, Keyboard: m.keyboard}, nil
}

func (m *fakeMux) Wake()        {}
func (m *fakeMux) Close() error { m.closes++; return nil }

type fakeKeyboard struct {
	keys     []byte
	lines    map[byte]string
	readErr  error
	reads    int
	restores int
}

func (k *fakeKeyboard) ReadByte() (byte, error) {
	k.reads++
	if k.readErr != nil {
		return 0, k.readErr
	}
	if len(k.keys) == 0 {
		return 0, io.EOF
	}
	b := k.keys[0]
	k.keys = k.keys[1:]
	return b, nil
}

func (k *fakeKeyboard) ReadLine(first byte) (string, error) {
	if l, ok := k.lines[first]; ok {
		return l, nil
	}
	return string(first), nil
}

func (k *fakeKeyboard) Interrupt()     {}
func (k *fakeKeyboard) Restore() error { k.restores++; return nil }

// blockingKeyboard yields one key, then parks in ReadLine until
// Interrupt is called.
type blockingKeyboard struct {
	key      byte
	sent     bool
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	restores int
}

func newBlockingKeyboard(key byte) *blockingKeyboard {
	return &blockingKeyboard{key: key, entered: make(chan struct{}), release: make(chan struct{})}
}

func (k *blockingKeyboard) ReadByte() (byte, error) {
	if k.sent {
		return 0, io.EOF
	}
	k.sent = true
	return k.key, nil
}

func (k *blockingKeyboard) ReadLine(first byte) (string, error) {
	close(k.entered)
	<-k.release
	return string(first), ErrKeyboardInterrupted
}

func (k *blockingKeyboard) Interrupt()     { k.once.Do(func() { close(k.release) }) }
func (k *blockingKeyboard) Restore() error { k.restores++; return nil }

func newTestSession(t *testing.T, tr *fakeTransport, objs ...monitor.Object) (*Session, *fakeSink) {
	t.Helper()
	sink := newFakeSink()
	opts := Options{
		Transport: tr,
		Sink:      sink,
		Sleep:     func(time.Duration) {},
		Hostname:  "testhost",
		OpenLog: func(path string) (io.WriteCloser, error) {
			return nil, errors.New("boom")
		},
	}
	if len(objs) > 0 {
		opts.Monitors = objs
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, sink
}

func nmeaPacket(t *testing.T, body string) gps.Packet {
	t.Helper()
	raw := gps.FrameNMEA(body)
	s, err := gps.ParseNMEA(string(raw))
	if err != nil {
		t.Fatalf("ParseNMEA(%q): %v", raw, err)
	}
	return gps.Packet{Type: gps.NMEAPacket, Raw: raw, Sentence: &s}
}

func ubxPacket() gps.Packet {
	raw := []byte{0xB5, 0x62, 0x01, 0x07, 0x00, 0x00}
	a, b := gps.UBXChecksum(raw[2:])
	return gps.Packet{Type: gps.UBXPacket, Raw: append(raw, a, b)}
}
