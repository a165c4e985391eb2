// Package session is the live state machine of the monitor: one device
// connection, the driver bound to it, the active monitor object, the
// operator command interpreter and the event loop that ties them together.
package session

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"gpsmon-ng/internal/display"
	"gpsmon-ng/internal/driver"
	"gpsmon-ng/internal/gps"
	"gpsmon-ng/internal/metrics"
	"gpsmon-ng/internal/monitor"
	"gpsmon-ng/internal/timing"
)

// Transport is the device side as the session needs it. *gps.Device
// implements it.
type Transport interface {
	Poll(readable bool) (gps.PollStatus, []gps.Packet, error)
	Write(p []byte) (int, error)
	SetSpeed(p gps.SerialParams) error
	Params() gps.SerialParams
	Drain() error
	Resync()
	Serial() bool
	Source() gps.Source
	Fd() int
	Close() error
}

// Options configures a Session.
type Options struct {
	Transport Transport
	Sink      display.Sink
	// Monitors defaults to monitor.Registry().
	Monitors []monitor.Object
	// Fallback is the operator-chosen driver for control commands.
	Fallback driver.Driver
	// Force binds Fallback and selects its monitor before the loop starts.
	Force bool
	// Transcript is an already open log file, or nil.
	Transcript io.WriteCloser
	// OpenLog opens a transcript for append; defaults to os.OpenFile.
	OpenLog func(path string) (io.WriteCloser, error)
	// Settle is the pause after mode and speed changes.
	Settle   time.Duration
	Sleep    func(time.Duration)
	Now      func() time.Time
	Hostname string
	Metrics  *metrics.Metrics
}

// Session is the single live device connection and everything hanging
// off it. The main loop is its only writer except for the timing latch
// and the output stream, which are guarded.
type Session struct {
	transport Transport

	bound  driver.Driver
	pinned bool
	// fallback overrides bound for rate, mode and speed when it has the
	// capability.
	fallback driver.Driver
	force    bool
	readonly bool

	lastType     gps.PacketType
	lastResolved string
	haveLastType bool
	lastPacket   gps.Packet
	fix          gps.FixTracker

	Timing   *timing.Reconciler
	switcher *monitor.Switcher
	env      *monitor.Env

	// reportMu guards sink and transcript; the pulse thread paints too.
	reportMu   sync.Mutex
	sink       display.Sink
	transcript io.WriteCloser
	openLog    func(string) (io.WriteCloser, error)

	settle   time.Duration
	sleep    func(time.Duration)
	now      func() time.Time
	hostname string
	metrics  *metrics.Metrics
}

func appendLog(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func New(opts Options) (*Session, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("session: transport is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("session: display sink is required")
	}
	s := &Session{
		transport:  opts.Transport,
		fallback:   opts.Fallback,
		force:      opts.Force && opts.Fallback != nil,
		readonly:   true,
		lastType:   gps.BadPacket,
		Timing:     &timing.Reconciler{},
		sink:       opts.Sink,
		transcript: opts.Transcript,
		openLog:    opts.OpenLog,
		settle:     opts.Settle,
		sleep:      opts.Sleep,
		now:        opts.Now,
		hostname:   opts.Hostname,
		metrics:    opts.Metrics,
	}
	if s.openLog == nil {
		s.openLog = appendLog
	}
	if s.sleep == nil {
		s.sleep = time.Sleep
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.hostname == "" {
		s.hostname, _ = os.Hostname()
	}
	objects := opts.Monitors
	if objects == nil {
		objects = monitor.Registry()
	}
	s.env = &monitor.Env{
		Sink:  &lockedSink{mu: &s.reportMu, sink: s.sink},
		Send:  s.ControlSend,
		Sleep: s.sleep,
		Now:   s.now,
	}
	s.switcher = monitor.NewSwitcher(s.env, objects)
	s.switcher.OnSwitch = s.metrics.Switched
	return s, nil
}

// Bound is the driver currently bound to the device.
func (s *Session) Bound() driver.Driver { return s.bound }

func (s *Session) Fallback() driver.Driver { return s.fallback }

func (s *Session) ReadOnly() bool { return s.readonly }

func (s *Session) Switcher() *monitor.Switcher { return s.switcher }

func (s *Session) Fix() gps.Fix { return s.fix.Fix() }

func (s *Session) LastPacket() gps.Packet { return s.lastPacket }

func (s *Session) serial() bool { return s.transport.Serial() }

// Prompt is "host:device baud 8N1" for serial sessions and the gpsd
// source otherwise.
func (s *Session) Prompt() string {
	src := s.transport.Source()
	if !src.Serial {
		return src.String()
	}
	p := s.transport.Params()
	return fmt.Sprintf("%s:%s %d %d%c%d", s.hostname, src.Device, p.Baud, p.DataBits, p.Parity, p.StopBits)
}

// start runs once before the first wait.
func (s *Session) start() *Termination {
	s.paint(display.RegionStatus, "gpsmon: "+s.Prompt())
	if !s.force {
		return nil
	}
	s.bind(s.fallback, true)
	if err := s.switcher.Select(s.fallback.Name()); err != nil {
		s.complain("%s", err)
		return &Termination{Cause: CauseDriverSwitch, Err: err}
	}
	return nil
}

func (s *Session) bind(d driver.Driver, pinned bool) {
	if d == nil {
		return
	}
	if s.bound != d {
		log.Printf("session driver bound driver=%s pinned=%t", d.Name(), pinned)
	}
	s.bound = d
	s.pinned = pinned
}

// identify picks the driver for an inbound packet. Vendor sentence
// prefixes rebind; a sticky, pinned or NMEA-native driver keeps plain
// NMEA; otherwise the packet type's default driver takes over.
func (s *Session) identify(pkt gps.Packet) {
	if pkt.Type == gps.NMEAPacket {
		if d := driver.Identify(pkt.Sentence); d != nil {
			s.bind(d, true)
			return
		}
	}
	if b := s.bound; b != nil {
		if b.Packet() == pkt.Type {
			return
		}
		if pkt.Type == gps.NMEAPacket && (b.Sticky() || s.pinned) {
			return
		}
	}
	if d := driver.ForPacketType(pkt.Type); d != nil {
		s.bind(d, false)
	}
}

// HandlePacket is the per-packet path: side channel, driver
// identification, monitor switch, monitor update, packet log, fix
// bookkeeping. The switch is always evaluated before the update.
func (s *Session) HandlePacket(pkt gps.Packet) {
	s.metrics.Packet(pkt.Type.String(), len(pkt.Raw))
	if !s.serial() && pkt.Type == gps.JSONPacket {
		switch timing.Classify(pkt.Raw) {
		case timing.KindTOFF:
			s.handleTOFF(pkt)
			return
		case timing.KindPPS:
			s.handlePPS(pkt)
			return
		}
	}

	s.identify(pkt)
	resolved := s.switcher.Resolve(pkt.Type, s.bound)
	// A sticky rebind changes the resolved monitor without a type change.
	if !s.haveLastType || pkt.Type != s.lastType || resolved != s.lastResolved {
		if resolved != "" {
			if err := s.switcher.Select(resolved); err != nil {
				s.metrics.Refused()
				s.complain("%s", err)
			} else {
				s.paint(display.RegionStatus, "gpsmon: "+s.Prompt())
			}
		}
		s.lastType = pkt.Type
		s.lastResolved = resolved
		s.haveLastType = true
	}
	if active := s.switcher.Active(); active != nil && len(pkt.Raw) > 0 && resolved != "" && active.Name() == resolved {
		if u, ok := active.(monitor.Updater); ok {
			u.Update(s.env, pkt)
		}
	}

	s.logPacket(fmt.Sprintf("(%d) %s", len(pkt.Raw), gps.CondHexdump(pkt.Raw, pkt.Type.Textual())), pkt.Raw)
	if s.fix.Apply(pkt) {
		s.Timing.LatchFix(s.fix.Fix().Time, s.now())
	}
	s.lastPacket = pkt
}

func (s *Session) handleTOFF(pkt gps.Packet) {
	d, err := s.Timing.HandleTOFF(pkt.Raw)
	if err != nil {
		s.metrics.DecodeError("TOFF")
		s.complain("%s", err)
		return
	}
	log.Printf("session toff clock=%s real=%s offset=%s", d.Clock.Format(time.RFC3339Nano), d.Real.Format(time.RFC3339Nano), timing.FormatOffset(d.Offset()))
}

func (s *Session) handlePPS(pkt gps.Packet) {
	_, banner, err := s.Timing.HandlePPS(pkt.Raw)
	if err != nil {
		s.metrics.DecodeError("PPS")
		s.complain("%s", err)
		return
	}
	s.metrics.PPS()
	s.logPacket(banner, pkt.Raw)
}

// ReportPulse is the capture thread's report hook.
func (s *Session) ReportPulse(bar string) {
	s.metrics.PPS()
	s.paint(display.RegionPacket, bar)
}

// logPacket writes the packet-window line and appends raw to the
// transcript under one lock hold.
func (s *Session) logPacket(line string, raw []byte) {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	s.sink.Paint(display.RegionPacket, line)
	if s.transcript != nil && len(raw) > 0 {
		if _, err := s.transcript.Write(raw); err != nil {
			log.Printf("session transcript write failed err=%v", err)
		}
	}
}

func (s *Session) paint(r display.Region, text string) {
	s.reportMu.Lock()
	s.sink.Paint(r, text)
	s.reportMu.Unlock()
}

func (s *Session) complain(format string, args ...any) {
	s.paint(display.RegionStatus, fmt.Sprintf(format, args...))
}

// announce echoes a control action to the packet window and transcript.
func (s *Session) announce(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	s.sink.Paint(display.RegionPacket, ">>> "+msg)
	s.writeTranscript(">>>" + msg + "\n")
}

func (s *Session) writeTranscript(text string) {
	if s.transcript == nil {
		return
	}
	if _, err := io.WriteString(s.transcript, text); err != nil {
		log.Printf("session transcript write failed err=%v", err)
	}
}

// OpenTranscript replaces the transcript with path opened for append.
// On failure logging stays off.
func (s *Session) OpenTranscript(path string) error {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	if s.transcript != nil {
		_ = s.transcript.Close()
		s.transcript = nil
	}
	f, err := s.openLog(path)
	if err != nil {
		return err
	}
	s.transcript = f
	log.Printf("session transcript opened path=%s", path)
	return nil
}

// Close releases the transport, transcript and display.
func (s *Session) Close() error {
	err := s.transport.Close()
	s.reportMu.Lock()
	if s.transcript != nil {
		_ = s.transcript.Close()
		s.transcript = nil
	}
	_ = s.sink.Close()
	s.reportMu.Unlock()
	return err
}

// lockedSink serializes monitor painting with packet logging.
type lockedSink struct {
	mu   *sync.Mutex
	sink display.Sink
}

func (l *lockedSink) Paint(r display.Region, text string) {
	l.mu.Lock()
	l.sink.Paint(r, text)
	l.mu.Unlock()
}

func (l *lockedSink) Clear() {
	l.mu.Lock()
	l.sink.Clear()
	l.mu.Unlock()
}

func (l *lockedSink) Size() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Size()
}

func (l *lockedSink) Layout(n int) {
	l.mu.Lock()
	l.sink.Layout(n)
	l.mu.Unlock()
}

func (l *lockedSink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Close()
}
