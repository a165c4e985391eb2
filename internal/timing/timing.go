// Package timing reconciles the device's time reports with a reference
// clock: gpsd TOFF/PPS side-channel reports on network sessions and
// GPIO-captured pulses on local ones.
package timing

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Side-channel report prefixes as gpsd emits them.
const (
	TOFFPrefix = `{"class":"TOFF",`
	PPSPrefix  = `{"class":"PPS",`
)

// PPSBar marks a captured pulse in the packet window.
const PPSBar = "-------------------------------------" + " PPS " + "-------------------------------------"

// Kind classifies a side-channel packet.
type Kind int

const (
	KindNone Kind = iota
	KindTOFF
	KindPPS
)

// Classify reports whether raw is a TOFF or PPS report.
func Classify(raw []byte) Kind {
	s := string(raw)
	switch {
	case strings.HasPrefix(s, TOFFPrefix):
		return KindTOFF
	case strings.HasPrefix(s, PPSPrefix):
		return KindPPS
	default:
		return KindNone
	}
}

// Delta pairs a local clock reading with the reference time it matched.
type Delta struct {
	Clock time.Time
	Real  time.Time
}

// Offset is clock minus reference.
func (d Delta) Offset() time.Duration { return d.Clock.Sub(d.Real) }

// Decode error codes.
const (
	CodeSyntax    = 1
	CodeClass     = 2
	CodeMissing   = 3
	CodeNanoRange = 4
)

var codeText = map[int]string{
	CodeSyntax:    "JSON syntax error",
	CodeClass:     "unexpected report class",
	CodeMissing:   "missing time field",
	CodeNanoRange: "nanoseconds out of range",
}

// DecodeError describes a malformed side-channel report.
type DecodeError struct {
	Class string
	Code  int
	Err   error
}

func (e *DecodeError) Error() string {
	msg := codeText[e.Code]
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("Ill-formed %s packet: %d (%s)", e.Class, e.Code, msg)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type timeReport struct {
	Class     string `json:"class"`
	Device    string `json:"device"`
	RealSec   *int64 `json:"real_sec"`
	RealNsec  *int64 `json:"real_nsec"`
	ClockSec  *int64 `json:"clock_sec"`
	ClockNsec *int64 `json:"clock_nsec"`
	Precision int    `json:"precision"`
}

func decode(raw []byte, class string) (Delta, error) {
	var r timeReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return Delta{}, &DecodeError{Class: class, Code: CodeSyntax, Err: err}
	}
	if r.Class != class {
		return Delta{}, &DecodeError{Class: class, Code: CodeClass, Err: fmt.Errorf("got %q", r.Class)}
	}
	if r.RealSec == nil || r.RealNsec == nil || r.ClockSec == nil || r.ClockNsec == nil {
		return Delta{}, &DecodeError{Class: class, Code: CodeMissing}
	}
	for _, ns := range []int64{*r.RealNsec, *r.ClockNsec} {
		if ns < 0 || ns >= int64(time.Second) {
			return Delta{}, &DecodeError{Class: class, Code: CodeNanoRange, Err: fmt.Errorf("%d", ns)}
		}
	}
	return Delta{
		Clock: time.Unix(*r.ClockSec, *r.ClockNsec).UTC(),
		Real:  time.Unix(*r.RealSec, *r.RealNsec).UTC(),
	}, nil
}

func DecodeTOFF(raw []byte) (Delta, error) { return decode(raw, "TOFF") }

func DecodePPS(raw []byte) (Delta, error) { return decode(raw, "PPS") }

// FormatOffset renders a duration as signed seconds with nanoseconds.
func FormatOffset(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	return fmt.Sprintf("%s%d.%09d", sign, d/time.Second, d%time.Second)
}

// Banner is the packet-window line for a PPS report.
func Banner(offset time.Duration) string {
	return fmt.Sprintf("------------------- PPS offset: %.20s ------", FormatOffset(offset))
}

// Latch is the state shared with the pulse capture thread. Every access
// takes mu for the copy only.
type Latch struct {
	mu    sync.Mutex
	pps   Delta
	count uint64
	fixIn Delta
}

// StorePPS records a pulse and returns the new pulse count.
func (l *Latch) StorePPS(d Delta) uint64 {
	l.mu.Lock()
	l.pps = d
	l.count++
	n := l.count
	l.mu.Unlock()
	return n
}

// PPS returns the last pulse and the pulse count.
func (l *Latch) PPS() (Delta, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pps, l.count
}

// FixIn is the last fix time matched to a clock reading.
func (l *Latch) FixIn() Delta {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fixIn
}

// Reconciler turns side-channel reports and pulses into latch updates.
type Reconciler struct {
	Latch Latch

	// toff is main-loop only.
	toff     Delta
	haveTOFF bool
}

// TOFF returns the last decoded time offset report.
func (r *Reconciler) TOFF() (Delta, bool) { return r.toff, r.haveTOFF }

// HandleTOFF decodes and remembers a TOFF report. A malformed report
// leaves the previous one in place.
func (r *Reconciler) HandleTOFF(raw []byte) (Delta, error) {
	d, err := DecodeTOFF(raw)
	if err != nil {
		return Delta{}, err
	}
	r.toff = d
	r.haveTOFF = true
	return d, nil
}

// HandlePPS decodes a PPS report, latches it and returns the banner line.
func (r *Reconciler) HandlePPS(raw []byte) (Delta, string, error) {
	d, err := DecodePPS(raw)
	if err != nil {
		return Delta{}, "", err
	}
	r.Latch.StorePPS(d)
	return d, Banner(d.Offset()), nil
}

// RecordPulse is called from the capture thread.
func (r *Reconciler) RecordPulse(d Delta) uint64 {
	return r.Latch.StorePPS(d)
}

// LatchFix pairs a new fix second with a clock reading: the last TOFF
// clock when one is known, otherwise receivedAt. It does nothing for a
// non-positive fix time or one that is not past the previous match.
func (r *Reconciler) LatchFix(fixTime, receivedAt time.Time) bool {
	if fixTime.IsZero() || fixTime.Unix() <= 0 {
		return false
	}
	clock := receivedAt
	if r.haveTOFF {
		clock = r.toff.Clock
	}
	r.Latch.mu.Lock()
	defer r.Latch.mu.Unlock()
	if fixTime.Unix() <= r.Latch.fixIn.Real.Unix() {
		return false
	}
	r.Latch.fixIn = Delta{Clock: clock, Real: fixTime}
	return true
}
