package timing

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

const ppsReport = `{"class":"PPS","device":"/dev/ttyS0","real_sec":1700000000,"real_nsec":0,"clock_sec":1700000000,"clock_nsec":1500,"precision":-20}`
const toffReport = `{"class":"TOFF","device":"/dev/ttyS0","real_sec":1700000001,"real_nsec":0,"clock_sec":1700000001,"clock_nsec":250000000,"precision":-1}`

func TestClassify(t *testing.T) {
	cases := []struct {
		raw  string
		want Kind
	}{
		{ppsReport, KindPPS},
		{toffReport, KindTOFF},
		{`{"class":"TPV","mode":3}`, KindNone},
		{`{ "class":"PPS"}`, KindNone},
	}
	for _, tc := range cases {
		if got := Classify([]byte(tc.raw)); got != tc.want {
			t.Fatalf("Classify(%s)=%v want %v", tc.raw, got, tc.want)
		}
	}
}

func TestHandlePPS_LatchesAndCounts(t *testing.T) {
	var r Reconciler
	d, banner, err := r.HandlePPS([]byte(ppsReport))
	if err != nil {
		t.Fatalf("HandlePPS: %v", err)
	}
	if d.Offset() != 1500*time.Nanosecond {
		t.Fatalf("offset=%s want 1.5us", d.Offset())
	}
	if banner != "------------------- PPS offset: 0.000001500 ------" {
		t.Fatalf("banner=%q", banner)
	}
	_, _, _ = r.HandlePPS([]byte(ppsReport))
	latched, n := r.Latch.PPS()
	if n != 2 || !latched.Clock.Equal(d.Clock) {
		t.Fatalf("count=%d latched=%+v", n, latched)
	}
}

func TestHandleTOFF_DoesNotTouchPPSLatch(t *testing.T) {
	var r Reconciler
	d, err := r.HandleTOFF([]byte(toffReport))
	if err != nil {
		t.Fatalf("HandleTOFF: %v", err)
	}
	if d.Offset() != 250*time.Millisecond {
		t.Fatalf("offset=%s", d.Offset())
	}
	if _, n := r.Latch.PPS(); n != 0 {
		t.Fatalf("pps count=%d want 0", n)
	}
}

func TestDecode_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code int
	}{
		{"syntax", `{"class":"TOFF",`, CodeSyntax},
		{"class", `{"class":"PPS","real_sec":1,"real_nsec":0,"clock_sec":1,"clock_nsec":0}`, CodeClass},
		{"missing", `{"class":"TOFF","real_sec":1}`, CodeMissing},
		{"nanos", `{"class":"TOFF","real_sec":1,"real_nsec":1000000000,"clock_sec":1,"clock_nsec":0}`, CodeNanoRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var r Reconciler
			_, err := r.HandleTOFF([]byte(tc.raw))
			var de *DecodeError
			if !errors.As(err, &de) || de.Code != tc.code {
				t.Fatalf("err=%v want code %d", err, tc.code)
			}
			if !strings.HasPrefix(err.Error(), "Ill-formed TOFF packet: ") {
				t.Fatalf("message=%q", err.Error())
			}
			if _, ok := r.TOFF(); ok {
				t.Fatalf("malformed report was latched")
			}
		})
	}
}

func TestLatchFix(t *testing.T) {
	var r Reconciler
	recv := time.Unix(1700000000, 5e8)
	if r.LatchFix(time.Time{}, recv) {
		t.Fatalf("zero fix time latched")
	}
	if r.LatchFix(time.Unix(-5, 0), recv) {
		t.Fatalf("negative fix time latched")
	}
	fix := time.Unix(1700000000, 0)
	if !r.LatchFix(fix, recv) {
		t.Fatalf("first fix not latched")
	}
	if r.LatchFix(fix.Add(500*time.Millisecond), recv) {
		t.Fatalf("same second latched twice")
	}
	if _, err := r.HandleTOFF([]byte(toffReport)); err != nil {
		t.Fatalf("HandleTOFF: %v", err)
	}
	if !r.LatchFix(fix.Add(time.Second), recv) {
		t.Fatalf("new second not latched")
	}
	toff, _ := r.TOFF()
	if got := r.Latch.FixIn(); !got.Clock.Equal(toff.Clock) {
		t.Fatalf("fixIn clock=%s want toff clock %s", got.Clock, toff.Clock)
	}
}

func TestLatch_ConcurrentPulses(t *testing.T) {
	var r Reconciler
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				now := time.Now()
				r.RecordPulse(Delta{Clock: now, Real: now.Round(time.Second)})
				_ = r.LatchFix(now, now)
			}
		}()
	}
	wg.Wait()
	if _, n := r.Latch.PPS(); n != 800 {
		t.Fatalf("count=%d want 800", n)
	}
}

func TestFormatOffset(t *testing.T) {
	if got := FormatOffset(-1500 * time.Millisecond); got != "-1.500000000" {
		t.Fatalf("got %q", got)
	}
}
