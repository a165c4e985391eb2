//go:build linux

package timing

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOSource captures PPS rising edges on a GPIO line. Edge events are
// delivered on gpiocdev's own goroutine.
type GPIOSource struct {
	mu   sync.Mutex
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenGPIO requests line (a name such as "GPIO18" or a numeric offset)
// on chip and starts delivering pulses to r. report, when set, receives
// the PPS bar for each pulse.
func OpenGPIO(chipName, lineName string, r *Reconciler, report func(string)) (*GPIOSource, error) {
	if r == nil {
		return nil, fmt.Errorf("timing: nil reconciler")
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("timing: open chip %s: %w", chipName, err)
	}
	offset, err := strconv.Atoi(strings.TrimSpace(lineName))
	if err != nil {
		offset, err = chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			return nil, fmt.Errorf("timing: pps line %q not found on %s: %w", lineName, chipName, err)
		}
	}
	handler := func(evt gpiocdev.LineEvent) {
		clock := time.Unix(0, int64(evt.Timestamp)).UTC()
		n := r.RecordPulse(Delta{Clock: clock, Real: clock.Round(time.Second)})
		if report != nil {
			report(PPSBar)
		}
		if n == 1 {
			log.Printf("timing first pps pulse chip=%s line=%s", chipName, lineName)
		}
	}
	line, err := chip.RequestLine(offset,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithRealtimeEventClock,
		gpiocdev.WithEventHandler(handler),
		gpiocdev.WithConsumer("gpsmon-ng-pps"),
	)
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("timing: request pps line %d: %w", offset, err)
	}
	log.Printf("timing pps capture enabled chip=%s line=%s offset=%d", chipName, lineName, offset)
	return &GPIOSource{chip: chip, line: line}, nil
}

// Close stops capture. It is safe to call more than once.
func (s *GPIOSource) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.line != nil {
		err = s.line.Close()
		s.line = nil
	}
	if s.chip != nil {
		_ = s.chip.Close()
		s.chip = nil
	}
	return err
}
