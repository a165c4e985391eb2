package session

import (
	"errors"
	"fmt"
	"log"

	"gpsmon-ng/internal/display"
	"gpsmon-ng/internal/driver"
	"gpsmon-ng/internal/gps"
)

// Operator-visible control failures. None of them ends the session.
var (
	ErrNoDevice         = errors.New("No device defined yet")
	ErrNotLowLevel      = errors.New("Only available in low-level mode.")
	ErrRateUnsupported  = errors.New("Rate not supported.")
	ErrSpeedUnsupported = errors.New("Speed/mode combination not supported.")
	ErrSendFailed       = errors.New("Control send failed.")
	ErrRawSendFailed    = errors.New("Raw send failed.")
	ErrReadOnly         = errors.New("device is read-only")
)

// CapabilityError reports a driver without the needed ability.
type CapabilityError struct {
	Driver string
	Cap    driver.Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("Device type %s has no %s", e.Driver, e.Cap)
}

// port is the driver-facing write path. Writes are refused while the
// session is read-only and echoed to the packet window otherwise.
type port struct{ s *Session }

func (p port) Write(b []byte) (int, error) {
	if p.s.readonly {
		return 0, ErrReadOnly
	}
	p.s.paint(display.RegionPacket, fmt.Sprintf(">>> (%d) %s", len(b), gps.CondHexdump(b, false)))
	return p.s.transport.Write(b)
}

func (p port) Params() gps.SerialParams { return p.s.transport.Params() }

// withWrites clears the read-only flag around fn and restores the prior
// value whatever fn does.
func (s *Session) withWrites(fn func()) {
	prev := s.readonly
	s.readonly = false
	defer func() { s.readonly = prev }()
	fn()
}

func (s *Session) checkLowLevel() error {
	if s.bound == nil {
		return ErrNoDevice
	}
	if !s.serial() {
		return ErrNotLowLevel
	}
	return nil
}

// switcherFor prefers the fallback driver when it has c.
func (s *Session) switcherFor(c driver.Capability) driver.Driver {
	if driver.Has(s.fallback, c) {
		return s.fallback
	}
	return s.bound
}

// RateSwitch sets the fix cycle time in seconds.
func (s *Session) RateSwitch(seconds float64) error {
	if err := s.checkLowLevel(); err != nil {
		return err
	}
	d := s.switcherFor(driver.CapRate)
	rs, ok := d.(driver.RateSwitcher)
	if !ok {
		return &CapabilityError{Driver: d.Name(), Cap: driver.CapRate}
	}
	var err error
	s.withWrites(func() { err = rs.SwitchRate(port{s}, seconds) })
	if err != nil {
		log.Printf("session rate switch failed driver=%s rate=%g err=%v", d.Name(), seconds, err)
		return ErrRateUnsupported
	}
	s.announce("[Rate switcher called.]")
	return nil
}

// ModeSwitch flips between NMEA (0) and binary (1). Switching to NMEA
// remembers the driver as the fallback, since the device will then be
// seen as generic NMEA; switching back clears it.
func (s *Session) ModeSwitch(mode int) error {
	if err := s.checkLowLevel(); err != nil {
		return err
	}
	d := s.switcherFor(driver.CapMode)
	ms, ok := d.(driver.ModeSwitcher)
	if !ok {
		return &CapabilityError{Driver: d.Name(), Cap: driver.CapMode}
	}
	s.announce("[Mode switcher to mode %d]", mode)
	var err error
	s.withWrites(func() { err = ms.SwitchMode(port{s}, mode) })
	if err != nil {
		return fmt.Errorf("mode switch failed: %w", err)
	}
	s.settleDevice()
	if mode == 0 {
		s.fallback = d
	} else {
		s.fallback = nil
	}
	return nil
}

// SpeedSwitch asks the device for new line settings, then moves the
// local line to match.
func (s *Session) SpeedSwitch(params gps.SerialParams) error {
	if err := s.checkLowLevel(); err != nil {
		return err
	}
	d := s.switcherFor(driver.CapSpeed)
	ss, ok := d.(driver.SpeedSwitcher)
	if !ok {
		return &CapabilityError{Driver: d.Name(), Cap: driver.CapSpeed}
	}
	var err error
	s.withWrites(func() { err = ss.SwitchSpeed(port{s}, params) })
	if err != nil {
		log.Printf("session speed switch failed driver=%s params=%s err=%v", d.Name(), params, err)
		return ErrSpeedUnsupported
	}
	s.announce("[Speed switcher called.]")
	// The control string has to reach the device before the UART speed
	// changes under it.
	s.settleDevice()
	if err := s.transport.SetSpeed(params); err != nil {
		return fmt.Errorf("local speed change failed: %w", err)
	}
	s.paint(display.RegionStatus, "gpsmon: "+s.Prompt())
	return nil
}

func (s *Session) settleDevice() {
	if err := s.transport.Drain(); err != nil {
		log.Printf("session drain failed err=%v", err)
	}
	s.sleep(s.settle)
}

// ControlSend frames payload with the bound driver's control framing.
func (s *Session) ControlSend(payload []byte) error {
	if err := s.checkLowLevel(); err != nil {
		return err
	}
	cs, ok := s.bound.(driver.ControlSender)
	if !ok {
		return &CapabilityError{Driver: s.bound.Name(), Cap: driver.CapControl}
	}
	var (
		n   int
		err error
	)
	s.withWrites(func() { n, err = cs.ControlSend(port{s}, payload) })
	if err != nil || n < 0 {
		log.Printf("session control send failed driver=%s err=%v", s.bound.Name(), err)
		return ErrSendFailed
	}
	return nil
}

// RawSend writes payload to the transport unframed.
func (s *Session) RawSend(payload []byte) error {
	if !s.serial() {
		return ErrNotLowLevel
	}
	var (
		n   int
		err error
	)
	s.withWrites(func() { n, err = port{s}.Write(payload) })
	if err != nil || n != len(payload) {
		return ErrRawSendFailed
	}
	return nil
}
