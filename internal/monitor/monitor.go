// Package monitor holds the per-family display bundles ("monitor
// objects") and the switcher that keeps exactly one of them active.
package monitor

import (
	"time"

	"gpsmon-ng/internal/display"
	"gpsmon-ng/internal/driver"
	"gpsmon-ng/internal/gps"
)

// Env is what a monitor object may touch.
type Env struct {
	Sink display.Sink
	// Send writes a vendor control frame through the bound driver.
	Send func(payload []byte) error
	// Sleep blocks the main loop; used for device reboot waits.
	Sleep func(time.Duration)
	Now   func() time.Time
}

func (e *Env) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Env) sleep(d time.Duration) {
	if e == nil || e.Sleep == nil {
		time.Sleep(d)
		return
	}
	e.Sleep(d)
}

func (e *Env) send(payload string) error {
	if e == nil || e.Send == nil {
		return nil
	}
	return e.Send([]byte(payload))
}

func (e *Env) sendAll(payloads ...string) error {
	for _, p := range payloads {
		if err := e.send(p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Env) paint(text string) {
	if e == nil || e.Sink == nil {
		return
	}
	e.Sink.Paint(display.RegionDevice, text)
}

// Object is a display/behavior bundle bound to one driver by name.
type Object interface {
	Name() string
	// MinSize is the device window geometry the object needs.
	MinSize() (rows, cols int)
}

// Initializer runs when the object becomes active.
type Initializer interface {
	Initialize(env *Env)
}

// Updater receives every packet while the object is active.
type Updater interface {
	Update(env *Env, pkt gps.Packet)
}

// CommandResult tells the interpreter whether a private command was taken.
type CommandResult int

const (
	CommandUnknown CommandResult = iota
	CommandMatch
	CommandTerminate
)

// Commander handles device-private command letters. An error with
// CommandMatch means the command was taken but failed.
type Commander interface {
	Command(env *Env, line string) (CommandResult, error)
}

// Wrapper runs when the object is switched out.
type Wrapper interface {
	Wrap(env *Env)
}

// Registry builds a fresh set of monitor objects. SiRF has no monitor.
func Registry() []Object {
	return []Object{
		newNMEA(driver.NMEA0183.Name()),
		newNMEA(driver.MTK3301.Name()),
		&ashtechObject{nmeaObject: newNMEA(driver.Ashtech.Name())},
		newUBX(),
		newJSON(),
	}
}
