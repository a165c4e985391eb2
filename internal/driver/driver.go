// Package driver holds the static device-family descriptors the monitor
// dispatches on. A descriptor always has a name and a native packet type;
// device-control abilities are separate interfaces a family implements
// only when the hardware supports them.
package driver

import (
	"errors"
	"strings"

	"gpsmon-ng/internal/gps"
)

// ErrUnsupported is returned by a capability when the requested value is
// outside what the device accepts.
var ErrUnsupported = errors.New("driver: value not supported by device")

// Port is the write side of a session as drivers see it.
type Port interface {
	Write(p []byte) (int, error)
	Params() gps.SerialParams
}

// Driver describes one device family.
type Driver interface {
	// Name is the unique type name; monitor objects bind to it.
	Name() string
	// Packet is the packet type the device natively emits.
	Packet() gps.PacketType
	// Sticky drivers keep their binding when the device falls back to
	// emitting generic NMEA.
	Sticky() bool
	// Triggers are NMEA address prefixes that identify the family.
	Triggers() []string
}

// RateSwitcher changes the fix cycle time, in seconds.
type RateSwitcher interface {
	SwitchRate(p Port, seconds float64) error
}

// ModeSwitcher flips the device between NMEA (mode 0) and its native
// binary protocol (mode 1).
type ModeSwitcher interface {
	SwitchMode(p Port, mode int) error
}

// SpeedSwitcher asks the device to move to new line settings. The caller
// is responsible for following it with the local speed change.
type SpeedSwitcher interface {
	SwitchSpeed(p Port, params gps.SerialParams) error
}

// ControlSender wraps a vendor payload in the family's framing and writes it.
type ControlSender interface {
	ControlSend(p Port, payload []byte) (int, error)
}

// Capability names one optional driver ability.
type Capability int

const (
	CapRate Capability = iota
	CapMode
	CapSpeed
	CapControl
)

func (c Capability) String() string {
	switch c {
	case CapRate:
		return "rate switcher"
	case CapMode:
		return "mode switcher"
	case CapSpeed:
		return "speed switcher"
	case CapControl:
		return "control-send method"
	default:
		return "unknown capability"
	}
}

// Has reports whether d implements c. A nil driver has nothing.
func Has(d Driver, c Capability) bool {
	if d == nil {
		return false
	}
	var ok bool
	switch c {
	case CapRate:
		_, ok = d.(RateSwitcher)
	case CapMode:
		_, ok = d.(ModeSwitcher)
	case CapSpeed:
		_, ok = d.(SpeedSwitcher)
	case CapControl:
		_, ok = d.(ControlSender)
	}
	return ok
}

var registry = []Driver{
	NMEA0183,
	MTK3301,
	Ashtech,
	SiRF,
	UBlox,
	GPSDJSON,
}

// All returns every known driver in registry order.
func All() []Driver {
	out := make([]Driver, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a driver by exact name.
func Lookup(name string) Driver {
	for _, d := range registry {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Match returns every driver whose name contains substr (case-sensitive).
func Match(substr string) []Driver {
	var out []Driver
	for _, d := range registry {
		if strings.Contains(d.Name(), substr) {
			out = append(out, d)
		}
	}
	return out
}

// MatchPrefix returns every driver whose name starts with prefix.
func MatchPrefix(prefix string) []Driver {
	var out []Driver
	for _, d := range registry {
		if strings.HasPrefix(d.Name(), prefix) {
			out = append(out, d)
		}
	}
	return out
}

// ForPacketType is the default driver for a packet family, or nil.
func ForPacketType(t gps.PacketType) Driver {
	switch t {
	case gps.NMEAPacket:
		return NMEA0183
	case gps.JSONPacket:
		return GPSDJSON
	case gps.UBXPacket:
		return UBlox
	case gps.SiRFPacket:
		return SiRF
	default:
		return nil
	}
}

// Identify returns the driver whose trigger prefix matches the sentence
// address, or nil when the sentence is plain NMEA.
func Identify(s *gps.Sentence) Driver {
	if s == nil {
		return nil
	}
	for _, d := range registry {
		for _, trig := range d.Triggers() {
			if strings.HasPrefix(s.Tag, trig) {
				return d
			}
		}
	}
	return nil
}
