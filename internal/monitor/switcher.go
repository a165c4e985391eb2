package monitor

import (
	"fmt"

	"gpsmon-ng/internal/driver"
	"gpsmon-ng/internal/gps"
)

// NoMonitorError is returned when no object is bound to a driver name.
type NoMonitorError struct {
	Name string
}

func (e *NoMonitorError) Error() string {
	return fmt.Sprintf("No monitor matches %s.", e.Name)
}

// GeometryError is returned when the screen is too small for an object.
type GeometryError struct {
	Name string
	Cols int
	Rows int
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("%s requires %dx%d screen", e.Name, e.Cols, e.Rows)
}

// Switcher owns the active selection. It is used from the main loop only.
type Switcher struct {
	env     *Env
	objects []Object
	active  Object

	// OnSwitch, when set, is called after each accepted switch.
	OnSwitch func(name string)
}

func NewSwitcher(env *Env, objects []Object) *Switcher {
	return &Switcher{env: env, objects: objects}
}

func (s *Switcher) Env() *Env { return s.env }

func (s *Switcher) Objects() []Object { return s.objects }

func (s *Switcher) Active() Object {
	if s == nil {
		return nil
	}
	return s.active
}

// Lookup finds the object bound to a driver name.
func (s *Switcher) Lookup(name string) Object {
	for _, o := range s.objects {
		if o.Name() == name {
			return o
		}
	}
	return nil
}

// Resolve picks the driver name whose monitor should show a packet of
// type pt while bound is the session driver. Generic NMEA from a sticky
// device stays on the sticky driver's monitor. An empty result means the
// packet type has no monitor family (comments).
func (s *Switcher) Resolve(pt gps.PacketType, bound driver.Driver) string {
	if pt == gps.NMEAPacket {
		if bound != nil && bound.Sticky() {
			return bound.Name()
		}
		return driver.NMEA0183.Name()
	}
	if bound != nil && bound.Packet() == pt {
		return bound.Name()
	}
	if d := driver.ForPacketType(pt); d != nil {
		return d.Name()
	}
	return ""
}

// Select makes the object bound to name active. Failures leave the
// current selection in place. Selecting the active object does nothing.
func (s *Switcher) Select(name string) error {
	obj := s.Lookup(name)
	if obj == nil {
		return &NoMonitorError{Name: name}
	}
	if obj == s.active {
		return nil
	}
	minRows, minCols := obj.MinSize()
	if s.env != nil && s.env.Sink != nil {
		rows, cols := s.env.Sink.Size()
		if rows < minRows+1 || cols < minCols {
			return &GeometryError{Name: name, Cols: minCols, Rows: minRows + 1}
		}
	}

	if w, ok := s.active.(Wrapper); ok {
		w.Wrap(s.env)
	}
	s.active = obj
	if s.env != nil && s.env.Sink != nil {
		s.env.Sink.Clear()
		s.env.Sink.Layout(minRows)
	}
	if i, ok := obj.(Initializer); ok {
		i.Initialize(s.env)
	}
	if s.OnSwitch != nil {
		s.OnSwitch(name)
	}
	return nil
}
