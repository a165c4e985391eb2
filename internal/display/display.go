// Package display renders monitor output. The core only asks for strings
// to be painted into named regions; how those regions map onto a screen
// (or onto plain output streams) is the sink's business.
package display

// Region names one area of the screen.
type Region int

const (
	// RegionStatus is the top line: device prompt and operator complaints.
	RegionStatus Region = iota
	// RegionDevice is the monitor object's window.
	RegionDevice
	// RegionPacket is the scrolling packet log.
	RegionPacket
	// RegionCommand is the bottom line where commands are echoed.
	RegionCommand
)

func (r Region) String() string {
	switch r {
	case RegionStatus:
		return "status"
	case RegionDevice:
		return "device"
	case RegionPacket:
		return "packet"
	case RegionCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Sink is a display surface. Implementations are not safe for concurrent
// use; callers serialize access.
type Sink interface {
	Paint(r Region, text string)
	Clear()
	// Size is the usable screen geometry.
	Size() (rows, cols int)
	// Layout sizes the device window; the packet window gets the rest.
	Layout(deviceRows int)
	Close() error
}
