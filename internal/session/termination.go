package session

import "fmt"

// Cause is why the event loop stopped.
type Cause int

const (
	CauseQuit Cause = iota
	CauseSignal
	CauseAbort
	CauseWaitFailed
	CauseDriverSwitch
	CauseDeviceOffline
	CauseReadError
	CauseEndOfInput
)

func (c Cause) String() string {
	switch c {
	case CauseQuit:
		return "quit"
	case CauseSignal:
		return "signal"
	case CauseAbort:
		return "abort"
	case CauseWaitFailed:
		return "wait-failed"
	case CauseDriverSwitch:
		return "driver-switch"
	case CauseDeviceOffline:
		return "device-offline"
	case CauseReadError:
		return "read-error"
	case CauseEndOfInput:
		return "end-of-input"
	default:
		return "unknown"
	}
}

// Explanation is the one line printed after cleanup; empty for a normal
// quit or a caught signal.
func (c Cause) Explanation() string {
	switch c {
	case CauseQuit, CauseSignal:
		return ""
	case CauseAbort:
		return "assertion failure, probable I/O error"
	case CauseWaitFailed:
		return "I/O wait on device failed"
	case CauseDriverSwitch:
		return "Driver type switch failed"
	case CauseDeviceOffline, CauseEndOfInput:
		return "Device went offline"
	case CauseReadError:
		return "Read error from device"
	default:
		return "Unknown error, should never happen."
	}
}

// Termination carries a cause out of the loop.
type Termination struct {
	Cause Cause
	Err   error
}

func (t *Termination) Error() string {
	if t == nil {
		return "<nil>"
	}
	if t.Err != nil {
		return fmt.Sprintf("session terminated cause=%s: %v", t.Cause, t.Err)
	}
	return fmt.Sprintf("session terminated cause=%s", t.Cause)
}

func (t *Termination) Unwrap() error {
	if t == nil {
		return nil
	}
	return t.Err
}
