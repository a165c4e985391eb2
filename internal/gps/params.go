package gps

import (
	"fmt"
	"strings"
)

// SerialParams describes the line settings of a serial session.
type SerialParams struct {
	Baud     int
	DataBits int
	// Parity is 'N', 'O' or 'E'.
	Parity   byte
	StopBits int
}

// DefaultSerialParams is 9600 8N1, the usual NMEA power-on setting.
func DefaultSerialParams() SerialParams {
	return SerialParams{Baud: 9600, DataBits: 8, Parity: 'N', StopBits: 1}
}

func (p SerialParams) String() string {
	return fmt.Sprintf("%d %d%c%d", p.Baud, p.DataBits, p.Parity, p.StopBits)
}

// Validate checks each field against its legal set independently, in
// word length, parity, stop bits order.
func (p SerialParams) Validate() error {
	if p.Baud <= 0 {
		return fmt.Errorf("invalid speed %d", p.Baud)
	}
	if p.DataBits != 7 && p.DataBits != 8 {
		return fmt.Errorf("no support for word length %d", p.DataBits)
	}
	if !strings.ContainsRune("NOE", rune(p.Parity)) || p.Parity == 0 {
		return fmt.Errorf("what parity is '%c'?", p.Parity)
	}
	if p.StopBits != 1 && p.StopBits != 2 {
		return fmt.Errorf("stop bits must be 1 or 2")
	}
	return nil
}
