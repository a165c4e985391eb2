package driver

import (
	"fmt"
	"math"

	"gpsmon-ng/internal/gps"
)

// Exported descriptors.
var (
	NMEA0183 Driver = nmea0183{}
	MTK3301  Driver = mtk3301{}
	Ashtech  Driver = ashtech{}
)

type nmea0183 struct{}

func (nmea0183) Name() string           { return "NMEA0183" }
func (nmea0183) Packet() gps.PacketType { return gps.NMEAPacket }
func (nmea0183) Sticky() bool           { return false }
func (nmea0183) Triggers() []string     { return nil }

func (nmea0183) ControlSend(p Port, payload []byte) (int, error) {
	return sendNMEA(p, string(payload))
}

func sendNMEA(p Port, body string) (int, error) {
	return p.Write(gps.FrameNMEA(body))
}

// MediaTek chipsets speak NMEA with $PMTK extensions.
type mtk3301 struct{}

func (mtk3301) Name() string           { return "MTK-3301" }
func (mtk3301) Packet() gps.PacketType { return gps.NMEAPacket }
func (mtk3301) Sticky() bool           { return true }
func (mtk3301) Triggers() []string     { return []string{"PMTK"} }

// PMTK220 takes the fix interval in milliseconds, 100..10000.
func (mtk3301) SwitchRate(p Port, seconds float64) error {
	if math.IsNaN(seconds) || seconds < 0.1 || seconds > 10 {
		return ErrUnsupported
	}
	ms := int(math.Round(seconds * 1000))
	_, err := sendNMEA(p, fmt.Sprintf("PMTK220,%d", ms))
	return err
}

// PMTK251 only moves the baud rate; framing stays 8N1.
func (mtk3301) SwitchSpeed(p Port, params gps.SerialParams) error {
	if params.DataBits != 8 || params.Parity != 'N' || params.StopBits != 1 {
		return ErrUnsupported
	}
	switch params.Baud {
	case 4800, 9600, 14400, 19200, 38400, 57600, 115200:
	default:
		return ErrUnsupported
	}
	_, err := sendNMEA(p, fmt.Sprintf("PMTK251,%d", params.Baud))
	return err
}

func (mtk3301) ControlSend(p Port, payload []byte) (int, error) {
	return sendNMEA(p, string(payload))
}

type ashtech struct{}

func (ashtech) Name() string           { return "Ashtech" }
func (ashtech) Packet() gps.PacketType { return gps.NMEAPacket }
func (ashtech) Sticky() bool           { return true }
func (ashtech) Triggers() []string     { return []string{"PASH"} }

var ashtechSpeedCodes = map[int]int{
	300: 0, 600: 1, 1200: 2, 2400: 3, 4800: 4,
	9600: 5, 19200: 6, 38400: 7, 57600: 8, 115200: 9,
}

func (ashtech) SwitchSpeed(p Port, params gps.SerialParams) error {
	code, ok := ashtechSpeedCodes[params.Baud]
	if !ok || params.DataBits != 8 || params.Parity != 'N' || params.StopBits != 1 {
		return ErrUnsupported
	}
	_, err := sendNMEA(p, fmt.Sprintf("PASHS,SPD,A,%d", code))
	return err
}

func (ashtech) ControlSend(p Port, payload []byte) (int, error) {
	return sendNMEA(p, string(payload))
}
