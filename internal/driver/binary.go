package driver

import (
	"encoding/binary"
	"fmt"
	"math"

	"gpsmon-ng/internal/gps"
)

var (
	SiRF     Driver = sirf{}
	UBlox    Driver = ublox{}
	GPSDJSON Driver = gpsdJSON{}
)

type sirf struct{}

func (sirf) Name() string           { return "SiRF" }
func (sirf) Packet() gps.PacketType { return gps.SiRFPacket }
func (sirf) Sticky() bool           { return false }
func (sirf) Triggers() []string     { return []string{"PSRF"} }

// SiRFFrame wraps a payload: A0 A2 len payload checksum B0 B3.
func SiRFFrame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, 0xA0, 0xA2, byte(len(payload)>>8), byte(len(payload)))
	out = append(out, payload...)
	ck := gps.SiRFChecksum(payload)
	return append(out, byte(ck>>8), byte(ck), 0xB0, 0xB3)
}

func sirfParity(p byte) int {
	switch p {
	case 'O':
		return 1
	case 'E':
		return 2
	default:
		return 0
	}
}

// Mode 0 sends binary message 0x81 (switch to NMEA); mode 1 sends
// $PSRF100 with protocol 0 (SiRF binary).
func (sirf) SwitchMode(p Port, mode int) error {
	params := p.Params()
	if mode == 0 {
		// The 0x81 baud field is 16 bits wide.
		if params.Baud <= 0 || params.Baud > math.MaxUint16 {
			return ErrUnsupported
		}
		msg := []byte{
			0x81, 0x02,
			0x01, 0x01, // GGA
			0x00, 0x01, // GLL
			0x01, 0x01, // GSA
			0x05, 0x01, // GSV
			0x01, 0x01, // RMC
			0x00, 0x01, // VTG
			0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00, 0x01,
		}
		msg = binary.BigEndian.AppendUint16(msg, uint16(params.Baud))
		_, err := p.Write(SiRFFrame(msg))
		return err
	}
	_, err := sendNMEA(p, fmt.Sprintf("PSRF100,0,%d,%d,%d,%d",
		params.Baud, params.DataBits, params.StopBits, sirfParity(params.Parity)))
	return err
}

// Message 0x86 sets the binary serial port.
func (sirf) SwitchSpeed(p Port, params gps.SerialParams) error {
	if params.Baud <= 0 {
		return ErrUnsupported
	}
	msg := []byte{0x86}
	msg = binary.BigEndian.AppendUint32(msg, uint32(params.Baud))
	msg = append(msg, byte(params.DataBits), byte(params.StopBits), byte(sirfParity(params.Parity)), 0x00)
	_, err := p.Write(SiRFFrame(msg))
	return err
}

func (sirf) ControlSend(p Port, payload []byte) (int, error) {
	return p.Write(SiRFFrame(payload))
}

type ublox struct{}

func (ublox) Name() string           { return "u-blox" }
func (ublox) Packet() gps.PacketType { return gps.UBXPacket }
func (ublox) Sticky() bool           { return false }
func (ublox) Triggers() []string     { return nil }

// UBXFrame builds a UBX message: sync, class, id, little-endian length,
// payload, Fletcher checksum.
func UBXFrame(class, id byte, payload []byte) []byte {
	out := make([]byte, 6, len(payload)+8)
	out[0] = 0xB5
	out[1] = 0x62
	out[2] = class
	out[3] = id
	binary.LittleEndian.PutUint16(out[4:], uint16(len(payload)))
	out = append(out, payload...)
	a, b := gps.UBXChecksum(out[2:])
	return append(out, a, b)
}

const (
	ubxClassCFG = 0x06
	ubxCFGPRT   = 0x00
	ubxCFGRATE  = 0x08

	ubxProtoUBX  = 0x01
	ubxProtoNMEA = 0x02
)

// CFG-RATE: measRate (ms), navRate (cycles), timeRef (1 = GPS).
func (ublox) SwitchRate(p Port, seconds float64) error {
	if math.IsNaN(seconds) || seconds < 0.05 || seconds > 65.535 {
		return ErrUnsupported
	}
	msg := make([]byte, 6)
	binary.LittleEndian.PutUint16(msg[0:], uint16(math.Round(seconds*1000)))
	binary.LittleEndian.PutUint16(msg[2:], 1)
	binary.LittleEndian.PutUint16(msg[4:], 1)
	_, err := p.Write(UBXFrame(ubxClassCFG, ubxCFGRATE, msg))
	return err
}

// ubxPortMode encodes charLen, parity and nStopBits for CFG-PRT.
func ubxPortMode(params gps.SerialParams) (uint32, error) {
	var mode uint32
	switch params.DataBits {
	case 7:
		mode |= 0x2 << 6
	case 8:
		mode |= 0x3 << 6
	default:
		return 0, ErrUnsupported
	}
	switch params.Parity {
	case 'N':
		mode |= 0x4 << 9
	case 'O':
		mode |= 0x1 << 9
	case 'E':
	default:
		return 0, ErrUnsupported
	}
	switch params.StopBits {
	case 1:
	case 2:
		mode |= 0x2 << 12
	default:
		return 0, ErrUnsupported
	}
	return mode, nil
}

func ubxCFGPRTUART(params gps.SerialParams, outProto uint16) ([]byte, error) {
	mode, err := ubxPortMode(params)
	if err != nil {
		return nil, err
	}
	if params.Baud <= 0 {
		return nil, ErrUnsupported
	}
	cfg := make([]byte, 20)
	cfg[0] = 0x01 // UART1
	binary.LittleEndian.PutUint32(cfg[4:], mode)
	binary.LittleEndian.PutUint32(cfg[8:], uint32(params.Baud))
	binary.LittleEndian.PutUint16(cfg[12:], ubxProtoUBX|ubxProtoNMEA)
	binary.LittleEndian.PutUint16(cfg[14:], outProto)
	return UBXFrame(ubxClassCFG, ubxCFGPRT, cfg), nil
}

func (ublox) SwitchMode(p Port, mode int) error {
	out := uint16(ubxProtoUBX)
	if mode == 0 {
		out = ubxProtoNMEA
	}
	msg, err := ubxCFGPRTUART(p.Params(), out)
	if err != nil {
		return err
	}
	_, err = p.Write(msg)
	return err
}

func (ublox) SwitchSpeed(p Port, params gps.SerialParams) error {
	msg, err := ubxCFGPRTUART(params, ubxProtoUBX|ubxProtoNMEA)
	if err != nil {
		return err
	}
	_, err = p.Write(msg)
	return err
}

// The payload starts with class and id.
func (ublox) ControlSend(p Port, payload []byte) (int, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("ubx control payload needs class and id")
	}
	return p.Write(UBXFrame(payload[0], payload[1], payload[2:]))
}

// gpsdJSON is the report stream of an upstream gpsd; it cannot be
// reconfigured from here.
type gpsdJSON struct{}

func (gpsdJSON) Name() string           { return "gpsd JSON" }
func (gpsdJSON) Packet() gps.PacketType { return gps.JSONPacket }
func (gpsdJSON) Sticky() bool           { return false }
func (gpsdJSON) Triggers() []string     { return nil }
