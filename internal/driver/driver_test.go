package driver

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"gpsmon-ng/internal/gps"
)

type recordingPort struct {
	params gps.SerialParams
	wrote  [][]byte
}

func (p *recordingPort) Write(b []byte) (int, error) {
	p.wrote = append(p.wrote, append([]byte(nil), b...))
	return len(b), nil
}

func (p *recordingPort) Params() gps.SerialParams { return p.params }

func newPort() *recordingPort {
	return &recordingPort{params: gps.DefaultSerialParams()}
}

func TestRegistry_NamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range All() {
		if seen[d.Name()] {
			t.Fatalf("duplicate driver name %q", d.Name())
		}
		seen[d.Name()] = true
		if Lookup(d.Name()) != d {
			t.Fatalf("Lookup(%q) mismatch", d.Name())
		}
	}
	if Lookup("nope") != nil {
		t.Fatalf("expected nil for unknown name")
	}
}

func TestMatch(t *testing.T) {
	cases := []struct {
		substr string
		want   int
	}{
		{"MTK", 1},
		{"-", 2},
		{"mtk", 0},
		{"zzz", 0},
	}
	for _, tc := range cases {
		if got := len(Match(tc.substr)); got != tc.want {
			t.Fatalf("Match(%q)=%d want %d", tc.substr, got, tc.want)
		}
	}
	if got := MatchPrefix("u-"); len(got) != 1 || got[0] != UBlox {
		t.Fatalf("MatchPrefix(u-)=%v", got)
	}
}

func TestHas(t *testing.T) {
	cases := []struct {
		d    Driver
		c    Capability
		want bool
	}{
		{NMEA0183, CapControl, true},
		{NMEA0183, CapRate, false},
		{MTK3301, CapRate, true},
		{MTK3301, CapMode, false},
		{Ashtech, CapSpeed, true},
		{SiRF, CapMode, true},
		{UBlox, CapRate, true},
		{GPSDJSON, CapControl, false},
		{nil, CapControl, false},
	}
	for _, tc := range cases {
		if got := Has(tc.d, tc.c); got != tc.want {
			t.Fatalf("Has(%v,%s)=%v want %v", tc.d, tc.c, got, tc.want)
		}
	}
}

func TestIdentify(t *testing.T) {
	if d := Identify(&gps.Sentence{Tag: "PMTK705"}); d != MTK3301 {
		t.Fatalf("PMTK705 identified as %v", d)
	}
	if d := Identify(&gps.Sentence{Tag: "PASHR"}); d != Ashtech {
		t.Fatalf("PASHR identified as %v", d)
	}
	if d := Identify(&gps.Sentence{Tag: "GPGGA"}); d != nil {
		t.Fatalf("GPGGA identified as %v", d)
	}
	if Identify(nil) != nil {
		t.Fatalf("expected nil for nil sentence")
	}
}

func TestForPacketType(t *testing.T) {
	if ForPacketType(gps.NMEAPacket) != NMEA0183 || ForPacketType(gps.UBXPacket) != UBlox {
		t.Fatalf("unexpected default drivers")
	}
	if ForPacketType(gps.CommentPacket) != nil {
		t.Fatalf("comments have no driver")
	}
}

func TestMTK_Rate(t *testing.T) {
	p := newPort()
	if err := MTK3301.(RateSwitcher).SwitchRate(p, 0.2); err != nil {
		t.Fatalf("SwitchRate: %v", err)
	}
	if want := string(gps.FrameNMEA("PMTK220,200")); string(p.wrote[0]) != want {
		t.Fatalf("wrote %q want %q", p.wrote[0], want)
	}
	if err := MTK3301.(RateSwitcher).SwitchRate(p, 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err=%v want ErrUnsupported", err)
	}
}

func TestMTK_SpeedRejectsFraming(t *testing.T) {
	p := newPort()
	err := MTK3301.(SpeedSwitcher).SwitchSpeed(p, gps.SerialParams{Baud: 4800, DataBits: 7, Parity: 'E', StopBits: 2})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err=%v want ErrUnsupported", err)
	}
	if len(p.wrote) != 0 {
		t.Fatalf("expected nothing written")
	}
}

func TestAshtech_Speed(t *testing.T) {
	p := newPort()
	if err := Ashtech.(SpeedSwitcher).SwitchSpeed(p, gps.SerialParams{Baud: 57600, DataBits: 8, Parity: 'N', StopBits: 1}); err != nil {
		t.Fatalf("SwitchSpeed: %v", err)
	}
	if !strings.HasPrefix(string(p.wrote[0]), "$PASHS,SPD,A,8*") {
		t.Fatalf("wrote %q", p.wrote[0])
	}
}

func TestSiRF_ControlFraming(t *testing.T) {
	p := newPort()
	n, err := SiRF.(ControlSender).ControlSend(p, []byte{0x84, 0x00})
	if err != nil {
		t.Fatalf("ControlSend: %v", err)
	}
	want := []byte{0xA0, 0xA2, 0x00, 0x02, 0x84, 0x00, 0x00, 0x84, 0xB0, 0xB3}
	if n != len(want) || !bytes.Equal(p.wrote[0], want) {
		t.Fatalf("wrote %x want %x", p.wrote[0], want)
	}

	var l gps.Lexer
	_, _ = l.Write(p.wrote[0])
	if pkt, ok := l.Next(); !ok || pkt.Type != gps.SiRFPacket {
		t.Fatalf("frame did not lex as SiRF")
	}
}

func TestSiRF_ModeToNMEALength(t *testing.T) {
	p := newPort()
	if err := SiRF.(ModeSwitcher).SwitchMode(p, 0); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	// 0x81, mode, ten rate/checksum pairs, baud.
	if got := int(p.wrote[0][3]); got != 24 {
		t.Fatalf("payload length=%d want 24", got)
	}
	p.wrote = nil
	if err := SiRF.(ModeSwitcher).SwitchMode(p, 1); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if !strings.HasPrefix(string(p.wrote[0]), "$PSRF100,0,9600,8,1,0*") {
		t.Fatalf("wrote %q", p.wrote[0])
	}
}

func TestSiRF_ModeToNMEARejectsWideBaud(t *testing.T) {
	p := newPort()
	p.params.Baud = 115200
	if err := SiRF.(ModeSwitcher).SwitchMode(p, 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err=%v want ErrUnsupported", err)
	}
	if len(p.wrote) != 0 {
		t.Fatalf("wrote %x", p.wrote)
	}
}

func TestUBlox_FramesLex(t *testing.T) {
	p := newPort()
	if err := UBlox.(RateSwitcher).SwitchRate(p, 0.2); err != nil {
		t.Fatalf("SwitchRate: %v", err)
	}
	if err := UBlox.(SpeedSwitcher).SwitchSpeed(p, gps.SerialParams{Baud: 115200, DataBits: 8, Parity: 'N', StopBits: 1}); err != nil {
		t.Fatalf("SwitchSpeed: %v", err)
	}
	if _, err := UBlox.(ControlSender).ControlSend(p, []byte{0x06, 0x04, 0x00, 0x00, 0x09, 0x00}); err != nil {
		t.Fatalf("ControlSend: %v", err)
	}
	var l gps.Lexer
	for _, b := range p.wrote {
		_, _ = l.Write(b)
	}
	for i := range p.wrote {
		pkt, ok := l.Next()
		if !ok || pkt.Type != gps.UBXPacket {
			t.Fatalf("message %d did not lex as UBX", i)
		}
	}
	if rate := p.wrote[0][6:8]; rate[0] != 200 || rate[1] != 0 {
		t.Fatalf("measRate=%x want c800", rate)
	}
}

func TestUBlox_PortMode(t *testing.T) {
	mode, err := ubxPortMode(gps.SerialParams{Baud: 4800, DataBits: 7, Parity: 'E', StopBits: 2})
	if err != nil {
		t.Fatalf("ubxPortMode: %v", err)
	}
	if want := uint32(0x2<<6 | 0x2<<12); mode != want {
		t.Fatalf("mode=%#x want %#x", mode, want)
	}
	if _, err := ubxPortMode(gps.SerialParams{DataBits: 9, Parity: 'N', StopBits: 1}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err=%v want ErrUnsupported", err)
	}
}

func TestUBlox_ControlSendShortPayload(t *testing.T) {
	p := newPort()
	if _, err := UBlox.(ControlSender).ControlSend(p, []byte{0x06}); err == nil {
		t.Fatalf("expected error")
	}
}
