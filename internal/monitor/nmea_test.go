package monitor

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gpsmon-ng/internal/display"
	"gpsmon-ng/internal/gps"
)

func nmeaPacket(t *testing.T, payload string) gps.Packet {
	t.Helper()
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	line := fmt.Sprintf("$%s*%02X", payload, ck)
	s, err := gps.ParseNMEA(line)
	if err != nil {
		t.Fatalf("ParseNMEA: %v", err)
	}
	return gps.Packet{Type: gps.NMEAPacket, Raw: []byte(line + "\r\n"), Sentence: &s}
}

func TestNMEA_SatellitesUsedFirst(t *testing.T) {
	sink := newFakeSink(24, 80)
	env := &Env{Sink: sink}
	o := newNMEA("NMEA0183")
	o.Initialize(env)

	o.Update(env, nmeaPacket(t, "GPGSA,A,3,17,09,,,,,,,,,,,2.5,1.3,2.1"))
	o.Update(env, nmeaPacket(t, "GPGSV,2,1,05,04,10,100,30,09,20,200,35,12,30,300,40,17,40,045,45"))
	if len(o.sats) != 0 {
		t.Fatalf("table updated before cycle end")
	}
	o.Update(env, nmeaPacket(t, "GPGSV,2,2,05,02,50,090,20"))

	var prns []int
	for _, s := range o.sats {
		prns = append(prns, s.PRN)
	}
	want := []int{9, 17, 2, 4, 12}
	if fmt.Sprint(prns) != fmt.Sprint(want) {
		t.Fatalf("order=%v want %v", prns, want)
	}
	if !o.sats[0].Used || o.sats[2].Used {
		t.Fatalf("used flags wrong: %+v", o.sats)
	}
	if len(sink.painted[display.RegionDevice]) != 3 {
		t.Fatalf("paints=%d want 3", len(sink.painted[display.RegionDevice]))
	}
}

func TestNMEA_SentenceListAndSlowTag(t *testing.T) {
	now := time.Unix(1000, 0)
	env := &Env{Sink: newFakeSink(24, 80), Now: func() time.Time { return now }}
	o := newNMEA("NMEA0183")
	o.Initialize(env)

	now = now.Add(100 * time.Millisecond)
	o.Update(env, nmeaPacket(t, "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
	now = now.Add(900 * time.Millisecond)
	o.Update(env, nmeaPacket(t, "GPRMC,123520,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"))
	now = now.Add(100 * time.Millisecond)
	o.Update(env, nmeaPacket(t, "GPGGA,123520,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))

	if strings.Join(o.tags, " ") != "GPGGA GPRMC" {
		t.Fatalf("tags=%v", o.tags)
	}
	if o.slowTag != "GPRMC" || o.longest != 900*time.Millisecond {
		t.Fatalf("slow=%s longest=%s", o.slowTag, o.longest)
	}
	if !strings.Contains(o.cookedPVT(), "1994-03-23T12:35:20") {
		t.Fatalf("pvt=%q", o.cookedPVT())
	}
}

func TestNMEA_IgnoresNonDollar(t *testing.T) {
	env := &Env{Sink: newFakeSink(24, 80)}
	o := newNMEA("NMEA0183")
	o.Initialize(env)
	pkt := nmeaPacket(t, "AIVDM,1,1,,A,13aEOK?P00PD2wVMdLDRhgvL289?,0")
	pkt.Raw[0] = '!'
	o.Update(env, pkt)
	if len(o.tags) != 0 {
		t.Fatalf("tags=%v want none", o.tags)
	}
}

func TestAshtech_Commands(t *testing.T) {
	var sent []string
	var slept time.Duration
	env := &Env{
		Send:  func(b []byte) error { sent = append(sent, string(b)); return nil },
		Sleep: func(d time.Duration) { slept += d },
	}
	obj := Registry()[2]
	cmd, ok := obj.(Commander)
	if !ok || obj.Name() != "Ashtech" {
		t.Fatalf("registry[2]=%s is not the Ashtech commander", obj.Name())
	}
	if got, err := cmd.Command(env, "R"); got != CommandMatch || err != nil {
		t.Fatalf("R=%v,%v want match", got, err)
	}
	if slept != 6*time.Second {
		t.Fatalf("slept=%s want 6s", slept)
	}
	if sent[7] != "PASHS,INI,8,5,,,0," || sent[8] != "PASHS,WAS,ON" || len(sent) != 15 {
		t.Fatalf("sent=%v", sent)
	}
	sent = nil
	if got, _ := cmd.Command(env, "Z"); got != CommandUnknown || len(sent) != 0 {
		t.Fatalf("Z=%v sent=%v", got, sent)
	}
}

func TestAshtech_CommandStopsOnSendError(t *testing.T) {
	sendErr := errors.New("not in low-level mode")
	sends := 0
	var slept time.Duration
	env := &Env{
		Send:  func([]byte) error { sends++; return sendErr },
		Sleep: func(d time.Duration) { slept += d },
	}
	cmd := Registry()[2].(Commander)
	got, err := cmd.Command(env, "N")
	if got != CommandMatch || !errors.Is(err, sendErr) {
		t.Fatalf("N=%v,%v want match with send error", got, err)
	}
	if sends != 1 || slept != 0 {
		t.Fatalf("sends=%d slept=%s want 1/0", sends, slept)
	}
}

func TestUBX_CountsMessages(t *testing.T) {
	sink := newFakeSink(24, 80)
	env := &Env{Sink: sink}
	o := newUBX()
	o.Initialize(env)
	raw := []byte{0xB5, 0x62, 0x01, 0x07, 0x00, 0x00, 0x08, 0x19}
	o.Update(env, gps.Packet{Type: gps.UBXPacket, Raw: raw})
	o.Update(env, gps.Packet{Type: gps.UBXPacket, Raw: raw})
	if o.counts[0x0107] != 2 {
		t.Fatalf("count=%d want 2", o.counts[0x0107])
	}
	if last := sink.painted[display.RegionDevice]; !strings.Contains(last[len(last)-1], "NAV-PVT") {
		t.Fatalf("render missing NAV-PVT: %q", last[len(last)-1])
	}
}

func TestJSON_TracksClasses(t *testing.T) {
	env := &Env{Sink: newFakeSink(24, 80)}
	o := newJSON()
	o.Initialize(env)
	o.Update(env, gps.Packet{Type: gps.JSONPacket, Raw: []byte(`{"class":"TPV","mode":3}`)})
	o.Update(env, gps.Packet{Type: gps.JSONPacket, Raw: []byte(`not json`)})
	if o.counts["TPV"] != 1 || len(o.counts) != 1 {
		t.Fatalf("counts=%v", o.counts)
	}
}
