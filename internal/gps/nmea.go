package gps

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentence is the decoded-fields view of an NMEA packet.
type Sentence struct {
	// Tag is the full address field, e.g. "GPRMC" or "PMTK705".
	Tag string
	// Type is the last three characters of Tag, upper-cased ("RMC").
	Type string
	// Fields is the comma-split NMEA payload (excluding $ and checksum).
	Fields []string
}

// ParseNMEA validates the checksum of one sentence and splits it into fields.
func ParseNMEA(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "!") {
		return Sentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return Sentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return Sentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return Sentence{}, fmt.Errorf("nmea: bad checksum")
	}
	if got := nmeaChecksum(payload); got != want[0] {
		return Sentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	tag := parts[0]
	if len(tag) < 3 {
		return Sentence{}, fmt.Errorf("nmea: short type")
	}
	t := tag
	if len(t) > 3 {
		t = t[len(t)-3:]
	}
	return Sentence{Tag: tag, Type: strings.ToUpper(t), Fields: parts}, nil
}

func nmeaChecksum(payload string) byte {
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	return got
}

// FrameNMEA wraps a payload (with or without the leading '$') into a
// checksummed sentence terminated by CR LF.
func FrameNMEA(payload string) []byte {
	payload = strings.TrimPrefix(strings.TrimSpace(payload), "$")
	if star := strings.IndexByte(payload, '*'); star >= 0 {
		payload = payload[:star]
	}
	return []byte(fmt.Sprintf("$%s*%02X\r\n", payload, nmeaChecksum(payload)))
}

// parseNMEATime parses hhmmss[.sss] on the given UTC date.
func parseNMEATime(date time.Time, hms string) (time.Time, bool) {
	hms = strings.TrimSpace(hms)
	if len(hms) < 6 {
		return time.Time{}, false
	}
	h, err1 := strconv.Atoi(hms[0:2])
	m, err2 := strconv.Atoi(hms[2:4])
	sec, err3 := strconv.ParseFloat(hms[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	whole := int(sec)
	nsec := int((sec - float64(whole)) * 1e9)
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, whole, nsec, time.UTC), true
}

// parseNMEADate parses ddmmyy as found in RMC.
func parseNMEADate(ddmmyy string) (time.Time, bool) {
	ddmmyy = strings.TrimSpace(ddmmyy)
	if len(ddmmyy) != 6 {
		return time.Time{}, false
	}
	t, err := time.Parse("020106", ddmmyy)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseNMEALatLon parses NMEA lat/lon in ddmm.mmmm or dddmm.mmmm plus hemisphere.
//
// For latitude (N/S): ddmm.mmmm
// For longitude (E/W): dddmm.mmmm
func parseNMEALatLon(v string, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}

	// Split degrees/minutes at the decimal point by taking the last two digits of the integer part as minutes.
	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}

	degPart := intPart[:len(intPart)-2]
	minPart := v[len(intPart)-2:]

	deg, err := strconv.Atoi(degPart)
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(minPart, 64)
	if err != nil {
		return 0, false
	}

	dec := float64(deg) + (mins / 60.0)
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
