package gps

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Fix modes, as reported by gpsd.
const (
	ModeUnknown = 0
	ModeNoFix   = 1
	Mode2D      = 2
	Mode3D      = 3
)

// Fix is the most recent decoded fix. Only time and validity matter to the
// session core; the rest feeds the device windows.
type Fix struct {
	Time  time.Time
	Valid bool
	Mode  int

	LatDeg float64
	LonDeg float64
	AltM   float64
	AltOK  bool

	SpeedKt  float64
	TrackDeg float64

	Quality    int
	Satellites int
	HDOP       float64
	PDOP       float64
	VDOP       float64
}

// FixTracker accumulates fix state from NMEA sentences and gpsd TPV reports.
type FixTracker struct {
	fix  Fix
	date time.Time
}

func (t *FixTracker) Fix() Fix {
	if t == nil {
		return Fix{}
	}
	return t.fix
}

// Apply folds one packet into the fix. It reports whether the fix time moved.
func (t *FixTracker) Apply(pkt Packet) bool {
	if t == nil {
		return false
	}
	switch pkt.Type {
	case NMEAPacket:
		if pkt.Sentence == nil {
			return false
		}
		return t.applySentence(*pkt.Sentence)
	case JSONPacket:
		return t.applyJSON(pkt.Raw)
	default:
		return false
	}
}

func (t *FixTracker) applySentence(s Sentence) bool {
	switch s.Type {
	case "RMC":
		return t.applyRMC(s.Fields)
	case "GGA":
		return t.applyGGA(s.Fields)
	case "ZDA":
		return t.applyZDA(s.Fields)
	case "GSA":
		t.applyGSA(s.Fields)
		return false
	default:
		return false
	}
}

// RMC: Recommended Minimum Specific GNSS Data
// Fields (NMEA 0183 v2.3):
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
func (t *FixTracker) applyRMC(f []string) bool {
	if len(f) < 10 {
		return false
	}
	if d, ok := parseNMEADate(f[9]); ok {
		t.date = d
	}
	active := strings.TrimSpace(f[2]) == "A"
	t.fix.Valid = active
	if active {
		if t.fix.Mode < Mode2D {
			t.fix.Mode = Mode2D
		}
		if lat, ok := parseNMEALatLon(f[3], f[4]); ok {
			t.fix.LatDeg = lat
		}
		if lon, ok := parseNMEALatLon(f[5], f[6]); ok {
			t.fix.LonDeg = lon
		}
		if gs, ok := parseFloat(f[7]); ok {
			t.fix.SpeedKt = gs
		}
		if trk, ok := parseFloat(f[8]); ok {
			t.fix.TrackDeg = math.Mod(trk+360.0, 360.0)
		}
	} else {
		t.fix.Mode = ModeNoFix
	}
	return t.setTime(f[1])
}

// GGA: Global Positioning System Fix Data
// Fields:
//
//	0: talker+type
//	1: time
//	2: latitude
//	3: N/S
//	4: longitude
//	5: E/W
//	6: fix quality (0=invalid)
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
//
// 10: units (M)
func (t *FixTracker) applyGGA(f []string) bool {
	if len(f) < 11 {
		return false
	}
	if q, err := strconv.Atoi(strings.TrimSpace(f[6])); err == nil {
		t.fix.Quality = q
	}
	if sats, err := strconv.Atoi(strings.TrimSpace(f[7])); err == nil {
		t.fix.Satellites = sats
	}
	if hdop, ok := parseFloat(f[8]); ok {
		t.fix.HDOP = hdop
	}
	if t.fix.Quality > 0 {
		if lat, ok := parseNMEALatLon(f[2], f[3]); ok {
			t.fix.LatDeg = lat
		}
		if lon, ok := parseNMEALatLon(f[4], f[5]); ok {
			t.fix.LonDeg = lon
		}
		if altM, ok := parseFloat(f[9]); ok {
			t.fix.AltM = altM
			t.fix.AltOK = true
		}
	}
	return t.setTime(f[1])
}

// ZDA carries a full date: time, day, month, year.
func (t *FixTracker) applyZDA(f []string) bool {
	if len(f) < 5 {
		return false
	}
	d, err1 := strconv.Atoi(strings.TrimSpace(f[2]))
	m, err2 := strconv.Atoi(strings.TrimSpace(f[3]))
	y, err3 := strconv.Atoi(strings.TrimSpace(f[4]))
	if err1 == nil && err2 == nil && err3 == nil {
		t.date = time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	}
	return t.setTime(f[1])
}

// GSA field 2 is the fix mode (1=none, 2=2D, 3=3D), 15-17 are PDOP/HDOP/VDOP.
func (t *FixTracker) applyGSA(f []string) {
	if len(f) < 3 {
		return
	}
	if m, err := strconv.Atoi(strings.TrimSpace(f[2])); err == nil {
		t.fix.Mode = m
	}
	if len(f) >= 18 {
		if v, ok := parseFloat(f[15]); ok {
			t.fix.PDOP = v
		}
		if v, ok := parseFloat(f[16]); ok {
			t.fix.HDOP = v
		}
		if v, ok := parseFloat(f[17]); ok {
			t.fix.VDOP = v
		}
	}
}

func (t *FixTracker) setTime(hms string) bool {
	if t.date.IsZero() {
		return false
	}
	ts, ok := parseNMEATime(t.date, hms)
	if !ok || !ts.After(t.fix.Time) {
		return false
	}
	t.fix.Time = ts
	return true
}

type gpsdTPV struct {
	Class string   `json:"class"`
	Mode  *int     `json:"mode"`
	Time  string   `json:"time"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Alt   *float64 `json:"alt"`
	// altMSL wins over alt when both are present.
	AltMSL  *float64 `json:"altMSL"`
	SpeedMS *float64 `json:"speed"`
	Track   *float64 `json:"track"`
}

func (t *FixTracker) applyJSON(raw []byte) bool {
	var tpv gpsdTPV
	if err := json.Unmarshal(raw, &tpv); err != nil {
		return false
	}
	if strings.ToUpper(strings.TrimSpace(tpv.Class)) != "TPV" {
		return false
	}
	if tpv.Mode != nil {
		t.fix.Mode = *tpv.Mode
		t.fix.Valid = *tpv.Mode >= Mode2D
	}
	if tpv.Lat != nil {
		t.fix.LatDeg = *tpv.Lat
	}
	if tpv.Lon != nil {
		t.fix.LonDeg = *tpv.Lon
	}
	altM := tpv.AltMSL
	if altM == nil {
		altM = tpv.Alt
	}
	if altM != nil {
		t.fix.AltM = *altM
		t.fix.AltOK = true
	}
	if tpv.SpeedMS != nil {
		// gpsd speed is m/s.
		t.fix.SpeedKt = (*tpv.SpeedMS) * 1.9438444924406
	}
	if tpv.Track != nil {
		t.fix.TrackDeg = *tpv.Track
	}
	if strings.TrimSpace(tpv.Time) == "" {
		return false
	}
	ts, err := time.Parse(time.RFC3339Nano, tpv.Time)
	if err != nil || !ts.After(t.fix.Time) {
		return false
	}
	t.fix.Time = ts.UTC()
	return true
}
