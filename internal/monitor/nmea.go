package monitor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"gpsmon-ng/internal/gps"
)

// NMEA device window geometry: three panes across, 80 columns.
const (
	nmeaWidthL = 24
	nmeaWidthM = 26
	nmeaWidthR = 30
	nmeaWidth  = nmeaWidthL + nmeaWidthM + nmeaWidthR

	nmeaHeight  = 21
	nmeaMaxSats = 12
)

var (
	paneStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder())
	boldStyle = lipgloss.NewStyle().Bold(true)
)

type satellite struct {
	PRN       int
	Elevation int
	Azimuth   int
	SNR       int
	Used      bool
}

type nmeaObject struct {
	name string

	tags     []string
	lastTick time.Time
	longest  time.Duration
	slowTag  string

	fix     gps.FixTracker
	gga     string
	gsa     string
	gst     string
	used    map[int]bool
	pending []satellite
	sats    []satellite
}

func newNMEA(name string) *nmeaObject {
	return &nmeaObject{name: name}
}

func (o *nmeaObject) Name() string { return o.name }

func (o *nmeaObject) MinSize() (int, int) { return nmeaHeight, nmeaWidth }

func (o *nmeaObject) Initialize(env *Env) {
	o.tags = o.tags[:0]
	o.lastTick = env.now()
	o.longest = 0
	o.slowTag = ""
	o.fix = gps.FixTracker{}
	o.gga, o.gsa, o.gst = "", "", ""
	o.used = map[int]bool{}
	o.pending = nil
	o.sats = nil
}

func (o *nmeaObject) Update(env *Env, pkt gps.Packet) {
	if pkt.Type != gps.NMEAPacket || pkt.Sentence == nil || len(pkt.Raw) == 0 || pkt.Raw[0] != '$' {
		return
	}
	s := pkt.Sentence
	o.noteTag(s.Tag)

	now := env.now()
	if d := now.Sub(o.lastTick); d > 0 && d > o.longest {
		o.longest = d
		o.slowTag = s.Tag
	}
	o.lastTick = now

	o.fix.Apply(pkt)
	switch s.Type {
	case "GSV":
		o.applyGSV(s.Fields)
	case "GSA":
		o.applyGSA(s.Fields)
	case "GGA":
		o.gga = summarizeGGA(s.Fields)
	case "GST":
		o.gst = summarizeGST(s.Fields)
	}
	env.paint(o.render())
}

func (o *nmeaObject) noteTag(tag string) {
	for _, t := range o.tags {
		if t == tag {
			return
		}
	}
	o.tags = append(o.tags, tag)
}

// GSV: total, index, in view, then PRN/elev/az/SNR quads.
func (o *nmeaObject) applyGSV(f []string) {
	if len(f) < 4 {
		return
	}
	total, _ := strconv.Atoi(strings.TrimSpace(f[1]))
	index, _ := strconv.Atoi(strings.TrimSpace(f[2]))
	if index == 1 {
		o.pending = o.pending[:0]
	}
	for i := 4; i < len(f); i += 4 {
		prn, err := strconv.Atoi(strings.TrimSpace(f[i]))
		if err != nil {
			continue
		}
		sat := satellite{PRN: prn}
		if i+1 < len(f) {
			sat.Elevation, _ = strconv.Atoi(strings.TrimSpace(f[i+1]))
		}
		if i+2 < len(f) {
			sat.Azimuth, _ = strconv.Atoi(strings.TrimSpace(f[i+2]))
		}
		if i+3 < len(f) {
			sat.SNR, _ = strconv.Atoi(strings.TrimSpace(f[i+3]))
		}
		o.pending = append(o.pending, sat)
	}
	// The table is redrawn once the last sentence of a cycle arrives.
	if index == total && total > 0 {
		o.sats = append(o.sats[:0], o.pending...)
		for i := range o.sats {
			o.sats[i].Used = o.used[o.sats[i].PRN]
		}
		sortSatellites(o.sats)
	}
}

// sortSatellites puts used satellites first, then orders by PRN.
func sortSatellites(sats []satellite) {
	sort.SliceStable(sats, func(i, j int) bool {
		if sats[i].Used != sats[j].Used {
			return sats[i].Used
		}
		return sats[i].PRN < sats[j].PRN
	})
}

// GSA fields 3..14 are the PRNs used in the solution.
func (o *nmeaObject) applyGSA(f []string) {
	if o.used == nil {
		o.used = map[int]bool{}
	}
	for k := range o.used {
		delete(o.used, k)
	}
	for i := 3; i <= 14 && i < len(f); i++ {
		if prn, err := strconv.Atoi(strings.TrimSpace(f[i])); err == nil {
			o.used[prn] = true
		}
	}
	mode := "?"
	if len(f) > 2 {
		mode = f[2]
	}
	pdop, hdop, vdop := field(f, 15), field(f, 16), field(f, 17)
	o.gsa = fmt.Sprintf("Mode: %s Sats: %d\nDOP: H=%s V=%s P=%s", mode, len(o.used), hdop, vdop, pdop)
}

func field(f []string, i int) string {
	if i < len(f) && strings.TrimSpace(f[i]) != "" {
		return strings.TrimSpace(f[i])
	}
	return "n/a"
}

func summarizeGGA(f []string) string {
	return fmt.Sprintf("Time: %s\nQuality: %s Sats: %s\nHDOP: %s Alt: %s",
		field(f, 1), field(f, 6), field(f, 7), field(f, 8), field(f, 9))
}

// GST: RMS, major/minor sigma, orientation, lat/lon/alt sigma.
func summarizeGST(f []string) string {
	return fmt.Sprintf("RMS: %s\nSigma lat %s lon %s alt %s",
		field(f, 2), field(f, 6), field(f, 7), field(f, 8))
}

// cookedPVT is the time/position view derived from RMC.
func (o *nmeaObject) cookedPVT() string {
	fix := o.fix.Fix()
	ts := "n/a"
	if !fix.Time.IsZero() && fix.Time.Unix() > 0 {
		ts = fix.Time.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	lat, lon := "n/a", "n/a"
	if fix.Mode >= gps.Mode2D {
		lat = degToDDMM(fix.LatDeg, "N", "S")
		lon = degToDDMM(fix.LonDeg, "E", "W")
	}
	return fmt.Sprintf("Time: %s\nLat: %s\nLon: %s\nSpeed: %.1f kt\nTrack: %.1f",
		ts, lat, lon, fix.SpeedKt, fix.TrackDeg)
}

func degToDDMM(deg float64, pos, neg string) string {
	hemi := pos
	if deg < 0 {
		deg = -deg
		hemi = neg
	}
	d := int(deg)
	m := (deg - float64(d)) * 60
	return fmt.Sprintf("%3d %07.4f' %s", d, m, hemi)
}

func (o *nmeaObject) satTable() string {
	var b strings.Builder
	b.WriteString(" PRN  Az  El SNR U\n")
	n := len(o.sats)
	if n > nmeaMaxSats {
		n = nmeaMaxSats
	}
	for _, s := range o.sats[:n] {
		used := 'N'
		if s.Used {
			used = 'Y'
		}
		fmt.Fprintf(&b, " %3d %3d %3d %3d %c\n", s.PRN, s.Azimuth, s.Elevation, s.SNR, used)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *nmeaObject) sentenceLine() string {
	var parts []string
	for _, t := range o.tags {
		if t == o.slowTag {
			t = boldStyle.Render(t)
		}
		parts = append(parts, t)
	}
	return "Sentences: " + strings.Join(parts, " ")
}

func (o *nmeaObject) render() string {
	left := paneStyle.Width(nmeaWidthL - 2).Render(o.cookedPVT())
	mid := paneStyle.Width(nmeaWidthM - 2).Render(strings.Join(nonEmpty(o.gga, o.gsa, o.gst), "\n"))
	right := paneStyle.Width(nmeaWidthR - 2).Render(o.satTable())
	top := paneStyle.Width(nmeaWidth - 2).Render(o.sentenceLine())
	return lipgloss.JoinVertical(lipgloss.Left, top, lipgloss.JoinHorizontal(lipgloss.Top, left, mid, right))
}

func nonEmpty(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"n/a"}
	}
	return out
}

func (o *nmeaObject) Wrap(env *Env) {
	o.pending = nil
}

// Ashtech receivers need a reboot to apply port settings.
const (
	ashtechSpeed9600   = 5
	ashtechSpeed57600  = 8
	ashtechRebootDelay = 6 * time.Second
)

type ashtechObject struct {
	*nmeaObject
}

// Command implements the N (normal, 9600) and R (raw, 57600) setup macros.
// The macro stops at the first failed send.
func (o *ashtechObject) Command(env *Env, line string) (CommandResult, error) {
	if line == "" {
		return CommandUnknown, nil
	}
	var speed int
	switch line[0] {
	case 'N':
		speed = ashtechSpeed9600
	case 'R':
		speed = ashtechSpeed57600
	default:
		return CommandUnknown, nil
	}
	if err := env.sendAll(
		"PASHS,NME,ALL,A,OFF",
		"PASHS,NME,ALL,B,OFF",
		"PASHS,NME,GGA,A,ON",
		"PASHS,NME,GSA,A,ON",
		"PASHS,NME,GSV,A,ON",
		"PASHS,NME,RMC,A,ON",
		"PASHS,NME,ZDA,A,ON",
		fmt.Sprintf("PASHS,INI,%d,%d,,,0,", speed, ashtechSpeed9600),
	); err != nil {
		return CommandMatch, err
	}
	env.sleep(ashtechRebootDelay)
	if err := env.send("PASHS,WAS,ON"); err != nil {
		return CommandMatch, err
	}
	if line[0] == 'R' {
		if err := env.sendAll(
			"PASHS,NME,POS,A,ON",
			"PASHS,NME,SAT,A,ON",
			"PASHS,NME,MCA,A,ON",
			"PASHS,NME,PBN,A,ON",
			"PASHS,NME,SNV,A,ON,10",
			"PASHS,NME,XMG,A,ON",
		); err != nil {
			return CommandMatch, err
		}
	}
	return CommandMatch, nil
}
