package monitor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gpsmon-ng/internal/gps"
)

var ubxNames = map[uint16]string{
	0x0102: "NAV-POSLLH",
	0x0103: "NAV-STATUS",
	0x0104: "NAV-DOP",
	0x0106: "NAV-SOL",
	0x0107: "NAV-PVT",
	0x0120: "NAV-TIMEGPS",
	0x0121: "NAV-TIMEUTC",
	0x0130: "NAV-SVINFO",
	0x0135: "NAV-SAT",
	0x0213: "RXM-SFRBX",
	0x0215: "RXM-RAWX",
	0x0501: "ACK-ACK",
	0x0500: "ACK-NAK",
	0x0A04: "MON-VER",
	0x0A09: "MON-HW",
	0x0D01: "TIM-TP",
}

func ubxName(id uint16) string {
	if n, ok := ubxNames[id]; ok {
		return n
	}
	return fmt.Sprintf("%02X-%02X", id>>8, id&0xFF)
}

// ubxObject counts messages by class and id.
type ubxObject struct {
	counts map[uint16]int
	last   uint16
}

func newUBX() *ubxObject { return &ubxObject{counts: map[uint16]int{}} }

func (o *ubxObject) Name() string { return "u-blox" }

func (o *ubxObject) MinSize() (int, int) { return 10, 80 }

func (o *ubxObject) Initialize(env *Env) {
	o.counts = map[uint16]int{}
	o.last = 0
}

func (o *ubxObject) Update(env *Env, pkt gps.Packet) {
	if pkt.Type != gps.UBXPacket || len(pkt.Raw) < 8 {
		return
	}
	id := uint16(pkt.Raw[2])<<8 | uint16(pkt.Raw[3])
	o.counts[id]++
	o.last = id
	env.paint(o.render())
}

func (o *ubxObject) render() string {
	ids := make([]int, 0, len(o.counts))
	for id := range o.counts {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	var b strings.Builder
	for _, id := range ids {
		name := ubxName(uint16(id))
		if uint16(id) == o.last {
			name = boldStyle.Render(name)
		}
		fmt.Fprintf(&b, "%-12s %6d\n", name, o.counts[uint16(id)])
	}
	body := strings.TrimRight(b.String(), "\n")
	if body == "" {
		body = "no messages"
	}
	return paneStyle.Width(nmeaWidth - 2).Render(lipgloss.JoinVertical(lipgloss.Left, "UBX messages", body))
}
