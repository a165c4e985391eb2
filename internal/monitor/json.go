package monitor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gpsmon-ng/internal/gps"
)

// jsonObject shows gpsd report classes and the latest line of each.
type jsonObject struct {
	counts map[string]int
	latest map[string]string
}

func newJSON() *jsonObject {
	return &jsonObject{counts: map[string]int{}, latest: map[string]string{}}
}

func (o *jsonObject) Name() string { return "gpsd JSON" }

func (o *jsonObject) MinSize() (int, int) { return 0, 80 }

func (o *jsonObject) Initialize(env *Env) {
	o.counts = map[string]int{}
	o.latest = map[string]string{}
}

func (o *jsonObject) Update(env *Env, pkt gps.Packet) {
	if pkt.Type != gps.JSONPacket {
		return
	}
	var head struct {
		Class string `json:"class"`
	}
	if err := json.Unmarshal(pkt.Raw, &head); err != nil || head.Class == "" {
		return
	}
	o.counts[head.Class]++
	o.latest[head.Class] = strings.TrimSpace(string(pkt.Raw))
	env.paint(o.render())
}

func (o *jsonObject) render() string {
	classes := make([]string, 0, len(o.counts))
	for c := range o.counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	var b strings.Builder
	for _, c := range classes {
		fmt.Fprintf(&b, "%-8s %5d %s\n", c, o.counts[c], o.latest[c])
	}
	return b.String()
}
