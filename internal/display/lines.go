package display

import (
	"io"
	"strings"
)

// unlimited is the geometry reported by Lines; it satisfies every
// monitor's minimum.
const unlimited = 1 << 15

// Lines is the no-curses sink: packets and the command prompt go to out,
// status text to errOut, the device window is not shown.
type Lines struct {
	out    io.Writer
	errOut io.Writer
}

func NewLines(out, errOut io.Writer) *Lines {
	return &Lines{out: out, errOut: errOut}
}

func (l *Lines) Size() (int, int) { return unlimited, unlimited }

func (l *Lines) Layout(int) {}

func (l *Lines) Clear() {}

func (l *Lines) Paint(r Region, text string) {
	if text == "" {
		return
	}
	if r == RegionCommand {
		_, _ = io.WriteString(l.out, text)
		return
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	switch r {
	case RegionPacket:
		_, _ = io.WriteString(l.out, text)
	case RegionStatus:
		_, _ = io.WriteString(l.errOut, text)
	}
}

func (l *Lines) Close() error { return nil }
