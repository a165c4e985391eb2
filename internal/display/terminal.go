package display

import (
	"bufio"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// SizeFunc reports the current terminal geometry.
type SizeFunc func() (rows, cols int, err error)

var (
	statusStyle  = lipgloss.NewStyle().Bold(true)
	commandStyle = lipgloss.NewStyle().Reverse(true)
)

// Terminal paints regions with ANSI cursor addressing:
//
//	row 1                 status
//	rows 2..deviceRows+1  device window
//	following rows        packet window (scrolls)
//	last row              command line
type Terminal struct {
	w      *bufio.Writer
	size   SizeFunc
	rows   int
	cols   int
	device int

	packets []string
}

// NewTerminal wraps w. size is consulted on every Clear so a resized
// terminal is picked up at the next monitor switch.
func NewTerminal(w io.Writer, size SizeFunc) *Terminal {
	t := &Terminal{w: bufio.NewWriter(w), size: size}
	t.refreshSize()
	return t
}

func (t *Terminal) refreshSize() {
	t.rows, t.cols = 24, 80
	if t.size == nil {
		return
	}
	if rows, cols, err := t.size(); err == nil && rows > 0 && cols > 0 {
		t.rows, t.cols = rows, cols
	}
}

func (t *Terminal) Size() (int, int) { return t.rows, t.cols }

func (t *Terminal) Layout(deviceRows int) {
	if deviceRows < 0 {
		deviceRows = 0
	}
	if limit := t.rows - 2; deviceRows > limit {
		deviceRows = limit
	}
	t.device = deviceRows
	t.trimPackets()
}

// packetRows is the height of the scrolling window.
func (t *Terminal) packetRows() int {
	n := t.rows - 2 - t.device
	if n < 0 {
		return 0
	}
	return n
}

func (t *Terminal) trimPackets() {
	if n := t.packetRows(); len(t.packets) > n {
		t.packets = t.packets[len(t.packets)-n:]
	}
}

func (t *Terminal) Clear() {
	t.refreshSize()
	t.packets = t.packets[:0]
	_, _ = t.w.WriteString(ansi.EraseEntireScreen)
	_, _ = t.w.WriteString(ansi.CursorPosition(1, 1))
	_ = t.w.Flush()
}

func (t *Terminal) line(row int, text string) {
	_, _ = t.w.WriteString(ansi.CursorPosition(1, row))
	_, _ = t.w.WriteString(ansi.EraseEntireLine)
	_, _ = t.w.WriteString(ansi.Truncate(text, t.cols, ""))
}

func (t *Terminal) Paint(r Region, text string) {
	switch r {
	case RegionStatus:
		t.line(1, statusStyle.Render(strings.TrimRight(text, "\n")))
	case RegionCommand:
		t.line(t.rows, commandStyle.Render(strings.TrimRight(text, "\n")))
	case RegionDevice:
		lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
		for i := 0; i < t.device; i++ {
			s := ""
			if i < len(lines) {
				s = lines[i]
			}
			t.line(2+i, s)
		}
	case RegionPacket:
		for _, s := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
			t.packets = append(t.packets, s)
		}
		t.trimPackets()
		top := 2 + t.device
		for i := 0; i < t.packetRows(); i++ {
			s := ""
			if i < len(t.packets) {
				s = t.packets[i]
			}
			t.line(top+i, s)
		}
	}
	_ = t.w.Flush()
}

func (t *Terminal) Close() error {
	_, _ = t.w.WriteString(ansi.CursorPosition(1, t.rows))
	_, _ = t.w.WriteString("\n")
	return t.w.Flush()
}
