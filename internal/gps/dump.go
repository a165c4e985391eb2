package gps

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func isPrint(c byte) bool { return c >= 0x20 && c < 0x7f }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r'
}

// Visibilize renders mostly printable text, escaping the rest as \xNN.
// A single trailing newline (or CR LF) is kept.
func Visibilize(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		switch {
		case isPrint(c):
			sb.WriteByte(c)
		case c == '\n' && i == len(b)-1:
			sb.WriteByte(c)
		case c == '\r' && i == len(b)-2 && b[i+1] == '\n':
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "\\x%02x", c)
		}
	}
	return sb.String()
}

// CondHexdump passes printable packets through (escaping stray control
// bytes) and hexdumps anything binary. For textual packets the trailing
// CR LF is dropped.
func CondHexdump(b []byte, textual bool) string {
	printable := true
	for _, c := range b {
		if !isPrint(c) && !isSpace(c) {
			printable = false
			break
		}
	}
	if !printable {
		return hex.EncodeToString(b)
	}
	var sb strings.Builder
	for i, c := range b {
		if isPrint(c) {
			sb.WriteByte(c)
			continue
		}
		if textual {
			if i == len(b)-1 && c == '\n' {
				continue
			}
			if i == len(b)-2 && c == '\r' {
				continue
			}
		}
		fmt.Fprintf(&sb, "\\x%02x", c)
	}
	return sb.String()
}
