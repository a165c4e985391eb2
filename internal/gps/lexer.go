package gps

import (
	"bytes"
	"encoding/binary"
)

// MaxPacketLength bounds any single frame; longer runs are resynchronized.
const MaxPacketLength = 9216

const (
	ubxSync1  = 0xB5
	ubxSync2  = 0x62
	sirfSync1 = 0xA0
	sirfSync2 = 0xA2
	sirfEnd1  = 0xB0
	sirfEnd2  = 0xB3
)

// Lexer collects bytes and emits complete packets. It is an io.Writer so a
// transport can feed it directly; Next drains completed frames.
type Lexer struct {
	buf []byte

	// Counter is the number of packets emitted since the last Reset.
	Counter uint64
	// Discarded counts bytes dropped while hunting for a frame start.
	Discarded uint64
}

func (l *Lexer) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	return len(p), nil
}

// Reset drops any partial frame and restarts packet counting.
func (l *Lexer) Reset() {
	l.buf = l.buf[:0]
	l.Counter = 0
}

// Buffered is the number of bytes held for an incomplete frame.
func (l *Lexer) Buffered() int { return len(l.buf) }

// Next returns the next complete packet, or false when more input is needed.
func (l *Lexer) Next() (Packet, bool) {
	for len(l.buf) > 0 {
		n, pkt, state := l.frame()
		switch state {
		case frameNeedMore:
			if len(l.buf) > MaxPacketLength {
				l.drop(1)
				continue
			}
			return Packet{}, false
		case frameBad:
			l.drop(1)
			continue
		}
		pkt.Raw = append([]byte(nil), l.buf[:n]...)
		l.buf = l.buf[n:]
		if pkt.Type == NMEAPacket {
			s, err := ParseNMEA(string(pkt.Raw))
			if err != nil {
				l.Discarded += uint64(n)
				continue
			}
			pkt.Sentence = &s
		}
		l.Counter++
		return pkt, true
	}
	return Packet{}, false
}

func (l *Lexer) drop(n int) {
	l.buf = l.buf[n:]
	l.Discarded += uint64(n)
}

type frameState int

const (
	frameOK frameState = iota
	frameNeedMore
	frameBad
)

func (l *Lexer) frame() (int, Packet, frameState) {
	b := l.buf
	switch b[0] {
	case '$', '!':
		return lineFrame(b, NMEAPacket)
	case '{':
		return lineFrame(b, JSONPacket)
	case '#':
		return lineFrame(b, CommentPacket)
	case ubxSync1:
		return ubxFrame(b)
	case sirfSync1:
		return sirfFrame(b)
	default:
		return 0, Packet{}, frameBad
	}
}

func lineFrame(b []byte, t PacketType) (int, Packet, frameState) {
	nl := bytes.IndexByte(b, '\n')
	if nl < 0 {
		return 0, Packet{}, frameNeedMore
	}
	if nl+1 > MaxPacketLength {
		return 0, Packet{}, frameBad
	}
	return nl + 1, Packet{Type: t}, frameOK
}

// UBX: B5 62 class id len(le16) payload ck_a ck_b.
func ubxFrame(b []byte) (int, Packet, frameState) {
	if len(b) < 2 {
		return 0, Packet{}, frameNeedMore
	}
	if b[1] != ubxSync2 {
		return 0, Packet{}, frameBad
	}
	if len(b) < 6 {
		return 0, Packet{}, frameNeedMore
	}
	plen := int(binary.LittleEndian.Uint16(b[4:6]))
	total := 6 + plen + 2
	if total > MaxPacketLength {
		return 0, Packet{}, frameBad
	}
	if len(b) < total {
		return 0, Packet{}, frameNeedMore
	}
	ckA, ckB := UBXChecksum(b[2 : 6+plen])
	if ckA != b[total-2] || ckB != b[total-1] {
		return 0, Packet{}, frameBad
	}
	return total, Packet{Type: UBXPacket}, frameOK
}

// UBXChecksum is the 8-bit Fletcher checksum over class, id, length and payload.
func UBXChecksum(msg []byte) (byte, byte) {
	var a, b byte
	for _, c := range msg {
		a += c
		b += a
	}
	return a, b
}

// SiRF: A0 A2 len(be15) payload checksum(be15) B0 B3.
func sirfFrame(b []byte) (int, Packet, frameState) {
	if len(b) < 2 {
		return 0, Packet{}, frameNeedMore
	}
	if b[1] != sirfSync2 {
		return 0, Packet{}, frameBad
	}
	if len(b) < 4 {
		return 0, Packet{}, frameNeedMore
	}
	plen := int(binary.BigEndian.Uint16(b[2:4]) & 0x7FFF)
	total := 4 + plen + 4
	if total > MaxPacketLength {
		return 0, Packet{}, frameBad
	}
	if len(b) < total {
		return 0, Packet{}, frameNeedMore
	}
	if b[total-2] != sirfEnd1 || b[total-1] != sirfEnd2 {
		return 0, Packet{}, frameBad
	}
	want := binary.BigEndian.Uint16(b[4+plen:]) & 0x7FFF
	if SiRFChecksum(b[4:4+plen]) != want {
		return 0, Packet{}, frameBad
	}
	return total, Packet{Type: SiRFPacket}, frameOK
}

// SiRFChecksum is the 15-bit sum of the payload bytes.
func SiRFChecksum(payload []byte) uint16 {
	var sum uint16
	for _, c := range payload {
		sum += uint16(c)
	}
	return sum & 0x7FFF
}
