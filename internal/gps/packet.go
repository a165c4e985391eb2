package gps

// PacketType tags a completed packet with its framing family.
type PacketType int

const (
	BadPacket PacketType = iota
	CommentPacket
	NMEAPacket
	JSONPacket
	UBXPacket
	SiRFPacket
)

func (t PacketType) String() string {
	switch t {
	case CommentPacket:
		return "comment"
	case NMEAPacket:
		return "NMEA"
	case JSONPacket:
		return "JSON"
	case UBXPacket:
		return "UBX"
	case SiRFPacket:
		return "SiRF"
	default:
		return "bad"
	}
}

// Textual reports whether packets of this type are line-oriented text.
func (t PacketType) Textual() bool {
	return t == NMEAPacket || t == JSONPacket || t == CommentPacket
}

// Packet is one completed frame off the wire.
type Packet struct {
	Type PacketType
	// Raw is the frame exactly as received, including framing bytes.
	Raw []byte
	// Sentence is set for NMEA packets.
	Sentence *Sentence
}

// PollStatus is the outcome of one transport poll.
type PollStatus int

const (
	// PollUnchanged means nothing was read (descriptor not readable or EAGAIN).
	PollUnchanged PollStatus = iota
	// PollReady means bytes were consumed; zero or more packets completed.
	PollReady
	// PollNotReady means the descriptor was readable but yielded nothing.
	PollNotReady
	PollError
	PollEOF
)

func (s PollStatus) String() string {
	switch s {
	case PollUnchanged:
		return "unchanged"
	case PollReady:
		return "ready"
	case PollNotReady:
		return "not-ready"
	case PollError:
		return "error"
	case PollEOF:
		return "eof"
	default:
		return "unknown"
	}
}
