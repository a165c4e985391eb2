package gps

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"
)

const (
	gpsdDefaultHost = "localhost"
	gpsdDefaultPort = "2947"
)

// Source is a parsed target: a local device path or a gpsd
// [server[:port[:device]]] triple.
type Source struct {
	Serial bool
	Server string
	Port   string
	// Device is the serial path for local sources, or the optional
	// device gpsd should restrict its report stream to.
	Device string
}

// ParseSource interprets the positional target. Anything under /dev is a
// local serial device; everything else names a gpsd instance.
func ParseSource(target string) Source {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "/dev") {
		dev := target
		// "/dev/ttyUSB0:extra" keeps only the path.
		if i := strings.IndexByte(dev, ':'); i >= 0 {
			dev = dev[:i]
		}
		return Source{Serial: true, Device: dev}
	}

	src := Source{Server: gpsdDefaultHost, Port: gpsdDefaultPort}
	if target == "" {
		return src
	}
	rest := target
	// [ipv6]:port:device
	if strings.HasPrefix(rest, "[") {
		if end := strings.IndexByte(rest, ']'); end > 0 {
			src.Server = rest[1:end]
			rest = strings.TrimPrefix(rest[end+1:], ":")
		}
	} else {
		host, tail, _ := strings.Cut(rest, ":")
		if host != "" {
			src.Server = host
		}
		rest = tail
	}
	port, dev, _ := strings.Cut(rest, ":")
	if port != "" {
		src.Port = port
	}
	src.Device = dev
	return src
}

// Addr is host:port for network sources.
func (s Source) Addr() string {
	return net.JoinHostPort(s.Server, s.Port)
}

func (s Source) String() string {
	if s.Serial {
		return s.Device
	}
	out := s.Addr()
	if s.Device != "" {
		out += ":" + s.Device
	}
	return out
}

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 2 * time.Second}
	if ctx == nil {
		return d.Dial("tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

type gpsdWatchRequest struct {
	Raw    int    `json:"raw,omitempty"`
	NMEA   bool   `json:"nmea,omitempty"`
	PPS    bool   `json:"pps"`
	Device string `json:"device,omitempty"`
}

// WatchCommand builds the ?WATCH request: raw device data (or NMEA when
// nmea is set) plus PPS/TOFF reports, optionally for one device only.
func WatchCommand(nmea bool, device string) string {
	req := gpsdWatchRequest{PPS: true, Device: device}
	if nmea {
		req.NMEA = true
	} else {
		req.Raw = 2
	}
	b, _ := json.Marshal(req)
	return "?WATCH=" + string(b) + "\r\n"
}

// gpsdWatch enables the report stream.
func gpsdWatch(conn net.Conn, nmea bool, device string) error {
	_, err := conn.Write([]byte(WatchCommand(nmea, device)))
	return err
}
