package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"syscall"
)

// Options controls how a Device is opened.
type Options struct {
	// NMEA asks gpsd for NMEA rather than raw device output.
	NMEA bool
	// Params is the initial serial line setting; zero means 9600 8N1.
	Params SerialParams
}

// Device is one live transport: a serial line or a gpsd socket, plus the
// lexer that frames its bytes.
type Device struct {
	src    Source
	params SerialParams

	conn io.ReadWriteCloser
	fd   int

	lexer Lexer
	rbuf  []byte

	mu     sync.Mutex
	closed bool
}

// Open connects to src. Serial devices are configured with opts.Params;
// gpsd sources get a ?WATCH request before Open returns.
func Open(ctx context.Context, src Source, opts Options) (*Device, error) {
	params := opts.Params
	if params.Baud == 0 {
		params = DefaultSerialParams()
	}
	d := &Device{src: src, params: params, rbuf: make([]byte, 4096)}

	if src.Serial {
		f, err := openSerial(src.Device, params)
		if err != nil {
			return nil, fmt.Errorf("gps open failed device=%s params=%s: %w", src.Device, params, err)
		}
		d.conn = f
		d.fd = int(f.Fd())
		log.Printf("gps opened device=%s params=%s", src.Device, params)
		return d, nil
	}

	conn, err := dialGPSD(ctx, src.Addr())
	if err != nil {
		return nil, fmt.Errorf("gpsd dial failed addr=%s: %w", src.Addr(), err)
	}
	fd, err := connFd(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := gpsdWatch(conn, opts.NMEA, src.Device); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gpsd watch failed: %w", err)
	}
	d.conn = conn
	d.fd = fd
	log.Printf("gps opened source=gpsd addr=%s device=%q", src.Addr(), src.Device)
	return d, nil
}

func connFd(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("gpsd connection has no descriptor")
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := rc.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, err
	}
	return fd, nil
}

func (d *Device) Fd() int { return d.fd }

func (d *Device) Serial() bool { return d.src.Serial }

func (d *Device) Source() Source { return d.src }

func (d *Device) Params() SerialParams { return d.params }

// Counter is the number of packets framed since the last Resync.
func (d *Device) Counter() uint64 { return d.lexer.Counter }

// Poll reads once if the descriptor is readable and returns every packet
// completed by that read.
func (d *Device) Poll(readable bool) (PollStatus, []Packet, error) {
	if d == nil || d.conn == nil {
		return PollError, nil, fmt.Errorf("gps device is not open")
	}
	if !readable {
		return PollUnchanged, nil, nil
	}
	n, err := d.conn.Read(d.rbuf)
	if n > 0 {
		_, _ = d.lexer.Write(d.rbuf[:n])
		var pkts []Packet
		for {
			pkt, ok := d.lexer.Next()
			if !ok {
				break
			}
			pkts = append(pkts, pkt)
		}
		return PollReady, pkts, nil
	}
	switch {
	case err == nil:
		return PollNotReady, nil, nil
	case errors.Is(err, io.EOF):
		// A tty returns EOF on hangup; that is a device gone quiet, not a
		// clean end of stream.
		if d.src.Serial {
			return PollNotReady, nil, nil
		}
		return PollEOF, nil, nil
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		return PollUnchanged, nil, nil
	default:
		return PollError, nil, err
	}
}

func (d *Device) Write(p []byte) (int, error) {
	if d == nil || d.conn == nil {
		return 0, fmt.Errorf("gps device is not open")
	}
	return d.conn.Write(p)
}

// SetSpeed reconfigures the local serial line.
func (d *Device) SetSpeed(p SerialParams) error {
	if !d.src.Serial {
		return fmt.Errorf("speed change needs a serial device")
	}
	if err := setSerialParams(d.fd, p); err != nil {
		return err
	}
	d.params = p
	log.Printf("gps speed changed device=%s params=%s", d.src.Device, p)
	return nil
}

// Drain waits for queued output to reach the wire.
func (d *Device) Drain() error {
	if !d.src.Serial {
		return nil
	}
	return drainSerial(d.fd)
}

// Resync discards any partial frame so the next packet is framed afresh.
func (d *Device) Resync() {
	d.lexer.Reset()
}

func (d *Device) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.conn == nil {
		return nil
	}
	d.closed = true
	return d.conn.Close()
}
