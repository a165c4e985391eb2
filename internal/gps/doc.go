// Package gps is the device side of the monitor: it opens a serial GNSS
// receiver or a gpsd feed, splits the byte stream into packets, and keeps
// just enough fix state for time bookkeeping.
//
// It is intentionally small:
// - Serial lines are configured with termios (speed, word length, parity, stop bits)
// - gpsd feeds are watched in raw or NMEA mode
// - Packets are tagged NMEA, JSON, UBX, SiRF or comment; nothing deeper is decoded
package gps
