package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gpsmon-ng/internal/driver"
	"gpsmon-ng/internal/gps"
	"gpsmon-ng/internal/monitor"
)

var errQuit = errors.New("quit")

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r'
}

// parseCommand splits a command line into its letter and argument. When
// the second character is whitespace the argument starts after the
// whitespace run; otherwise right after the letter.
func parseCommand(line string) (byte, string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return 0, ""
	}
	if len(line) > 1 && isSpace(line[1]) {
		return line[0], strings.TrimLeft(line[1:], " \t\v\f")
	}
	return line[0], line[1:]
}

// binaryArg reads a 0/1 argument. ok is false when the line carries
// neither digit, meaning "toggle".
func binaryArg(line, arg string) (v int, ok bool) {
	if !strings.ContainsAny(line, "01") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, true
	}
	return n, true
}

// ParseSpeed reads "rate[:WPS]" (for example "4800:7E2"). Fields left out
// keep their values from cur. Word length, parity and stop bits are
// checked in that order, each before the next is looked at.
func ParseSpeed(arg string, cur gps.SerialParams) (gps.SerialParams, error) {
	rate, modespec, hasMode := strings.Cut(strings.TrimSpace(arg), ":")
	p := cur
	baud, err := strconv.Atoi(strings.TrimSpace(rate))
	if err != nil || baud <= 0 {
		return cur, fmt.Errorf("invalid speed %q", rate)
	}
	p.Baud = baud
	if hasMode {
		modespec = strings.TrimSpace(modespec)
		missing := fmt.Errorf("mode spec %q needs word length, parity and stop bits", modespec)
		if len(modespec) < 1 {
			return cur, missing
		}
		if c := modespec[0]; c != '7' && c != '8' {
			return cur, fmt.Errorf("no support for word length %c", c)
		}
		p.DataBits = int(modespec[0] - '0')
		if len(modespec) < 2 {
			return cur, missing
		}
		if c := modespec[1]; c != 'N' && c != 'O' && c != 'E' {
			return cur, fmt.Errorf("what parity is '%c'?", c)
		}
		p.Parity = modespec[1]
		if len(modespec) < 3 {
			return cur, missing
		}
		if c := modespec[2]; c != '1' && c != '2' {
			return cur, fmt.Errorf("stop bits must be 1 or 2")
		}
		p.StopBits = int(modespec[2] - '0')
	}
	if err := p.Validate(); err != nil {
		return cur, err
	}
	return p, nil
}

// Do interprets one operator command line. It returns false when the
// operator asked to quit.
func (s *Session) Do(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return true
	}
	s.reportMu.Lock()
	s.writeTranscript(">>>" + line + "\n")
	s.reportMu.Unlock()

	if c, ok := s.switcher.Active().(monitor.Commander); ok {
		res, err := c.Command(s.env, line)
		switch res {
		case monitor.CommandMatch:
			s.metrics.Command(line[:1], err == nil)
			if err != nil {
				s.complain("%s", err)
			}
			return true
		case monitor.CommandTerminate:
			return false
		}
	}

	cmd, arg := parseCommand(line)
	err := s.exec(cmd, arg, line)
	if errors.Is(err, errQuit) {
		return false
	}
	s.metrics.Command(string(cmd), err == nil)
	if err != nil {
		s.complain("%s", err)
	}
	return true
}

func (s *Session) exec(cmd byte, arg, line string) error {
	switch cmd {
	case 'c':
		if err := s.checkLowLevel(); err != nil {
			return err
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return ErrRateUnsupported
		}
		return s.RateSwitch(rate)

	case 'i':
		if s.bound == nil {
			return errors.New("No GPS type detected.")
		}
		if !s.serial() {
			return ErrNotLowLevel
		}
		if v, ok := binaryArg(line, arg); ok {
			s.readonly = v == 0
		} else {
			s.readonly = !s.readonly
		}
		s.metrics.ReadOnly()
		state := "en"
		if s.readonly {
			state = "dis"
		}
		s.announce("[probing %sabled]", state)
		if !s.readonly {
			// Reframe from scratch and re-evaluate the monitor.
			s.transport.Resync()
			s.haveLastType = false
		}
		return nil

	case 'l':
		path := strings.TrimSpace(arg)
		if err := s.OpenTranscript(path); err != nil {
			return fmt.Errorf("Couldn't open logfile %s: %v", path, err)
		}
		return nil

	case 'n':
		v, ok := binaryArg(line, arg)
		if !ok {
			v = 0
			if s.lastType.Textual() {
				v = 1
			}
		}
		return s.ModeSwitch(v)

	case 'q':
		return errQuit

	case 's':
		if err := s.checkLowLevel(); err != nil {
			return err
		}
		params, err := ParseSpeed(arg, s.transport.Params())
		if err != nil {
			return err
		}
		return s.SpeedSwitch(params)

	case 't':
		if !s.serial() {
			return ErrNotLowLevel
		}
		if arg == "" {
			return nil
		}
		return s.forceType(arg)

	case 'x':
		if err := s.checkLowLevel(); err != nil {
			return err
		}
		b, err := gps.HexPack(arg)
		if err != nil {
			return fmt.Errorf("Invalid hex string (%v)", err)
		}
		return s.ControlSend(b)

	case 'X':
		if !s.serial() {
			return ErrNotLowLevel
		}
		b, err := gps.HexPack(arg)
		if err != nil {
			return fmt.Errorf("Invalid hex string (%v)", err)
		}
		return s.RawSend(b)

	default:
		return fmt.Errorf("Unknown command '%c'", cmd)
	}
}

// forceType rebinds the driver named by a unique substring, but only
// after its monitor has been selected.
func (s *Session) forceType(substr string) error {
	matches := driver.Match(substr)
	switch len(matches) {
	case 0:
		return fmt.Errorf("No driver type matches '%s'.", substr)
	case 1:
	default:
		return fmt.Errorf("Multiple driver type names match '%s'.", substr)
	}
	d := matches[0]
	if err := s.switcher.Select(d.Name()); err != nil {
		return err
	}
	s.bind(d, true)
	s.lastResolved = d.Name()
	s.announce("[Driver type forced to %s]", d.Name())
	return nil
}
