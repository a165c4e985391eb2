package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"gpsmon-ng/internal/config"
	"gpsmon-ng/internal/display"
	"gpsmon-ng/internal/driver"
	"gpsmon-ng/internal/gps"
	"gpsmon-ng/internal/metrics"
	"gpsmon-ng/internal/monitor"
	"gpsmon-ng/internal/session"
	"gpsmon-ng/internal/timing"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	configPath    string
	noCurses      bool
	nmea          bool
	logfile       string
	typeName      string
	debug         int
	list          bool
	showVersion   bool
	help          bool
	metricsListen string
	ppsChip       string
	ppsLine       string
}

func newFlagSet(opts *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("gpsmon-ng", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to YAML config")
	fs.BoolVarP(&opts.noCurses, "nocurses", "a", false, "Line-mode output instead of the full-screen display")
	fs.BoolVarP(&opts.nmea, "nmea", "n", false, "Ask gpsd for NMEA instead of raw device data")
	fs.StringVarP(&opts.logfile, "logfile", "l", "", "Write a transcript of packets and commands to this file")
	fs.StringVarP(&opts.typeName, "type", "t", "", "Force the driver whose name starts with this prefix")
	fs.IntVarP(&opts.debug, "debug", "D", 0, "Diagnostic verbosity")
	fs.BoolVarP(&opts.list, "list", "L", false, "List known device types and their commands")
	fs.BoolVarP(&opts.showVersion, "version", "V", false, "Print version and exit")
	fs.BoolVarP(&opts.help, "help", "h", false, "Show usage")
	fs.StringVar(&opts.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&opts.ppsChip, "pps-chip", "", "GPIO chip carrying the PPS line")
	fs.StringVar(&opts.ppsLine, "pps-line", "", "GPIO line name or offset of the PPS signal")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: gpsmon-ng [flags] [server[:port[:device]]] | [/dev/...]\n")
		fs.PrintDefaults()
	}
	return fs
}

// newLogger follows the command logger shape: text on a terminal, JSON
// otherwise. Standard log output is routed through it.
func newLogger(w io.Writer, debug int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case debug >= 2:
		level = slog.LevelDebug
	case debug == 1:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// applyFlags merges explicitly set flags over the config file values.
func applyFlags(fs *pflag.FlagSet, opts options, cfg *config.Config) {
	if fs.Changed("nocurses") {
		cfg.Display.NoCurses = opts.noCurses
	}
	if fs.Changed("nmea") {
		cfg.Session.NMEA = opts.nmea
	}
	if fs.Changed("logfile") {
		cfg.Session.Logfile = opts.logfile
	}
	if fs.Changed("type") {
		cfg.Session.Type = opts.typeName
	}
	if fs.Changed("debug") {
		cfg.Log.Debug = opts.debug
	}
	if fs.Changed("metrics-listen") {
		cfg.Metrics.Listen = opts.metricsListen
	}
	if fs.Changed("pps-chip") {
		cfg.PPS.Chip = opts.ppsChip
	}
	if fs.Changed("pps-line") {
		cfg.PPS.Line = opts.ppsLine
		cfg.PPS.Enable = opts.ppsLine != ""
	}
	if fs.NArg() > 0 {
		cfg.Target = fs.Arg(0)
	}
}

// resolveType finds the single driver whose name starts with prefix.
func resolveType(prefix string) (driver.Driver, error) {
	matches := driver.MatchPrefix(prefix)
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("-t option didn't match any driver")
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("-t option matched more than one driver")
	}
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "gpsmon-ng: %v\n", err)
		fs.Usage()
		return 1
	}
	if opts.help {
		fs.Usage()
		return 0
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "gpsmon-ng: %s\n", version)
		return 0
	}
	if opts.list {
		writeCapabilityTable(stdout)
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "gpsmon-ng: config load failed: %v\n", err)
		return 1
	}
	applyFlags(fs, opts, &cfg)
	if err := config.DefaultAndValidate(&cfg); err != nil {
		fmt.Fprintf(stderr, "gpsmon-ng: %v\n", err)
		return 1
	}

	logger := newLogger(stderr, cfg.Log.Debug)
	slog.SetDefault(logger)

	var fallback driver.Driver
	if cfg.Session.Type != "" {
		fallback, err = resolveType(cfg.Session.Type)
		if err != nil {
			fmt.Fprintf(stderr, "gpsmon-ng: %v\n", err)
			return 1
		}
	}

	var transcript io.WriteCloser
	if cfg.Session.Logfile != "" {
		f, err := os.Create(cfg.Session.Logfile)
		if err != nil {
			fmt.Fprintf(stderr, "gpsmon-ng: Couldn't open logfile for writing: %v\n", err)
			return 1
		}
		transcript = f
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := gps.ParseSource(cfg.Target)
	dev, err := gps.Open(ctx, src, gps.Options{NMEA: cfg.Session.NMEA})
	if err != nil {
		if transcript != nil {
			_ = transcript.Close()
		}
		logger.Error("device open failed", "source", src.String(), "error", err)
		fmt.Fprintf(stderr, "gpsmon-ng: %v\n", err)
		return 1
	}

	sink := newSink(cfg.Display.NoCurses, stdout, stderr)
	m := metrics.New()
	s, err := session.New(session.Options{
		Transport:  dev,
		Sink:       sink,
		Fallback:   fallback,
		Force:      fallback != nil,
		Transcript: transcript,
		Settle:     cfg.Session.SettleDelay,
		Metrics:    m,
	})
	if err != nil {
		_ = dev.Close()
		fmt.Fprintf(stderr, "gpsmon-ng: %v\n", err)
		return 1
	}

	// Without a terminal on stdin there is no operator to read from.
	kbFd := int(stdin.Fd())
	if !term.IsTerminal(kbFd) {
		kbFd = -1
	}
	mux, err := session.NewMultiplexer(dev.Fd(), kbFd)
	if err != nil {
		_ = s.Close()
		fmt.Fprintf(stderr, "gpsmon-ng: %v\n", err)
		return 1
	}
	kb, err := session.NewKeyboard(stdin)
	if err != nil {
		_ = mux.Close()
		_ = s.Close()
		fmt.Fprintf(stderr, "gpsmon-ng: %v\n", err)
		return 1
	}

	loopOpts := session.LoopOptions{Timeout: cfg.Session.WaitTimeout}
	if cfg.PPS.Enable && src.Serial {
		pps, err := timing.OpenGPIO(cfg.PPS.Chip, cfg.PPS.Line, s.Timing, func(bar string) {
			s.ReportPulse(bar)
			mux.Wake()
		})
		if err != nil {
			logger.Warn("pps capture unavailable", "chip", cfg.PPS.Chip, "line", cfg.PPS.Line, "error", err)
		} else {
			loopOpts.PPS = pps
		}
	}

	loop := session.NewLoop(s, mux, kb, loopOpts)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGABRT)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case sig := <-sigs:
				loop.Signal(sig)
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Printf("metrics server stopped err=%v", err)
			}
		}()
	}

	end := loop.Run()
	cancel()
	if msg := end.Cause.Explanation(); msg != "" {
		fmt.Fprintf(stderr, "gpsmon-ng: %s\n", msg)
	}
	return 0
}

// newSink picks the full-screen display on a terminal and line output
// otherwise.
func newSink(noCurses bool, stdout, stderr io.Writer) display.Sink {
	f, ok := stdout.(*os.File)
	if noCurses || !ok || !term.IsTerminal(int(f.Fd())) {
		return display.NewLines(stdout, stderr)
	}
	fd := int(f.Fd())
	return display.NewTerminal(stdout, func() (int, int, error) {
		cols, rows, err := term.GetSize(fd)
		return rows, cols, err
	})
}

// writeCapabilityTable lists each monitor's driver with the generic
// commands it supports. '+' means the monitor has private commands.
func writeCapabilityTable(w io.Writer) {
	fmt.Fprintln(w, "General commands available per type. '+' means there are private commands.")
	for _, obj := range monitor.Registry() {
		d := driver.Lookup(obj.Name())
		_, private := obj.(monitor.Commander)
		var sb strings.Builder
		sb.WriteString("i l q ^S ^Q")
		for _, c := range []struct {
			ok  bool
			key byte
		}{
			{driver.Has(d, driver.CapMode), 'n'},
			{driver.Has(d, driver.CapSpeed), 's'},
			{driver.Has(d, driver.CapRate), 'c'},
			{driver.Has(d, driver.CapControl), 'x'},
			{private, '+'},
		} {
			sb.WriteByte(' ')
			if c.ok {
				sb.WriteByte(c.key)
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\t')
		sb.WriteString(obj.Name())
		fmt.Fprintln(w, sb.String())
	}
}
