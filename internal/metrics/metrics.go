// Package metrics exposes session counters to Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	Packets        *prometheus.CounterVec
	PacketBytes    prometheus.Histogram
	MonitorSwitch  *prometheus.CounterVec
	SwitchRefused  prometheus.Counter
	Commands       *prometheus.CounterVec
	CommandErrors  *prometheus.CounterVec
	PPSEvents      prometheus.Counter
	DecodeErrors   *prometheus.CounterVec
	ReadOnlyToggle prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Packets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gpsmon_packets_total",
			Help: "Packets received from the device, by packet type",
		}, []string{"type"}),
		PacketBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpsmon_packet_bytes",
			Help:    "Size of received packets",
			Buckets: prometheus.ExponentialBuckets(8, 2, 11),
		}),
		MonitorSwitch: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gpsmon_monitor_switches_total",
			Help: "Accepted monitor object switches, by monitor",
		}, []string{"monitor"}),
		SwitchRefused: f.NewCounter(prometheus.CounterOpts{
			Name: "gpsmon_monitor_switch_refused_total",
			Help: "Monitor switches refused for geometry or a missing monitor",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gpsmon_commands_total",
			Help: "Operator commands, by command letter",
		}, []string{"cmd"}),
		CommandErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gpsmon_command_errors_total",
			Help: "Operator commands that were rejected or failed",
		}, []string{"cmd"}),
		PPSEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "gpsmon_pps_events_total",
			Help: "PPS reports and captured pulses",
		}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gpsmon_decode_errors_total",
			Help: "Malformed side-channel reports, by class",
		}, []string{"class"}),
		ReadOnlyToggle: f.NewCounter(prometheus.CounterOpts{
			Name: "gpsmon_readonly_toggles_total",
			Help: "Changes of the probing/read-only flag",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Packet(kind string, size int) {
	if m == nil {
		return
	}
	m.Packets.WithLabelValues(kind).Inc()
	m.PacketBytes.Observe(float64(size))
}

func (m *Metrics) Switched(monitor string) {
	if m == nil {
		return
	}
	m.MonitorSwitch.WithLabelValues(monitor).Inc()
}

func (m *Metrics) Refused() {
	if m == nil {
		return
	}
	m.SwitchRefused.Inc()
}

func (m *Metrics) Command(cmd string, ok bool) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(cmd).Inc()
	if !ok {
		m.CommandErrors.WithLabelValues(cmd).Inc()
	}
}

func (m *Metrics) PPS() {
	if m == nil {
		return
	}
	m.PPSEvents.Inc()
}

func (m *Metrics) DecodeError(class string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(class).Inc()
}

func (m *Metrics) ReadOnly() {
	if m == nil {
		return
	}
	m.ReadOnlyToggle.Inc()
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs the metrics endpoint until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if m == nil || addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("metrics listening addr=%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
