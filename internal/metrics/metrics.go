// Package metrics exposes the switch's Prometheus collectors: interface
// byte/frame counters, CAM occupancy gauges, multicast group gauges, and
// IGMP snooping event counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the narrow surface the data-plane packages depend on, so
// trafficloop and snoop can be tested against a no-op or fake recorder
// without pulling in the Prometheus registry.
type Recorder interface {
	InterfaceBytes(iface, direction string, n int)
	InterfaceFrames(iface, direction string, n int)
	CAMOccupancy(entries, capacity int)
	MulticastGroups(n int)
	IGMPEvent(eventType string)
}

// Metrics is the production Recorder, registering every collector via
// promauto against a given registerer (typically prometheus.DefaultRegisterer).
type Metrics struct {
	interfaceBytes  *prometheus.CounterVec
	interfaceFrames *prometheus.CounterVec
	camEntries      prometheus.Gauge
	camCapacity     prometheus.Gauge
	multicastGroups prometheus.Gauge
	igmpEvents      *prometheus.CounterVec
}

// New registers every collector against reg and returns the Metrics handle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		interfaceBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "l2switch_interface_bytes_total",
			Help: "Total bytes sent or received per interface.",
		}, []string{"iface", "direction"}),
		interfaceFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "l2switch_interface_frames_total",
			Help: "Total frames sent or received per interface.",
		}, []string{"iface", "direction"}),
		camEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "l2switch_cam_entries",
			Help: "Current number of occupied CAM table slots.",
		}),
		camCapacity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "l2switch_cam_capacity",
			Help: "Configured CAM table capacity.",
		}),
		multicastGroups: factory.NewGauge(prometheus.GaugeOpts{
			Name: "l2switch_multicast_groups",
			Help: "Current number of tracked multicast groups.",
		}),
		igmpEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "l2switch_igmp_events_total",
			Help: "Total IGMP snooping events observed, by type.",
		}, []string{"type"}),
	}
}

// InterfaceBytes implements Recorder.
func (m *Metrics) InterfaceBytes(iface, direction string, n int) {
	m.interfaceBytes.WithLabelValues(iface, direction).Add(float64(n))
}

// InterfaceFrames implements Recorder.
func (m *Metrics) InterfaceFrames(iface, direction string, n int) {
	m.interfaceFrames.WithLabelValues(iface, direction).Add(float64(n))
}

// CAMOccupancy implements Recorder.
func (m *Metrics) CAMOccupancy(entries, capacity int) {
	m.camEntries.Set(float64(entries))
	m.camCapacity.Set(float64(capacity))
}

// MulticastGroups implements Recorder.
func (m *Metrics) MulticastGroups(n int) {
	m.multicastGroups.Set(float64(n))
}

// IGMPEvent implements Recorder.
func (m *Metrics) IGMPEvent(eventType string) {
	m.igmpEvents.WithLabelValues(eventType).Inc()
}

// Noop is a Recorder that discards every observation, used where metrics
// are disabled or in tests that don't assert on them.
type Noop struct{}

func (Noop) InterfaceBytes(iface, direction string, n int)  {}
func (Noop) InterfaceFrames(iface, direction string, n int) {}
func (Noop) CAMOccupancy(entries, capacity int)             {}
func (Noop) MulticastGroups(n int)                          {}
func (Noop) IGMPEvent(eventType string)                     {}
