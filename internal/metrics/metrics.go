package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConferenceStatsProvider exposes live room and session counts.
type ConferenceStatsProvider interface {
	RoomCount() int
	ActiveConferences() int
	ActiveSessions() int
	Occupants() int
	PendingAllocations() int
}

// BridgeStatusEntry represents the state of a single bridge for metrics.
type BridgeStatusEntry struct {
	JID             string
	Live            bool
	Participants    int
	UploadBitrate   float64
	DownloadBitrate float64
	CPU             float64
}

// BridgeStatusProvider exposes the known bridges and their load.
type BridgeStatusProvider interface {
	BridgeStatuses() []BridgeStatusEntry
}

// RecordCounter returns conference record counts grouped by disposition.
type RecordCounter interface {
	CountByDisposition(ctx context.Context) (map[string]int64, error)
}

// Collector is a prometheus.Collector that gathers focus metrics at scrape time.
type Collector struct {
	conferences ConferenceStatsProvider
	bridges     BridgeStatusProvider
	records     RecordCounter
	startTime   time.Time

	// Metric descriptors.
	roomsDesc              *prometheus.Desc
	activeConferencesDesc  *prometheus.Desc
	activeSessionsDesc     *prometheus.Desc
	occupantsDesc          *prometheus.Desc
	pendingAllocationsDesc *prometheus.Desc
	bridgeUpDesc           *prometheus.Desc
	bridgeParticipantsDesc *prometheus.Desc
	bridgeBitrateDesc      *prometheus.Desc
	bridgeCPUDesc          *prometheus.Desc
	conferencesTotalDesc   *prometheus.Desc
	uptimeDesc             *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if unavailable.
func NewCollector(
	conferences ConferenceStatsProvider,
	bridges BridgeStatusProvider,
	records RecordCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		conferences: conferences,
		bridges:     bridges,
		records:     records,
		startTime:   startTime,

		roomsDesc: prometheus.NewDesc(
			"mucfocus_rooms",
			"Number of rooms with at least one occupant",
			nil, nil,
		),
		activeConferencesDesc: prometheus.NewDesc(
			"mucfocus_active_conferences",
			"Number of rooms with live bridge media",
			nil, nil,
		),
		activeSessionsDesc: prometheus.NewDesc(
			"mucfocus_active_sessions",
			"Number of established media sessions",
			nil, nil,
		),
		occupantsDesc: prometheus.NewDesc(
			"mucfocus_occupants",
			"Number of occupants across all rooms",
			nil, nil,
		),
		pendingAllocationsDesc: prometheus.NewDesc(
			"mucfocus_pending_allocations",
			"Number of bridge allocation requests awaiting a reply",
			nil, nil,
		),
		bridgeUpDesc: prometheus.NewDesc(
			"mucfocus_bridge_up",
			"Whether the bridge reported stats within the liveness window (1=live)",
			[]string{"bridge"}, nil,
		),
		bridgeParticipantsDesc: prometheus.NewDesc(
			"mucfocus_bridge_participants",
			"Participants reported by the bridge",
			[]string{"bridge"}, nil,
		),
		bridgeBitrateDesc: prometheus.NewDesc(
			"mucfocus_bridge_bitrate_kbps",
			"Bitrate reported by the bridge in kilobits per second",
			[]string{"bridge", "direction"}, nil,
		),
		bridgeCPUDesc: prometheus.NewDesc(
			"mucfocus_bridge_cpu_ratio",
			"CPU usage reported by the bridge, 0 to 1",
			[]string{"bridge"}, nil,
		),
		conferencesTotalDesc: prometheus.NewDesc(
			"mucfocus_conferences_total",
			"Total number of recorded conferences",
			[]string{"disposition"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"mucfocus_uptime_seconds",
			"Seconds since the focus process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.roomsDesc
	ch <- c.activeConferencesDesc
	ch <- c.activeSessionsDesc
	ch <- c.occupantsDesc
	ch <- c.pendingAllocationsDesc
	ch <- c.bridgeUpDesc
	ch <- c.bridgeParticipantsDesc
	ch <- c.bridgeBitrateDesc
	ch <- c.bridgeCPUDesc
	ch <- c.conferencesTotalDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.conferences != nil {
		ch <- prometheus.MustNewConstMetric(
			c.roomsDesc, prometheus.GaugeValue,
			float64(c.conferences.RoomCount()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.activeConferencesDesc, prometheus.GaugeValue,
			float64(c.conferences.ActiveConferences()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.activeSessionsDesc, prometheus.GaugeValue,
			float64(c.conferences.ActiveSessions()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.occupantsDesc, prometheus.GaugeValue,
			float64(c.conferences.Occupants()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.pendingAllocationsDesc, prometheus.GaugeValue,
			float64(c.conferences.PendingAllocations()),
		)
	}

	// Per-bridge gauges, one set per known bridge.
	if c.bridges != nil {
		for _, b := range c.bridges.BridgeStatuses() {
			up := 0.0
			if b.Live {
				up = 1.0
			}
			ch <- prometheus.MustNewConstMetric(
				c.bridgeUpDesc, prometheus.GaugeValue, up, b.JID,
			)
			ch <- prometheus.MustNewConstMetric(
				c.bridgeParticipantsDesc, prometheus.GaugeValue,
				float64(b.Participants), b.JID,
			)
			ch <- prometheus.MustNewConstMetric(
				c.bridgeBitrateDesc, prometheus.GaugeValue,
				b.UploadBitrate, b.JID, "upload",
			)
			ch <- prometheus.MustNewConstMetric(
				c.bridgeBitrateDesc, prometheus.GaugeValue,
				b.DownloadBitrate, b.JID, "download",
			)
			ch <- prometheus.MustNewConstMetric(
				c.bridgeCPUDesc, prometheus.GaugeValue,
				b.CPU, b.JID,
			)
		}
	}

	// Conference volume counters by disposition.
	if c.records != nil {
		counts, err := c.records.CountByDisposition(ctx)
		if err != nil {
			slog.Error("metrics: failed to count conference records", "error", err)
		} else {
			for _, disposition := range []string{"completed", "bridge-failed"} {
				ch <- prometheus.MustNewConstMetric(
					c.conferencesTotalDesc, prometheus.CounterValue,
					float64(counts[disposition]), disposition,
				)
			}
		}
	}

	// Uptime.
	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
