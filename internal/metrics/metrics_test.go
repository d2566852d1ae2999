package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type fakeConferences struct{}

func (fakeConferences) RoomCount() int          { return 4 }
func (fakeConferences) ActiveConferences() int  { return 2 }
func (fakeConferences) ActiveSessions() int     { return 5 }
func (fakeConferences) Occupants() int          { return 9 }
func (fakeConferences) PendingAllocations() int { return 1 }

type fakeBridges struct{}

func (fakeBridges) BridgeStatuses() []BridgeStatusEntry {
	return []BridgeStatusEntry{
		{JID: "jvb1.example.com", Live: true, Participants: 12, UploadBitrate: 512.5, DownloadBitrate: 1024, CPU: 0.25},
		{JID: "jvb2.example.com", Live: false},
	}
}

type fakeRecords struct{}

func (fakeRecords) CountByDisposition(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{"completed": 7, "bridge-failed": 2}, nil
}

func gather(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	return byName
}

func gaugeValue(t *testing.T, families map[string]*dto.MetricFamily, name string) float64 {
	t.Helper()
	mf, ok := families[name]
	if !ok {
		t.Fatalf("metric %s not gathered", name)
	}
	if len(mf.Metric) != 1 {
		t.Fatalf("metric %s has %d series, want 1", name, len(mf.Metric))
	}
	return mf.Metric[0].GetGauge().GetValue()
}

func TestCollectorGathersConferenceGauges(t *testing.T) {
	c := NewCollector(fakeConferences{}, fakeBridges{}, fakeRecords{}, time.Now().Add(-time.Minute))
	families := gather(t, c)

	checks := map[string]float64{
		"mucfocus_rooms":               4,
		"mucfocus_active_conferences":  2,
		"mucfocus_active_sessions":     5,
		"mucfocus_occupants":           9,
		"mucfocus_pending_allocations": 1,
	}
	for name, want := range checks {
		if got := gaugeValue(t, families, name); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}

	if got := gaugeValue(t, families, "mucfocus_uptime_seconds"); got < 59 {
		t.Errorf("mucfocus_uptime_seconds = %v, want at least a minute", got)
	}
}

func TestCollectorGathersBridgeSeries(t *testing.T) {
	c := NewCollector(fakeConferences{}, fakeBridges{}, fakeRecords{}, time.Now())
	families := gather(t, c)

	up, ok := families["mucfocus_bridge_up"]
	if !ok {
		t.Fatal("mucfocus_bridge_up not gathered")
	}
	if len(up.Metric) != 2 {
		t.Fatalf("mucfocus_bridge_up has %d series, want 2", len(up.Metric))
	}
	byBridge := make(map[string]float64)
	for _, m := range up.Metric {
		for _, l := range m.Label {
			if l.GetName() == "bridge" {
				byBridge[l.GetValue()] = m.GetGauge().GetValue()
			}
		}
	}
	if byBridge["jvb1.example.com"] != 1 || byBridge["jvb2.example.com"] != 0 {
		t.Errorf("bridge up values = %v, want jvb1 live and jvb2 down", byBridge)
	}

	bitrate, ok := families["mucfocus_bridge_bitrate_kbps"]
	if !ok {
		t.Fatal("mucfocus_bridge_bitrate_kbps not gathered")
	}
	// Upload and download per bridge.
	if len(bitrate.Metric) != 4 {
		t.Errorf("mucfocus_bridge_bitrate_kbps has %d series, want 4", len(bitrate.Metric))
	}

	total, ok := families["mucfocus_conferences_total"]
	if !ok {
		t.Fatal("mucfocus_conferences_total not gathered")
	}
	byDisposition := make(map[string]float64)
	for _, m := range total.Metric {
		for _, l := range m.Label {
			if l.GetName() == "disposition" {
				byDisposition[l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if byDisposition["completed"] != 7 || byDisposition["bridge-failed"] != 2 {
		t.Errorf("conference totals = %v, want completed:7 bridge-failed:2", byDisposition)
	}
}

func TestCollectorToleratesNilProviders(t *testing.T) {
	c := NewCollector(nil, nil, nil, time.Now())
	families := gather(t, c)

	if _, ok := families["mucfocus_rooms"]; ok {
		t.Error("mucfocus_rooms gathered with a nil provider")
	}
	if _, ok := families["mucfocus_uptime_seconds"]; !ok {
		t.Error("mucfocus_uptime_seconds missing; it has no provider dependency")
	}
}
