package heartbeat

import (
	"context"
	"testing"
)

func TestCPUPercentHandlesZeroSystemDelta(t *testing.T) {
	var stats dockerStatsPayload
	stats.CPUStats.CPUUsage.TotalUsage = 100
	stats.PreCPUStats.CPUUsage.TotalUsage = 50

	if got := cpuPercent(stats); got != 0 {
		t.Fatalf("expected 0 with zero system delta, got %v", got)
	}
}

func TestCPUPercentComputesUsageRatio(t *testing.T) {
	var stats dockerStatsPayload
	stats.CPUStats.CPUUsage.TotalUsage = 300
	stats.PreCPUStats.CPUUsage.TotalUsage = 100
	stats.CPUStats.SystemUsage = 2000
	stats.PreCPUStats.SystemUsage = 1000
	stats.CPUStats.OnlineCPUs = 2

	got := cpuPercent(stats)
	want := (200.0 / 1000.0) * 2 * 100
	if got != want {
		t.Fatalf("cpuPercent = %v, want %v", got, want)
	}
}

func TestDockerSamplerWithNilClientReturnsZeroSample(t *testing.T) {
	d := &DockerSampler{}
	sample, err := d.Sample(context.Background(), "worker-impl-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sample != (Sample{}) {
		t.Fatalf("expected zero sample, got %+v", sample)
	}
}
