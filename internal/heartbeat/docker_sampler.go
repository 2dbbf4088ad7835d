package heartbeat

import (
	"context"
	"encoding/json"

	"github.com/docker/docker/client"
)

// DockerSampler samples CPU/memory usage for a worker running inside a
// container by reading the container's one-shot stats snapshot. Workers
// that don't run containerized skip this and build Sample from
// process-local readings instead.
type DockerSampler struct {
	cli *client.Client
}

// NewDockerSampler constructs a sampler from the ambient Docker
// environment. A nil *client.Client (Docker unavailable) is tolerated;
// Sample then returns a zero-value Sample.
func NewDockerSampler() *DockerSampler {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return &DockerSampler{}
	}
	return &DockerSampler{cli: cli}
}

// dockerStatsPayload mirrors the subset of the Docker stats JSON stream
// this sampler reads; the full schema has many fields this domain never
// uses.
type dockerStatsPayload struct {
	CPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemUsage uint64 `json:"system_cpu_usage"`
		OnlineCPUs  uint32 `json:"online_cpus"`
	} `json:"cpu_stats"`
	PreCPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemUsage uint64 `json:"system_cpu_usage"`
	} `json:"precpu_stats"`
	MemoryStats struct {
		Usage uint64 `json:"usage"`
	} `json:"memory_stats"`
}

// Sample fetches a one-shot (non-streaming) stats snapshot for
// containerName and converts it into a heartbeat.Sample's CPU/memory
// fields. TokensUsed/TokenBudget/ActiveForSeconds are left zero — the
// caller fills those in from the worker spec and its own clock.
func (d *DockerSampler) Sample(ctx context.Context, containerName string) (Sample, error) {
	if d.cli == nil {
		return Sample{}, nil
	}

	resp, err := d.cli.ContainerStatsOneShot(ctx, containerName)
	if err != nil {
		return Sample{}, err
	}
	defer resp.Body.Close()

	var stats dockerStatsPayload
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Sample{}, err
	}

	return Sample{
		CPUPercent: cpuPercent(stats),
		MemoryMB:   float64(stats.MemoryStats.Usage) / (1024 * 1024),
	}, nil
}

func cpuPercent(stats dockerStatsPayload) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	if systemDelta <= 0 || cpuDelta < 0 {
		return 0
	}
	online := float64(stats.CPUStats.OnlineCPUs)
	if online == 0 {
		online = 1
	}
	return (cpuDelta / systemDelta) * online * 100
}
