//go:build linux

package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// SystemCollector reads CPU, memory and network usage from /proc and disk
// usage of one mount point from statfs.
type SystemCollector struct {
	fs       procfs.FS
	diskPath string

	mu      sync.Mutex
	prevCPU *procfs.CPUStat
}

// NewSystemCollector creates a collector reporting disk usage for diskPath.
func NewSystemCollector(diskPath string) (*SystemCollector, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemCollector{fs: fs, diskPath: diskPath}, nil
}

// Collect implements Collector. CPU usage is measured since the previous
// call, or since boot on the first call.
func (c *SystemCollector) Collect(ctx context.Context) (ResourceUsage, error) {
	if err := ctx.Err(); err != nil {
		return ResourceUsage{}, err
	}
	usage := ResourceUsage{CollectedAt: time.Now()}

	stat, err := c.fs.Stat()
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("read /proc/stat: %w", err)
	}
	usage.CPUPercent = c.cpuPercent(stat.CPUTotal)

	mem, err := c.fs.Meminfo()
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("read /proc/meminfo: %w", err)
	}
	if mem.MemTotal != nil && mem.MemAvailable != nil && *mem.MemTotal > 0 {
		used := *mem.MemTotal - min(*mem.MemAvailable, *mem.MemTotal)
		usage.MemoryPercent = percent(float64(used), float64(*mem.MemTotal))
	}

	if dev, err := c.fs.NetDev(); err == nil {
		total := dev.Total()
		usage.NetworkRxBytes = total.RxBytes
		usage.NetworkTxBytes = total.TxBytes
	}

	var st unix.Statfs_t
	if err := unix.Statfs(c.diskPath, &st); err != nil {
		return ResourceUsage{}, fmt.Errorf("statfs %s: %w", c.diskPath, err)
	}
	blockSize := uint64(st.Bsize)
	totalBytes := st.Blocks * blockSize
	if totalBytes > 0 {
		freeBytes := st.Bfree * blockSize
		usage.DiskPercent = percent(float64(totalBytes-freeBytes), float64(totalBytes))
	}

	return usage, nil
}

func (c *SystemCollector) cpuPercent(cur procfs.CPUStat) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	busy := func(s procfs.CPUStat) float64 {
		return s.User + s.Nice + s.System + s.IRQ + s.SoftIRQ + s.Steal
	}
	idle := func(s procfs.CPUStat) float64 { return s.Idle + s.Iowait }

	curBusy, curIdle := busy(cur), idle(cur)
	if c.prevCPU != nil {
		curBusy -= busy(*c.prevCPU)
		curIdle -= idle(*c.prevCPU)
	}
	c.prevCPU = &cur
	return percent(curBusy, curBusy+curIdle)
}

func percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	p := part / total * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
