// Package hostmem samples host memory pressure from procfs.
package hostmem

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/mtgate/internal/proxy/domain"
	"github.com/prometheus/procfs"
)

// DefaultMountPoint is the standard procfs location.
const DefaultMountPoint = procfs.DefaultMountPoint

// Sampler reads /proc/meminfo.
type Sampler struct {
	mountPoint string
}

var _ domain.MemorySampler = (*Sampler)(nil)

// NewSampler creates a sampler rooted at mountPoint ("" uses /proc).
func NewSampler(mountPoint string) *Sampler {
	if mountPoint == "" {
		mountPoint = DefaultMountPoint
	}
	return &Sampler{mountPoint: mountPoint}
}

// UsedPercent returns (MemTotal - MemAvailable) / MemTotal rounded to the nearest percent.
// Kernels without MemAvailable fall back to MemFree + Buffers + Cached.
func (s *Sampler) UsedPercent(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fs, err := procfs.NewFS(s.mountPoint)
	if err != nil {
		return 0, fmt.Errorf("open procfs: %w", err)
	}
	info, err := fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("read meminfo: %w", err)
	}
	return usedPercent(info)
}

func usedPercent(info procfs.Meminfo) (int, error) {
	if info.MemTotal == nil || *info.MemTotal == 0 {
		return 0, errors.New("meminfo: MemTotal missing")
	}
	total := *info.MemTotal

	var available uint64
	switch {
	case info.MemAvailable != nil:
		available = *info.MemAvailable
	case info.MemFree != nil:
		available = *info.MemFree
		if info.Buffers != nil {
			available += *info.Buffers
		}
		if info.Cached != nil {
			available += *info.Cached
		}
	default:
		return 0, errors.New("meminfo: no availability counters")
	}
	if available > total {
		available = total
	}

	used := total - available
	return int((used*100 + total/2) / total), nil
}
