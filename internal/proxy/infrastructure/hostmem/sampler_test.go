package hostmem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMeminfo(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meminfo"), []byte(content), 0o644))
	return dir
}

func TestSampler_UsedPercent(t *testing.T) {
	dir := writeMeminfo(t, `MemTotal:        1000000 kB
MemFree:          100000 kB
MemAvailable:     250000 kB
Buffers:           20000 kB
Cached:           120000 kB
`)
	usage, err := NewSampler(dir).UsedPercent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 75, usage)
}

func TestSampler_MissingFile(t *testing.T) {
	_, err := NewSampler(t.TempDir()).UsedPercent(context.Background())
	require.Error(t, err)
}

func TestSampler_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSampler("").UsedPercent(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func u64(v uint64) *uint64 { return &v }

func TestUsedPercent(t *testing.T) {
	tests := []struct {
		name    string
		info    procfs.Meminfo
		want    int
		wantErr bool
	}{
		{
			name: "available",
			info: procfs.Meminfo{MemTotal: u64(1000), MemAvailable: u64(100)},
			want: 90,
		},
		{
			name: "rounds to nearest",
			info: procfs.Meminfo{MemTotal: u64(1000), MemAvailable: u64(196)},
			want: 80,
		},
		{
			name: "legacy kernel fallback",
			info: procfs.Meminfo{MemTotal: u64(1000), MemFree: u64(200), Buffers: u64(50), Cached: u64(150)},
			want: 60,
		},
		{
			name: "available above total",
			info: procfs.Meminfo{MemTotal: u64(1000), MemAvailable: u64(2000)},
			want: 0,
		},
		{
			name:    "no total",
			info:    procfs.Meminfo{MemAvailable: u64(10)},
			wantErr: true,
		},
		{
			name:    "no counters",
			info:    procfs.Meminfo{MemTotal: u64(1000)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := usedPercent(tt.info)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
