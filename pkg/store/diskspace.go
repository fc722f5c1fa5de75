package store

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/disk"
)

// checkFreeSpace verifies the filesystem holding path has at least
// minimumFreeGB gigabytes free. The directory is created if missing so the
// usage query has something to stat.
func checkFreeSpace(path string, minimumFreeGB uint, log *slog.Logger) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("store: creating data directory %s: %w", path, err)
	}
	if minimumFreeGB == 0 {
		return nil
	}

	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("store: reading disk usage for %s: %w", path, err)
	}

	log.Info("disk usage",
		"path", path,
		"total", humanize.IBytes(usage.Total),
		"free", humanize.IBytes(usage.Free),
		"used_percent", fmt.Sprintf("%.1f", usage.UsedPercent),
	)

	required := uint64(minimumFreeGB) * 1024 * 1024 * 1024
	if usage.Free < required {
		return fmt.Errorf("store: %s has %s free, need at least %s",
			path, humanize.IBytes(usage.Free), humanize.IBytes(required))
	}
	return nil
}
