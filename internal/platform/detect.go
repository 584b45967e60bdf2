package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect performs platform detection and returns platform information.
//
// The OS comes from gopsutil's host info when available and falls back to
// runtime.GOOS. Distribution details are best effort: when gopsutil cannot
// read them the fields stay empty and detection still succeeds.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:   runtime.GOOS,
		Arch: normalizeArch(runtime.GOARCH),
	}

	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	if osName := normalizePlatform(hostInfo.OS); osName != "" {
		info.OS = osName
	}

	if info.IsLinux() {
		platform := normalizePlatform(hostInfo.Platform)
		if platform != "" {
			info.Platform = platform
			info.Family = mapFamily(hostInfo.PlatformFamily)
			info.Version = normalizePlatform(hostInfo.PlatformVersion)
		}
	} else {
		info.Version = normalizePlatform(hostInfo.PlatformVersion)
	}

	return info, nil
}
