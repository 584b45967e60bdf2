package platform

import (
	"context"
	"runtime"
	"testing"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
)

func TestRealDetector_Detect(t *testing.T) {
	detector := NewDetector()

	info, err := detector.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}

	if info.Arch == "" {
		t.Error("Arch should not be empty")
	}

	if runtime.GOOS == "linux" && info.Platform != "" && info.Family == "" {
		t.Error("If Platform is set, Family should also be set")
	}

	want := artifact.OperatingSystemFromGOOS(runtime.GOOS)
	if got := info.OperatingSystem(); got != want {
		t.Errorf("OperatingSystem() = %s, want %s", got, want)
	}
}

func TestRealDetector_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// gopsutil may answer from cache before noticing cancellation; either a
	// cancellation error or a complete result is acceptable, never a partial one.
	info, err := NewDetector().Detect(ctx)
	if err != nil {
		return
	}
	if info.OS == "" {
		t.Error("expected OS to be populated when no error is returned")
	}
}

func TestStaticDetector(t *testing.T) {
	d := StaticDetector{Info: Info{OS: "windows", Arch: "amd64"}}

	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OperatingSystem() != artifact.OSWindows {
		t.Errorf("OperatingSystem() = %s, want windows", info.OperatingSystem())
	}

	info.OS = "linux"
	again, _ := d.Detect(context.Background())
	if again.OS != "windows" {
		t.Error("StaticDetector must return a fresh copy on every call")
	}
}

func TestInfoOperatingSystem(t *testing.T) {
	tests := []struct {
		os   string
		want artifact.OperatingSystem
	}{
		{"linux", artifact.OSUnix},
		{"darwin", artifact.OSMac},
		{"windows", artifact.OSWindows},
		{"plan9", artifact.OSUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.os, func(t *testing.T) {
			info := &Info{OS: tt.os}
			if got := info.OperatingSystem(); got != tt.want {
				t.Errorf("OperatingSystem() = %s, want %s", got, tt.want)
			}
		})
	}

	var nilInfo *Info
	if nilInfo.OperatingSystem() != artifact.OSUnknown {
		t.Error("nil Info should map to OSUnknown")
	}
}
