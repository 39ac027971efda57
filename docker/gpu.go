package docker

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/geoengine/geoengine/engine"
)

// GPUProbe detects NVIDIA GPUs via nvidia-smi. It implements
// engine.GPUProbe and never fails hard: detection problems mean no devices.
type GPUProbe struct{}

// Detect queries nvidia-smi for device names. A missing binary or failed
// query yields an empty device list, not an error.
func (GPUProbe) Detect(ctx context.Context) (engine.GPUInfo, error) {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return engine.GPUInfo{}, nil
	}

	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return engine.GPUInfo{}, nil
	}

	var devices []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			devices = append(devices, line)
		}
	}

	if len(devices) > 0 && !toolkitPresent() {
		slog.Warn("NVIDIA Container Toolkit not detected; GPU passthrough may not work")
	}

	return engine.GPUInfo{Devices: devices}, nil
}

// toolkitPresent checks for the NVIDIA container toolkit binaries.
func toolkitPresent() bool {
	if _, err := exec.LookPath("nvidia-container-cli"); err == nil {
		return true
	}
	_, err := exec.LookPath("nvidia-docker")
	return err == nil
}
