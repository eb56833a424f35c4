// Package fpga holds the hardware-adjacent collaborators behind the engine
// plug-in boundary: bitstream staging into the firmware directory and the
// sysfs GPIO decouple line. The scheduler never talks to these directly.
package fpga

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FirmwareLoader stages a named image into the firmware directory and
// writes its filename to the fpga_manager control file, which triggers the
// reconfiguration request.
type FirmwareLoader struct {
	FirmwareDir string // typically /lib/firmware
	ControlPath string // typically /sys/class/fpga_manager/fpga0/firmware
	logger      *slog.Logger
}

// NewFirmwareLoader creates a loader staging into firmwareDir and requesting
// loads through controlPath.
func NewFirmwareLoader(firmwareDir, controlPath string, logger *slog.Logger) *FirmwareLoader {
	return &FirmwareLoader{
		FirmwareDir: firmwareDir,
		ControlPath: controlPath,
		logger:      logger.With("component", "firmware-loader"),
	}
}

// LoadImage stages ref into the firmware directory (when it is a path
// outside it) and writes its base name to the control file. The kernel
// resolves the name relative to the firmware search path.
func (l *FirmwareLoader) LoadImage(ref string) error {
	if ref == "" {
		return fmt.Errorf("empty image reference")
	}

	name := filepath.Base(ref)
	if filepath.Dir(ref) != "." {
		if err := l.stage(ref, filepath.Join(l.FirmwareDir, name)); err != nil {
			return fmt.Errorf("stage %s: %w", ref, err)
		}
	}

	f, err := os.OpenFile(l.ControlPath, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open fpga manager %s: %w", l.ControlPath, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, name); err != nil {
		return fmt.Errorf("request reconfiguration %s: %w", name, err)
	}
	l.logger.Info("reconfiguration requested", "image", name)
	return nil
}

func (l *FirmwareLoader) stage(src, dst string) error {
	if src == dst {
		// Already in place; only require that it exists.
		_, err := os.Stat(src)
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// MockLoader records load requests in memory. It stands in for the firmware
// plumbing in tests and on development hosts without an fpga_manager.
type MockLoader struct {
	mu     sync.Mutex
	loads  []string
	failOn map[string]error
}

// NewMockLoader creates an empty mock.
func NewMockLoader() *MockLoader {
	return &MockLoader{failOn: make(map[string]error)}
}

// FailOn makes subsequent loads of ref return err.
func (m *MockLoader) FailOn(ref string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[ref] = err
}

// LoadImage records the request.
func (m *MockLoader) LoadImage(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[ref]; err != nil {
		return err
	}
	m.loads = append(m.loads, ref)
	return nil
}

// Loads returns the successfully recorded references in request order.
func (m *MockLoader) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.loads))
	copy(out, m.loads)
	return out
}
