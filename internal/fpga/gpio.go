package fpga

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SysfsDecoupler drives a PR decouple line through the legacy sysfs GPIO
// interface: export on first use, set direction out, honor active_low, then
// write values with a settle delay.
type SysfsDecoupler struct {
	Number    int
	ActiveLow bool
	Settle    time.Duration
	Base      string // defaults to /sys/class/gpio

	logger   *slog.Logger
	exported bool
}

// NewSysfsDecoupler creates a decoupler for GPIO number.
func NewSysfsDecoupler(number int, activeLow bool, settle time.Duration, logger *slog.Logger) *SysfsDecoupler {
	return &SysfsDecoupler{
		Number:    number,
		ActiveLow: activeLow,
		Settle:    settle,
		Base:      "/sys/class/gpio",
		logger:    logger.With("component", "decouple-gpio", "gpio", number),
	}
}

// Set asserts or releases the decouple line.
func (d *SysfsDecoupler) Set(asserted bool) error {
	if err := d.ensureExported(); err != nil {
		return err
	}

	level := 0
	if asserted {
		level = 1
	}
	value := filepath.Join(d.gpioDir(), "value")
	if err := os.WriteFile(value, []byte(strconv.Itoa(level)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", value, err)
	}
	d.logger.Debug("decouple line set", "asserted", asserted)
	if d.Settle > 0 {
		time.Sleep(d.Settle)
	}
	return nil
}

func (d *SysfsDecoupler) gpioDir() string {
	return filepath.Join(d.Base, fmt.Sprintf("gpio%d", d.Number))
}

func (d *SysfsDecoupler) ensureExported() error {
	if d.exported {
		return nil
	}
	dir := d.gpioDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		export := filepath.Join(d.Base, "export")
		if err := os.WriteFile(export, []byte(strconv.Itoa(d.Number)+"\n"), 0o644); err != nil {
			return fmt.Errorf("export gpio%d: %w", d.Number, err)
		}
		// The gpio directory appears asynchronously after export.
		for i := 0; i < 50; i++ {
			if _, err := os.Stat(dir); err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("gpio%d not available after export: %w", d.Number, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("out\n"), 0o644); err != nil {
		return fmt.Errorf("set gpio%d direction: %w", d.Number, err)
	}
	activeLow := "0\n"
	if d.ActiveLow {
		activeLow = "1\n"
	}
	// active_low is optional on some kernels; a failed write is not fatal.
	if err := os.WriteFile(filepath.Join(dir, "active_low"), []byte(activeLow), 0o644); err != nil {
		d.logger.Warn("active_low not applied", "error", err)
	}

	d.exported = true
	return nil
}
