package components

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// SysfsDriver drives pins through the Linux sysfs GPIO interface. Each pin
// maps to a directory under the GPIO root, /sys/class/gpio on real hardware.
// The root is configurable so tests can point it at a temp directory.
type SysfsDriver struct {
	root string
}

// NewSysfsDriver creates a sysfs driver rooted at the given path.
func NewSysfsDriver(root string) *SysfsDriver {
	return &SysfsDriver{root: root}
}

func (d *SysfsDriver) pinDir(pin int) string {
	return filepath.Join(d.root, "gpio"+strconv.Itoa(pin))
}

// Setup exports the pin and sets its direction. An already-exported pin is
// reused rather than treated as an error, so a crashed run's leftover exports
// do not block startup.
func (d *SysfsDriver) Setup(ctx context.Context, pin int, dir Direction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exportPath := filepath.Join(d.root, "export")
	if err := os.WriteFile(exportPath, []byte(strconv.Itoa(pin)), 0o644); err != nil {
		if !errors.Is(err, syscall.EBUSY) {
			return fmt.Errorf("%w: exporting pin %d: %v", ErrHardware, pin, err)
		}
	}

	// The kernel creates the pin directory asynchronously and udev may still
	// be fixing permissions, so the direction write is retried briefly.
	directionPath := filepath.Join(d.pinDir(pin), "direction")
	var lastErr error
	for i := 0; i < 10; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = os.WriteFile(directionPath, []byte(dir), 0o644)
		if lastErr == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if lastErr != nil {
		return fmt.Errorf("%w: setting direction of pin %d: %v", ErrHardware, pin, lastErr)
	}

	if dir == DirectionOut {
		if err := d.Write(ctx, pin, false); err != nil {
			return err
		}
	}
	return nil
}

func (d *SysfsDriver) Write(ctx context.Context, pin int, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := "0"
	if on {
		value = "1"
	}
	valuePath := filepath.Join(d.pinDir(pin), "value")
	if err := os.WriteFile(valuePath, []byte(value), 0o644); err != nil {
		return fmt.Errorf("%w: writing pin %d: %v", ErrHardware, pin, err)
	}
	return nil
}

func (d *SysfsDriver) Read(ctx context.Context, pin int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(filepath.Join(d.pinDir(pin), "value"))
	if err != nil {
		return 0, fmt.Errorf("%w: reading pin %d: %v", ErrHardware, pin, err)
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("%w: pin %d reported %q", ErrHardware, pin, raw)
	}
	return value, nil
}

func (d *SysfsDriver) Release(ctx context.Context, pin int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(d.pinDir(pin)); os.IsNotExist(err) {
		return nil
	}
	unexportPath := filepath.Join(d.root, "unexport")
	if err := os.WriteFile(unexportPath, []byte(strconv.Itoa(pin)), 0o644); err != nil {
		return fmt.Errorf("%w: unexporting pin %d: %v", ErrHardware, pin, err)
	}
	return nil
}
