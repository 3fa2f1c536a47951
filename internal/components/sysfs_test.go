package components

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// fakeSysfs lays out a sysfs-like tree in a temp directory. Unlike the real
// kernel interface the pin directories must exist up front, so the helper
// pre-creates them.
func fakeSysfs(t *testing.T, pins ...int) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"export", "unexport"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0o644); err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
	}
	for _, pin := range pins {
		dir := filepath.Join(root, "gpio"+strconv.Itoa(pin))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("creating pin dir: %v", err)
		}
		for _, name := range []string{"direction", "value"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("0"), 0o644); err != nil {
				t.Fatalf("creating pin file: %v", err)
			}
		}
	}
	return root
}

func TestSysfsSetupAndWrite(t *testing.T) {
	root := fakeSysfs(t, 24)
	driver := NewSysfsDriver(root)
	ctx := context.Background()

	if err := driver.Setup(ctx, 24, DirectionOut); err != nil {
		t.Fatalf("setup: %v", err)
	}

	dir, err := os.ReadFile(filepath.Join(root, "gpio24", "direction"))
	if err != nil {
		t.Fatalf("reading direction: %v", err)
	}
	if string(dir) != "out" {
		t.Errorf("direction = %q, want %q", dir, "out")
	}

	// Output pins start low.
	if v, err := driver.Read(ctx, 24); err != nil || v != 0 {
		t.Errorf("initial value = %d (err %v), want 0", v, err)
	}

	if err := driver.Write(ctx, 24, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	if v, err := driver.Read(ctx, 24); err != nil || v != 1 {
		t.Errorf("value after write = %d (err %v), want 1", v, err)
	}
}

func TestSysfsReadTrimsWhitespace(t *testing.T) {
	root := fakeSysfs(t, 24)
	driver := NewSysfsDriver(root)

	// The kernel appends a newline to value reads.
	if err := os.WriteFile(filepath.Join(root, "gpio24", "value"), []byte("1\n"), 0o644); err != nil {
		t.Fatalf("writing value: %v", err)
	}
	if v, err := driver.Read(context.Background(), 24); err != nil || v != 1 {
		t.Errorf("Read = %d (err %v), want 1", v, err)
	}
}

func TestSysfsReadUnclaimedPin(t *testing.T) {
	driver := NewSysfsDriver(fakeSysfs(t))

	if _, err := driver.Read(context.Background(), 99); !errors.Is(err, ErrHardware) {
		t.Errorf("Read error = %v, want %v", err, ErrHardware)
	}
}

func TestSysfsReleaseMissingPin(t *testing.T) {
	driver := NewSysfsDriver(fakeSysfs(t))

	// Releasing a pin that was never exported must not fail.
	if err := driver.Release(context.Background(), 99); err != nil {
		t.Errorf("Release = %v, want nil", err)
	}
}

func TestSysfsHonoursContext(t *testing.T) {
	driver := NewSysfsDriver(fakeSysfs(t, 24))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := driver.Setup(ctx, 24, DirectionOut); !errors.Is(err, context.Canceled) {
		t.Errorf("Setup with cancelled context: error = %v, want %v", err, context.Canceled)
	}
}
