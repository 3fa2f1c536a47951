package components

import (
	"context"
	"fmt"
	"sync"
)

// Driver abstracts pin-level hardware access. Implementations must be safe
// for concurrent use; the registry may drive several pins at once.
type Driver interface {
	// Setup claims a pin and configures its direction. Output pins start low.
	Setup(ctx context.Context, pin int, dir Direction) error

	// Write drives an output pin high or low.
	Write(ctx context.Context, pin int, on bool) error

	// Read returns the current pin value, 0 or 1.
	Read(ctx context.Context, pin int) (int, error)

	// Release gives up a claimed pin. Releasing an unclaimed pin is not an error.
	Release(ctx context.Context, pin int) error
}

// MemoryDriver is an in-process Driver used in tests and on machines without
// GPIO hardware. Values written to output pins are readable back; input pins
// can be fed values with SetInput.
type MemoryDriver struct {
	mu   sync.Mutex
	pins map[int]*memPin
}

type memPin struct {
	dir   Direction
	value int
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{pins: make(map[int]*memPin)}
}

func (d *MemoryDriver) Setup(ctx context.Context, pin int, dir Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pins[pin] = &memPin{dir: dir}
	return nil
}

func (d *MemoryDriver) Write(ctx context.Context, pin int, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pins[pin]
	if !ok {
		return fmt.Errorf("%w: pin %d not claimed", ErrHardware, pin)
	}
	if p.dir != DirectionOut {
		return fmt.Errorf("%w: pin %d is not an output", ErrHardware, pin)
	}
	if on {
		p.value = 1
	} else {
		p.value = 0
	}
	return nil
}

func (d *MemoryDriver) Read(ctx context.Context, pin int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pins[pin]
	if !ok {
		return 0, fmt.Errorf("%w: pin %d not claimed", ErrHardware, pin)
	}
	return p.value, nil
}

func (d *MemoryDriver) Release(ctx context.Context, pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pins, pin)
	return nil
}

// SetInput feeds a value to a claimed input pin. Test helper.
func (d *MemoryDriver) SetInput(pin, value int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pins[pin]; ok {
		p.value = value
	}
}

// Claimed reports whether a pin is currently claimed.
func (d *MemoryDriver) Claimed(pin int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pins[pin]
	return ok
}
