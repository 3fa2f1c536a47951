package components

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry manages components: an in-memory cache over the Repository plus
// hardware access through the Driver. Every hardware call runs under a
// deadline so a wedged pin cannot stall a client request.
//
// All public methods are safe for concurrent use.
type Registry struct {
	repo      Repository
	driver    Driver
	hwTimeout time.Duration

	mu    sync.RWMutex
	cache map[string]*Component

	logger Logger
}

// NewRegistry creates a component registry. hwTimeout bounds every driver
// call made on behalf of a request.
func NewRegistry(repo Repository, driver Driver, hwTimeout time.Duration) *Registry {
	return &Registry{
		repo:      repo,
		driver:    driver,
		hwTimeout: hwTimeout,
		cache:     make(map[string]*Component),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

func (r *Registry) hwCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.hwTimeout)
}

// LoadComponents populates the cache from the repository and claims every
// pin. A component whose pin cannot be claimed stays visible but its
// hardware operations will fail until the pin recovers; startup never aborts
// over a single bad pin.
func (r *Registry) LoadComponents(ctx context.Context) error {
	list, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading components: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]*Component, len(list))
	for i := range list {
		c := list[i]
		r.cache[c.ID] = &c

		hctx, cancel := r.hwCtx(ctx)
		err := r.driver.Setup(hctx, c.PhysicalPin, c.Direction)
		cancel()
		if err != nil {
			r.logger.Warn("component pin not initialised", "id", c.ID, "name", c.Name, "pin", c.PhysicalPin, "error", err)
		}
	}

	r.logger.Info("components loaded", "count", len(list))
	return nil
}

// Get retrieves a component by ID from the cache.
func (r *Registry) Get(id string) (*Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cache[id]
	if !ok {
		return nil, ErrComponentNotFound
	}
	copied := *c
	return &copied, nil
}

// Count returns the number of cached components.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// States returns every component with its live hardware reading, ordered by
// name. A component whose pin cannot be read is returned without a reading
// rather than failing the whole listing.
func (r *Registry) States(ctx context.Context) []State {
	r.mu.RLock()
	list := make([]*Component, 0, len(r.cache))
	for _, c := range r.cache {
		copied := *c
		list = append(list, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	states := make([]State, 0, len(list))
	for _, c := range list {
		s := State{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			PhysicalPin: c.PhysicalPin,
			Direction:   c.Direction,
		}

		hctx, cancel := r.hwCtx(ctx)
		value, err := r.driver.Read(hctx, c.PhysicalPin)
		cancel()
		if err != nil {
			r.logger.Warn("component read failed", "id", c.ID, "pin", c.PhysicalPin, "error", err)
		} else if c.Direction == DirectionOut {
			on := value == 1
			s.IsOn = &on
		} else {
			v := value
			s.Value = &v
		}
		states = append(states, s)
	}
	return states
}

// InputValues reads every input component's pin and returns a map of
// component ID to value. Unreadable pins are skipped.
func (r *Registry) InputValues(ctx context.Context) map[string]int {
	r.mu.RLock()
	inputs := make([]*Component, 0, len(r.cache))
	for _, c := range r.cache {
		if c.Direction == DirectionIn {
			copied := *c
			inputs = append(inputs, &copied)
		}
	}
	r.mu.RUnlock()

	values := make(map[string]int, len(inputs))
	for _, c := range inputs {
		hctx, cancel := r.hwCtx(ctx)
		value, err := r.driver.Read(hctx, c.PhysicalPin)
		cancel()
		if err != nil {
			r.logger.Warn("input read failed", "id", c.ID, "pin", c.PhysicalPin, "error", err)
			continue
		}
		values[c.ID] = value
	}
	return values
}

// Toggle drives an output component on or off. status must be "on" or "off".
func (r *Registry) Toggle(ctx context.Context, id, status string) error {
	if status != "on" && status != "off" {
		return fmt.Errorf("%w: status %q", ErrInvalidToggle, status)
	}

	r.mu.RLock()
	c, ok := r.cache[id]
	r.mu.RUnlock()
	if !ok {
		return ErrComponentNotFound
	}
	if c.Direction != DirectionOut {
		return fmt.Errorf("%w: component %s is an input", ErrInvalidToggle, id)
	}

	hctx, cancel := r.hwCtx(ctx)
	defer cancel()
	if err := r.driver.Write(hctx, c.PhysicalPin, status == "on"); err != nil {
		return fmt.Errorf("toggling component %s: %w", id, err)
	}

	r.logger.Debug("component toggled", "id", id, "status", status)
	return nil
}

// Add validates and persists a new component, claims its pin and caches it.
// Returns the assigned ID.
func (r *Registry) Add(ctx context.Context, c *Component) (string, error) {
	if c.ID == "" {
		c.ID = GenerateID()
	}
	if err := Validate(c); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.cache {
		if existing.PhysicalPin == c.PhysicalPin {
			return "", ErrPinInUse
		}
	}

	if err := r.repo.Create(ctx, c); err != nil {
		return "", err
	}

	copied := *c
	r.cache[c.ID] = &copied

	hctx, cancel := r.hwCtx(ctx)
	err := r.driver.Setup(hctx, c.PhysicalPin, c.Direction)
	cancel()
	if err != nil {
		r.logger.Warn("component pin not initialised", "id", c.ID, "name", c.Name, "pin", c.PhysicalPin, "error", err)
	}

	r.logger.Info("component added", "id", c.ID, "name", c.Name, "pin", c.PhysicalPin)
	return c.ID, nil
}

// ApplyUpdate merges an update into a component and persists it. Empty
// fields in upd keep the current value. A pin or direction change releases
// the old pin and claims the new one, turning output pins off first.
func (r *Registry) ApplyUpdate(ctx context.Context, id string, upd Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.cache[id]
	if !ok {
		return ErrComponentNotFound
	}

	next := *current
	if upd.Name != "" {
		next.Name = upd.Name
	}
	if upd.Description != "" {
		next.Description = upd.Description
	}
	if upd.PhysicalPin != 0 {
		next.PhysicalPin = upd.PhysicalPin
	}
	if upd.Direction != "" {
		next.Direction = upd.Direction
	}
	if err := Validate(&next); err != nil {
		return err
	}

	if next.PhysicalPin != current.PhysicalPin {
		for _, existing := range r.cache {
			if existing.ID != id && existing.PhysicalPin == next.PhysicalPin {
				return ErrPinInUse
			}
		}
	}

	if next.PhysicalPin != current.PhysicalPin || next.Direction != current.Direction {
		if err := r.remapPin(ctx, current, &next); err != nil {
			return err
		}
	}

	if err := r.repo.Update(ctx, &next); err != nil {
		return err
	}

	r.cache[id] = &next
	r.logger.Info("component updated", "id", id, "name", next.Name, "pin", next.PhysicalPin)
	return nil
}

// remapPin moves a component to a new pin or direction. Callers hold r.mu.
func (r *Registry) remapPin(ctx context.Context, current, next *Component) error {
	if current.Direction == DirectionOut {
		hctx, cancel := r.hwCtx(ctx)
		if err := r.driver.Write(hctx, current.PhysicalPin, false); err != nil {
			r.logger.Warn("could not turn off pin before remap", "id", current.ID, "pin", current.PhysicalPin, "error", err)
		}
		cancel()
	}

	hctx, cancel := r.hwCtx(ctx)
	err := r.driver.Release(hctx, current.PhysicalPin)
	cancel()
	if err != nil {
		return fmt.Errorf("releasing pin %d: %w", current.PhysicalPin, err)
	}

	hctx, cancel = r.hwCtx(ctx)
	err = r.driver.Setup(hctx, next.PhysicalPin, next.Direction)
	cancel()
	if err != nil {
		return fmt.Errorf("claiming pin %d: %w", next.PhysicalPin, err)
	}
	return nil
}

// Remove turns off and releases a component's pin, then deletes it.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cache[id]
	if !ok {
		return ErrComponentNotFound
	}

	if c.Direction == DirectionOut {
		hctx, cancel := r.hwCtx(ctx)
		if err := r.driver.Write(hctx, c.PhysicalPin, false); err != nil {
			r.logger.Warn("could not turn off pin before removal", "id", id, "pin", c.PhysicalPin, "error", err)
		}
		cancel()
	}

	hctx, cancel := r.hwCtx(ctx)
	err := r.driver.Release(hctx, c.PhysicalPin)
	cancel()
	if err != nil {
		r.logger.Warn("could not release pin", "id", id, "pin", c.PhysicalPin, "error", err)
	}

	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	delete(r.cache, id)
	r.logger.Info("component removed", "id", id)
	return nil
}

// Shutdown turns off all output pins and releases every claimed pin. Called
// once during server shutdown.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.cache {
		if c.Direction == DirectionOut {
			hctx, cancel := r.hwCtx(ctx)
			if err := r.driver.Write(hctx, c.PhysicalPin, false); err != nil {
				r.logger.Warn("could not turn off pin", "id", c.ID, "pin", c.PhysicalPin, "error", err)
			}
			cancel()
		}

		hctx, cancel := r.hwCtx(ctx)
		if err := r.driver.Release(hctx, c.PhysicalPin); err != nil {
			r.logger.Warn("could not release pin", "id", c.ID, "pin", c.PhysicalPin, "error", err)
		}
		cancel()
	}
}
