package components

import (
	"context"
	"time"
)

// Telemetry receives input component readings for long-term storage.
// Implementations must not block; the poller calls this on its own goroutine
// once per changed value.
type Telemetry interface {
	WriteComponentValue(id string, pin, value int)
}

// Poller samples every input component on a fixed interval and invokes the
// change callback whenever any value differs from the previous sample. The
// socket layer uses the callback to broadcast to subscribed clients.
type Poller struct {
	registry  *Registry
	interval  time.Duration
	onChange  func()
	telemetry Telemetry
	logger    Logger

	prev map[string]int
}

// NewPoller creates a poller over the registry's input components. onChange
// fires after any sampled value changes; telemetry may be nil.
func NewPoller(registry *Registry, interval time.Duration, onChange func(), telemetry Telemetry) *Poller {
	return &Poller{
		registry:  registry,
		interval:  interval,
		onChange:  onChange,
		telemetry: telemetry,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.logger = logger
}

// Run samples until ctx is cancelled. It blocks, so callers run it on its
// own goroutine.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("input poller started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("input poller stopped")
			return
		case <-ticker.C:
			p.sample(ctx)
		}
	}
}

func (p *Poller) sample(ctx context.Context) {
	values := p.registry.InputValues(ctx)

	changed := false
	for id, value := range values {
		old, seen := p.prev[id]
		if !seen || old != value {
			changed = true
			if p.telemetry != nil {
				if c, err := p.registry.Get(id); err == nil {
					p.telemetry.WriteComponentValue(id, c.PhysicalPin, value)
				}
			}
		}
	}
	// A removed input counts as a change too.
	if len(values) != len(p.prev) {
		changed = true
	}
	p.prev = values

	if changed && p.onChange != nil {
		p.logger.Debug("input values changed", "count", len(values))
		p.onChange()
	}
}
