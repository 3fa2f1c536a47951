package components

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction is the signal direction of a component's pin.
type Direction string

const (
	// DirectionIn marks a component whose pin value is read (sensors, switches).
	DirectionIn Direction = "in"

	// DirectionOut marks a component whose pin is driven (relays, LEDs).
	DirectionOut Direction = "out"
)

const maxNameLength = 100

// Component is a named GPIO pin as stored in the database.
type Component struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhysicalPin int       `json:"physicalPin"`
	Direction   Direction `json:"direction"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// State is the wire view of a component: its stored fields plus the live
// hardware reading. Exactly one of IsOn and Value is set, depending on the
// direction.
type State struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhysicalPin int       `json:"physicalPin"`
	Direction   Direction `json:"direction"`
	IsOn        *bool     `json:"isOn,omitempty"`
	Value       *int      `json:"curValue,omitempty"`
}

// Update carries a partial component change. Zero-valued fields keep the
// component's current value.
type Update struct {
	Name        string
	Description string
	PhysicalPin int
	Direction   Direction
}

// GenerateID returns a new component identifier.
func GenerateID() string {
	return "cmp-" + uuid.NewString()[:8]
}

// Validate checks a component's fields before persistence.
func Validate(c *Component) error {
	if c.Name == "" || len(c.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidComponent, maxNameLength)
	}
	if c.PhysicalPin <= 0 {
		return fmt.Errorf("%w: physical pin must be positive", ErrInvalidComponent)
	}
	if c.Direction != DirectionIn && c.Direction != DirectionOut {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, c.Direction)
	}
	return nil
}
