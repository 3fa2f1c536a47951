package components

import "errors"

// Domain errors for the components package, checked with errors.Is().
var (
	// ErrComponentNotFound is returned when a component ID does not exist.
	ErrComponentNotFound = errors.New("components: not found")

	// ErrComponentExists is returned when creating a component with an ID
	// that already exists.
	ErrComponentExists = errors.New("components: already exists")

	// ErrPinInUse is returned when another component already claims the
	// requested physical pin.
	ErrPinInUse = errors.New("components: pin already in use")

	// ErrInvalidComponent is returned when component validation fails.
	ErrInvalidComponent = errors.New("components: invalid")

	// ErrInvalidDirection is returned when a direction is neither "in" nor "out".
	ErrInvalidDirection = errors.New("components: invalid direction")

	// ErrInvalidToggle is returned when a toggle targets an input component
	// or carries a status other than "on" or "off".
	ErrInvalidToggle = errors.New("components: invalid toggle request")

	// ErrHardware is returned when a pin operation fails or times out.
	ErrHardware = errors.New("components: hardware operation failed")
)
