package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/lukakralj/GpioManager-Server/internal/auth"
	"github.com/lukakralj/GpioManager-Server/internal/components"
)

const (
	minUsernameLength = 5
	minPasswordLength = 5
)

// RegisterStop subscribes the "stop" command. The supplied function should
// begin the ordered shutdown; it runs at most once.
func (c *Console) RegisterStop(stop func()) {
	var stopped bool
	c.RegisterCommand("stop", func(context.Context, []string) error {
		if stopped {
			c.printf("Already stopping.\n")
			return nil
		}
		stopped = true
		c.printf("Stopping...\n")
		stop()
		return nil
	})
}

// RegisterComponentInspector subscribes the "components" command, which
// prints every registered component with its live state.
func (c *Console) RegisterComponentInspector(registry *components.Registry) {
	c.RegisterCommand("components", func(ctx context.Context, _ []string) error {
		states := registry.States(ctx)
		if len(states) == 0 {
			c.printf("No components registered.\n")
			return nil
		}
		for _, s := range states {
			reading := "?"
			switch {
			case s.IsOn != nil && *s.IsOn:
				reading = "on"
			case s.IsOn != nil:
				reading = "off"
			case s.Value != nil:
				reading = fmt.Sprintf("%d", *s.Value)
			}
			c.printf("  %-10s pin %-3d %-3s %-10s %s\n", s.ID, s.PhysicalPin, s.Direction, reading, s.Name)
		}
		return nil
	})
}

// RegisterTokenInspector subscribes the "tokens" command, which prints the
// number of live sessions.
func (c *Console) RegisterTokenInspector(tokens *auth.TokenStore) {
	c.RegisterCommand("tokens", func(context.Context, []string) error {
		c.printf("Active sessions: %d\n", tokens.Count())
		return nil
	})
}

// RegisterUserSetup subscribes the "adduser" command:
//
//	adduser <username> <password> <password-again>
func (c *Console) RegisterUserSetup(users auth.UserRepository) {
	c.RegisterCommand("adduser", func(ctx context.Context, params []string) error {
		if len(params) != 3 {
			c.printf("Usage: adduser <username> <password> <password-again>\n")
			return nil
		}
		username := strings.TrimSpace(params[0])
		password, passwordAgain := params[1], params[2]

		if len(username) < minUsernameLength {
			c.printf("Username is too short.\n")
			return nil
		}
		if !auth.IsValidUsername(username) {
			c.printf("Username may contain letters, numbers, dots, hyphens and underscores.\n")
			return nil
		}
		if len(password) < minPasswordLength {
			c.printf("Password is too short.\n")
			return nil
		}
		if password != passwordAgain {
			c.printf("Passwords must match.\n")
			return nil
		}
		if _, err := users.GetByUsername(ctx, username); err == nil {
			c.printf("Username already exists.\n")
			return nil
		}

		cred, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		user := &auth.User{
			Username:     username,
			PasswordHash: cred.Hash,
			Salt:         cred.Salt,
			Iterations:   cred.Iterations,
		}
		if err := users.Create(ctx, user); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		c.printf("New user successfully created.\n")
		return nil
	})
}
