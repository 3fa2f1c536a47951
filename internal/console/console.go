// Package console provides an interactive stdin command loop for operating
// the server process. Shutdown goes through the console rather than a bare
// signal so that in-flight persistence can drain first.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/logging"
)

// Action handles a console command. It receives any parameters that
// followed the command word on the input line.
type Action func(ctx context.Context, params []string) error

// Console reads commands from an input stream and dispatches them to
// registered actions.
//
// Several actions may be registered under the same command name; a matching
// line runs all of them in registration order. Registering does not
// override.
type Console struct {
	in     io.Reader
	out    io.Writer
	prompt string
	logger *logging.Logger

	mu       sync.Mutex
	commands map[string][]Action
}

// New creates a console reading from in and writing to out.
func New(in io.Reader, out io.Writer, logger *logging.Logger) *Console {
	c := &Console{
		in:       in,
		out:      out,
		prompt:   "stdin@gpiomanager >> ",
		logger:   logger,
		commands: make(map[string][]Action),
	}
	c.RegisterCommand("help", c.printHelp)
	return c
}

// RegisterCommand subscribes an action to a command name.
func (c *Console) RegisterCommand(name string, action Action) {
	name = strings.TrimSpace(name)
	if name == "" || action == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands[name] = append(c.commands[name], action)
}

// Run reads lines until ctx is cancelled or the input stream ends.
func (c *Console) Run(ctx context.Context) error {
	c.printf("====Hello!====\n")
	c.printf("Communicate with the server via this console.\n")
	c.printf("Type 'help' for available commands, 'stop' to shut down.\n")
	c.printf("==============\n")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.printf("%s", c.prompt)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			c.processLine(ctx, line)
			c.printf("%s", c.prompt)
		}
	}
}

func (c *Console) processLine(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	fields := strings.Fields(line)
	name, params := fields[0], fields[1:]

	c.mu.Lock()
	actions := append([]Action(nil), c.commands[name]...)
	c.mu.Unlock()

	if len(actions) == 0 {
		c.printf("Invalid command. Type 'help' for available commands.\n")
		return
	}
	for _, action := range actions {
		if err := action(ctx, params); err != nil {
			c.printf("%s: %v\n", name, err)
			if c.logger != nil {
				c.logger.Error("console command failed", "command", name, "error", err)
			}
		}
	}
}

func (c *Console) printHelp(context.Context, []string) error {
	c.mu.Lock()
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	c.mu.Unlock()
	sort.Strings(names)

	c.printf("Valid commands are:\n")
	c.printf("  %s\n", strings.Join(names, ", "))
	return nil
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
