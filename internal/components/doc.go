// Package components manages the GPIO components exposed to clients.
//
// A component is a named physical pin with a direction: "out" components can
// be toggled on and off, "in" components report a value read from the pin.
// The Registry caches all components in memory, keeps the cache in sync with
// the SQLite repository, and drives the actual hardware through a Driver.
//
// Hardware access is isolated behind the Driver interface so the rest of the
// system never touches sysfs directly and tests can run against an in-memory
// driver.
package components
