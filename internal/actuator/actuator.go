// Package actuator drives the physical motion commands out to hardware.
// Three interchangeable drivers are provided: direct GPIO (L298N-style
// H-bridge), serial (an Arduino-class motor board), and a logging
// simulation driver used when no hardware is attached.
package actuator

import "github.com/relabs-tech/tankcore/internal/command"

// Driver is an opaque sink accepting one of the five discrete commands.
// Implementations must be idempotent (sending the same command twice has
// the same effect as once) and bounded in latency.
type Driver interface {
	Send(cmd command.Command) error
	Close() error
}
