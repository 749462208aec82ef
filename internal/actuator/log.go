package actuator

import (
	"log"

	"github.com/relabs-tech/tankcore/internal/command"
)

// LogDriver simulates the actuator by logging every command instead of
// touching hardware. Used when control_mode=log, e.g. in tests or when no
// motor board is attached.
type LogDriver struct{}

// NewLogDriver returns a driver that only logs.
func NewLogDriver() *LogDriver {
	return &LogDriver{}
}

func (d *LogDriver) Send(cmd command.Command) error {
	log.Printf("actuator: (simulated) command %s", cmd)
	return nil
}

func (d *LogDriver) Close() error {
	return nil
}
