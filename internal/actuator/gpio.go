package actuator

import (
	"fmt"
	"log"

	"github.com/relabs-tech/tankcore/internal/command"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOPins names the four H-bridge control lines (L298N convention:
// motor A on in1/in2, motor B on in3/in4).
type GPIOPins struct {
	In1, In2, In3, In4 string
}

// DefaultGPIOPins mirrors the original controller's Jetson/RPi pin numbers.
func DefaultGPIOPins() GPIOPins {
	return GPIOPins{In1: "23", In2: "21", In3: "19", In4: "26"}
}

// GPIODriver drives the H-bridge directly via four GPIO output pins.
type GPIODriver struct {
	in1, in2, in3, in4 gpio.PinIO
}

// NewGPIODriver initializes the periph host and resolves the four pins.
func NewGPIODriver(pins GPIOPins) (*GPIODriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("actuator: periph host init: %w", err)
	}

	d := &GPIODriver{}
	var err error
	if d.in1, err = lookup(pins.In1); err != nil {
		return nil, err
	}
	if d.in2, err = lookup(pins.In2); err != nil {
		return nil, err
	}
	if d.in3, err = lookup(pins.In3); err != nil {
		return nil, err
	}
	if d.in4, err = lookup(pins.In4); err != nil {
		return nil, err
	}

	for _, p := range []gpio.PinIO{d.in1, d.in2, d.in3, d.in4} {
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("actuator: init pin %s low: %w", p, err)
		}
	}
	log.Println("actuator: GPIO driver initialized, motors stopped")
	return d, nil
}

func lookup(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("actuator: GPIO pin %q not found", name)
	}
	return p, nil
}

// Send sets all four pins low, then the combination for cmd.
func (d *GPIODriver) Send(cmd command.Command) error {
	for _, p := range []gpio.PinIO{d.in1, d.in2, d.in3, d.in4} {
		if err := p.Out(gpio.Low); err != nil {
			return fmt.Errorf("actuator: clear pins: %w", err)
		}
	}

	switch cmd {
	case command.Forward:
		return d.set(gpio.High, gpio.Low, gpio.High, gpio.Low)
	case command.Backward:
		return d.set(gpio.Low, gpio.High, gpio.Low, gpio.High)
	case command.Right:
		return d.set(gpio.High, gpio.Low, gpio.Low, gpio.High)
	case command.Left:
		return d.set(gpio.Low, gpio.High, gpio.High, gpio.Low)
	case command.Stop:
		return nil
	default:
		return fmt.Errorf("actuator: unknown command %q", cmd)
	}
}

func (d *GPIODriver) set(l1, l2, l3, l4 gpio.Level) error {
	if err := d.in1.Out(l1); err != nil {
		return err
	}
	if err := d.in2.Out(l2); err != nil {
		return err
	}
	if err := d.in3.Out(l3); err != nil {
		return err
	}
	return d.in4.Out(l4)
}

// Close stops all motors. GPIO pins are left in the library's ownership;
// periph has no explicit "release" primitive for board pins.
func (d *GPIODriver) Close() error {
	return d.Send(command.Stop)
}
