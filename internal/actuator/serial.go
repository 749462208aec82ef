package actuator

import (
	"fmt"
	"io"
	"log"
	"sync"

	goserial "github.com/jacobsa/go-serial/serial"
	"github.com/relabs-tech/tankcore/internal/command"
)

// SerialOptions configures the serial link to an Arduino-class motor board.
type SerialOptions struct {
	PortName string
	BaudRate uint
}

// DefaultSerialOptions mirrors the original Arduino bridge's defaults.
func DefaultSerialOptions() SerialOptions {
	return SerialOptions{PortName: "/dev/ttyACM0", BaudRate: 9600}
}

// SerialDriver writes single ASCII command bytes ('F','B','L','R','S') to a
// serial-connected motor board, matching the wire protocol the original
// Arduino sketch expects.
type SerialDriver struct {
	opts SerialOptions

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewSerialDriver opens the serial port.
func NewSerialDriver(opts SerialOptions) (*SerialDriver, error) {
	d := &SerialDriver{opts: opts}
	if err := d.connect(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *SerialDriver) connect() error {
	port, err := goserial.Open(goserial.OpenOptions{
		PortName:              d.opts.PortName,
		BaudRate:              d.opts.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            goserial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("actuator: open serial port %s: %w", d.opts.PortName, err)
	}
	d.mu.Lock()
	d.port = port
	d.mu.Unlock()
	log.Printf("actuator: serial driver connected on %s at %d baud", d.opts.PortName, d.opts.BaudRate)
	return nil
}

// Send writes the single command byte to the serial port.
func (d *SerialDriver) Send(cmd command.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("actuator: unknown command %q", cmd)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return fmt.Errorf("actuator: serial port not connected")
	}
	_, err := d.port.Write([]byte(cmd))
	return err
}

// Reconnect closes and reopens the serial port, surfaced by the operator
// protocol's reconnect_actuator message.
func (d *SerialDriver) Reconnect() error {
	d.mu.Lock()
	if d.port != nil {
		d.port.Close()
		d.port = nil
	}
	d.mu.Unlock()
	return d.connect()
}

// Close releases the serial port.
func (d *SerialDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}
