// Package arbiter is the single serialization point for outgoing motion
// commands: every command that reaches the actuator, the pose estimator,
// and the virtual robot passes through here first.
package arbiter

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/tankcore/internal/actuator"
	"github.com/relabs-tech/tankcore/internal/command"
)

// Result is the outcome of a single Dispatch call.
type Result int

const (
	Accepted Result = iota
	Rejected
)

func (r Result) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "rejected"
}

// Observer receives every command the arbiter accepts and sends to the
// actuator, in dispatch order. Used to fan out to the pose estimator and
// the virtual robot without coupling the arbiter to their concrete types.
type Observer interface {
	Observe(cmd command.Command)
}

// MotionSink receives the current_motion telemetry update on every accepted
// dispatch, coalesced or not.
type MotionSink interface {
	SetCurrentMotion(cmd command.Command)
}

const (
	// actuatorTimeout bounds a single actuator write.
	actuatorTimeout = 250 * time.Millisecond
	// preemptionWindow is how long a source is considered "active" for
	// priority-preemption purposes after its last accepted non-Stop
	// command.
	preemptionWindow = 600 * time.Millisecond
)

// Arbiter enforces emergency-stop lockout and source priority, and is the
// only writer to the actuator driver.
type Arbiter struct {
	driver actuator.Driver

	mu               sync.Mutex
	observers        []Observer
	motion           MotionSink
	emergencyLatched bool
	activeSource     command.Source
	activeUntil      time.Time
	lastSent         command.Command
	haveSent         bool
}

// New creates an Arbiter writing to driver and reporting current_motion to
// motion (may be nil).
func New(driver actuator.Driver, motion MotionSink) *Arbiter {
	return &Arbiter{driver: driver, motion: motion}
}

// AddObserver registers o to receive every accepted command, in order.
func (a *Arbiter) AddObserver(o Observer) {
	a.mu.Lock()
	a.observers = append(a.observers, o)
	a.mu.Unlock()
}

// EmergencyLatched reports whether the emergency-stop lockout is active.
func (a *Arbiter) EmergencyLatched() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emergencyLatched
}

// ClearEmergency releases the emergency-stop lockout. Only an explicit
// operator command may call this.
func (a *Arbiter) ClearEmergency() {
	a.mu.Lock()
	a.emergencyLatched = false
	a.activeSource = ""
	a.mu.Unlock()
}

// Dispatch attempts to send cmd from source through to the actuator.
// Exactly one command is dispatched per call.
func (a *Arbiter) Dispatch(cmd command.Command, source command.Source) (Result, string) {
	if !cmd.Valid() {
		return Rejected, fmt.Sprintf("invalid command %q", cmd)
	}

	now := time.Now()

	a.mu.Lock()
	if source == command.SourceEmergency {
		if cmd != command.Stop {
			a.mu.Unlock()
			return Rejected, "emergency source may only send Stop"
		}
		a.emergencyLatched = true
	} else if a.emergencyLatched {
		a.mu.Unlock()
		return Rejected, "emergency stop latched"
	} else if a.activeSource != "" && a.activeSource != source &&
		now.Before(a.activeUntil) && a.activeSource.Outranks(source) {
		a.mu.Unlock()
		return Rejected, fmt.Sprintf("preempted by higher-priority source %s", a.activeSource)
	}

	if cmd == command.Stop {
		a.activeSource = ""
	} else {
		a.activeSource = source
		a.activeUntil = now.Add(preemptionWindow)
	}

	observers := make([]Observer, len(a.observers))
	copy(observers, a.observers)
	motion := a.motion
	// The arbiter coalesces identical consecutive commands at the hardware
	// boundary: if the actuator is already holding this exact command, the
	// write is redundant and skipped. Pose/virtual-robot/telemetry fan-out
	// still runs on every accepted call below, so each dispatch still
	// yields exactly one pose transition regardless of coalescing.
	skipActuator := a.haveSent && a.lastSent == cmd
	a.mu.Unlock()

	if !skipActuator {
		if err := sendWithTimeout(a.driver, cmd, actuatorTimeout); err != nil {
			if err == errActuatorTimeout {
				log.Printf("arbiter: actuator write timed out (source=%s cmd=%s)", source, cmd)
				return Rejected, "actuator timeout"
			}
			log.Printf("arbiter: actuator write failed (source=%s cmd=%s): %v", source, cmd, err)
			// Fault is contained: pose and virtual robot still advance so the
			// operator can observe and correct any physical/virtual divergence.
			// lastSent/haveSent are left untouched so the next identical
			// command is attempted again instead of being coalesced away.
		} else {
			a.mu.Lock()
			a.lastSent = cmd
			a.haveSent = true
			a.mu.Unlock()
		}
	}

	for _, o := range observers {
		o.Observe(cmd)
	}
	if motion != nil {
		motion.SetCurrentMotion(cmd)
	}

	return Accepted, ""
}

var errActuatorTimeout = fmt.Errorf("actuator write timeout")

func sendWithTimeout(d actuator.Driver, cmd command.Command, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- d.Send(cmd)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errActuatorTimeout
	}
}
