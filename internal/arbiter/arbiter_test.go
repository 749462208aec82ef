package arbiter

import (
	"fmt"
	"testing"

	"github.com/relabs-tech/tankcore/internal/command"
)

type fakeDriver struct {
	sent []command.Command
}

func (f *fakeDriver) Send(cmd command.Command) error {
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeDriver) Close() error { return nil }

// failNDriver fails the first n Send calls, then succeeds.
type failNDriver struct {
	fail int
	sent []command.Command
}

func (f *failNDriver) Send(cmd command.Command) error {
	if f.fail > 0 {
		f.fail--
		return fmt.Errorf("simulated actuator fault")
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *failNDriver) Close() error { return nil }

type countingObserver struct {
	n int
}

func (o *countingObserver) Observe(command.Command) { o.n++ }

func TestDispatchAcceptsAndFansOut(t *testing.T) {
	driver := &fakeDriver{}
	obs := &countingObserver{}
	a := New(driver, nil)
	a.AddObserver(obs)

	result, reason := a.Dispatch(command.Forward, command.SourceJoystick)
	if result != Accepted {
		t.Fatalf("Dispatch() = %v (%s), want Accepted", result, reason)
	}
	if obs.n != 1 {
		t.Fatalf("observer fired %d times, want 1", obs.n)
	}
	if len(driver.sent) != 1 || driver.sent[0] != command.Forward {
		t.Fatalf("driver.sent = %v, want [F]", driver.sent)
	}
}

func TestDispatchCoalescesRepeatedActuatorWrite(t *testing.T) {
	driver := &fakeDriver{}
	obs := &countingObserver{}
	a := New(driver, nil)
	a.AddObserver(obs)

	a.Dispatch(command.Forward, command.SourceJoystick)
	a.Dispatch(command.Forward, command.SourceJoystick)

	if obs.n != 2 {
		t.Fatalf("observer fired %d times, want 2 (pose still advances on each accepted dispatch)", obs.n)
	}
	if len(driver.sent) != 1 {
		t.Fatalf("driver.sent = %v, want exactly one write (second F coalesced)", driver.sent)
	}
}

func TestDispatchRetriesAfterFailedActuatorWriteInsteadOfCoalescing(t *testing.T) {
	driver := &failNDriver{fail: 1}
	a := New(driver, nil)

	// First write fails: the fault is contained (Accepted), but the
	// actuator never confirmed delivery.
	result, _ := a.Dispatch(command.Forward, command.SourceJoystick)
	if result != Accepted {
		t.Fatalf("Dispatch() after failed actuator write = %v, want Accepted", result)
	}
	if len(driver.sent) != 0 {
		t.Fatalf("driver.sent = %v, want none (write failed)", driver.sent)
	}

	// Second, identical command must be attempted again, not coalesced
	// away, since the first write never actually reached the actuator.
	result, _ = a.Dispatch(command.Forward, command.SourceJoystick)
	if result != Accepted {
		t.Fatalf("Dispatch() = %v, want Accepted", result)
	}
	if len(driver.sent) != 1 || driver.sent[0] != command.Forward {
		t.Fatalf("driver.sent = %v, want [F] (retried after the earlier failure)", driver.sent)
	}
}

func TestEmergencyLatchRejectsAllButEmergencyStop(t *testing.T) {
	driver := &fakeDriver{}
	a := New(driver, nil)

	if result, _ := a.Dispatch(command.Stop, command.SourceEmergency); result != Accepted {
		t.Fatalf("emergency Stop rejected, want Accepted")
	}
	if !a.EmergencyLatched() {
		t.Fatalf("latch not set after emergency Stop")
	}

	result, _ := a.Dispatch(command.Forward, command.SourceJoystick)
	if result != Rejected {
		t.Fatalf("joystick command accepted while latched, want Rejected")
	}

	a.ClearEmergency()
	result, _ = a.Dispatch(command.Forward, command.SourceJoystick)
	if result != Accepted {
		t.Fatalf("joystick command rejected after latch cleared, want Accepted")
	}
}

func TestHigherPrioritySourcePreemptsLower(t *testing.T) {
	driver := &fakeDriver{}
	a := New(driver, nil)

	if result, _ := a.Dispatch(command.Left, command.SourceAutoNav); result != Accepted {
		t.Fatalf("auto_nav dispatch rejected, want Accepted")
	}

	result, reason := a.Dispatch(command.Left, command.SourceMapPlanner)
	if result != Accepted {
		t.Fatalf("map_planner rejected by lower-priority auto_nav: %s", reason)
	}

	result, reason = a.Dispatch(command.Forward, command.SourceJoystick)
	if result != Accepted {
		t.Fatalf("joystick command rejected, want Accepted (joystick outranks map_planner): %s", reason)
	}

	result, reason = a.Dispatch(command.Left, command.SourceAutoNav)
	if result != Rejected {
		t.Fatalf("auto_nav accepted while joystick window active, want Rejected: %s", reason)
	}
}

func TestInvalidCommandRejected(t *testing.T) {
	driver := &fakeDriver{}
	a := New(driver, nil)

	result, reason := a.Dispatch(command.Command("X"), command.SourceJoystick)
	if result != Rejected {
		t.Fatalf("invalid command accepted, want Rejected")
	}
	if reason == "" {
		t.Fatalf("expected a rejection reason")
	}
}
