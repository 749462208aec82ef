package telemetry

import (
	"sync"
	"testing"

	"github.com/relabs-tech/tankcore/internal/command"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordingSink) Send(msgType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msgType)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestRegisterAndUnregister(t *testing.T) {
	h := NewHub()
	sink := &recordingSink{}
	session := h.Register(sink)
	if session.ID == "" {
		t.Fatalf("Register() returned empty session ID")
	}
	h.SetAutoNavigation(true)
	if sink.count() != 1 {
		t.Fatalf("sink received %d messages, want 1", sink.count())
	}

	h.Unregister(session)
	h.SetAutoNavigation(false)
	if sink.count() != 1 {
		t.Fatalf("sink received a broadcast after Unregister(), want still 1")
	}
}

func TestSetCurrentMotionOnlyBroadcastsOnChange(t *testing.T) {
	h := NewHub()
	sink := &recordingSink{}
	h.Register(sink)

	h.SetCurrentMotion(command.Forward)
	h.SetCurrentMotion(command.Forward)
	if sink.count() != 1 {
		t.Fatalf("sink received %d messages for a repeated motion, want 1", sink.count())
	}

	h.SetCurrentMotion(command.Stop)
	if sink.count() != 2 {
		t.Fatalf("sink received %d messages after a motion change, want 2", sink.count())
	}
}

func TestBatteryDecaysEvery60Ticks(t *testing.T) {
	h := NewHub()
	if got := h.Snapshot().Battery; got != batteryStart {
		t.Fatalf("initial battery = %d, want %d", got, batteryStart)
	}
	for i := 0; i < batteryDecayEvery; i++ {
		h.tick()
	}
	if got := h.Snapshot().Battery; got != batteryStart-1 {
		t.Fatalf("battery after %d ticks = %d, want %d", batteryDecayEvery, got, batteryStart-1)
	}
}

func TestBatteryNeverGoesBelowZero(t *testing.T) {
	h := NewHub()
	h.state.Battery = 0
	for i := 0; i < batteryDecayEvery; i++ {
		h.tick()
	}
	if got := h.Snapshot().Battery; got != 0 {
		t.Fatalf("battery = %d, want 0 (floor)", got)
	}
}

func TestLogSuppressesIdenticalConsecutiveMessages(t *testing.T) {
	h := NewHub()
	sink := &recordingSink{}
	h.Register(sink)

	h.Log("holding at obstacle")
	h.Log("holding at obstacle")
	h.Log("holding at obstacle")

	// First call: one "log" broadcast. Second and third: suppressed, no
	// broadcast until a different message breaks the run.
	if got := sink.count(); got != 1 {
		t.Fatalf("sink received %d broadcasts for repeated identical logs, want 1", got)
	}

	h.Log("resumed")
	if got := sink.count(); got != 3 {
		t.Fatalf("sink received %d broadcasts, want 3 (1 initial + 1 suppressed-count notice + 1 new message)", got)
	}
}
