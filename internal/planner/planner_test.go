package planner

import (
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/tankcore/internal/arbiter"
	"github.com/relabs-tech/tankcore/internal/command"
	"github.com/relabs-tech/tankcore/internal/grid"
	"github.com/relabs-tech/tankcore/internal/pose"
)

var testCalib = grid.CalibrationParams{
	MoveDistance:   1.0,
	TurnAngle:      90,
	ForwardDelay:   0,
	TurnDelayLeft:  0,
	TurnDelayRight: 0,
}

func countCmd(plan Plan, cmd command.Command) int {
	n := 0
	for _, s := range plan {
		if s.Cmd == cmd {
			n++
		}
	}
	return n
}

func TestComputePlanAlreadyFacingTarget(t *testing.T) {
	start := pose.Pose{X: 10, Y: 10, Theta: 90}
	plan := ComputePlan(start, Target{Row: 5, Col: 10}, testCalib)

	if n := countCmd(plan, command.Left)+countCmd(plan, command.Right); n != 0 {
		t.Fatalf("expected 0 turn pulses, got %d", n)
	}
	if n := countCmd(plan, command.Forward); n != 5 {
		t.Fatalf("expected 5 forward pulses, got %d", n)
	}
}

func TestComputePlanTurnsThenMoves(t *testing.T) {
	start := pose.Pose{X: 10, Y: 10, Theta: 90}
	plan := ComputePlan(start, Target{Row: 10, Col: 15}, testCalib)

	if len(plan) == 0 {
		t.Fatalf("expected a non-empty plan")
	}
	if plan[0].Cmd != command.Right {
		t.Fatalf("expected first step to be a Right turn, got %s", plan[0].Cmd)
	}
	if n := countCmd(plan, command.Right); n != 1 {
		t.Fatalf("expected exactly 1 Right pulse, got %d", n)
	}
	if n := countCmd(plan, command.Forward); n != 5 {
		t.Fatalf("expected 5 forward pulses, got %d", n)
	}
}

func TestComputePlanCurrentCellIsEmpty(t *testing.T) {
	start := pose.Pose{X: 10, Y: 10, Theta: 90}
	plan := ComputePlan(start, Target{Row: 10, Col: 10}, testCalib)
	if len(plan) != 0 {
		t.Fatalf("navigate_to(current_cell) should produce an empty plan, got %v", plan)
	}
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []command.Command
}

func (f *fakeDispatcher) Dispatch(cmd command.Command, source command.Source) (arbiter.Result, string) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	return arbiter.Accepted, ""
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixedPose struct{ p pose.Pose }

func (f fixedPose) Snapshot() pose.Pose { return f.p }

func TestNavigateExecutesAndReturnsToIdle(t *testing.T) {
	disp := &fakeDispatcher{}
	ps := fixedPose{p: pose.Pose{X: 10, Y: 10, Theta: 90}}
	store := grid.NewStore(20, testCalib)

	pl := New(disp, ps, store)
	pl.Navigate(Target{Row: 5, Col: 10})

	deadline := time.After(time.Second)
	for pl.State() != Idle {
		select {
		case <-deadline:
			t.Fatalf("planner did not return to Idle, stuck in %s", pl.State())
		case <-time.After(time.Millisecond):
		}
	}

	if n := disp.callCount(); n != 5 {
		t.Fatalf("expected 5 dispatched commands, got %d", n)
	}
}

func TestNavigateHaltsOnObstacle(t *testing.T) {
	disp := &fakeDispatcher{}
	ps := fixedPose{p: pose.Pose{X: 10, Y: 10, Theta: 90}}
	store := grid.NewStore(20, testCalib)
	store.Grid.SetObstacles([][2]int{{9, 10}})

	pl := New(disp, ps, store)
	pl.Navigate(Target{Row: 5, Col: 10})

	deadline := time.After(time.Second)
	for pl.State() != Idle {
		select {
		case <-deadline:
			t.Fatalf("planner did not return to Idle, stuck in %s", pl.State())
		case <-time.After(time.Millisecond):
		}
	}

	if n := disp.callCount(); n != 0 {
		t.Fatalf("expected plan to halt before any forward step, got %d dispatched", n)
	}
}
