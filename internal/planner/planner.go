// Package planner turns a target grid cell into a bounded sequence of
// commands: a one-shot turn-then-straight-line plan, executed step by step
// with cooperative cancellation on preemption or an explicit cancel.
package planner

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/tankcore/internal/arbiter"
	"github.com/relabs-tech/tankcore/internal/command"
	"github.com/relabs-tech/tankcore/internal/grid"
	"github.com/relabs-tech/tankcore/internal/pose"
)

// State is the planner's lifecycle state, exposed for telemetry.
type State string

const (
	Idle      State = "idle"
	Planning  State = "planning"
	Executing State = "executing"
)

// Dispatcher is the subset of the arbiter the planner needs.
type Dispatcher interface {
	Dispatch(cmd command.Command, source command.Source) (arbiter.Result, string)
}

// PoseSource is the subset of the pose estimator the planner needs.
type PoseSource interface {
	Snapshot() pose.Pose
}

// Step is one pulse of a Plan, with the delay to wait before the next step.
type Step struct {
	Cmd   command.Command
	Delay time.Duration
}

// Plan is an ordered, bounded sequence of steps.
type Plan []Step

// Target identifies a destination cell by (row, col).
type Target struct {
	Row, Col int
}

// Planner owns the current navigation goal and its execution goroutine.
type Planner struct {
	dispatcher Dispatcher
	poseSource PoseSource
	store      *grid.Store

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Planner dispatching through d, reading pose from p, and
// consulting store for obstacles and calibration.
func New(d Dispatcher, p PoseSource, store *grid.Store) *Planner {
	return &Planner{dispatcher: d, poseSource: p, store: store, state: Idle}
}

// State returns the planner's current lifecycle state.
func (pl *Planner) State() State {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.state
}

// ComputePlan derives the turn-then-forward pulse sequence from the current
// pose to target, using calib for pulse-to-displacement conversion. The
// vector is computed in grid-cell units from the current cell, not the
// continuous pose, matching the planner's intentionally coarse precision.
func ComputePlan(current pose.Pose, target Target, calib grid.CalibrationParams) Plan {
	row, col := pose.Cell(current)
	dx := float64(target.Col - col)
	dy := float64(target.Row - row)

	var plan Plan

	if dx != 0 || dy != 0 {
		heading := math.Atan2(-dy, dx) * 180 / math.Pi
		if heading < 0 {
			heading += 360
		}
		delta := normalizeSigned(heading - current.Theta)

		turnAngle := calib.TurnAngle
		if turnAngle > 0 {
			k := int(math.Round(math.Abs(delta) / turnAngle))
			turnCmd := command.Right
			delay := time.Duration(calib.TurnDelayRight * float64(time.Second))
			if delta > 0 {
				turnCmd = command.Left
				delay = time.Duration(calib.TurnDelayLeft * float64(time.Second))
			}
			for i := 0; i < k; i++ {
				plan = append(plan, Step{Cmd: turnCmd, Delay: delay})
			}
		}
	}

	dist := math.Hypot(dx, dy)
	if calib.MoveDistance > 0 {
		n := int(math.Round(dist / calib.MoveDistance))
		delay := time.Duration(calib.ForwardDelay * float64(time.Second))
		for i := 0; i < n; i++ {
			plan = append(plan, Step{Cmd: command.Forward, Delay: delay})
		}
	}

	return plan
}

func normalizeSigned(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg <= -180 {
		deg += 360
	} else if deg > 180 {
		deg -= 360
	}
	return deg
}

// Navigate plans a route to target and executes it asynchronously,
// cancelling any plan already in progress.
func (pl *Planner) Navigate(target Target) {
	pl.mu.Lock()
	pl.cancelLocked()
	pl.state = Planning
	ctx, cancel := context.WithCancel(context.Background())
	pl.cancel = cancel
	done := make(chan struct{})
	pl.done = done
	pl.mu.Unlock()

	current := pl.poseSource.Snapshot()
	calib := pl.store.Calibration()
	plan := ComputePlan(current, target, calib)

	go pl.run(ctx, done, plan)
}

// Cancel stops any plan in progress and sends Stop through the arbiter.
func (pl *Planner) Cancel() {
	pl.mu.Lock()
	pl.cancelLocked()
	pl.mu.Unlock()
	pl.dispatcher.Dispatch(command.Stop, command.SourceMapPlanner)
}

func (pl *Planner) cancelLocked() {
	if pl.cancel != nil {
		pl.cancel()
		pl.cancel = nil
	}
	pl.state = Idle
}

func (pl *Planner) run(ctx context.Context, done chan struct{}, plan Plan) {
	defer close(done)

	pl.mu.Lock()
	if ctx.Err() != nil {
		pl.mu.Unlock()
		return
	}
	pl.state = Executing
	pl.mu.Unlock()

	defer func() {
		pl.mu.Lock()
		if pl.state != Idle {
			pl.state = Idle
		}
		pl.mu.Unlock()
	}()

	for _, step := range plan {
		if ctx.Err() != nil {
			return
		}

		if step.Cmd == command.Forward {
			current := pl.poseSource.Snapshot()
			if blocked, reason := pl.wouldHitObstacle(current); blocked {
				log.Printf("planner: halting plan, %s", reason)
				return
			}
		}

		result, reason := pl.dispatcher.Dispatch(step.Cmd, command.SourceMapPlanner)
		if result != arbiter.Accepted {
			log.Printf("planner: plan preempted (%s), discarding remaining steps", reason)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(step.Delay):
		}
	}
}

// wouldHitObstacle projects a single Forward pulse from current using the
// planner's calibration and reports whether the resulting cell is blocked.
func (pl *Planner) wouldHitObstacle(current pose.Pose) (bool, string) {
	calib := pl.store.Calibration()
	rad := current.Theta * math.Pi / 180
	nextX := current.X + calib.MoveDistance*math.Cos(rad)
	nextY := current.Y - calib.MoveDistance*math.Sin(rad)
	row, col := pose.Cell(pose.Pose{X: nextX, Y: nextY, Theta: current.Theta})
	if pl.store.Grid.IsObstacle(row, col) {
		return true, fmt.Sprintf("cell (row=%d, col=%d) is an obstacle", row, col)
	}
	return false, ""
}

// GoUpOneCell navigates to the cell one row above the current one (grid-up,
// not heading-relative): it turns first if not already facing up, then
// emits as many Forward pulses as one cell takes, honoring preemption like
// any other plan.
func (pl *Planner) GoUpOneCell() {
	pl.Navigate(relativeForwardTarget(pl.poseSource.Snapshot()))
}

func relativeForwardTarget(p pose.Pose) Target {
	row, col := pose.Cell(p)
	return Target{Row: row - 1, Col: col}
}

// TurnLeft90 emits a fixed plan to turn the vehicle 90 degrees left.
func (pl *Planner) TurnLeft90() {
	pl.runFixed(fixedTurnPlan(command.Left, pl.store.Calibration()))
}

// TurnRight90 emits a fixed plan to turn the vehicle 90 degrees right.
func (pl *Planner) TurnRight90() {
	pl.runFixed(fixedTurnPlan(command.Right, pl.store.Calibration()))
}

func fixedTurnPlan(turnCmd command.Command, calib grid.CalibrationParams) Plan {
	if calib.TurnAngle <= 0 {
		return nil
	}
	k := int(math.Round(90 / calib.TurnAngle))
	delay := time.Duration(calib.TurnDelayRight * float64(time.Second))
	if turnCmd == command.Left {
		delay = time.Duration(calib.TurnDelayLeft * float64(time.Second))
	}
	plan := make(Plan, 0, k)
	for i := 0; i < k; i++ {
		plan = append(plan, Step{Cmd: turnCmd, Delay: delay})
	}
	return plan
}

func (pl *Planner) runFixed(plan Plan) {
	pl.mu.Lock()
	pl.cancelLocked()
	pl.state = Executing
	ctx, cancel := context.WithCancel(context.Background())
	pl.cancel = cancel
	done := make(chan struct{})
	pl.done = done
	pl.mu.Unlock()

	go pl.run(ctx, done, plan)
}
