// Package pose maintains the tank's open-loop dead-reckoning estimate on
// the bounded grid: an (x, y, heading) triple advanced by every command the
// arbiter actually dispatches.
package pose

import (
	"math"
	"sync"

	"github.com/relabs-tech/tankcore/internal/command"
	"github.com/relabs-tech/tankcore/internal/grid"
)

// Pose is the canonical vehicle position and heading on the grid.
// Convention: Theta=0 points along +x, Theta=90 points along screen-up
// (y decreases as a Forward pulse is applied at Theta=90).
type Pose struct {
	X, Y  float64
	Theta float64 // degrees, [0, 360)
}

// historyCapacity bounds the optional trail ring buffer; not load-bearing.
const historyCapacity = 100

// Estimator owns the live Pose and a bounded trail of recent poses for UI
// purposes. Safe for concurrent use; updates are atomic with respect to
// readers.
type Estimator struct {
	mu      sync.RWMutex
	pose    Pose
	store   *grid.Store
	history []Pose
}

// New creates an Estimator starting at start, backed by store for the
// current calibration parameters.
func New(store *grid.Store, start Pose) *Estimator {
	return &Estimator{pose: clamp(start, store.Calibration()), store: store}
}

// Advance applies cmd using the current calibration and records the result.
// Returns the pose after the update.
func (e *Estimator) Advance(cmd command.Command) Pose {
	calb := e.store.Calibration()

	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pose
	switch cmd {
	case command.Forward:
		rad := p.Theta * math.Pi / 180
		p.X += calb.MoveDistance * math.Cos(rad)
		p.Y -= calb.MoveDistance * math.Sin(rad)
	case command.Backward:
		rad := p.Theta * math.Pi / 180
		p.X -= calb.MoveDistance * math.Cos(rad)
		p.Y += calb.MoveDistance * math.Sin(rad)
	case command.Left:
		p.Theta = math.Mod(p.Theta+calb.TurnAngle, 360)
	case command.Right:
		p.Theta = math.Mod(p.Theta-calb.TurnAngle+360, 360)
	case command.Stop:
		// no change
	}
	p = clampXY(p, gridSizeOf(e.store))

	e.pose = p
	e.pushHistory(p)
	return p
}

// Observe implements arbiter.Observer, letting the estimator be registered
// directly as a dispatch fan-out target.
func (e *Estimator) Observe(cmd command.Command) {
	e.Advance(cmd)
}

// Snapshot returns the current pose without mutating state.
func (e *Estimator) Snapshot() Pose {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pose
}

// Reset restores start and clears the trail history.
func (e *Estimator) Reset(start Pose) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pose = clamp(start, e.store.Calibration())
	e.history = nil
}

// History returns a snapshot copy of the recent-pose trail, oldest first.
func (e *Estimator) History() []Pose {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Pose, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Estimator) pushHistory(p Pose) {
	e.history = append(e.history, p)
	if len(e.history) > historyCapacity {
		e.history = e.history[len(e.history)-historyCapacity:]
	}
}

func gridSizeOf(s *grid.Store) int {
	return s.Grid.Size()
}

func clamp(p Pose, _ grid.CalibrationParams) Pose {
	if p.Theta < 0 || p.Theta >= 360 {
		p.Theta = math.Mod(math.Mod(p.Theta, 360)+360, 360)
	}
	return p
}

func clampXY(p Pose, size int) Pose {
	max := float64(size - 1)
	if p.X < 0 {
		p.X = 0
	} else if p.X > max {
		p.X = max
	}
	if p.Y < 0 {
		p.Y = 0
	} else if p.Y > max {
		p.Y = max
	}
	return p
}

// Cell returns the (row, col) grid cell containing p, per spec's
// row=floor(y), col=floor(x) convention.
func Cell(p Pose) (row, col int) {
	return int(math.Floor(p.Y)), int(math.Floor(p.X))
}
