// Package virtualrobot mirrors the command stream the arbiter dispatches
// into a second pose model, identical in kinematics to the physical pose
// estimator. It stands in for the vehicle when no hardware is attached and
// lets the operator compare the physical and virtual tracks when it is.
package virtualrobot

import (
	"github.com/relabs-tech/tankcore/internal/command"
	"github.com/relabs-tech/tankcore/internal/grid"
	"github.com/relabs-tech/tankcore/internal/pose"
)

// Robot is the virtual twin of the real vehicle: same calibration, same
// update rules, fed from the same arbiter fan-out as the physical pose
// estimator but never touching the actuator.
type Robot struct {
	estimator *pose.Estimator
}

// New creates a Robot sharing store's calibration and starting at start.
func New(store *grid.Store, start pose.Pose) *Robot {
	return &Robot{estimator: pose.New(store, start)}
}

// Observe implements arbiter.Observer.
func (r *Robot) Observe(cmd command.Command) {
	r.estimator.Advance(cmd)
}

// Snapshot returns the current virtual pose.
func (r *Robot) Snapshot() pose.Pose {
	return r.estimator.Snapshot()
}

// Reset restores the virtual pose to start.
func (r *Robot) Reset(start pose.Pose) {
	r.estimator.Reset(start)
}

// History returns the virtual pose's recent-pose trail, oldest first.
func (r *Robot) History() []pose.Pose {
	return r.estimator.History()
}
