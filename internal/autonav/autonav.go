// Package autonav implements person-following: a steering policy driven by
// the horizontal position of the highest-confidence qualifying detection.
package autonav

import (
	"sync"

	"github.com/relabs-tech/tankcore/internal/arbiter"
	"github.com/relabs-tech/tankcore/internal/command"
	"github.com/relabs-tech/tankcore/internal/detector"
)

// Dispatcher is the subset of the arbiter autonav needs.
type Dispatcher interface {
	Dispatch(cmd command.Command, source command.Source) (arbiter.Result, string)
}

const (
	leftThreshold  = 0.40
	rightThreshold = 0.60
)

// Policy tracks the enabled flag and the configured classes to follow.
type Policy struct {
	dispatcher Dispatcher

	mu      sync.RWMutex
	enabled bool
	classes map[int]bool
}

// New creates a Policy dispatching through d, following the given class
// IDs (defaults to {0}, conventionally "person", if classes is empty).
func New(d Dispatcher, classes []int) *Policy {
	set := make(map[int]bool, len(classes))
	if len(classes) == 0 {
		set[0] = true
	}
	for _, c := range classes {
		set[c] = true
	}
	return &Policy{dispatcher: d, classes: set}
}

// SetEnabled turns the policy on or off.
func (p *Policy) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
}

// Enabled reports whether the policy is currently active.
func (p *Policy) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetClasses replaces the set of class IDs the policy follows.
func (p *Policy) SetClasses(classes []int) {
	set := make(map[int]bool, len(classes))
	for _, c := range classes {
		set[c] = true
	}
	p.mu.Lock()
	p.classes = set
	p.mu.Unlock()
}

// OnDetections consumes one inference result and, if enabled, emits a
// steering command through the arbiter with source auto_nav.
func (p *Policy) OnDetections(boxes []detector.Box, frameWidth int) {
	p.mu.RLock()
	enabled := p.enabled
	classes := p.classes
	p.mu.RUnlock()

	if !enabled {
		return
	}

	target, ok := bestBox(boxes, classes)
	cmd := command.Stop
	if ok && frameWidth > 0 {
		left := leftThreshold * float64(frameWidth)
		right := rightThreshold * float64(frameWidth)
		xc := target.CenterX()
		switch {
		case xc < left:
			cmd = command.Left
		case xc > right:
			cmd = command.Right
		default:
			cmd = command.Stop
		}
	}

	p.dispatcher.Dispatch(cmd, command.SourceAutoNav)
}

func bestBox(boxes []detector.Box, classes map[int]bool) (detector.Box, bool) {
	var best detector.Box
	found := false
	for _, b := range boxes {
		if !classes[b.ClassID] {
			continue
		}
		if !found || b.Confidence > best.Confidence {
			best = b
			found = true
		}
	}
	return best, found
}
