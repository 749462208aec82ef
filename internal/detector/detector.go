// Package detector wraps an optional object-detection model behind a small
// synchronous interface, so the capture loop and auto-navigation policy
// never need to branch on whether a model is loaded.
package detector

import (
	"sync"

	"github.com/relabs-tech/tankcore/internal/camera"
)

// Box is a single detection result in frame pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 int
	Label          string
	Confidence     float64
	ClassID        int
}

// CenterX returns the horizontal centroid of the box.
func (b Box) CenterX() float64 {
	return float64(b.X1+b.X2) / 2
}

// Detector runs inference on a single frame. Implementations must be safe
// to call from the capture loop goroutine.
type Detector interface {
	Infer(frame *camera.Frame) []Box
}

// Variant selects between a loaded model and the always-empty stand-in,
// so call sites never need a nil check.
type Variant struct {
	detector Detector
}

// Present wraps a loaded detector.
func Present(d Detector) Variant {
	return Variant{detector: d}
}

// Absent is the always-empty variant, used when no model is configured or
// loading failed.
var Absent = Variant{}

// Infer runs the wrapped detector, or returns no detections if absent.
func (v Variant) Infer(frame *camera.Frame) []Box {
	if v.detector == nil {
		return nil
	}
	return v.detector.Infer(frame)
}

// Loaded reports whether a real model is wrapped.
func (v Variant) Loaded() bool {
	return v.detector != nil
}

// LatestHolder is the single-slot buffer of the most recent inference
// result, read by the video overlay sinks and auto-navigation policy.
type LatestHolder struct {
	mu     sync.RWMutex
	latest []Box
}

// Set replaces the latest detection result.
func (h *LatestHolder) Set(boxes []Box) {
	h.mu.Lock()
	h.latest = boxes
	h.mu.Unlock()
}

// Latest returns the most recent detection result.
func (h *LatestHolder) Latest() []Box {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}
