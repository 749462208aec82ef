package camera

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// captureInterval paces SyntheticSource at the ~20fps target spec.md §4.4
// sets for streamed frames. A real camera driver blocks on its own I/O to
// the same effect; this stands in for that so the capture loop never spins.
const captureInterval = 50 * time.Millisecond

// SyntheticSource stands in for a physical camera driver, which is
// out-of-scope hardware plumbing. It renders a plain background with a
// timestamp and frame counter so the video pipeline, overlay compositor,
// and streaming sinks have real frames to exercise.
type SyntheticSource struct {
	width, height int
	frame         uint64
	closed        bool
	lastCapture   time.Time
}

// NewSyntheticSource creates a generator of width x height frames.
func NewSyntheticSource(width, height int) *SyntheticSource {
	return &SyntheticSource{width: width, height: height}
}

// Capture renders the next synthetic frame, blocking until captureInterval
// has elapsed since the previous one so the capture loop never busy-spins.
func (s *SyntheticSource) Capture() (image.Image, error) {
	if s.closed {
		return nil, fmt.Errorf("camera: synthetic source closed")
	}
	if !s.lastCapture.IsZero() {
		if wait := captureInterval - time.Since(s.lastCapture); wait > 0 {
			time.Sleep(wait)
		}
	}
	s.lastCapture = time.Now()
	s.frame++

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	background := color.RGBA{R: 20, G: 24, B: 28, A: 255}
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.SetRGBA(x, y, background)
		}
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 0, G: 220, B: 0, A: 255}),
		Face: basicfont.Face7x13,
	}
	drawer.Dot = fixed.P(8, 20)
	drawer.DrawString(fmt.Sprintf("frame %d", s.frame))
	drawer.Dot = fixed.P(8, 36)
	drawer.DrawString(time.Now().Format("15:04:05.000"))

	return img, nil
}

// Close marks the source as closed; further Capture calls fail.
func (s *SyntheticSource) Close() error {
	s.closed = true
	return nil
}
