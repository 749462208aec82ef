// Package camera runs the capture loop and exposes the latest frame through
// a single-slot buffer, with JPEG encoding and detection-overlay
// compositing for streaming consumers.
package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"sync"
	"time"

	"github.com/fogleman/gg"
)

// Frame is an immutable captured image. Consumers must treat the
// underlying Image as read-only; Capture never mutates a Frame once
// published.
type Frame struct {
	Image  image.Image
	Width  int
	Height int
	Seq    uint64
	At     time.Time
}

// Source produces frames for the capture loop. A real camera driver and
// the synthetic source both implement this.
type Source interface {
	// Capture blocks until a frame is available or an error occurs.
	Capture() (image.Image, error)
	Close() error
}

const (
	backoff        = 100 * time.Millisecond
	failureWarnAt  = 5 * time.Second
	jpegQuality    = 85
)

// Capture runs the capture loop against a Source and holds the single
// latest frame.
type Capture struct {
	source Source

	mu    sync.RWMutex
	frame *Frame
	seq   uint64

	frames chan *Frame
	stop   chan struct{}
	done   chan struct{}
}

// New creates a Capture loop reading from source. Call Run to start it.
func New(source Source) *Capture {
	return &Capture{
		source: source,
		frames: make(chan *Frame, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run drives the capture loop until Stop is called. Intended to run in its
// own goroutine, supervised by an errgroup.
func (c *Capture) Run() error {
	defer close(c.done)

	var firstFailure time.Time
	var warned bool

	for {
		select {
		case <-c.stop:
			return nil
		default:
		}

		img, err := c.source.Capture()
		if err != nil {
			if firstFailure.IsZero() {
				firstFailure = time.Now()
			}
			if !warned && time.Since(firstFailure) > failureWarnAt {
				log.Printf("camera: capture failing for over %s: %v", failureWarnAt, err)
				warned = true
			}
			select {
			case <-time.After(backoff):
			case <-c.stop:
				return nil
			}
			continue
		}

		firstFailure = time.Time{}
		warned = false

		b := img.Bounds()
		c.mu.Lock()
		c.seq++
		frame := &Frame{Image: img, Width: b.Dx(), Height: b.Dy(), Seq: c.seq, At: time.Now()}
		c.frame = frame
		c.mu.Unlock()

		select {
		case c.frames <- frame:
		default:
			// A slow consumer missed the previous notification; Latest
			// still always has the newest frame, so drop this one rather
			// than block the capture loop.
		}
	}
}

// Stop signals the capture loop to exit and closes the underlying source.
func (c *Capture) Stop() {
	close(c.stop)
	<-c.done
	if err := c.source.Close(); err != nil {
		log.Printf("camera: error closing source: %v", err)
	}
}

// Latest returns the most recently captured frame, or nil if none yet.
func (c *Capture) Latest() *Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame
}

// Frames returns a channel that receives each newly captured frame as it
// lands. It is buffered with a single slot: a notification is dropped if a
// consumer falls behind, since Latest always has the newest frame regardless.
// The channel is never closed; select on Done alongside it to stop waiting.
func (c *Capture) Frames() <-chan *Frame {
	return c.frames
}

// Done is closed once the capture loop has returned after Stop.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Overlay is a single annotated box to draw on a streamed frame.
type Overlay struct {
	X1, Y1, X2, Y2 int
	Label          string
}

// EncodeJPEG JPEG-encodes the latest frame, drawing overlays onto a
// per-call copy. The stored latest frame is never mutated.
func (c *Capture) EncodeJPEG(overlays []Overlay) ([]byte, error) {
	frame := c.Latest()
	if frame == nil {
		return nil, fmt.Errorf("camera: no frame captured yet")
	}

	img := frame.Image
	if len(overlays) > 0 {
		img = drawOverlays(frame.Image, overlays)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("camera: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func drawOverlays(src image.Image, overlays []Overlay) image.Image {
	b := src.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(src, 0, 0)

	dc.SetRGB(0, 1, 0)
	dc.SetLineWidth(2)
	for _, o := range overlays {
		w := float64(o.X2 - o.X1)
		h := float64(o.Y2 - o.Y1)
		dc.DrawRectangle(float64(o.X1), float64(o.Y1), w, h)
		dc.Stroke()
		if o.Label != "" {
			dc.DrawString(o.Label, float64(o.X1), float64(o.Y1)-4)
		}
	}
	return dc.Image()
}
