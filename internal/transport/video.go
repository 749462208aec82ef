package transport

import (
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/tankcore/internal/camera"
	"github.com/relabs-tech/tankcore/internal/detector"
)

// overlayEnabled gates whether detection boxes are drawn onto streamed
// frames; shared by both video sinks below.
var overlayEnabled atomic.Bool

func setOverlayEnabled(enabled bool) {
	overlayEnabled.Store(enabled)
}

// frameBoundary separates JPEG parts in the multipart stream.
const frameBoundary = "frame"

const streamFrameInterval = 50 * time.Millisecond // ~20 fps target

// DetectionSource supplies the latest result of the capture/inference
// pipeline; video handlers read it to build the overlays they draw.
type DetectionSource interface {
	Latest() []detector.Box
}

// HandleVideoMJPEG serves the latest frame as a multipart/x-mixed-replace
// byte stream bounded by --frame markers.
func (c *Core) HandleVideoMJPEG(detections DetectionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", frameBoundary))

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		ticker := time.NewTicker(streamFrameInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				jpeg, err := c.Capture.EncodeJPEG(overlaysFor(detections))
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", frameBoundary, len(jpeg))
				w.Write(jpeg)
				fmt.Fprint(w, "\r\n")
				flusher.Flush()
			}
		}
	}
}

// HandleVideoWS streams base64-encoded JPEGs as video_frame events over a
// WebSocket connection, equivalent to the MJPEG endpoint.
func (c *Core) HandleVideoWS(detections DetectionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("transport: video websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(streamFrameInterval)
		defer ticker.Stop()

		for range ticker.C {
			jpeg, err := c.Capture.EncodeJPEG(overlaysFor(detections))
			if err != nil {
				continue
			}
			msg := map[string]string{
				"type": "video_frame",
				"data": base64.StdEncoding.EncodeToString(jpeg),
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func overlaysFor(detections DetectionSource) []camera.Overlay {
	if !overlayEnabled.Load() || detections == nil {
		return nil
	}
	boxes := detections.Latest()
	overlays := make([]camera.Overlay, 0, len(boxes))
	for _, b := range boxes {
		overlays = append(overlays, camera.Overlay{
			X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2,
			Label: fmt.Sprintf("%s %.0f%%", b.Label, b.Confidence*100),
		})
	}
	return overlays
}
