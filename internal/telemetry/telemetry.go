// Package telemetry fans out pose, motion, mode, and log updates to
// connected operator sessions, drives the simulated battery tick, and
// bridges the same state outward over MQTT.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/relabs-tech/tankcore/internal/command"
)

// Telemetry is the periodic snapshot published to every session.
type Telemetry struct {
	Battery         int             `json:"battery"`
	CurrentMotion   command.Command `json:"current_motion"`
	AutoNavigation  bool            `json:"auto_navigation"`
	ObjectDetection bool            `json:"object_detection"`
}

const (
	batteryStart       = 100
	batteryDecayEvery  = 60 // ticks (1 Hz) per 1% battery drop
	tickInterval       = time.Second
	logRateLimitWindow = 2 * time.Second
)

// Sink receives a fully framed outbound message, usually a session's
// underlying websocket write method.
type Sink interface {
	Send(msgType string, payload any) error
}

// Session is one connected operator, identified for logging purposes only;
// no persistent identity is required across reconnects.
type Session struct {
	ID   string
	sink Sink
}

// Hub owns the set of connected sessions and the shared telemetry state.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	state    Telemetry

	logMu       sync.Mutex
	lastLog     string
	lastLogAt   time.Time
	suppressed  int

	mqttClient mqtt.Client
	mqttTopic  string

	tickCount int

	stop chan struct{}
	done chan struct{}
}

// NewHub creates a Hub with battery starting at full charge.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		state:    Telemetry{Battery: batteryStart, CurrentMotion: command.Stop},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// EnableMQTT attaches an MQTT bridge publishing every telemetry change to
// topic on client.
func (h *Hub) EnableMQTT(client mqtt.Client, topic string) {
	h.mqttClient = client
	h.mqttTopic = topic
}

// Register attaches a new session and returns its generated ID.
func (h *Hub) Register(sink Sink) *Session {
	s := &Session{ID: uuid.NewString(), sink: sink}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	return s
}

// Unregister detaches a session; global telemetry state is untouched.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
}

// SetCurrentMotion implements arbiter.MotionSink.
func (h *Hub) SetCurrentMotion(cmd command.Command) {
	h.mu.Lock()
	changed := h.state.CurrentMotion != cmd
	h.state.CurrentMotion = cmd
	snapshot := h.state
	h.mu.Unlock()
	if changed {
		h.broadcast("telemetry", snapshot)
	}
}

// SetAutoNavigation updates the auto_navigation mode flag and broadcasts on
// change.
func (h *Hub) SetAutoNavigation(enabled bool) {
	h.mu.Lock()
	changed := h.state.AutoNavigation != enabled
	h.state.AutoNavigation = enabled
	snapshot := h.state
	h.mu.Unlock()
	if changed {
		h.broadcast("telemetry", snapshot)
	}
}

// SetObjectDetection updates the object_detection mode flag and broadcasts
// on change.
func (h *Hub) SetObjectDetection(enabled bool) {
	h.mu.Lock()
	changed := h.state.ObjectDetection != enabled
	h.state.ObjectDetection = enabled
	snapshot := h.state
	h.mu.Unlock()
	if changed {
		h.broadcast("telemetry", snapshot)
	}
}

// Snapshot returns the current telemetry state.
func (h *Hub) Snapshot() Telemetry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// PublishPose broadcasts a robot_update message; called by the app layer on
// every pose change.
func (h *Hub) PublishPose(row, col, angle float64) {
	h.broadcast("robot_update", map[string]float64{"row": row, "col": col, "angle": angle})
}

// Log broadcasts a rate-limited log line: identical consecutive lines
// within the window are coalesced into a single suppressed-count warning.
func (h *Hub) Log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Print("telemetry: " + msg)

	h.logMu.Lock()
	now := time.Now()
	if msg == h.lastLog && now.Sub(h.lastLogAt) < logRateLimitWindow {
		h.suppressed++
		h.logMu.Unlock()
		return
	}
	suppressed := h.suppressed
	h.lastLog = msg
	h.lastLogAt = now
	h.suppressed = 0
	h.logMu.Unlock()

	if suppressed > 0 {
		h.broadcast("log", map[string]string{"msg": fmt.Sprintf("(%d similar messages suppressed)", suppressed)})
	}
	h.broadcast("log", map[string]string{"msg": msg})
}

// EmergencyStopActivated notifies every session that the latch engaged.
func (h *Hub) EmergencyStopActivated() {
	h.broadcast("emergency_stop_activated", struct{}{})
}

func (h *Hub) broadcast(msgType string, payload any) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.sink.Send(msgType, payload); err != nil {
			log.Printf("telemetry: session %s send failed: %v", s.ID, err)
		}
	}

	if h.mqttClient != nil && h.mqttTopic != "" {
		h.publishMQTT(msgType, payload)
	}
}

func (h *Hub) publishMQTT(msgType string, payload any) {
	body, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: msgType, Payload: payload})
	if err != nil {
		log.Printf("telemetry: mqtt marshal failed: %v", err)
		return
	}
	token := h.mqttClient.Publish(h.mqttTopic, 0, false, body)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("telemetry: mqtt publish failed: %v", err)
	}
}

// Run drives the 1 Hz battery-decay and telemetry-broadcast tick until
// Stop is called.
func (h *Hub) Run() error {
	defer close(h.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return nil
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Hub) tick() {
	h.mu.Lock()
	h.tickCount++
	if h.tickCount%batteryDecayEvery == 0 && h.state.Battery > 0 {
		h.state.Battery--
	}
	snapshot := h.state
	h.mu.Unlock()
	h.broadcast("telemetry", snapshot)
}

// Stop ends the tick loop.
func (h *Hub) Stop() {
	close(h.stop)
	<-h.done
}
