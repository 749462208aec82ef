// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport implements the operator-facing surfaces: a
// bidirectional JSON-framed WebSocket control/telemetry channel and the two
// equivalent video streaming endpoints.
package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/tankcore/internal/arbiter"
	"github.com/relabs-tech/tankcore/internal/autonav"
	"github.com/relabs-tech/tankcore/internal/camera"
	"github.com/relabs-tech/tankcore/internal/command"
	"github.com/relabs-tech/tankcore/internal/grid"
	"github.com/relabs-tech/tankcore/internal/planner"
	"github.com/relabs-tech/tankcore/internal/pose"
	"github.com/relabs-tech/tankcore/internal/telemetry"
	"github.com/relabs-tech/tankcore/internal/virtualrobot"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // operator clients may come from any origin on the local network
	},
}

// Reconnecter is implemented by actuator drivers that support a live
// reconnect, currently only the serial driver.
type Reconnecter interface {
	Reconnect() error
}

// Core bundles every subsystem the operator protocol drives. Held by
// reference; transport never owns their lifecycle.
type Core struct {
	Arbiter      *arbiter.Arbiter
	Planner      *planner.Planner
	Pose         *pose.Estimator
	VirtualRobot *virtualrobot.Robot
	Store        *grid.Store
	Hub          *telemetry.Hub
	AutoNav      *autonav.Policy
	Capture      *camera.Capture
	Actuator     Reconnecter // nil if the active driver has no reconnect

	StartPose pose.Pose
}

// inMessage is the flat envelope for every inbound operator message; the
// Type field selects which of the optional fields below apply.
type inMessage struct {
	Type string `json:"type"`

	Forward int `json:"forward,omitempty"`
	Turn    int `json:"turn,omitempty"`

	Row int `json:"row,omitempty"`
	Col int `json:"col,omitempty"`

	Cells [][2]int `json:"cells,omitempty"`

	ForwardDelay   *float64 `json:"forward_delay,omitempty"`
	TurnLeftDelay  *float64 `json:"turn_left_delay,omitempty"`
	TurnRightDelay *float64 `json:"turn_right_delay,omitempty"`

	Command string `json:"command,omitempty"`

	Distance *float64 `json:"distance,omitempty"`
	Angle    *float64 `json:"angle,omitempty"`

	Enabled bool `json:"enabled,omitempty"`
}

// wsSink adapts a gorilla websocket connection to telemetry.Sink, guarding
// concurrent writes with a mutex (gorilla connections are not safe for
// concurrent writers).
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: marshal %s payload: %w", msgType, err)
	}
	fields := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("transport: unmarshal %s payload: %w", msgType, err)
		}
	}
	fields["type"] = msgType

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(fields)
}

// HandleControlWS upgrades the request and runs the operator session
// message loop until disconnect.
func (c *Core) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("transport: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}
	session := c.Hub.Register(sink)
	defer c.Hub.Unregister(session)

	c.sendCalibrationValues(sink)

	for {
		var msg inMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("transport: session %s websocket error: %v", session.ID, err)
			}
			return
		}
		c.handle(sink, msg)
	}
}

func (c *Core) handle(sink *wsSink, msg inMessage) {
	switch msg.Type {
	case "control":
		cmd := command.ControlInput{Forward: msg.Forward, Turn: msg.Turn}.ToCommand()
		c.Arbiter.Dispatch(cmd, command.SourceJoystick)

	case "emergency_stop":
		c.Arbiter.Dispatch(command.Stop, command.SourceEmergency)
		c.Hub.Log("emergency stop activated via websocket")
		c.Hub.EmergencyStopActivated()

	case "clear_emergency_stop":
		c.Arbiter.ClearEmergency()
		c.Hub.Log("emergency stop latch cleared by operator")

	case "navigate_to":
		c.Planner.Navigate(planner.Target{Row: msg.Row, Col: msg.Col})

	case "clear_target":
		c.Planner.Cancel()

	case "reset_start":
		center := float64(c.Store.Grid.Size()) / 2
		resetPose := pose.Pose{X: center, Y: center, Theta: 90}
		c.Pose.Reset(resetPose)
		c.VirtualRobot.Reset(resetPose)
		c.Planner.Cancel()

	case "go_up":
		c.Planner.GoUpOneCell()

	case "turn_90_left":
		c.Planner.TurnLeft90()

	case "turn_90_right":
		c.Planner.TurnRight90()

	case "update_obstacles":
		c.Store.Grid.SetObstacles(msg.Cells)

	case "update_timing":
		calib := c.Store.Calibration()
		if msg.ForwardDelay != nil {
			calib.ForwardDelay = *msg.ForwardDelay
		}
		if msg.TurnLeftDelay != nil {
			calib.TurnDelayLeft = *msg.TurnLeftDelay
		}
		if msg.TurnRightDelay != nil {
			calib.TurnDelayRight = *msg.TurnRightDelay
		}
		c.Store.SetCalibration(calib)

	case "calibrate_command":
		cmd := command.Command(msg.Command)
		if !cmd.Valid() {
			sink.Send("log", map[string]string{"msg": fmt.Sprintf("calibrate_command: invalid command %q", msg.Command)})
			return
		}
		c.Arbiter.Dispatch(cmd, command.SourceManualOverride)

	case "apply_calibration":
		calib := c.Store.Calibration()
		if msg.Distance != nil {
			calib.MoveDistance = *msg.Distance
		}
		if msg.Angle != nil {
			calib.TurnAngle = *msg.Angle
		}
		c.Store.SetCalibration(calib)
		c.sendCalibrationValues(sink)

	case "request_calibration_values":
		c.sendCalibrationValues(sink)

	case "set_overlay":
		setOverlayEnabled(msg.Enabled)

	case "set_detection":
		c.Hub.SetObjectDetection(msg.Enabled)

	case "set_auto_navigation":
		c.AutoNav.SetEnabled(msg.Enabled)
		c.Hub.SetAutoNavigation(msg.Enabled)

	case "reconnect_actuator":
		if c.Actuator == nil {
			sink.Send("log", map[string]string{"msg": "reconnect_actuator: active driver has no reconnect support"})
			return
		}
		if err := c.Actuator.Reconnect(); err != nil {
			c.Hub.Log("actuator reconnect failed: %v", err)
			return
		}
		c.Hub.Log("actuator reconnected")

	default:
		sink.Send("log", map[string]string{"msg": fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (c *Core) sendCalibrationValues(sink *wsSink) {
	calib := c.Store.Calibration()
	sink.Send("calibration_values", map[string]float64{
		"move_distance": calib.MoveDistance,
		"turn_angle":     calib.TurnAngle,
	})
}
