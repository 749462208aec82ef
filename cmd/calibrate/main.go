// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibrate/main.go
//
// Guided calibration of the two pulse-to-displacement constants the map
// planner and pose estimator depend on:
//  1. move_distance: grid cells covered per Forward/Backward pulse.
//  2. turn_angle: degrees rotated per Left/Right pulse.
//
// The operator drives a fixed pulse count through the configured actuator
// and reports what the vehicle actually did; this program does the
// arithmetic and writes a calibration result file.
//
// Output:
//
//	Writes a JSON file under ./calibration/ with the computed constants.
//
// Run:
//
//	go run ./cmd/calibrate
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/tankcore/internal/actuator"
	"github.com/relabs-tech/tankcore/internal/command"
	"github.com/relabs-tech/tankcore/internal/config"
)

const (
	defaultForwardPulses = 5
	defaultTurnPulses    = 6
	pulseSettleDelay     = 300 * time.Millisecond
)

// CalibrationResult is the JSON artifact written at the end of a run.
type CalibrationResult struct {
	SchemaVersion  int     `json:"schema_version"`
	CalibratedAt   string  `json:"calibrated_at"` // RFC3339
	ControlMode    string  `json:"control_mode"`
	ForwardPulses  int     `json:"forward_pulses"`
	MeasuredCm     float64 `json:"measured_forward_cm"`
	CellSizeCm     float64 `json:"cell_size_cm"`
	MoveDistance   float64 `json:"move_distance"` // grid cells per pulse
	TurnPulses     int     `json:"turn_pulses"`
	MeasuredDegree float64 `json:"measured_turn_degrees"`
	TurnAngle      float64 `json:"turn_angle"` // degrees per pulse
}

func main() {
	in := bufio.NewReader(os.Stdin)

	configPath := flag.String("config", "", "path to a KEY=VALUE config file (defaults applied if omitted)")
	flag.Parse()

	fmt.Println("=== Guided Pulse Calibration (move_distance + turn_angle) ===")
	fmt.Println("This drives the configured actuator directly and asks you to measure the result.")
	fmt.Println()

	if err := config.InitGlobal(*configPath); err != nil {
		fatal(fmt.Errorf("failed to load config: %w", err))
	}
	cfg := config.Get()

	driver, err := newDriver(cfg)
	if err != nil {
		fatal(fmt.Errorf("actuator init failed: %w", err))
	}
	defer driver.Close()

	res := CalibrationResult{
		SchemaVersion: 1,
		CalibratedAt:  time.Now().Format(time.RFC3339),
		ControlMode:   cfg.ControlMode,
	}

	fmt.Println("Step 1/2 — Forward distance")
	cellSize := askFloat(in, "Cell size in centimeters (the map's grid spacing)", 10)
	pulses := askInt(in, "Number of Forward pulses to send", defaultForwardPulses)
	waitEnter(in, "Clear space ahead of the vehicle, then press ENTER to send the pulses...")

	if err := sendPulses(driver, command.Forward, pulses); err != nil {
		fatal(fmt.Errorf("sending forward pulses: %w", err))
	}
	measuredCm := askFloat(in, "Measured forward distance traveled (cm)", 0)

	res.CellSizeCm = cellSize
	res.ForwardPulses = pulses
	res.MeasuredCm = measuredCm
	res.MoveDistance = (measuredCm / cellSize) / float64(pulses)

	fmt.Printf("move_distance = %.4f grid cells per pulse\n\n", res.MoveDistance)

	fmt.Println("Step 2/2 — Turn angle")
	turnPulses := askInt(in, "Number of Right pulses to send", defaultTurnPulses)
	waitEnter(in, "Mark the vehicle's current heading, then press ENTER to send the pulses...")

	if err := sendPulses(driver, command.Right, turnPulses); err != nil {
		fatal(fmt.Errorf("sending turn pulses: %w", err))
	}
	measuredDeg := askFloat(in, "Measured total rotation (degrees)", 0)

	res.TurnPulses = turnPulses
	res.MeasuredDegree = measuredDeg
	res.TurnAngle = measuredDeg / float64(turnPulses)

	fmt.Printf("turn_angle = %.4f degrees per pulse\n\n", res.TurnAngle)

	if err := driver.Send(command.Stop); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to send final Stop: %v\n", err)
	}

	if err := writeResult(res); err != nil {
		fatal(err)
	}

	fmt.Println("Calibration complete. Apply these values via the apply_calibration message")
	fmt.Println("or by editing MOVE_DISTANCE and TURN_ANGLE in your config file.")
}

func newDriver(cfg *config.Config) (actuator.Driver, error) {
	switch cfg.ControlMode {
	case "gpio":
		return actuator.NewGPIODriver(actuator.DefaultGPIOPins())
	case "serial":
		return actuator.NewSerialDriver(actuator.SerialOptions{PortName: cfg.SerialPort, BaudRate: uint(cfg.SerialBaudRate)})
	default:
		return actuator.NewLogDriver(), nil
	}
}

func sendPulses(d actuator.Driver, cmd command.Command, count int) error {
	for i := 0; i < count; i++ {
		if err := d.Send(cmd); err != nil {
			return err
		}
		time.Sleep(pulseSettleDelay)
	}
	return d.Send(command.Stop)
}

func writeResult(res CalibrationResult) error {
	if err := os.MkdirAll("calibration", 0o755); err != nil {
		return err
	}
	ts := time.Now().Format("2006-01-02T15-04-05Z07-00")
	name := fmt.Sprintf("calibration/%s_pulse_calibration.json", ts)

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote: %s\n", name)
	return nil
}

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
}

func askFloat(in *bufio.Reader, prompt string, def float64) float64 {
	for {
		fmt.Printf("%s [%.2f]: ", prompt, def)
		line, _ := in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			return def
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			fmt.Println("Invalid number, try again.")
			continue
		}
		return v
	}
}

func askInt(in *bufio.Reader, prompt string, def int) int {
	for {
		fmt.Printf("%s [%d]: ", prompt, def)
		line, _ := in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			return def
		}
		v, err := strconv.Atoi(line)
		if err != nil {
			fmt.Println("Invalid number, try again.")
			continue
		}
		return v
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
