// Package app wires the tank's subsystems together into one running
// service: config, grid/pose state, the command arbiter and its fan-out
// targets, the navigation planner, the camera/detection pipeline, and the
// operator-facing HTTP/WebSocket surface.
package app

import (
	"fmt"
	"log"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/tankcore/internal/actuator"
	"github.com/relabs-tech/tankcore/internal/arbiter"
	"github.com/relabs-tech/tankcore/internal/autonav"
	"github.com/relabs-tech/tankcore/internal/camera"
	"github.com/relabs-tech/tankcore/internal/config"
	"github.com/relabs-tech/tankcore/internal/detector"
	"github.com/relabs-tech/tankcore/internal/grid"
	"github.com/relabs-tech/tankcore/internal/planner"
	"github.com/relabs-tech/tankcore/internal/pose"
	"github.com/relabs-tech/tankcore/internal/telemetry"
	"github.com/relabs-tech/tankcore/internal/transport"
	"github.com/relabs-tech/tankcore/internal/virtualrobot"
)

// RunTank wires every subsystem from cfg and serves the operator HTTP/WS
// surface until the process is terminated.
func RunTank(cfg *config.Config) error {
	store := grid.NewStore(cfg.GridSize, grid.CalibrationParams{
		MoveDistance:   cfg.MoveDistance,
		TurnAngle:      cfg.TurnAngle,
		ForwardDelay:   cfg.ForwardDelay,
		TurnDelayLeft:  cfg.TurnDelayLeft,
		TurnDelayRight: cfg.TurnDelayRight,
	})

	startPose := pose.Pose{X: cfg.StartCol, Y: cfg.StartRow, Theta: cfg.StartTheta}
	poseEstimator := pose.New(store, startPose)
	vrobot := virtualrobot.New(store, startPose)

	driver, err := newActuatorDriver(cfg)
	if err != nil {
		return fmt.Errorf("app: actuator driver: %w", err)
	}
	defer driver.Close()

	hub := telemetry.NewHub()
	if cfg.MQTTBroker != "" {
		client, err := connectMQTT(cfg)
		if err != nil {
			log.Printf("app: mqtt telemetry bridge disabled: %v", err)
		} else {
			hub.EnableMQTT(client, cfg.MQTTTopic)
		}
	}

	arb := arbiter.New(driver, hub)
	arb.AddObserver(poseEstimator)
	arb.AddObserver(vrobot)

	nav := planner.New(arb, poseEstimator, store)
	autonavPolicy := autonav.New(arb, cfg.DetectorClasses)
	autonavPolicy.SetEnabled(cfg.AutoNavigationEnabled)
	hub.SetAutoNavigation(cfg.AutoNavigationEnabled)

	capture := camera.New(camera.NewSyntheticSource(cfg.CameraWidth, cfg.CameraHeight))
	objectDetector := loadDetector(cfg)
	detections := &detector.LatestHolder{}

	var reconnecter transport.Reconnecter
	if r, ok := driver.(transport.Reconnecter); ok {
		reconnecter = r
	}

	core := &transport.Core{
		Arbiter:      arb,
		Planner:      nav,
		Pose:         poseEstimator,
		VirtualRobot: vrobot,
		Store:        store,
		Hub:          hub,
		AutoNav:      autonavPolicy,
		Capture:      capture,
		Actuator:     reconnecter,
		StartPose:    startPose,
	}

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/video/mjpeg", core.HandleVideoMJPEG(detections))

	group := new(errgroup.Group)
	group.Go(capture.Run)
	group.Go(hub.Run)
	group.Go(func() error {
		return runInferenceLoop(capture, objectDetector, autonavPolicy, detections, cfg.CameraWidth)
	})
	group.Go(func() error {
		return runPoseBroadcast(poseEstimator, hub)
	})

	if cfg.WSPort == cfg.HTTPPort {
		// Same port: the WebSocket routes share the operator HTTP server.
		httpMux.HandleFunc("/ws/control", core.HandleControlWS)
		httpMux.HandleFunc("/ws/video", core.HandleVideoWS(detections))
		group.Go(serveHTTP(httpMux, cfg.HTTPPort, "operator"))
	} else {
		wsMux := http.NewServeMux()
		wsMux.HandleFunc("/ws/control", core.HandleControlWS)
		wsMux.HandleFunc("/ws/video", core.HandleVideoWS(detections))
		group.Go(serveHTTP(httpMux, cfg.HTTPPort, "video"))
		group.Go(serveHTTP(wsMux, cfg.WSPort, "websocket"))
	}

	return group.Wait()
}

func serveHTTP(mux *http.ServeMux, port int, name string) func() error {
	return func() error {
		addr := fmt.Sprintf(":%d", port)
		log.Printf("app: %s server listening on %s", name, addr)
		return http.ListenAndServe(addr, mux)
	}
}

func newActuatorDriver(cfg *config.Config) (actuator.Driver, error) {
	switch cfg.ControlMode {
	case "gpio":
		return actuator.NewGPIODriver(actuator.DefaultGPIOPins())
	case "serial":
		return actuator.NewSerialDriver(actuator.SerialOptions{PortName: cfg.SerialPort, BaudRate: uint(cfg.SerialBaudRate)})
	default:
		return actuator.NewLogDriver(), nil
	}
}

func connectMQTT(cfg *config.Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("app: connected to MQTT broker at %s", cfg.MQTTBroker)
	return client, nil
}

func loadDetector(cfg *config.Config) detector.Variant {
	if cfg.DetectorModelPath == "" {
		log.Println("app: no detector model configured, running with auto-navigation disabled inference")
		return detector.Absent
	}
	// Loading a real model is out of scope for the core; the model path is
	// accepted and surfaced here so a collaborator can wire a concrete
	// Detector implementation in without touching the rest of the pipeline.
	log.Printf("app: detector model %s not loaded by the core, treating as absent", cfg.DetectorModelPath)
	return detector.Absent
}

func runInferenceLoop(capture *camera.Capture, det detector.Variant, policy *autonav.Policy, out *detector.LatestHolder, frameWidth int) error {
	frames := capture.Frames()
	for {
		select {
		case frame := <-frames:
			boxes := det.Infer(frame)
			out.Set(boxes)
			policy.OnDetections(boxes, frameWidth)
		case <-capture.Done():
			return nil
		}
	}
}

const poseBroadcastInterval = 100 * time.Millisecond

func runPoseBroadcast(estimator *pose.Estimator, hub *telemetry.Hub) error {
	ticker := time.NewTicker(poseBroadcastInterval)
	defer ticker.Stop()

	var last pose.Pose
	have := false
	for range ticker.C {
		p := estimator.Snapshot()
		if !have || p != last {
			hub.PublishPose(p.Y, p.X, p.Theta)
			last = p
			have = true
		}
	}
	return nil
}
