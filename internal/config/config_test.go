package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().validate(); err != nil {
		t.Fatalf("Default() failed validation: %v", err)
	}
}

func TestLoadMergesOverFileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tank_config.txt")
	body := "GRID_SIZE=30\nCONTROL_MODE=serial\nSERIAL_PORT=/dev/ttyUSB0\nDETECTOR_CLASSES=0,2,3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GridSize != 30 {
		t.Fatalf("GridSize = %d, want 30", cfg.GridSize)
	}
	if cfg.ControlMode != "serial" || cfg.SerialPort != "/dev/ttyUSB0" {
		t.Fatalf("ControlMode/SerialPort = %q/%q, want serial//dev/ttyUSB0", cfg.ControlMode, cfg.SerialPort)
	}
	if len(cfg.DetectorClasses) != 3 || cfg.DetectorClasses[2] != 3 {
		t.Fatalf("DetectorClasses = %v, want [0 2 3]", cfg.DetectorClasses)
	}
	// Untouched keys should retain Default()'s values.
	if cfg.HTTPPort != Default().HTTPPort {
		t.Fatalf("HTTPPort = %d, want default %d", cfg.HTTPPort, Default().HTTPPort)
	}
}

func TestLoadRejectsSerialModeWithoutPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tank_config.txt")
	if err := os.WriteFile(path, []byte("CONTROL_MODE=serial\nSERIAL_PORT=\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("Load() succeeded, want error for serial mode without SERIAL_PORT")
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tank_config.txt")
	if err := os.WriteFile(path, []byte("NOT_A_REAL_KEY=1\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("Load() succeeded, want error for unknown key")
	}
}

func TestInitGlobalEmptyPathFallsBackToDefault(t *testing.T) {
	resetGlobalForTest()
	if err := InitGlobal(""); err != nil {
		t.Fatalf("InitGlobal(\"\") error: %v", err)
	}
	if Get().GridSize != Default().GridSize {
		t.Fatalf("Get().GridSize = %d, want default %d", Get().GridSize, Default().GridSize)
	}
}

// resetGlobalForTest allows InitGlobal to run again within this test binary;
// production code never needs this since InitGlobal is called exactly once.
func resetGlobalForTest() {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig = nil
	configOnce = sync.Once{}
}
