package grid

import "testing"

func TestNewDefaultsSizeWhenNonPositive(t *testing.T) {
	g := New(0)
	if g.Size() != DefaultSize {
		t.Fatalf("Size() = %d, want %d", g.Size(), DefaultSize)
	}
}

func TestObstaclesOutOfBoundsAreBlocked(t *testing.T) {
	g := New(10)
	if !g.IsObstacle(-1, 0) || !g.IsObstacle(0, 10) {
		t.Fatalf("out-of-bounds cells should be treated as obstacles")
	}
}

func TestSetObstaclesReplacesEntireSet(t *testing.T) {
	g := New(10)
	g.SetObstacles([][2]int{{1, 1}, {2, 2}})
	if !g.IsObstacle(1, 1) || !g.IsObstacle(2, 2) {
		t.Fatalf("expected (1,1) and (2,2) to be obstacles")
	}
	g.SetObstacles([][2]int{{3, 3}})
	if g.IsObstacle(1, 1) {
		t.Fatalf("(1,1) should have been cleared by the second SetObstacles call")
	}
	if !g.IsObstacle(3, 3) {
		t.Fatalf("(3,3) should be an obstacle")
	}
}

func TestStoreCalibrationRoundTrip(t *testing.T) {
	s := NewStore(20, DefaultCalibration())
	got := s.Calibration()
	if got != DefaultCalibration() {
		t.Fatalf("Calibration() = %+v, want %+v", got, DefaultCalibration())
	}

	next := CalibrationParams{MoveDistance: 1, TurnAngle: 90}
	s.SetCalibration(next)
	if got := s.Calibration(); got != next {
		t.Fatalf("Calibration() after SetCalibration = %+v, want %+v", got, next)
	}
}
