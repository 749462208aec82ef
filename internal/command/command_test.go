package command

import "testing"

func TestValid(t *testing.T) {
	for _, c := range []Command{Forward, Backward, Left, Right, Stop} {
		if !c.Valid() {
			t.Fatalf("%q reported invalid, want valid", c)
		}
	}
	if Command("X").Valid() {
		t.Fatalf("unknown command reported valid")
	}
}

func TestOutranks(t *testing.T) {
	if !SourceEmergency.Outranks(SourceJoystick) {
		t.Fatalf("emergency should outrank joystick")
	}
	if SourceAutoNav.Outranks(SourceMapPlanner) {
		t.Fatalf("auto_nav should not outrank map_planner")
	}
	if SourceJoystick.Outranks(SourceJoystick) {
		t.Fatalf("a source should not outrank itself")
	}
}

func TestToCommandDeadzone(t *testing.T) {
	cases := []struct {
		name  string
		input ControlInput
		want  Command
	}{
		{"within deadzone both axes", ControlInput{Forward: 10, Turn: -5}, Stop},
		{"forward dominant", ControlInput{Forward: 80, Turn: 20}, Forward},
		{"backward dominant", ControlInput{Forward: -80, Turn: 20}, Backward},
		{"turn dominant right", ControlInput{Forward: 20, Turn: 80}, Right},
		{"turn dominant left", ControlInput{Forward: 20, Turn: -80}, Left},
		{"forward only, turn in deadzone", ControlInput{Forward: 50, Turn: 5}, Forward},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.input.ToCommand(); got != c.want {
				t.Fatalf("ToCommand(%+v) = %q, want %q", c.input, got, c.want)
			}
		})
	}
}
