package models

import (
	"errors"
	"math"
	"testing"
)

func TestParseMode(t *testing.T) {
	for _, s := range []string{"standDown", "stand", "walk", "recoverStand", "straightHand1"} {
		m, err := ParseMode(s)
		if err != nil {
			t.Fatalf("ParseMode(%q) failed: %v", s, err)
		}
		if string(m) != s {
			t.Errorf("ParseMode(%q) = %q", s, m)
		}
	}

	if _, err := ParseMode("moonwalk"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestNewLEDColorClamps(t *testing.T) {
	tests := []struct {
		r, g, b int
		want    LEDColor
	}{
		{255, 0, 0, LEDColor{255, 0, 0}},
		{-5, 128, 300, LEDColor{0, 128, 255}},
		{0, 0, 0, LEDColor{}},
	}

	for _, tt := range tests {
		if got := NewLEDColor(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("NewLEDColor(%d, %d, %d) = %+v, want %+v", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestPoseAxesValidate(t *testing.T) {
	valid := []PoseAxes{
		{},
		{Lean: -1, Twist: 1, Look: 0.5, Extend: -0.25},
	}
	for _, p := range valid {
		if err := p.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v", p, err)
		}
	}

	invalid := []PoseAxes{
		{Lean: 1.01},
		{Twist: -2},
		{Look: math.NaN()},
		{Extend: math.Inf(1)},
	}
	for _, p := range invalid {
		if err := p.Validate(); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidArgument", p, err)
		}
	}
}

func TestPoseAxesStick(t *testing.T) {
	p := PoseAxes{Lean: -1, Twist: 0.5, Look: 0.25, Extend: 1}
	want := StickCommand{LX: -1, RX: 0.5, RY: 0.25, LY: 1}
	if got := p.Stick(); got != want {
		t.Errorf("Stick() = %+v, want %+v", got, want)
	}
	if !(PoseAxes{}).Stick().IsNeutral() {
		t.Error("Zero pose should map to neutral stick")
	}
}

func TestDistanceWarningClosest(t *testing.T) {
	d := DistanceWarning{Front: 0.8, Left: 0.3, Right: 0.9, Back: 1}
	dir, v := d.Closest()
	if dir != "left" || v != 0.3 {
		t.Errorf("Closest() = %s %v, want left 0.3", dir, v)
	}
}
