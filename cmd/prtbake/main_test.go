package main

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/taigrr/prt/pkg/math3d"
)

func TestParseVec(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    math3d.Vec3
		wantErr bool
	}{
		{"integers", []string{"1", "2", "3"}, math3d.V3(1, 2, 3), false},
		{"floats", []string{"-0.5", "1e2", "0"}, math3d.V3(-0.5, 100, 0), false},
		{"not a number", []string{"1", "y", "3"}, math3d.Vec3{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVec(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScreenToSunDir(t *testing.T) {
	// The screen centre puts the sun overhead.
	if d := screenToSunDir(50, 20, 100, 40); !d.ApproxEqual(math3d.V3(0, -1, 0), 1e-9) {
		t.Errorf("centre = %v, want straight down", d)
	}
	// Corners clamp to the horizon but keep the sun above it.
	for _, p := range [][2]int{{0, 0}, {100, 40}, {0, 40}} {
		d := screenToSunDir(p[0], p[1], 100, 40)
		if math.Abs(d.Len()-1) > 1e-9 {
			t.Errorf("%v: direction %v is not unit length", p, d)
		}
		if d.Y >= 0 {
			t.Errorf("%v: direction %v shines upward", p, d)
		}
	}
}

func TestTonemap(t *testing.T) {
	got := tonemap(math3d.V3(0, 1, 1e9))
	if got.X != 0 || got.Y != 0.5 || math.Abs(got.Z-1) > 1e-6 {
		t.Errorf("tonemap = %v", got)
	}
}

func TestOrbitZoomClamps(t *testing.T) {
	o := newOrbitState(30, 10)
	o.Zoom(-100)
	if o.Distance != 1 {
		t.Errorf("zoomed in distance = %g, want 1", o.Distance)
	}
	o.Zoom(1000)
	if o.Distance != 40 {
		t.Errorf("zoomed out distance = %g, want 40", o.Distance)
	}
	o.Reset()
	if o.Distance != 10 {
		t.Errorf("reset distance = %g, want 10", o.Distance)
	}
}

func TestOrbitVelocityDecays(t *testing.T) {
	o := newOrbitState(60, 5)
	o.ApplyImpulse(0, 1)
	start := o.Yaw.Position
	for range 120 {
		o.Update()
	}
	if o.Yaw.Position <= start {
		t.Errorf("yaw did not move: %g", o.Yaw.Position)
	}
	if math.Abs(o.Yaw.Velocity) > 0.05 {
		t.Errorf("velocity %g did not decay", o.Yaw.Velocity)
	}
}

func TestBakeDefaultRoomReport(t *testing.T) {
	if testing.Short() {
		t.Skip("bakes a scene")
	}
	opts := options{tileSize: 8, bounces: 1}
	b, err := opts.bakeSector(context.Background(), true)
	if err != nil {
		t.Fatalf("bakeSector: %v", err)
	}
	if b.scene == nil || b.result.Capture == nil {
		t.Fatal("bake lost its scene or capture")
	}

	var buf bytes.Buffer
	writeReport(&buf, b.result)
	writeProbes(&buf, b.sector.Probes())
	out := buf.String()
	for _, want := range []string{"capture", "network", "surfels", "inner cells", "+X", "-Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("report is missing %q", want)
		}
	}

	dir := t.TempDir()
	for _, format := range []string{"png", "bmp"} {
		if err := dumpCapture(b.result.Capture, dir, format); err != nil {
			t.Errorf("dump %s: %v", format, err)
		}
	}
	if err := dumpCapture(nil, dir, "png"); err == nil {
		t.Error("dumping a missing capture should fail")
	}
}
