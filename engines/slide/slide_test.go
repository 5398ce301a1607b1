// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: engines/slide/slide_test.go
// Summary: Gradient math checks plus an end-to-end pan through a simulated
// terminal session.

package slide

import (
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"backdrop/termsession"
	"backdrop/wallpaper"
)

func TestRampClampsAndScales(t *testing.T) {
	if got := ramp(-5, 100); got != 0 {
		t.Fatalf("negative coordinate must clamp to 0, got %d", got)
	}
	if got := ramp(500, 100); got != 255 {
		t.Fatalf("overshoot must clamp to 255, got %d", got)
	}
	if got := ramp(0, 100); got != 0 {
		t.Fatalf("left edge must be 0, got %d", got)
	}
	if got := ramp(99, 100); got != 255 {
		t.Fatalf("right edge must be 255, got %d", got)
	}
	if ramp(0, 1) != 0 || ramp(0, 0) != 0 {
		t.Fatalf("degenerate extents must be 0")
	}
}

func TestColorAtMonotonicAlongX(t *testing.T) {
	prev := -1
	for vx := 0; vx < 40; vx++ {
		r, _, _ := colorAt(vx, 0, 40, 20)
		if int(r) < prev {
			t.Fatalf("red ramp not monotonic at vx=%d", vx)
		}
		prev = int(r)
	}
}

type nopConnection struct{}

func (nopConnection) EngineAttached(*wallpaper.EngineConn) error { return nil }

func waitForColor(t *testing.T, screen tcell.SimulationScreen, x, y int, want tcell.Color) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, _, style, _ := screen.GetContent(x, y)
		_, bg, _ := style.Decompose()
		if bg == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, _, style, _ := screen.GetContent(x, y)
	_, bg, _ := style.Decompose()
	t.Fatalf("cell (%d,%d) never reached %v, last %v", x, y, want, bg)
}

func TestEnginePansWithOffsets(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	screen.SetSize(20, 10)

	sess := termsession.New(screen)
	defer sess.Close()
	go func() { _ = sess.Run() }()

	svc := wallpaper.NewService(New, sess)
	// Request double the screen width; the session grants 20 columns, so
	// offsets have 20 pixels of slack to pan through.
	ec := svc.Attach(nopConnection{}, "slide", 40, 10)
	defer func() {
		ec.Destroy()
		<-ec.Done()
	}()

	r, g, b := colorAt(0, 0, 40, 20)
	waitForColor(t, screen, 0, 0, tcell.NewRGBColor(int32(r), int32(g), int32(b)))

	// Full right offset shifts the picture 20 pixels left, so column 0
	// shows the middle of the virtual gradient.
	ec.DispatchOffsets(1.0, 0)

	r, g, b = colorAt(20, 0, 40, 20)
	waitForColor(t, screen, 0, 0, tcell.NewRGBColor(int32(r), int32(g), int32(b)))
}
