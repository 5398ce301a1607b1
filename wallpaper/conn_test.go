// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: wallpaper/conn_test.go
// Summary: Exercises the dispatch loop, lifecycle transitions, and the
// surface negotiation handshake against recording fakes.

package wallpaper

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeSession struct {
	mu        sync.Mutex
	calls     []string
	maxWidth  int
	maxHeight int
	relayouts int

	frameOverride *Rect

	addErr      error
	relayoutErr error
	finishErr   error
	removeErr   error
}

func newFakeSession() *fakeSession {
	return &fakeSession{maxWidth: 800, maxHeight: 600}
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *fakeSession) count(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (s *fakeSession) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *fakeSession) Add(w Window, params LayoutParams, visible bool) (Insets, error) {
	if s.addErr != nil {
		return Insets{}, s.addErr
	}
	s.record("add")
	return Insets{}, nil
}

func (s *fakeSession) Relayout(w Window, params LayoutParams, width, height int, visible bool) (RelayoutReport, error) {
	if s.relayoutErr != nil {
		return RelayoutReport{}, s.relayoutErr
	}
	s.record("relayout")

	frame := Rect{Width: width, Height: height}
	if frame.Width == FillParent {
		frame.Width = s.maxWidth
	}
	if frame.Height == FillParent {
		frame.Height = s.maxHeight
	}
	s.mu.Lock()
	if s.frameOverride != nil {
		frame = *s.frameOverride
	}
	s.relayouts++
	var result RelayoutResult
	if s.relayouts == 1 {
		result |= RelayoutFirstTime
	}
	s.mu.Unlock()

	return RelayoutReport{
		Result:  result,
		Frame:   frame,
		Surface: NewSurface(params.Format, frame.Width, frame.Height),
	}, nil
}

func (s *fakeSession) FinishDrawing(w Window) error {
	if s.finishErr != nil {
		return s.finishErr
	}
	s.record("finish")
	return nil
}

func (s *fakeSession) Remove(w Window) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.record("remove")
	return nil
}

type fakeEngine struct {
	mu     sync.Mutex
	events []string

	lastX, lastY       float64
	lastXPix, lastYPix int
}

func (e *fakeEngine) ev(s string) {
	e.mu.Lock()
	e.events = append(e.events, s)
	e.mu.Unlock()
}

func (e *fakeEngine) eventLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	copy(out, e.events)
	return out
}

func (e *fakeEngine) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == event {
			n++
		}
	}
	return n
}

func (e *fakeEngine) Create(holder *SurfaceHolder) { e.ev("create") }
func (e *fakeEngine) Destroy()                     { e.ev("destroy") }
func (e *fakeEngine) VisibilityChanged(visible bool) {
	e.ev(fmt.Sprintf("visibility:%v", visible))
}
func (e *fakeEngine) OffsetsChanged(x, y float64, xPix, yPix int) {
	e.mu.Lock()
	e.lastX, e.lastY = x, y
	e.lastXPix, e.lastYPix = xPix, yPix
	e.events = append(e.events, "offsets")
	e.mu.Unlock()
}
func (e *fakeEngine) SurfaceCreated(holder *SurfaceHolder) { e.ev("surfaceCreated") }
func (e *fakeEngine) SurfaceChanged(holder *SurfaceHolder, format PixelFormat, width, height int) {
	e.ev(fmt.Sprintf("surfaceChanged:%dx%d", width, height))
}
func (e *fakeEngine) SurfaceDestroyed(holder *SurfaceHolder) { e.ev("surfaceDestroyed") }

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) ev(s string) {
	o.mu.Lock()
	o.events = append(o.events, s)
	o.mu.Unlock()
}

func (o *recordingObserver) eventLog() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	copy(out, o.events)
	return out
}

func (o *recordingObserver) SurfaceCreated(holder *SurfaceHolder) { o.ev("surfaceCreated") }
func (o *recordingObserver) SurfaceChanged(holder *SurfaceHolder, format PixelFormat, width, height int) {
	o.ev("surfaceChanged")
}
func (o *recordingObserver) SurfaceDestroyed(holder *SurfaceHolder) { o.ev("surfaceDestroyed") }

type fakeConnection struct {
	mu       sync.Mutex
	attached int
	err      error
}

func (c *fakeConnection) EngineAttached(conn *EngineConn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.attached++
	return nil
}

// newTestConn builds an EngineConn whose messages the test drives by hand,
// keeping every assertion deterministic.
func newTestConn(sess *fakeSession, eng *fakeEngine, reqWidth, reqHeight int) *EngineConn {
	factory := func() Engine { return eng }
	return newEngineConn(factory, sess, &fakeConnection{}, "token-1", reqWidth, reqHeight)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAttachScenario(t *testing.T) {
	sess := newFakeSession()
	eng := &fakeEngine{}
	obs := &recordingObserver{}
	c := newTestConn(sess, eng, 400, 800)

	c.handle(message{what: msgAttach})
	c.holder.AddObserver(obs)

	if got := sess.callLog(); len(got) != 3 || got[0] != "add" || got[1] != "relayout" || got[2] != "finish" {
		t.Fatalf("expected add, relayout, finish; got %v", got)
	}
	wantEvents := []string{"create", "surfaceCreated", "surfaceChanged:400x800"}
	if got := eng.eventLog(); len(got) != 3 || got[0] != wantEvents[0] || got[1] != wantEvents[1] || got[2] != wantEvents[2] {
		t.Fatalf("expected %v, got %v", wantEvents, got)
	}
	if c.State() != StateAttached {
		t.Fatalf("expected attached state, got %v", c.State())
	}
	if !c.sstate.created || !c.sstate.destroyReportNeeded {
		t.Fatalf("surface state not marked created: %+v", c.sstate)
	}
	if c.holder.Canvas() == nil {
		t.Fatalf("expected a drawable canvas after negotiation")
	}

	// Visibility only reaches the engine; no renegotiation runs.
	c.handle(message{what: msgVisibilityChanged, arg: 0})
	if eng.count("visibility:false") != 1 {
		t.Fatalf("visibility callback not delivered: %v", eng.eventLog())
	}
	if sess.count("relayout") != 1 {
		t.Fatalf("visibility must not trigger relayout, got %d", sess.count("relayout"))
	}

	// A compositor resize with a diverging resolved frame forces another
	// round and acknowledges the draw.
	sess.mu.Lock()
	sess.frameOverride = &Rect{Width: 500, Height: 800}
	sess.mu.Unlock()
	c.handle(message{what: msgWindowResized, arg: 1})
	if sess.count("relayout") != 2 {
		t.Fatalf("expected forced relayout, got %d", sess.count("relayout"))
	}
	if eng.count("surfaceChanged:500x800") != 1 {
		t.Fatalf("expected changed callback for resolved frame, got %v", eng.eventLog())
	}
	if sess.count("finish") != 2 {
		t.Fatalf("expected finish drawing after reported resize, got %d", sess.count("finish"))
	}

	c.handle(message{what: msgDetach})
	if eng.count("destroy") != 1 {
		t.Fatalf("destroy callback missing: %v", eng.eventLog())
	}
	if got := obs.eventLog(); len(got) == 0 || got[len(got)-1] != "surfaceDestroyed" {
		t.Fatalf("observer missed surfaceDestroyed: %v", got)
	}
	if sess.count("remove") != 1 {
		t.Fatalf("expected session remove, got %d", sess.count("remove"))
	}
	if c.State() != StateDetached {
		t.Fatalf("expected detached state, got %v", c.State())
	}
	if c.sstate.created {
		t.Fatalf("created flag must clear on detach")
	}
}

func TestNegotiationIdempotent(t *testing.T) {
	sess := newFakeSession()
	eng := &fakeEngine{}
	c := newTestConn(sess, eng, 400, 800)

	c.handle(message{what: msgAttach})
	before := sess.callLog()
	events := eng.eventLog()

	c.handle(message{what: msgUpdateSurface})

	if got := sess.callLog(); len(got) != len(before) {
		t.Fatalf("unforced renegotiation made session calls: %v", got[len(before):])
	}
	if got := eng.eventLog(); len(got) != len(events) {
		t.Fatalf("unforced renegotiation fired callbacks: %v", got[len(events):])
	}
}

func TestObserverFanOutOnNegotiation(t *testing.T) {
	sess := newFakeSession()
	eng := &fakeEngine{}
	obs := &recordingObserver{}

	factory := func() Engine { return eng }
	c := newEngineConn(factory, sess, &fakeConnection{}, "token-1", 400, 800)
	// Observers registered before the first round see created and changed.
	c.engine = eng
	c.holder = newSurfaceHolder()
	c.holder.SetFixedSize(400, 800)
	c.holder.AddObserver(obs)
	c.setState(StateAttached)

	c.updateSurface(false)

	got := obs.eventLog()
	if len(got) != 2 || got[0] != "surfaceCreated" || got[1] != "surfaceChanged" {
		t.Fatalf("expected observer created+changed, got %v", got)
	}
}

func TestDetachWithoutCreation(t *testing.T) {
	sess := newFakeSession()
	sess.relayoutErr = ErrSessionGone
	eng := &fakeEngine{}
	obs := &recordingObserver{}
	c := newTestConn(sess, eng, 400, 800)

	c.handle(message{what: msgAttach})
	c.holder.AddObserver(obs)
	if c.sstate.created {
		t.Fatalf("creation should have failed")
	}

	c.handle(message{what: msgDetach})

	if sess.count("remove") != 0 {
		t.Fatalf("remove must not be called when the window was never created")
	}
	if len(obs.eventLog()) != 0 {
		t.Fatalf("no surface reports expected, got %v", obs.eventLog())
	}
	if eng.count("destroy") != 1 {
		t.Fatalf("destroy callback always runs on detach")
	}
}

func TestRelayoutFailureAbandonsRound(t *testing.T) {
	sess := newFakeSession()
	sess.relayoutErr = ErrSessionGone
	eng := &fakeEngine{}
	c := newTestConn(sess, eng, 400, 800)

	c.handle(message{what: msgAttach})

	if sess.count("finish") != 0 {
		t.Fatalf("abandoned round must not finish drawing")
	}
	if eng.count("surfaceCreated") != 0 {
		t.Fatalf("abandoned round must not report creation")
	}

	// The session comes back; the next round starts from scratch.
	sess.relayoutErr = nil
	c.handle(message{what: msgUpdateSurface})
	if eng.count("surfaceCreated") != 1 || sess.count("finish") != 1 {
		t.Fatalf("recovered round incomplete: %v / %v", eng.eventLog(), sess.callLog())
	}
}

func TestEventsAfterDetachDropped(t *testing.T) {
	sess := newFakeSession()
	eng := &fakeEngine{}
	c := newTestConn(sess, eng, 400, 800)

	c.handle(message{what: msgAttach})
	c.handle(message{what: msgDetach})

	c.handle(message{what: msgVisibilityChanged, arg: 1})
	c.handle(message{what: msgUpdateSurface})
	c.handle(message{what: msgOffsets})

	if eng.count("visibility:true") != 0 || eng.count("offsets") != 0 {
		t.Fatalf("events after detach must be dropped: %v", eng.eventLog())
	}
	if sess.count("relayout") != 1 {
		t.Fatalf("no negotiation after detach, got %d", sess.count("relayout"))
	}
}

func TestUnknownMessageDropped(t *testing.T) {
	sess := newFakeSession()
	eng := &fakeEngine{}
	c := newTestConn(sess, eng, 400, 800)

	c.handle(message{what: msgAttach})
	c.handle(message{what: 9999})

	if c.State() != StateAttached {
		t.Fatalf("unknown message must not change state, got %v", c.State())
	}
}

func TestOffsetsCoalesced(t *testing.T) {
	sess := newFakeSession()
	eng := &fakeEngine{}
	c := newTestConn(sess, eng, 1000, 1000)
	c.handle(message{what: msgAttach})
	// Drain the update queued by the initial SetFixedSize so the channel
	// holds only what this test enqueues.
	for len(c.msgs) > 0 {
		<-c.msgs
	}

	c.DispatchOffsets(0.1, 0.0)
	c.DispatchOffsets(0.2, 0.0)
	c.DispatchOffsets(0.5, 0.25)

	if got := len(c.msgs); got != 1 {
		t.Fatalf("expected exactly one coalesced dispatch, found %d queued", got)
	}
	c.handle(<-c.msgs)

	eng.mu.Lock()
	x, y := eng.lastX, eng.lastY
	eng.mu.Unlock()
	if x != 0.5 || y != 0.25 {
		t.Fatalf("expected latest offsets (0.5, 0.25), got (%v, %v)", x, y)
	}
	if eng.count("offsets") != 1 {
		t.Fatalf("expected one offsets callback, got %d", eng.count("offsets"))
	}

	// A submit after the consume opens a fresh cycle.
	c.DispatchOffsets(0.9, 0.9)
	if got := len(c.msgs); got != 1 {
		t.Fatalf("expected a new dispatch after consume, found %d queued", got)
	}
}

func TestOffsetsPixelConversion(t *testing.T) {
	sess := newFakeSession()
	sess.frameOverride = &Rect{Width: 800, Height: 1000}
	eng := &fakeEngine{}
	c := newTestConn(sess, eng, 1000, 1000)

	c.handle(message{what: msgAttach})

	c.DispatchOffsets(0.5, 0.5)
	c.handle(message{what: msgOffsets})

	eng.mu.Lock()
	xPix, yPix := eng.lastXPix, eng.lastYPix
	eng.mu.Unlock()
	// 200 spare pixels horizontally at offset 0.5 pan the window left by
	// 100; vertically there is no spare extent, so no pan.
	if xPix != -100 {
		t.Fatalf("expected x pixel offset -100, got %d", xPix)
	}
	if yPix != 0 {
		t.Fatalf("expected y pixel offset 0, got %d", yPix)
	}
}

func TestServiceSelfDestructOnNotifyFailure(t *testing.T) {
	sess := newFakeSession()
	var factoryCalls int
	var mu sync.Mutex
	factory := func() Engine {
		mu.Lock()
		factoryCalls++
		mu.Unlock()
		return &fakeEngine{}
	}
	svc := NewService(factory, sess)

	conn := &fakeConnection{err: errors.New("peer hung up")}
	c := svc.Attach(conn, "token-dead", 100, 100)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("instance did not self-destruct")
	}
	if c.State() != StateDetached {
		t.Fatalf("expected detached state, got %v", c.State())
	}
	mu.Lock()
	calls := factoryCalls
	mu.Unlock()
	if calls != 0 {
		t.Fatalf("engine must never be created when attach notification fails")
	}
	if sess.count("add") != 0 {
		t.Fatalf("session must stay untouched, got %v", sess.callLog())
	}
}

func TestServiceLifecycleEndToEnd(t *testing.T) {
	sess := newFakeSession()
	eng := &fakeEngine{}
	svc := NewService(func() Engine { return eng }, sess)

	conn := &fakeConnection{}
	c := svc.Attach(conn, "token-e2e", 320, 200)

	waitFor(t, "attach to complete", func() bool { return c.State() == StateAttached })
	waitFor(t, "first negotiation", func() bool { return eng.count("surfaceCreated") == 1 })

	conn.mu.Lock()
	attached := conn.attached
	conn.mu.Unlock()
	if attached != 1 {
		t.Fatalf("connection not notified, got %d", attached)
	}
	if svc.Active() != 1 {
		t.Fatalf("expected one active instance, got %d", svc.Active())
	}

	c.DispatchVisibility(true)
	waitFor(t, "visibility delivery", func() bool { return eng.count("visibility:true") == 1 })

	svc.Shutdown()
	if eng.count("destroy") != 1 {
		t.Fatalf("shutdown must destroy the engine: %v", eng.eventLog())
	}
	waitFor(t, "instance cleanup", func() bool { return svc.Active() == 0 })
}
