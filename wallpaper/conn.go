// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: wallpaper/conn.go
// Summary: Per-instance dispatch loop, lifecycle state machine, and the
// surface negotiation handshake with the window session.

package wallpaper

import (
	"log"
	"sync"
)

// Message codes. Lifecycle codes are low, window-event codes high; the
// ranges are disjoint so a log line identifies the source at a glance.
const (
	msgAttach = 10
	msgDetach = 20

	msgUpdateSurface     = 10000
	msgVisibilityChanged = 10010
	msgOffsets           = 10020
	msgWindowResized     = 10030
)

// message is one tagged event in an instance's queue. arg carries the
// optional scalar payload (bools travel as 0/1).
type message struct {
	what int
	arg  int
}

// State tracks an engine instance through its lifecycle.
type State int

const (
	StateUnattached State = iota
	StateAttaching
	StateAttached
	StateDetaching
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	case StateDetached:
		return "detached"
	}
	return "unknown"
}

// Connection is the originating side of an attach request. The host notifies
// it as soon as the instance exists; if that notification fails the instance
// self-destructs instead of surfacing the error.
type Connection interface {
	EngineAttached(conn *EngineConn) error
}

// surfaceState is the negotiated window state for one instance. Touched only
// from the dispatch goroutine.
type surfaceState struct {
	width, height       int
	format              PixelFormat
	kind                SurfaceKind
	curWidth, curHeight int
	created             bool
	destroyReportNeeded bool
}

// EngineConn owns one engine instance: it funnels cross-thread calls into a
// single ordered queue consumed by one goroutine, and drives the lifecycle
// state machine and surface negotiation from that goroutine.
//
// EngineConn implements Window, so the session delivers resize, visibility,
// and offset callbacks straight to the instance they concern.
type EngineConn struct {
	factory EngineFactory
	session Session
	conn    Connection

	token     WindowToken
	reqWidth  int
	reqHeight int

	msgs chan message
	done chan struct{}

	// Everything below is owned by the dispatch goroutine.
	state  State
	engine Engine
	holder *SurfaceHolder
	sstate surfaceState
	layout LayoutParams

	winFrame      Rect
	contentInsets Insets
	visibleInsets Insets

	offsets offsetMailbox

	stateMu sync.Mutex // guards state for the State() accessor only
}

func newEngineConn(factory EngineFactory, session Session, conn Connection, token WindowToken, reqWidth, reqHeight int) *EngineConn {
	return &EngineConn{
		factory:   factory,
		session:   session,
		conn:      conn,
		token:     token,
		reqWidth:  reqWidth,
		reqHeight: reqHeight,
		msgs:      make(chan message, 64),
		done:      make(chan struct{}),
	}
}

// State reports the instance's lifecycle state.
func (c *EngineConn) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *EngineConn) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Token returns the window identity this instance is bound to.
func (c *EngineConn) Token() WindowToken { return c.token }

// Done is closed once the instance has fully detached.
func (c *EngineConn) Done() <-chan struct{} { return c.done }

// Destroy requests teardown. It may be called from any thread and returns
// immediately; the detach sequence runs on the dispatch goroutine.
func (c *EngineConn) Destroy() {
	c.post(message{what: msgDetach})
}

// Resized implements Window. The session's geometry push is converted into a
// forced negotiation on the dispatch loop.
func (c *EngineConn) Resized(width, height int, contentInsets, visibleInsets Insets, reportDraw bool) {
	c.post(message{what: msgWindowResized, arg: boolArg(reportDraw)})
}

// DispatchVisibility implements Window.
func (c *EngineConn) DispatchVisibility(visible bool) {
	c.post(message{what: msgVisibilityChanged, arg: boolArg(visible)})
}

// DispatchOffsets implements Window. The offsets land in the mailbox from
// the calling thread; only a marker message crosses into the queue, and only
// when no dispatch is already pending.
func (c *EngineConn) DispatchOffsets(x, y float64) {
	if c.offsets.put(x, y) {
		c.post(message{what: msgOffsets})
	}
}

// post appends a message to the instance queue, dropping it once the
// instance has detached so late senders never block on a dead loop.
func (c *EngineConn) post(m message) {
	select {
	case <-c.done:
	case c.msgs <- m:
	}
}

// loop is the dispatch goroutine: one per instance, consuming messages in
// enqueue order until detach completes.
func (c *EngineConn) loop() {
	for m := range c.msgs {
		c.handle(m)
		if c.State() == StateDetached {
			close(c.done)
			return
		}
	}
}

func (c *EngineConn) handle(m message) {
	switch m.what {
	case msgAttach:
		if c.State() != StateUnattached {
			// Attach after self-destruct (or a duplicate) is dropped.
			return
		}
		c.attach()
	case msgDetach:
		c.detach()
	case msgUpdateSurface:
		if !c.live() {
			return
		}
		c.updateSurface(false)
	case msgVisibilityChanged:
		if !c.live() {
			return
		}
		c.engine.VisibilityChanged(m.arg != 0)
	case msgOffsets:
		if !c.live() {
			return
		}
		x, y := c.offsets.take()
		xPixels := pixelOffset(c.reqWidth, c.sstate.curWidth, x)
		yPixels := pixelOffset(c.reqHeight, c.sstate.curHeight, y)
		c.engine.OffsetsChanged(x, y, xPixels, yPixels)
	case msgWindowResized:
		if !c.live() {
			return
		}
		c.updateSurface(true)
		if m.arg != 0 {
			if err := c.session.FinishDrawing(c); err != nil {
				log.Printf("wallpaper: finish drawing after resize: %v", err)
			}
		}
	default:
		log.Printf("wallpaper: unknown message type %d", m.what)
	}
}

// live reports whether window events should still reach the engine.
func (c *EngineConn) live() bool {
	s := c.State()
	return c.engine != nil && (s == StateAttaching || s == StateAttached)
}

func (c *EngineConn) attach() {
	c.setState(StateAttaching)

	c.engine = c.factory()
	c.holder = newSurfaceHolder()
	c.holder.onUpdate = func() {
		c.post(message{what: msgUpdateSurface})
	}
	c.holder.SetFixedSize(c.reqWidth, c.reqHeight)

	c.engine.Create(c.holder)

	c.setState(StateAttached)
	c.updateSurface(false)
}

func (c *EngineConn) detach() {
	if c.State() == StateDetached {
		return
	}
	c.setState(StateDetaching)

	if c.engine != nil {
		c.engine.Destroy()
		if c.sstate.destroyReportNeeded {
			c.sstate.destroyReportNeeded = false
			for _, o := range c.holder.snapshotObservers() {
				o.SurfaceDestroyed(c.holder)
			}
		}
	}
	if c.sstate.created {
		if err := c.session.Remove(c); err != nil {
			log.Printf("wallpaper: remove window %q: %v", c.token, err)
		}
		c.holder.releaseSurface()
		c.sstate.created = false
	}

	c.setState(StateDetached)
}

// updateSurface performs one negotiation round with the session. It is a
// no-op unless forced or something about the requested geometry changed.
// A session failure abandons the round mid-flight; state written so far is
// deliberately kept (best-effort semantics, no rollback).
func (c *EngineConn) updateSurface(force bool) {
	myWidth := c.holder.RequestedWidth()
	if myWidth <= 0 {
		myWidth = FillParent
	}
	myHeight := c.holder.RequestedHeight()
	if myHeight <= 0 {
		myHeight = FillParent
	}

	creating := !c.sstate.created
	formatChanged := c.sstate.format != c.holder.RequestedFormat()
	sizeChanged := c.sstate.width != myWidth || c.sstate.height != myHeight
	typeChanged := c.sstate.kind != c.holder.RequestedKind()

	if !force && !creating && !formatChanged && !sizeChanged && !typeChanged {
		return
	}

	c.sstate.width = myWidth
	c.sstate.height = myHeight
	c.sstate.format = c.holder.RequestedFormat()
	c.sstate.kind = c.holder.RequestedKind()

	c.layout.X = 0
	c.layout.Y = 0
	c.layout.Width = myWidth
	c.layout.Height = myHeight
	c.layout.Format = c.sstate.format
	c.layout.Flags |= FlagLayoutNoLimits |
		FlagLayoutInScreen |
		FlagNotFocusable |
		FlagNotTouchable
	c.layout.MemoryKind = c.sstate.kind
	c.layout.Token = c.token

	if !c.sstate.created {
		c.layout.Type = TypeBackdrop
		c.layout.Gravity = GravityLeft | GravityTop
		insets, err := c.session.Add(c, c.layout, true)
		if err != nil {
			log.Printf("wallpaper: add window %q: %v", c.token, err)
			return
		}
		c.contentInsets = insets
	}

	c.holder.mu.Lock()
	c.holder.drawingAllowed = true
	report, err := c.session.Relayout(c, c.layout, myWidth, myHeight, true)
	if err != nil {
		c.holder.mu.Unlock()
		log.Printf("wallpaper: relayout window %q: %v", c.token, err)
		return
	}
	c.holder.surface = report.Surface
	c.winFrame = report.Frame
	c.contentInsets = report.ContentInsets
	c.visibleInsets = report.VisibleInsets

	// The session may grant a different frame than requested; a changed
	// resolved size must fire the changed callback even when the requested
	// size did not move.
	if w := report.Frame.Width; c.sstate.curWidth != w {
		sizeChanged = true
		c.sstate.curWidth = w
	}
	if h := report.Frame.Height; c.sstate.curHeight != h {
		sizeChanged = true
		c.sstate.curHeight = h
	}
	c.holder.mu.Unlock()

	c.sstate.destroyReportNeeded = true
	observers := c.holder.snapshotObservers()

	defer func() {
		c.holder.setCreating(false)
		c.sstate.created = true
		if creating || report.Result&RelayoutFirstTime != 0 {
			if err := c.session.FinishDrawing(c); err != nil {
				log.Printf("wallpaper: finish drawing window %q: %v", c.token, err)
			}
		}
	}()

	if creating {
		c.holder.setCreating(true)
		c.engine.SurfaceCreated(c.holder)
		for _, o := range observers {
			o.SurfaceCreated(c.holder)
		}
	}
	// typeChanged alone gets a window through negotiation but does not
	// fire the changed callback.
	if force || creating || formatChanged || sizeChanged {
		c.engine.SurfaceChanged(c.holder, c.sstate.format, c.sstate.curWidth, c.sstate.curHeight)
		for _, o := range observers {
			o.SurfaceChanged(c.holder, c.sstate.format, c.sstate.curWidth, c.sstate.curHeight)
		}
	}
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}
