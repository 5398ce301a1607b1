// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: wallpaper/session.go
// Summary: Window-session capability consumed by the engine host, plus the
// geometry types exchanged with it.

package wallpaper

import "errors"

// ErrSessionGone is the uniform failure reported by a Session whose remote
// side is unreachable. Every session error collapses to this; callers treat
// it as best-effort and move on.
var ErrSessionGone = errors.New("wallpaper: window session unavailable")

// FillParent, used as a requested extent, asks the session for the maximum
// available extent along that axis.
const FillParent = -1

// WindowToken identifies the compositor-side window slot an engine is bound to.
type WindowToken string

// PixelFormat identifies the pixel encoding of a surface.
type PixelFormat int32

const (
	FormatUnknown PixelFormat = iota
	FormatOpaque
	FormatTranslucent
)

// SurfaceKind selects the backing memory for a surface.
type SurfaceKind int32

const (
	KindNormal SurfaceKind = iota
	KindHardware
)

// WindowType classifies a window for the compositor's layering policy.
type WindowType int32

// TypeBackdrop windows sit behind every other layer.
const TypeBackdrop WindowType = 1

// LayoutFlags alter how the session positions and routes input to a window.
type LayoutFlags uint32

const (
	FlagLayoutNoLimits LayoutFlags = 1 << iota
	FlagLayoutInScreen
	FlagNotFocusable
	FlagNotTouchable
)

// Gravity anchors a window within its allotted frame.
type Gravity uint32

const (
	GravityLeft Gravity = 1 << iota
	GravityTop
)

// Rect is a resolved on-screen frame.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Insets describe reserved space along each edge of a frame.
type Insets struct {
	Left, Top, Right, Bottom int
}

// LayoutParams is the geometry descriptor handed to the session when adding
// or relaying out a window.
type LayoutParams struct {
	X, Y          int
	Width, Height int
	Format        PixelFormat
	MemoryKind    SurfaceKind
	Flags         LayoutFlags
	Type          WindowType
	Gravity       Gravity
	Token         WindowToken
}

// RelayoutResult carries flag bits returned by Session.Relayout.
type RelayoutResult uint32

// RelayoutFirstTime is set on the first successful layout of a window; the
// host must answer it with a FinishDrawing call once the first frame is ready.
const RelayoutFirstTime RelayoutResult = 0x1

// RelayoutReport is everything a relayout round resolves: the result flags,
// the frame the session actually granted, insets, and the drawable surface.
type RelayoutReport struct {
	Result        RelayoutResult
	Frame         Rect
	ContentInsets Insets
	VisibleInsets Insets
	Surface       *Surface
}

// Window is the callback half of the session contract. The session invokes
// these from its own threads; implementations marshal them onto the engine's
// dispatch loop.
type Window interface {
	// Resized reports a new frame from the compositor. When reportDraw is
	// set the session expects a FinishDrawing once the window has redrawn.
	Resized(width, height int, contentInsets, visibleInsets Insets, reportDraw bool)

	// DispatchVisibility reports the window becoming visible or hidden.
	DispatchVisibility(visible bool)

	// DispatchOffsets reports a new normalized scroll position in [0, 1].
	DispatchOffsets(x, y float64)
}

// Session is the window-compositing authority. All calls are synchronous
// round-trips; a failure of any kind surfaces as ErrSessionGone.
type Session interface {
	// Add registers a new window with the session. Returns the content
	// insets granted to the window.
	Add(w Window, params LayoutParams, visible bool) (Insets, error)

	// Relayout reconciles the requested geometry with the session's
	// allocation. The resolved frame may differ from the request.
	Relayout(w Window, params LayoutParams, width, height int, visible bool) (RelayoutReport, error)

	// FinishDrawing tells the session the window finished drawing a frame
	// it was asked to acknowledge.
	FinishDrawing(w Window) error

	// Remove drops the window from the session.
	Remove(w Window) error
}
