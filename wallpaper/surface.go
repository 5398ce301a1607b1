// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: wallpaper/surface.go
// Summary: Drawable surface handle, the holder engines draw through, and the
// surface observer registry.

package wallpaper

import "sync"

// Surface is the drawable resource granted by the session. Pix holds
// row-major pixels, 4 bytes per pixel (RGBA), Stride bytes per row.
type Surface struct {
	Format PixelFormat
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewSurface allocates a surface buffer for the given geometry.
func NewSurface(format PixelFormat, width, height int) *Surface {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Surface{
		Format: format,
		Width:  width,
		Height: height,
		Stride: width * 4,
		Pix:    make([]byte, width*height*4),
	}
}

// SetPixel writes one RGBA pixel, ignoring out-of-range coordinates.
func (s *Surface) SetPixel(x, y int, r, g, b, a byte) {
	if s == nil || x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return
	}
	i := y*s.Stride + x*4
	s.Pix[i] = r
	s.Pix[i+1] = g
	s.Pix[i+2] = b
	s.Pix[i+3] = a
}

// Pixel reads one RGBA pixel. Out-of-range coordinates read as zero.
func (s *Surface) Pixel(x, y int) (r, g, b, a byte) {
	if s == nil || x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return 0, 0, 0, 0
	}
	i := y*s.Stride + x*4
	return s.Pix[i], s.Pix[i+1], s.Pix[i+2], s.Pix[i+3]
}

// SurfaceObserver receives surface lifecycle notifications in parallel with
// the primary engine callbacks.
type SurfaceObserver interface {
	SurfaceCreated(holder *SurfaceHolder)
	SurfaceChanged(holder *SurfaceHolder, format PixelFormat, width, height int)
	SurfaceDestroyed(holder *SurfaceHolder)
}

// SurfaceHolder gives an engine access to its surface and lets it adjust the
// requested geometry. Requests do not take effect immediately; they schedule
// a negotiation round on the engine's dispatch loop.
type SurfaceHolder struct {
	// mu is the surface lock. It guards the brief window in which the
	// drawing permission flips and the session relayout swaps the surface
	// handle, so a rendering thread never observes a half-updated surface.
	mu sync.Mutex

	surface        *Surface
	drawingAllowed bool
	isCreating     bool

	reqWidth  int
	reqHeight int
	reqFormat PixelFormat
	reqKind   SurfaceKind

	// onUpdate posts an UPDATE_SURFACE message to the owning dispatch loop.
	onUpdate func()

	obsMu     sync.Mutex
	observers []SurfaceObserver
}

func newSurfaceHolder() *SurfaceHolder {
	return &SurfaceHolder{reqFormat: FormatOpaque, reqKind: KindNormal}
}

// SetFixedSize requests an explicit surface size. Non-positive extents mean
// "fill the maximum available extent".
func (h *SurfaceHolder) SetFixedSize(width, height int) {
	h.mu.Lock()
	changed := h.reqWidth != width || h.reqHeight != height
	h.reqWidth, h.reqHeight = width, height
	h.mu.Unlock()
	if changed {
		h.requestUpdate()
	}
}

// SetFormat requests a pixel format for the surface.
func (h *SurfaceHolder) SetFormat(format PixelFormat) {
	h.mu.Lock()
	changed := h.reqFormat != format
	h.reqFormat = format
	h.mu.Unlock()
	if changed {
		h.requestUpdate()
	}
}

// SetKind requests the backing memory kind for the surface.
func (h *SurfaceHolder) SetKind(kind SurfaceKind) {
	h.mu.Lock()
	changed := h.reqKind != kind
	h.reqKind = kind
	h.mu.Unlock()
	if changed {
		h.requestUpdate()
	}
}

func (h *SurfaceHolder) requestUpdate() {
	if h.onUpdate != nil {
		h.onUpdate()
	}
}

// RequestedWidth returns the width last requested through SetFixedSize.
func (h *SurfaceHolder) RequestedWidth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reqWidth
}

// RequestedHeight returns the height last requested through SetFixedSize.
func (h *SurfaceHolder) RequestedHeight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reqHeight
}

// RequestedFormat returns the pixel format last requested.
func (h *SurfaceHolder) RequestedFormat() PixelFormat {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reqFormat
}

// RequestedKind returns the surface kind last requested.
func (h *SurfaceHolder) RequestedKind() SurfaceKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reqKind
}

// IsCreating reports whether a surface-created callback is currently running.
func (h *SurfaceHolder) IsCreating() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isCreating
}

func (h *SurfaceHolder) setCreating(creating bool) {
	h.mu.Lock()
	h.isCreating = creating
	h.mu.Unlock()
}

// Canvas returns the current surface for drawing, or nil while drawing is
// not allowed (before the first negotiation or after teardown).
func (h *SurfaceHolder) Canvas() *Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.drawingAllowed {
		return nil
	}
	return h.surface
}

func (h *SurfaceHolder) releaseSurface() {
	h.mu.Lock()
	h.surface = nil
	h.drawingAllowed = false
	h.mu.Unlock()
}

// AddObserver registers a listener for surface lifecycle notifications.
func (h *SurfaceHolder) AddObserver(o SurfaceObserver) {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	h.observers = append(h.observers, o)
}

// RemoveObserver drops a previously registered listener.
func (h *SurfaceHolder) RemoveObserver(o SurfaceObserver) {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	for i, cur := range h.observers {
		if cur == o {
			h.observers = append(h.observers[:i], h.observers[i+1:]...)
			break
		}
	}
}

// snapshotObservers copies the observer set so callbacks run without the
// registry lock held.
func (h *SurfaceHolder) snapshotObservers() []SurfaceObserver {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	if len(h.observers) == 0 {
		return nil
	}
	out := make([]SurfaceObserver, len(h.observers))
	copy(out, h.observers)
	return out
}
