// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: engines/slide/slide.go
// Summary: Demo engine painting a virtual gradient twice the window size and
// panning it with the reported pixel offsets.

package slide

import (
	"sync"

	"backdrop/wallpaper"
)

// Engine renders a diagonal color ramp over a virtual canvas larger than the
// window, so offset changes visibly slide the picture.
type Engine struct {
	mu     sync.Mutex
	holder *wallpaper.SurfaceHolder
	width  int
	height int
	xPix   int
	yPix   int
}

// New is a wallpaper.EngineFactory.
func New() wallpaper.Engine {
	return &Engine{}
}

func (e *Engine) Create(holder *wallpaper.SurfaceHolder) {
	e.mu.Lock()
	e.holder = holder
	e.mu.Unlock()
}

func (e *Engine) Destroy() {}

func (e *Engine) VisibilityChanged(visible bool) {
	if visible {
		e.repaint()
	}
}

func (e *Engine) OffsetsChanged(x, y float64, xPix, yPix int) {
	e.mu.Lock()
	e.xPix, e.yPix = xPix, yPix
	e.mu.Unlock()
	e.repaint()
}

func (e *Engine) SurfaceCreated(holder *wallpaper.SurfaceHolder) {}

func (e *Engine) SurfaceChanged(holder *wallpaper.SurfaceHolder, format wallpaper.PixelFormat, width, height int) {
	e.mu.Lock()
	e.holder = holder
	e.width, e.height = width, height
	e.mu.Unlock()
	e.repaint()
}

func (e *Engine) SurfaceDestroyed(holder *wallpaper.SurfaceHolder) {}

func (e *Engine) repaint() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holder == nil {
		return
	}
	canvas := e.holder.Canvas()
	if canvas == nil {
		return
	}

	// Pixel offsets are negative when the picture pans left/up, so the
	// virtual coordinate is the canvas coordinate minus the offset.
	vw, vh := e.width*2, e.height*2
	for y := 0; y < canvas.Height; y++ {
		for x := 0; x < canvas.Width; x++ {
			r, g, b := colorAt(x-e.xPix, y-e.yPix, vw, vh)
			canvas.SetPixel(x, y, r, g, b, 255)
		}
	}
}

// colorAt maps a virtual-canvas coordinate to a gradient color. Coordinates
// outside the canvas clamp to its edge.
func colorAt(vx, vy, vw, vh int) (r, g, b byte) {
	r = ramp(vx, vw)
	g = ramp(vy, vh)
	b = byte(255 - int(r)/2)
	return r, g, b
}

func ramp(v, extent int) byte {
	if extent <= 1 {
		return 0
	}
	if v < 0 {
		v = 0
	}
	if v > extent-1 {
		v = extent - 1
	}
	return byte(v * 255 / (extent - 1))
}
