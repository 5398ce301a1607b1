// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: wallpaper/engine.go
// Summary: Pluggable engine callback surface implemented by wallpaper renderers.

package wallpaper

// Engine is the pluggable rendering implementation hosted by an EngineConn.
// All callbacks run on the instance's dispatch goroutine, in event order; an
// engine never needs its own locking for state touched only from callbacks.
//
// Engines only draw. Lifecycle, surface negotiation, and offset coalescing
// are owned by the host.
type Engine interface {
	// Create is called once, before the engine's surface exists. The holder
	// stays valid until Destroy returns.
	Create(holder *SurfaceHolder)

	// Destroy is called right before the engine goes away. The surface is
	// torn down afterwards.
	Destroy()

	// VisibilityChanged reports the wallpaper becoming visible or hidden.
	// An engine should not burn CPU while hidden.
	VisibilityChanged(visible bool)

	// OffsetsChanged reports the latest coalesced scroll position, both
	// normalized and converted to pixel offsets against the current frame.
	OffsetsChanged(xOffset, yOffset float64, xPixels, yPixels int)

	// SurfaceCreated fires after the first successful negotiation round.
	SurfaceCreated(holder *SurfaceHolder)

	// SurfaceChanged fires whenever the resolved format or size changed.
	SurfaceChanged(holder *SurfaceHolder, format PixelFormat, width, height int)

	// SurfaceDestroyed fires when the surface is being torn down. Note the
	// detach path reports destruction to registered surface observers; an
	// engine that needs this signal should also register itself as an
	// observer on its holder.
	SurfaceDestroyed(holder *SurfaceHolder)
}

// EngineFactory produces one Engine per attach request. Supplied by the
// hosting program.
type EngineFactory func() Engine
