// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: wallpaper/offsets.go
// Summary: Single-slot mailbox that coalesces bursty scroll-offset updates.

package wallpaper

import "sync"

// offsetMailbox merges high-frequency offset notifications arriving from
// arbitrary threads. Writers always overwrite the slot; at most one OFFSETS
// dispatch is outstanding at a time, so however many writes land while a
// dispatch is in flight, the consumer sees only the most recent pair.
type offsetMailbox struct {
	mu       sync.Mutex
	x, y     float64
	enqueued bool
}

// put stores the latest offsets and reports whether the caller should
// enqueue a dispatch (true only when none is pending).
func (m *offsetMailbox) put(x, y float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.x, m.y = x, y
	if m.enqueued {
		return false
	}
	m.enqueued = true
	return true
}

// take reads the stored offsets and clears the pending flag, opening the
// next dispatch cycle.
func (m *offsetMailbox) take() (x, y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = false
	return m.x, m.y
}

// pixelOffset converts a normalized offset into a pixel translation for one
// axis: the window slides left/up as the offset grows, so the sign is
// inverted, and the result clamps to zero when the requested extent does not
// exceed the current one.
func pixelOffset(reqExtent, curExtent int, offset float64) int {
	avail := reqExtent - curExtent
	if avail <= 0 {
		return 0
	}
	return -int(float64(avail)*offset + 0.5)
}
