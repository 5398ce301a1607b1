// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: termsession/session.go
// Summary: Terminal-backed window session. Engine surfaces are downsampled
// to cell background colors on a tcell screen, one cell per pixel.

package termsession

import (
	"log"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"backdrop/wallpaper"
)

// Session implements wallpaper.Session on top of a tcell screen. Every
// registered window owns a rectangular region; a relayout resolves the
// requested extents against the screen and allocates a surface whose pixel
// grid maps one-to-one onto cells.
type Session struct {
	screen tcell.Screen

	mu      sync.Mutex
	closed  bool
	labels  bool
	windows map[wallpaper.Window]*windowState

	quit     chan struct{}
	quitOnce sync.Once
}

type windowState struct {
	params  wallpaper.LayoutParams
	frame   wallpaper.Rect
	surface *wallpaper.Surface
	laidOut bool
}

// New wraps an initialized tcell screen. The caller keeps ownership of the
// screen's lifetime; Close finalizes it.
func New(screen tcell.Screen) *Session {
	return &Session{
		screen:  screen,
		windows: make(map[wallpaper.Window]*windowState),
		quit:    make(chan struct{}),
	}
}

// SetLabels toggles the debug overlay that prints each window's token in its
// top-left corner.
func (s *Session) SetLabels(on bool) {
	s.mu.Lock()
	s.labels = on
	s.mu.Unlock()
}

// Add implements wallpaper.Session.
func (s *Session) Add(w wallpaper.Window, params wallpaper.LayoutParams, visible bool) (wallpaper.Insets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wallpaper.Insets{}, wallpaper.ErrSessionGone
	}
	if _, exists := s.windows[w]; exists {
		log.Printf("termsession: window %q added twice", params.Token)
		return wallpaper.Insets{}, wallpaper.ErrSessionGone
	}
	s.windows[w] = &windowState{params: params}
	return wallpaper.Insets{}, nil
}

// Relayout implements wallpaper.Session. Fill-parent extents resolve to the
// current screen size; a surface is reallocated whenever the resolved
// geometry or format moved.
func (s *Session) Relayout(w wallpaper.Window, params wallpaper.LayoutParams, width, height int, visible bool) (wallpaper.RelayoutReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wallpaper.RelayoutReport{}, wallpaper.ErrSessionGone
	}
	st, ok := s.windows[w]
	if !ok {
		return wallpaper.RelayoutReport{}, wallpaper.ErrSessionGone
	}
	st.params = params

	// The screen is all there is; oversized requests are granted at most
	// the full screen, which is how offset panning gets its slack.
	cols, rows := s.screen.Size()
	if width == wallpaper.FillParent || width > cols {
		width = cols
	}
	if height == wallpaper.FillParent || height > rows {
		height = rows
	}

	if st.surface == nil || st.surface.Width != width || st.surface.Height != height ||
		st.surface.Format != params.Format {
		st.surface = wallpaper.NewSurface(params.Format, width, height)
	}
	st.frame = wallpaper.Rect{X: params.X, Y: params.Y, Width: width, Height: height}

	var result wallpaper.RelayoutResult
	if !st.laidOut {
		result |= wallpaper.RelayoutFirstTime
		st.laidOut = true
	}

	return wallpaper.RelayoutReport{
		Result:  result,
		Frame:   st.frame,
		Surface: st.surface,
	}, nil
}

// FinishDrawing implements wallpaper.Session. The window's surface is blitted
// to the screen and presented.
func (s *Session) FinishDrawing(w wallpaper.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wallpaper.ErrSessionGone
	}
	st, ok := s.windows[w]
	if !ok {
		return wallpaper.ErrSessionGone
	}
	s.blit(st)
	s.screen.Show()
	return nil
}

// Remove implements wallpaper.Session.
func (s *Session) Remove(w wallpaper.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wallpaper.ErrSessionGone
	}
	st, ok := s.windows[w]
	if !ok {
		return wallpaper.ErrSessionGone
	}
	delete(s.windows, w)
	s.clear(st.frame)
	s.screen.Show()
	return nil
}

func (s *Session) blit(st *windowState) {
	surf := st.surface
	if surf == nil {
		return
	}
	for y := 0; y < surf.Height; y++ {
		for x := 0; x < surf.Width; x++ {
			r, g, b, _ := surf.Pixel(x, y)
			style := tcell.StyleDefault.Background(tcell.NewRGBColor(int32(r), int32(g), int32(b)))
			s.screen.SetContent(st.frame.X+x, st.frame.Y+y, ' ', nil, style)
		}
	}
	if s.labels {
		s.drawLabel(st)
	}
}

func (s *Session) drawLabel(st *windowState) {
	label := string(st.params.Token)
	if label == "" || st.frame.Width <= 0 || st.frame.Height <= 0 {
		return
	}
	label = runewidth.Truncate(label, st.frame.Width, "…")
	style := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
	x := st.frame.X
	for _, r := range label {
		s.screen.SetContent(x, st.frame.Y, r, nil, style)
		x += runewidth.RuneWidth(r)
	}
}

func (s *Session) clear(frame wallpaper.Rect) {
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			s.screen.SetContent(frame.X+x, frame.Y+y, ' ', nil, tcell.StyleDefault)
		}
	}
}

// Run pumps terminal events until Close. Screen resizes are pushed to every
// window with a redraw request; the session expects a FinishDrawing back for
// each.
func (s *Session) Run() error {
	eventChan := make(chan tcell.Event, 10)
	go func() {
		for {
			select {
			case <-s.quit:
				return
			default:
				eventChan <- s.screen.PollEvent()
			}
		}
	}()

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev := <-eventChan:
			s.handleEvent(ev)
		case <-ticker.C:
			// Engines paint into their surfaces between negotiation
			// rounds; pick those frames up without waiting for an
			// explicit FinishDrawing.
			s.mu.Lock()
			for _, st := range s.windows {
				s.blit(st)
			}
			s.screen.Show()
			s.mu.Unlock()
		case <-s.quit:
			return nil
		}
	}
}

func (s *Session) handleEvent(ev tcell.Event) {
	resize, ok := ev.(*tcell.EventResize)
	if !ok {
		return
	}
	width, height := resize.Size()

	s.mu.Lock()
	s.screen.Clear()
	targets := make([]wallpaper.Window, 0, len(s.windows))
	for w := range s.windows {
		targets = append(targets, w)
	}
	s.mu.Unlock()

	// Resized posts to each window's own dispatch loop, so the callbacks
	// must not run under the session lock.
	for _, w := range targets {
		w.Resized(width, height, wallpaper.Insets{}, wallpaper.Insets{}, true)
	}
}

// Close stops the event loop and finalizes the screen. Session calls made
// afterwards report ErrSessionGone.
func (s *Session) Close() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.screen.Fini()
}
