// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: wallpaper/service.go
// Summary: Entry point creating one engine instance per attach request.

package wallpaper

import "sync"

// Service hosts engine instances. One Service serves many concurrent,
// independent instances; each Attach spins up its own dispatch goroutine.
type Service struct {
	factory EngineFactory
	session Session

	mu    sync.Mutex
	conns map[*EngineConn]struct{}
}

// NewService builds a host around an engine factory and a window session.
func NewService(factory EngineFactory, session Session) *Service {
	return &Service{
		factory: factory,
		session: session,
		conns:   make(map[*EngineConn]struct{}),
	}
}

// Attach creates a new engine instance bound to the given window token and
// requested geometry, notifies the originating connection, and schedules the
// attach on the instance's dispatch loop. If the notification fails the
// instance tears itself down without ever completing the attach; the error
// never reaches the caller.
func (s *Service) Attach(conn Connection, token WindowToken, reqWidth, reqHeight int) *EngineConn {
	c := newEngineConn(s.factory, s.session, conn, token, reqWidth, reqHeight)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go func() {
		c.loop()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	if err := conn.EngineAttached(c); err != nil {
		c.Destroy()
	}
	c.post(message{what: msgAttach})
	return c
}

// Active reports how many engine instances are currently alive.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown destroys every live instance and waits for each to finish
// detaching.
func (s *Service) Shutdown() {
	s.mu.Lock()
	conns := make([]*EngineConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Destroy()
	}
	for _, c := range conns {
		<-c.Done()
	}
}
