package server

import (
	"context"
	"net"
	"os"
	"sync"

	"backdrop/store"
	"backdrop/wallpaper"
)

// Server listens on a Unix domain socket and hosts engine instances for
// compositor-side clients.
type Server struct {
	addr     string
	svc      *wallpaper.Service
	st       *store.Store
	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewServer wires a listener address to an engine service. st may be nil to
// run without persistence.
func NewServer(addr string, svc *wallpaper.Service, st *store.Store) *Server {
	return &Server{addr: addr, svc: svc, st: st, quit: make(chan struct{})}
}

func (s *Server) Start() error {
	if err := os.RemoveAll(s.addr); err != nil {
		return err
	}
	l, err := net.Listen("unix", s.addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			continue
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer c.Close()
			conn := newConnection(c, s.svc, s.st)
			_ = conn.serve()
		}(conn)
	}
}

func (s *Server) Stop(ctx context.Context) error {
	close(s.quit)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Service exposes the hosted engine service, mainly for tests and stats.
func (s *Server) Service() *wallpaper.Service {
	return s.svc
}
