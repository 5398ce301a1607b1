package server

import (
	"crypto/rand"
	"io"
	"log"
	"net"
	"sync"

	"backdrop/protocol"
	"backdrop/store"
	"backdrop/wallpaper"
)

// connection serves one compositor-side client. Each attach request on the
// connection creates an independent engine instance; the connection doubles
// as the notification channel those instances report back through.
type connection struct {
	conn    net.Conn
	svc     *wallpaper.Service
	st      *store.Store
	id      [16]byte
	writeMu sync.Mutex

	mu      sync.Mutex
	engines map[wallpaper.WindowToken]*wallpaper.EngineConn
}

func newConnection(conn net.Conn, svc *wallpaper.Service, st *store.Store) *connection {
	c := &connection{
		conn:    conn,
		svc:     svc,
		st:      st,
		engines: make(map[wallpaper.WindowToken]*wallpaper.EngineConn),
	}
	if _, err := rand.Read(c.id[:]); err != nil {
		log.Printf("server: session id: %v", err)
	}
	return c
}

// EngineAttached notifies the client that its engine exists. A write failure
// here makes the instance self-destruct on the wallpaper side.
func (c *connection) EngineAttached(ec *wallpaper.EngineConn) error {
	payload, err := protocol.EncodeEngineAttached(protocol.EngineAttached{Token: string(ec.Token())})
	if err != nil {
		return err
	}
	return c.writeControlMessage(protocol.MsgEngineAttached, payload)
}

func (c *connection) serve() error {
	defer c.teardown()

	for {
		header, payload, err := protocol.ReadMessage(c.conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch header.Type {
		case protocol.MsgHello:
			if _, err := protocol.DecodeHello(payload); err != nil {
				return err
			}
			welcome, err := protocol.EncodeWelcome(protocol.Welcome{SessionID: c.id, ServerName: "backdropd"})
			if err != nil {
				return err
			}
			if err := c.writeControlMessage(protocol.MsgWelcome, welcome); err != nil {
				return err
			}
		case protocol.MsgAttach:
			attach, err := protocol.DecodeAttach(payload)
			if err != nil {
				return err
			}
			c.handleAttach(attach)
		case protocol.MsgDetach:
			detach, err := protocol.DecodeDetach(payload)
			if err != nil {
				return err
			}
			c.handleDetach(wallpaper.WindowToken(detach.Token))
		case protocol.MsgVisibility:
			vis, err := protocol.DecodeVisibility(payload)
			if err != nil {
				return err
			}
			if ec := c.lookup(wallpaper.WindowToken(vis.Token)); ec != nil {
				ec.DispatchVisibility(vis.Visible)
			}
			c.persist(vis.Token, func(st *store.Store) error {
				return st.SaveVisibility(vis.Token, vis.Visible)
			})
		case protocol.MsgOffsets:
			offsets, err := protocol.DecodeOffsets(payload)
			if err != nil {
				return err
			}
			if ec := c.lookup(wallpaper.WindowToken(offsets.Token)); ec != nil {
				ec.DispatchOffsets(offsets.X, offsets.Y)
			}
			c.persist(offsets.Token, func(st *store.Store) error {
				return st.SaveOffsets(offsets.Token, offsets.X, offsets.Y)
			})
		case protocol.MsgResize:
			resize, err := protocol.DecodeResize(payload)
			if err != nil {
				return err
			}
			if ec := c.lookup(wallpaper.WindowToken(resize.Token)); ec != nil {
				ec.Resized(int(resize.Width), int(resize.Height),
					wallpaper.Insets{}, wallpaper.Insets{}, resize.ReportDraw)
			}
		default:
			// Unknown messages are ignored for now.
		}
	}
}

func (c *connection) handleAttach(attach protocol.Attach) {
	token := wallpaper.WindowToken(attach.Token)

	c.mu.Lock()
	if _, exists := c.engines[token]; exists {
		c.mu.Unlock()
		log.Printf("server: duplicate attach for %q ignored", attach.Token)
		return
	}
	c.mu.Unlock()

	ec := c.svc.Attach(c, token, int(attach.Width), int(attach.Height))

	c.mu.Lock()
	c.engines[token] = ec
	c.mu.Unlock()

	c.persist(attach.Token, func(st *store.Store) error {
		return st.SaveGeometry(attach.Token, int(attach.Width), int(attach.Height))
	})

	// A returning window resumes where it left off.
	if c.st != nil {
		if state, ok, err := c.st.Load(attach.Token); err != nil {
			log.Printf("server: restore %q: %v", attach.Token, err)
		} else if ok {
			ec.DispatchOffsets(state.XOffset, state.YOffset)
			if !state.Visible {
				ec.DispatchVisibility(false)
			}
		}
	}
}

func (c *connection) handleDetach(token wallpaper.WindowToken) {
	c.mu.Lock()
	ec := c.engines[token]
	delete(c.engines, token)
	c.mu.Unlock()
	if ec != nil {
		ec.Destroy()
	}
}

func (c *connection) lookup(token wallpaper.WindowToken) *wallpaper.EngineConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engines[token]
}

func (c *connection) persist(token string, fn func(*store.Store) error) {
	if c.st == nil {
		return
	}
	if err := fn(c.st); err != nil {
		log.Printf("server: persist %q: %v", token, err)
	}
}

// teardown destroys every engine the connection still owns. A vanished
// client must not leave instances rendering behind nobody's windows.
func (c *connection) teardown() {
	c.mu.Lock()
	engines := make([]*wallpaper.EngineConn, 0, len(c.engines))
	for _, ec := range c.engines {
		engines = append(engines, ec)
	}
	c.engines = make(map[wallpaper.WindowToken]*wallpaper.EngineConn)
	c.mu.Unlock()

	for _, ec := range engines {
		ec.Destroy()
	}
	for _, ec := range engines {
		<-ec.Done()
	}
}

func (c *connection) writeControlMessage(msgType protocol.MessageType, payload []byte) error {
	header := protocol.Header{
		Version:   protocol.Version,
		Type:      msgType,
		Flags:     protocol.FlagChecksum,
		SessionID: c.id,
	}
	return c.writeMessage(header, payload)
}

func (c *connection) writeMessage(header protocol.Header, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteMessage(c.conn, header, payload)
}
