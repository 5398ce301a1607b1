// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/backdropctl/main.go
// Summary: Control client for a running backdropd. One-shot flag mode for
// scripts, raw-terminal interactive mode for panning by hand.

package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"golang.org/x/term"

	"backdrop/config"
	"backdrop/protocol"
)

const offsetStep = 0.05

type ctl struct {
	conn net.Conn
}

func main() {
	cfg := config.System()

	socketPath := flag.String("socket", cfg.GetString("server", "socket", config.DefaultSocketPath()), "Unix socket path")
	token := flag.String("token", "main", "Window token to control")
	width := flag.Int("width", cfg.GetInt("window", "width", -1), "Requested window width")
	height := flag.Int("height", cfg.GetInt("window", "height", -1), "Requested window height")
	xOff := flag.Float64("x", -1, "One-shot: set the horizontal offset [0,1]")
	yOff := flag.Float64("y", -1, "One-shot: set the vertical offset [0,1]")
	hide := flag.Bool("hide", false, "One-shot: hide the window")
	show := flag.Bool("show", false, "One-shot: show the window")
	detach := flag.Bool("detach", false, "One-shot: detach the window's engine")
	flag.Parse()

	conn, err := net.Dial("unix", *socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backdropctl: dial %s: %v\n", *socketPath, err)
		os.Exit(1)
	}
	defer conn.Close()
	c := &ctl{conn: conn}

	if err := c.handshake(); err != nil {
		fmt.Fprintf(os.Stderr, "backdropctl: handshake: %v\n", err)
		os.Exit(1)
	}

	oneShot := *xOff >= 0 || *yOff >= 0 || *hide || *show || *detach
	if oneShot {
		if err := c.runOneShot(*token, *xOff, *yOff, *hide, *show, *detach); err != nil {
			fmt.Fprintf(os.Stderr, "backdropctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := c.runInteractive(*token, *width, *height); err != nil {
		fmt.Fprintf(os.Stderr, "backdropctl: %v\n", err)
		os.Exit(1)
	}
}

func (c *ctl) handshake() error {
	if err := c.send(protocol.MsgHello, mustEncode(protocol.EncodeHello(protocol.Hello{ClientName: "backdropctl"}))); err != nil {
		return err
	}
	header, _, err := protocol.ReadMessage(c.conn)
	if err != nil {
		return err
	}
	if header.Type != protocol.MsgWelcome {
		return fmt.Errorf("unexpected reply %v", header.Type)
	}
	return nil
}

func (c *ctl) runOneShot(token string, x, y float64, hide, show, detach bool) error {
	if x >= 0 || y >= 0 {
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		payload, err := protocol.EncodeOffsets(protocol.Offsets{Token: token, X: clamp01(x), Y: clamp01(y)})
		if err != nil {
			return err
		}
		if err := c.send(protocol.MsgOffsets, payload); err != nil {
			return err
		}
	}
	if hide || show {
		payload, err := protocol.EncodeVisibility(protocol.Visibility{Token: token, Visible: show})
		if err != nil {
			return err
		}
		if err := c.send(protocol.MsgVisibility, payload); err != nil {
			return err
		}
	}
	if detach {
		payload, err := protocol.EncodeDetach(protocol.Detach{Token: token})
		if err != nil {
			return err
		}
		if err := c.send(protocol.MsgDetach, payload); err != nil {
			return err
		}
	}
	return nil
}

// runInteractive attaches an engine and pans it with the arrow keys. h/j/k/l
// work too; v toggles visibility, q detaches and quits.
func (c *ctl) runInteractive(token string, width, height int) error {
	payload, err := protocol.EncodeAttach(protocol.Attach{Token: token, Width: int32(width), Height: int32(height)})
	if err != nil {
		return err
	}
	if err := c.send(protocol.MsgAttach, payload); err != nil {
		return err
	}
	header, _, err := protocol.ReadMessage(c.conn)
	if err != nil {
		return err
	}
	if header.Type != protocol.MsgEngineAttached {
		return fmt.Errorf("attach refused: %v", header.Type)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Print("arrows/hjkl pan, v toggles visibility, q quits\r\n")

	var x, y float64
	visible := true
	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return err
		}

		dx, dy := 0.0, 0.0
		switch {
		case n == 1 && (buf[0] == 'q' || buf[0] == 3):
			payload, err := protocol.EncodeDetach(protocol.Detach{Token: token})
			if err != nil {
				return err
			}
			return c.send(protocol.MsgDetach, payload)
		case n == 1 && buf[0] == 'v':
			visible = !visible
			payload, err := protocol.EncodeVisibility(protocol.Visibility{Token: token, Visible: visible})
			if err != nil {
				return err
			}
			if err := c.send(protocol.MsgVisibility, payload); err != nil {
				return err
			}
			continue
		case n == 1 && buf[0] == 'h', n == 3 && buf[2] == 'D':
			dx = -offsetStep
		case n == 1 && buf[0] == 'l', n == 3 && buf[2] == 'C':
			dx = offsetStep
		case n == 1 && buf[0] == 'k', n == 3 && buf[2] == 'A':
			dy = -offsetStep
		case n == 1 && buf[0] == 'j', n == 3 && buf[2] == 'B':
			dy = offsetStep
		default:
			continue
		}

		x = clamp01(x + dx)
		y = clamp01(y + dy)
		payload, err := protocol.EncodeOffsets(protocol.Offsets{Token: token, X: x, Y: y})
		if err != nil {
			return err
		}
		if err := c.send(protocol.MsgOffsets, payload); err != nil {
			return err
		}
	}
}

func (c *ctl) send(msgType protocol.MessageType, payload []byte) error {
	header := protocol.Header{Version: protocol.Version, Type: msgType, Flags: protocol.FlagChecksum}
	return protocol.WriteMessage(c.conn, header, payload)
}

func mustEncode(payload []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return payload
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
