package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

var (
	errStringTooLong = errors.New("protocol: string exceeds 64KB limit")
	errPayloadShort  = errors.New("protocol: payload too short")
)

// Hello initiates the handshake from client to server.
type Hello struct {
	ClientID     [16]byte
	ClientName   string
	Capabilities uint32
}

// Welcome is returned by the server acknowledging the handshake.
type Welcome struct {
	SessionID  [16]byte
	ServerName string
}

// Attach asks the host to create an engine instance for a window token with
// the compositor's requested geometry.
type Attach struct {
	Token  string
	Width  int32
	Height int32
}

// EngineAttached notifies the client that its engine instance exists.
type EngineAttached struct {
	Token string
}

// Detach asks the host to tear down the engine bound to a window token.
type Detach struct {
	Token string
}

// Visibility reports the window becoming visible or hidden.
type Visibility struct {
	Token   string
	Visible bool
}

// Offsets carries a normalized scroll position for a window.
type Offsets struct {
	Token string
	X     float64
	Y     float64
}

// Resize reports a compositor-side geometry change. When ReportDraw is set
// the host must acknowledge with a finished frame.
type Resize struct {
	Token      string
	Width      int32
	Height     int32
	ReportDraw bool
}

// ErrorFrame communicates protocol-level errors.
type ErrorFrame struct {
	Code    uint16
	Message string
}

func encodeString(buf *bytes.Buffer, value string) error {
	if len(value) > 0xFFFF {
		return errStringTooLong
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(value))); err != nil {
		return err
	}
	if len(value) > 0 {
		if _, err := buf.WriteString(value); err != nil {
			return err
		}
	}
	return nil
}

func decodeString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errPayloadShort
	}
	length := binary.LittleEndian.Uint16(b[:2])
	b = b[2:]
	if uint16(len(b)) < length {
		return "", nil, errPayloadShort
	}
	return string(b[:length]), b[length:], nil
}

func encodeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func EncodeHello(h Hello) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 32+len(h.ClientName)))
	buf.Write(h.ClientID[:])
	if err := encodeString(buf, h.ClientName); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, h.Capabilities); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeHello(b []byte) (Hello, error) {
	var h Hello
	if len(b) < 16 {
		return h, errPayloadShort
	}
	copy(h.ClientID[:], b[:16])
	b = b[16:]
	name, rest, err := decodeString(b)
	if err != nil {
		return h, err
	}
	h.ClientName = name
	if len(rest) < 4 {
		return h, errPayloadShort
	}
	h.Capabilities = binary.LittleEndian.Uint32(rest[:4])
	return h, nil
}

func EncodeWelcome(w Welcome) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 32+len(w.ServerName)))
	buf.Write(w.SessionID[:])
	if err := encodeString(buf, w.ServerName); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeWelcome(b []byte) (Welcome, error) {
	var w Welcome
	if len(b) < 16 {
		return w, errPayloadShort
	}
	copy(w.SessionID[:], b[:16])
	name, _, err := decodeString(b[16:])
	if err != nil {
		return w, err
	}
	w.ServerName = name
	return w, nil
}

func EncodeAttach(a Attach) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 10+len(a.Token)))
	if err := encodeString(buf, a.Token); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, a.Width); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, a.Height); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeAttach(b []byte) (Attach, error) {
	var a Attach
	token, rest, err := decodeString(b)
	if err != nil {
		return a, err
	}
	if len(rest) < 8 {
		return a, errPayloadShort
	}
	a.Token = token
	a.Width = int32(binary.LittleEndian.Uint32(rest[0:4]))
	a.Height = int32(binary.LittleEndian.Uint32(rest[4:8]))
	return a, nil
}

func EncodeEngineAttached(e EngineAttached) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 2+len(e.Token)))
	if err := encodeString(buf, e.Token); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeEngineAttached(b []byte) (EngineAttached, error) {
	var e EngineAttached
	token, _, err := decodeString(b)
	if err != nil {
		return e, err
	}
	e.Token = token
	return e, nil
}

func EncodeDetach(d Detach) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 2+len(d.Token)))
	if err := encodeString(buf, d.Token); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeDetach(b []byte) (Detach, error) {
	var d Detach
	token, _, err := decodeString(b)
	if err != nil {
		return d, err
	}
	d.Token = token
	return d, nil
}

func EncodeVisibility(v Visibility) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 3+len(v.Token)))
	if err := encodeString(buf, v.Token); err != nil {
		return nil, err
	}
	encodeBool(buf, v.Visible)
	return buf.Bytes(), nil
}

func DecodeVisibility(b []byte) (Visibility, error) {
	var v Visibility
	token, rest, err := decodeString(b)
	if err != nil {
		return v, err
	}
	if len(rest) < 1 {
		return v, errPayloadShort
	}
	v.Token = token
	v.Visible = rest[0] != 0
	return v, nil
}

func EncodeOffsets(o Offsets) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 18+len(o.Token)))
	if err := encodeString(buf, o.Token); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, math.Float64bits(o.X)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, math.Float64bits(o.Y)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeOffsets(b []byte) (Offsets, error) {
	var o Offsets
	token, rest, err := decodeString(b)
	if err != nil {
		return o, err
	}
	if len(rest) < 16 {
		return o, errPayloadShort
	}
	o.Token = token
	o.X = math.Float64frombits(binary.LittleEndian.Uint64(rest[0:8]))
	o.Y = math.Float64frombits(binary.LittleEndian.Uint64(rest[8:16]))
	return o, nil
}

func EncodeResize(r Resize) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 11+len(r.Token)))
	if err := encodeString(buf, r.Token); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, r.Width); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, r.Height); err != nil {
		return nil, err
	}
	encodeBool(buf, r.ReportDraw)
	return buf.Bytes(), nil
}

func DecodeResize(b []byte) (Resize, error) {
	var r Resize
	token, rest, err := decodeString(b)
	if err != nil {
		return r, err
	}
	if len(rest) < 9 {
		return r, errPayloadShort
	}
	r.Token = token
	r.Width = int32(binary.LittleEndian.Uint32(rest[0:4]))
	r.Height = int32(binary.LittleEndian.Uint32(rest[4:8]))
	r.ReportDraw = rest[8] != 0
	return r, nil
}

func EncodeErrorFrame(e ErrorFrame) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 4+len(e.Message)))
	if err := binary.Write(buf, binary.LittleEndian, e.Code); err != nil {
		return nil, err
	}
	if err := encodeString(buf, e.Message); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeErrorFrame(b []byte) (ErrorFrame, error) {
	var e ErrorFrame
	if len(b) < 2 {
		return e, errPayloadShort
	}
	e.Code = binary.LittleEndian.Uint16(b[:2])
	msg, _, err := decodeString(b[2:])
	if err != nil {
		return e, err
	}
	e.Message = msg
	return e, nil
}
