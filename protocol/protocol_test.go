package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	payload, err := EncodeAttach(Attach{Token: "wall-1", Width: 400, Height: 800})
	if err != nil {
		t.Fatalf("encode attach: %v", err)
	}

	hdr := Header{
		Version:  Version,
		Type:     MsgAttach,
		Flags:    FlagChecksum,
		Sequence: 7,
	}

	var buf bytes.Buffer
	if err := WriteMessage(&buf, hdr, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, gotPayload, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != MsgAttach || got.Sequence != 7 {
		t.Fatalf("header mismatch: %+v", got)
	}

	attach, err := DecodeAttach(gotPayload)
	if err != nil {
		t.Fatalf("decode attach: %v", err)
	}
	if attach.Token != "wall-1" || attach.Width != 400 || attach.Height != 800 {
		t.Fatalf("attach mismatch: %+v", attach)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, Header{Version: Version, Type: MsgDetach}, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := buf.Bytes()
	raw[0] ^= 0xFF

	if _, _, err := ReadMessage(bytes.NewReader(raw)); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestReadRejectsChecksumMismatch(t *testing.T) {
	payload, _ := EncodeVisibility(Visibility{Token: "wall-1", Visible: true})
	var buf bytes.Buffer
	if err := WriteMessage(&buf, Header{Version: Version, Type: MsgVisibility, Flags: FlagChecksum}, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // corrupt the payload

	if _, _, err := ReadMessage(bytes.NewReader(raw)); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestReadRejectsShortPayload(t *testing.T) {
	payload, _ := EncodeOffsets(Offsets{Token: "wall-1", X: 0.5, Y: 0.25})
	var buf bytes.Buffer
	if err := WriteMessage(&buf, Header{Version: Version, Type: MsgOffsets}, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := buf.Bytes()
	truncated := raw[:len(raw)-4]

	if _, _, err := ReadMessage(bytes.NewReader(truncated)); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestReadRejectsUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, Header{Version: Version + 1, Type: MsgDetach}, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := ReadMessage(&buf); !errors.Is(err, ErrUnsupportedVer) {
		t.Fatalf("expected ErrUnsupportedVer, got %v", err)
	}
}
