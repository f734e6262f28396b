package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	bodies := [][]byte{
		nil,
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 4096),
	}

	for code := 0; code < 256; code += 37 {
		for _, body := range bodies {
			var buf bytes.Buffer
			if err := WriteMessage(&buf, byte(code), body); err != nil {
				t.Fatalf("WriteMessage: %v", err)
			}
			msg, err := ReadMessage(&buf)
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			if msg.Code != byte(code) {
				t.Errorf("code = %d, want %d", msg.Code, code)
			}
			if !bytes.Equal(msg.Body, body) && !(len(msg.Body) == 0 && len(body) == 0) {
				t.Errorf("body = %v, want %v", msg.Body, body)
			}
		}
	}
}

func TestReadMessageEOF(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestReadMessageShortHeaderIsFraming(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{0, 0, 0}))
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("got %v, want ErrFraming", err)
	}
}

func TestReadMessageZeroLength(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{0, 0, 0, 0, 0}))
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("got %v, want ErrFraming", err)
	}
}

func TestReadMessageShortBody(t *testing.T) {
	// length=5 (code + 4 body bytes) but only 2 body bytes present.
	buf := []byte{0, 0, 0, 5, 11, 'a', 'b'}
	_, err := ReadMessage(bytes.NewReader(buf))
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("got %v, want ErrFraming", err)
	}
}

func TestDecodeSignRequestExactBody(t *testing.T) {
	want := SignRequest{KeyBlob: []byte("keyblob"), Data: []byte("data"), Flags: SignFlagRSASHA2_256}
	body := EncodeSignRequest(want)

	got, err := DecodeSignRequest(body)
	if err != nil {
		t.Fatalf("DecodeSignRequest: %v", err)
	}
	if !bytes.Equal(got.KeyBlob, want.KeyBlob) || !bytes.Equal(got.Data, want.Data) || got.Flags != want.Flags {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeSignRequestTrailingByte(t *testing.T) {
	body := append(EncodeSignRequest(SignRequest{KeyBlob: []byte("k"), Data: []byte("d")}), 0x00)
	_, err := DecodeSignRequest(body)
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("got %v, want ErrFraming", err)
	}
}

func TestDecodeSignRequestFieldTooLong(t *testing.T) {
	// key length claims 100 bytes but body has far fewer.
	body := []byte{0, 0, 0, 100, 'a', 'b'}
	_, err := DecodeSignRequest(body)
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("got %v, want ErrFraming", err)
	}
}

func TestDecodeSignRequestBadFlags(t *testing.T) {
	body := EncodeSignRequest(SignRequest{KeyBlob: []byte("k"), Data: []byte("d"), Flags: 8})
	_, err := DecodeSignRequest(body)
	if !errors.Is(err, ErrBadFlags) {
		t.Fatalf("got %v, want ErrBadFlags", err)
	}
}

func TestWriteFailureFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFailure(&buf); err != nil {
		t.Fatalf("WriteFailure: %v", err)
	}
	want := []byte{0, 0, 0, 1, AgentFailure}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("got %x, want %x", buf.Bytes(), want)
	}
}
