package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello session")
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf, DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
	if _, err := ReadFrame(buf, DefaultMaxFrameSize); !errors.Is(err, ErrZeroLength) {
		t.Fatalf("want ErrZeroLength, got %v", err)
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := ReadFrame(buf, DefaultMaxFrameSize); !errors.Is(err, ErrOversize) {
		t.Fatalf("want ErrOversize, got %v", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	truncated := bytes.NewBuffer(buf.Bytes()[:6])
	if _, err := ReadFrame(truncated, DefaultMaxFrameSize); !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
}

func TestTryReadFrameTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := TryReadFrame(server, 30*time.Millisecond, DefaultMaxFrameSize)
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("want ErrTimeout, got %v", err)
		}
	}()
	<-done
}

func TestTryReadFrameReceivesFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_ = WriteFrame(client, []byte("ping"))
	}()

	got, err := TryReadFrame(server, time.Second, DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("TryReadFrame: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("got %q", got)
	}
}

func TestEncodeDecodeEnvelope(t *testing.T) {
	frame, err := Encode(MsgPing, Ping{Timestamp: 42})
	if err != nil {
		t.Fatal(err)
	}
	env, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != MsgPing {
		t.Fatalf("got type %q", env.Type)
	}
	var ping Ping
	if err := json.Unmarshal(env.Payload, &ping); err != nil {
		t.Fatal(err)
	}
	if ping.Timestamp != 42 {
		t.Fatalf("got timestamp %d", ping.Timestamp)
	}
}
