package pipe

import (
	"io"
	"testing"
	"time"
)

// pair builds two connected pipe transports over in-memory streams.
func pair(t *testing.T) (client, server *Pipe) {
	t.Helper()

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	client = New(clientReader, clientWriter, nil, nil)
	server = New(serverReader, serverWriter, nil, nil)

	t.Cleanup(func() {
		_ = clientWriter.Close()
		_ = serverWriter.Close()
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func waitFor(t *testing.T, ch <-chan []byte, what string) []byte {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return nil // unreachable
	}
}

func TestPipe_EmitReachesHandler(t *testing.T) {
	client, server := pair(t)

	received := make(chan []byte, 1)
	server.On("server-to-client.writer.stream.chunk", func(payload []byte) {
		received <- payload
	})

	if err := client.Emit("server-to-client.writer.stream.chunk", []byte(`{"delta":"Hi"}`), nil); err != nil {
		t.Fatalf("emit: %v", err)
	}

	payload := waitFor(t, received, "event delivery")
	if string(payload) != `{"delta":"Hi"}` {
		t.Errorf("unexpected payload %q", payload)
	}
}

func TestPipe_AckRoundTrip(t *testing.T) {
	client, server := pair(t)

	server.Serve(func(frame *Frame) {
		if frame.AckID == "" {
			t.Error("expected incoming frame to carry an ack id")
			return
		}
		if err := server.Ack(frame.AckID, []byte(`{"ok":true,"streamId":"s1"}`)); err != nil {
			t.Errorf("ack: %v", err)
		}
	})

	acked := make(chan []byte, 1)
	err := client.Emit("client-to-server.writer.stream.start", []byte(`{"input":"go"}`), func(payload []byte) {
		acked <- payload
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	payload := waitFor(t, acked, "ack delivery")
	if string(payload) != `{"ok":true,"streamId":"s1"}` {
		t.Errorf("unexpected ack payload %q", payload)
	}
}

func TestPipe_UnhandledEventDropped(t *testing.T) {
	client, server := pair(t)

	handled := make(chan []byte, 1)
	server.On("server-to-client.coder.stream.end", func(payload []byte) {
		handled <- payload
	})

	// No handler and no serve hook for this event; must not dispatch anywhere.
	if err := client.Emit("server-to-client.writer.stream.chunk", []byte(`{}`), nil); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := client.Emit("server-to-client.coder.stream.end", []byte(`{}`), nil); err != nil {
		t.Fatalf("emit: %v", err)
	}

	// The end event arriving proves the chunk event was dropped, not queued.
	waitFor(t, handled, "subsequent event delivery")
}

func TestPipe_CloseWithNilCloser(t *testing.T) {
	// Nothing ever arrives on the reader, so the read loop stays blocked
	// inside ReadFrame until Close unblocks it.
	reader, _ := io.Pipe()
	p := New(reader, io.Discard, nil, nil)

	closed := make(chan error, 1)
	go func() {
		closed <- p.Close()
	}()

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return with a blocked reader and nil closer")
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not exit after Close")
	}
}

func TestPipe_EmitAfterClose(t *testing.T) {
	clientReader, _ := io.Pipe()
	serverReader, clientWriter := io.Pipe()
	_ = serverReader

	// Closing the reader unblocks the read loop.
	client := New(clientReader, clientWriter, clientReader, nil)
	_ = client.Close()

	if err := client.Emit("client-to-server.writer.stream.start", nil, nil); err == nil {
		t.Error("expected emit on closed pipe to fail")
	}
}
