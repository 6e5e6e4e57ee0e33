package wire

import (
	"testing"

	"github.com/pithecene-io/chorus/types"
)

func TestEventName_String(t *testing.T) {
	tests := []struct {
		name EventName
		want string
	}{
		{StreamEvent(types.DirectionClientToServer, "coder", types.ModifierStart), "client-to-server.coder.stream.start"},
		{StreamEvent(types.DirectionServerToClient, "writer", types.ModifierChunk), "server-to-client.writer.stream.chunk"},
		{StreamEvent(types.DirectionServerToClient, "assistant", types.ModifierEnd), "server-to-client.assistant.stream.end"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.name.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseEventName(t *testing.T) {
	name, err := ParseEventName("server-to-client.writer.stream.chunk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name.Direction != types.DirectionServerToClient {
		t.Errorf("direction = %q", name.Direction)
	}
	if name.Actor != "writer" {
		t.Errorf("actor = %q", name.Actor)
	}
	if name.Modifier != types.ModifierChunk {
		t.Errorf("modifier = %q", name.Modifier)
	}
}

func TestParseEventName_ArbitraryActor(t *testing.T) {
	// The actor set is open; unseen names must parse.
	name, err := ParseEventName("server-to-client.translator.stream.end")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name.Actor != "translator" {
		t.Errorf("actor = %q", name.Actor)
	}
}

func TestParseEventName_Rejections(t *testing.T) {
	tests := []string{
		"",
		"server-to-client.writer.stream",
		"server-to-client.writer.stream.chunk.extra",
		"s2c.writer.stream.chunk",
		"server-to-client..stream.chunk",
		"server-to-client.writer.poll.chunk",
		"server-to-client.writer.stream.abort",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			if _, err := ParseEventName(raw); err == nil {
				t.Errorf("expected parse error for %q", raw)
			}
		})
	}
}
