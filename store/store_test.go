package store

import (
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/chorus/types"
)

func TestBeginStream_AppendsStreamingMessage(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	msg, err := s.BeginStream("writer", "s1", "r1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if msg.Origin != "writer" {
		t.Errorf("origin = %q, want writer", msg.Origin)
	}
	if !msg.IsStreaming {
		t.Error("expected IsStreaming true")
	}
	if msg.Content != "" {
		t.Errorf("expected empty content, got %q", msg.Content)
	}
	if s.Len() != 1 {
		t.Errorf("transcript length = %d, want 1", s.Len())
	}

	actors := s.StreamingActors()
	if len(actors) != 1 || actors[0] != "writer" {
		t.Errorf("streaming actors = %v, want [writer]", actors)
	}
}

func TestBeginStream_DuplicateStreamID(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	if _, err := s.BeginStream("writer", "s1", "r1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err := s.BeginStream("coder", "s1", "r2")
	if !errors.Is(err, ErrStreamExists) {
		t.Errorf("expected ErrStreamExists, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("duplicate begin must not add a message, length = %d", s.Len())
	}
}

func TestAppendDelta_Concatenates(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	if _, err := s.BeginStream("writer", "s1", "r1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	for _, delta := range []string{"Hello", ", ", "world"} {
		if err := s.AppendDelta("s1", delta); err != nil {
			t.Fatalf("append %q: %v", delta, err)
		}
	}

	msg, ok := s.Message("s1")
	if !ok {
		t.Fatal("message not found")
	}
	if msg.Content != "Hello, world" {
		t.Errorf("content = %q, want %q", msg.Content, "Hello, world")
	}
}

func TestAppendDelta_UnknownStream(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	err := s.AppendDelta("nope", "delta")
	if !errors.Is(err, ErrStreamUnknown) {
		t.Errorf("expected ErrStreamUnknown, got %v", err)
	}
}

func TestAppendDelta_AfterEnd(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	if _, err := s.BeginStream("writer", "s1", "r1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.AppendDelta("s1", "Hello, "); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.EndStream("s1")

	// A late chunk for a closed stream must not mutate the message.
	if err := s.AppendDelta("s1", "stale"); !errors.Is(err, ErrStreamUnknown) {
		t.Errorf("expected ErrStreamUnknown for closed stream, got %v", err)
	}

	msg, _ := s.Message("s1")
	if msg.Content != "Hello, " {
		t.Errorf("content = %q, want %q", msg.Content, "Hello, ")
	}
	if msg.IsStreaming {
		t.Error("expected IsStreaming false after end")
	}
}

func TestEndStream_Idempotent(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	if _, err := s.BeginStream("writer", "s1", "r1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	s.EndStream("s1")
	s.EndStream("s1")
	s.EndStream("unknown")

	if len(s.StreamingActors()) != 0 {
		t.Errorf("expected no streaming actors, got %v", s.StreamingActors())
	}
}

func TestChatHistory_ExcludesStreaming(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	if _, err := s.AppendHuman("hi there"); err != nil {
		t.Fatalf("append human: %v", err)
	}
	if _, err := s.BeginStream("assistant", "s1", "r1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_ = s.AppendDelta("s1", "partial")

	history := s.ChatHistory()
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Role != types.OriginHuman || history[0].Content != "hi there" {
		t.Errorf("unexpected history entry: %+v", history[0])
	}

	s.EndStream("s1")
	history = s.ChatHistory()
	if len(history) != 2 {
		t.Fatalf("history length after end = %d, want 2", len(history))
	}
	if history[1].Role != "assistant" || history[1].Content != "partial" {
		t.Errorf("unexpected history entry: %+v", history[1])
	}
}

func TestEvict_NeverRemovesStreaming(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	if _, err := s.AppendHuman("old message"); err != nil {
		t.Fatalf("append human: %v", err)
	}
	if _, err := s.BeginStream("writer", "s1", "r1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	// Cutoff in the future: everything is "old", but the streaming
	// message must survive for any retention threshold.
	removed := s.Evict(time.Now().Add(time.Hour))
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("transcript length = %d, want 1", s.Len())
	}
	if _, ok := s.Message("s1"); !ok {
		t.Error("streaming message must survive eviction")
	}
}

func TestEvict_RemovesFinalizedAndIndex(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	if _, err := s.BeginStream("writer", "s1", "r1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_ = s.AppendDelta("s1", "done")
	s.EndStream("s1")

	if removed := s.Evict(time.Now().Add(time.Hour)); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := s.Message("s1"); ok {
		t.Error("stream index entry must be dropped with its message")
	}
}

func TestEvict_RespectsCutoff(t *testing.T) {
	s := New(nil)
	defer func() { _ = s.Close() }()

	if _, err := s.AppendHuman("recent"); err != nil {
		t.Fatalf("append human: %v", err)
	}

	if removed := s.Evict(time.Now().Add(-time.Hour)); removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if s.Len() != 1 {
		t.Errorf("transcript length = %d, want 1", s.Len())
	}
}

func TestStore_Closed(t *testing.T) {
	s := New(nil)
	_ = s.Close()

	if _, err := s.AppendHuman("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := s.BeginStream("writer", "s1", "r1"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := s.AppendDelta("s1", "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
