package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roomcast/roomcast/model"
	"github.com/rs/zerolog"
)

type staticSource []model.ChatMessage

func (s staticSource) Snapshot() []model.ChatMessage { return s }

func newTestPersister(source HistorySource, path string) *Persister {
	logger := zerolog.Nop()
	return NewPersister(Config{
		Logger:   &logger,
		Source:   source,
		Path:     path,
		Interval: time.Second,
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message_log")
	history := staticSource{{Nick: "a", Message: "hi"}, {Nick: "system", Message: "a has left the chat."}}

	newTestPersister(history, path).SaveNow()

	got := newTestPersister(nil, path).Load()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0] != history[0] || got[1] != history[1] {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does_not_exist")

	if got := newTestPersister(nil, path).Load(); len(got) != 0 {
		t.Fatalf("missing file should yield empty history, got %d entries", len(got))
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message_log")
	if err := os.WriteFile(path, []byte(`{"not":"an array`), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := newTestPersister(nil, path).Load(); len(got) != 0 {
		t.Fatalf("corrupt file should yield empty history, got %d entries", len(got))
	}
}

func TestSaveFailureDoesNotStopTheLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message_log")
	// Writing to a path that is a directory fails every tick.
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}

	logger := zerolog.Nop()
	p := NewPersister(Config{
		Logger:   &logger,
		Source:   staticSource{{Nick: "a", Message: "hi"}},
		Path:     path,
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go p.Run(ctx, wg)

	// Let a few saves fail, then make the path writable again.
	time.Sleep(50 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if got := newTestPersister(nil, path).Load(); len(got) == 1 && got[0].Message == "hi" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("a later tick should still persist after earlier failures")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	wg.Wait()
}

func TestSaveOverwritesPriorSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message_log")

	newTestPersister(staticSource{{Nick: "a", Message: "one"}, {Nick: "a", Message: "two"}}, path).SaveNow()
	newTestPersister(staticSource{{Nick: "a", Message: "one"}}, path).SaveNow()

	got := newTestPersister(nil, path).Load()
	if len(got) != 1 || got[0].Message != "one" {
		t.Fatalf("expected the later snapshot only, got %+v", got)
	}
}
