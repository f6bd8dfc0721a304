package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/roomcast/roomcast/model"
)

func TestTryClaimNickIsExclusive(t *testing.T) {
	ms := NewMemStore()

	const claimers = 32
	var (
		wg   sync.WaitGroup
		wins = make(chan struct{}, claimers)
	)
	wg.Add(claimers)
	for i := 0; i < claimers; i++ {
		go func() {
			defer wg.Done()
			if ms.TryClaimNick("alice") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", won)
	}
	if ms.NickCount() != 1 {
		t.Fatalf("expected one active nickname, got %d", ms.NickCount())
	}
}

func TestReleaseNickIsIdempotent(t *testing.T) {
	ms := NewMemStore()

	ms.ReleaseNick("ghost") // never claimed

	if !ms.TryClaimNick("alice") {
		t.Fatal("fresh claim should succeed")
	}
	ms.ReleaseNick("alice")
	ms.ReleaseNick("alice")

	if !ms.TryClaimNick("alice") {
		t.Fatal("released nickname should be claimable again")
	}
}

func TestSnapshotTailWindow(t *testing.T) {
	ms := NewMemStore()

	if got := ms.SnapshotTail(100); len(got) != 0 {
		t.Fatalf("empty history should yield empty tail, got %d entries", len(got))
	}

	for i := 1; i <= 120; i++ {
		ms.AppendMessage(model.ChatMessage{Nick: "a", Message: fmt.Sprintf("m%d", i)})
	}

	tail := ms.SnapshotTail(100)
	if len(tail) != 100 {
		t.Fatalf("expected 100 entries, got %d", len(tail))
	}
	if tail[0].Message != "m21" || tail[99].Message != "m120" {
		t.Fatalf("unexpected tail window:\n%s", spew.Sdump(tail[0], tail[99]))
	}

	all := ms.SnapshotTail(1000)
	if len(all) != 120 || all[0].Message != "m1" {
		t.Fatalf("oversized window should return the whole log, got %d entries", len(all))
	}
}

func TestHistoryIsAppendOnly(t *testing.T) {
	ms := NewMemStore()

	for i := 0; i < 5; i++ {
		ms.AppendMessage(model.ChatMessage{Nick: "a", Message: fmt.Sprintf("m%d", i)})
	}
	before := ms.Snapshot()

	pos := ms.AppendMessage(model.ChatMessage{Nick: "b", Message: "later"})
	if pos != 6 {
		t.Fatalf("expected append position 6, got %d", pos)
	}

	after := ms.Snapshot()
	if len(after) != len(before)+1 {
		t.Fatalf("expected one new entry, got %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("earlier snapshot is not a prefix:\n%s", spew.Sdump(before[i], after[i]))
		}
	}
}

func TestSeedHistoryReplacesLog(t *testing.T) {
	ms := NewMemStore()
	ms.AppendMessage(model.ChatMessage{Nick: "a", Message: "stale"})

	ms.SeedHistory([]model.ChatMessage{{Nick: "b", Message: "loaded"}})

	snap := ms.Snapshot()
	if len(snap) != 1 || snap[0].Message != "loaded" {
		t.Fatalf("unexpected history after seed:\n%s", spew.Sdump(snap))
	}
}
