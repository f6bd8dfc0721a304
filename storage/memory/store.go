package memory

import (
	"sync"

	"github.com/roomcast/roomcast/model"
)

const defaultHistoryCapacity = 10000

// MemStore holds the shared room state: the append-only history log and the
// set of active nicknames. All operations are atomic with respect to each
// other.
type MemStore struct {
	mx      *sync.Mutex
	history []model.ChatMessage
	nicks   map[string]struct{}
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:      &sync.Mutex{},
		history: make([]model.ChatMessage, 0, defaultHistoryCapacity),
		nicks:   make(map[string]struct{}),
	}
}

// SeedHistory replaces the log with a snapshot loaded at startup.
func (ms *MemStore) SeedHistory(msgs []model.ChatMessage) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ms.history = ms.history[:0]
	ms.history = append(ms.history, msgs...)
}

// AppendMessage adds one entry to the history log and returns the new length.
func (ms *MemStore) AppendMessage(msg model.ChatMessage) int {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ms.history = append(ms.history, msg)
	return len(ms.history)
}

// SnapshotTail returns up to n most recent entries, oldest first.
func (ms *MemStore) SnapshotTail(n int) []model.ChatMessage {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	start := len(ms.history) - n
	if start < 0 {
		start = 0
	}
	tail := make([]model.ChatMessage, len(ms.history)-start)
	copy(tail, ms.history[start:])
	return tail
}

// Snapshot returns a copy of the whole history log.
func (ms *MemStore) Snapshot() []model.ChatMessage {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	snap := make([]model.ChatMessage, len(ms.history))
	copy(snap, ms.history)
	return snap
}

// TryClaimNick atomically tests and inserts a nickname. It reports whether
// the claim succeeded; a false return means another live session holds the
// name.
func (ms *MemStore) TryClaimNick(nick string) bool {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, taken := ms.nicks[nick]; taken {
		return false
	}
	ms.nicks[nick] = struct{}{}
	return true
}

// ReleaseNick frees a nickname. Releasing an absent name is a no-op.
func (ms *MemStore) ReleaseNick(nick string) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	delete(ms.nicks, nick)
}

func (ms *MemStore) HistoryLen() int {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	return len(ms.history)
}

func (ms *MemStore) NickCount() int {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	return len(ms.nicks)
}
