// Package storage holds per-user conversation context and the operator
// request journal.
//
// Information Hiding:
// - Map of per-user entries and their locks hidden from callers
// - FIFO trimming to the configured turn limit
// - Arrival-order sequencing of concurrent writes to the same user

package storage

import (
	"encoding/json"
	"sync"
)

// DefaultMaxTurns is the most exchanges kept per user.
const DefaultMaxTurns = 20

// Exchange is one recorded turn of a conversation.
type Exchange struct {
	Role         string          `json:"role"`
	Content      string          `json:"content"`
	ToolMetadata json.RawMessage `json:"tool_metadata,omitempty"`
}

// ContextStore keeps a bounded, ordered history per user in memory.
//
// The map lock is held only to find or create an entry; each entry has its
// own lock, so different users never wait on each other's data. Writes to
// one user are applied in the order their requests called Begin.
// Lock order is always store, then entry.
type ContextStore struct {
	mu       sync.Mutex
	maxTurns int
	contexts map[string]*conversation
}

type conversation struct {
	mu      sync.Mutex
	turnCh  *sync.Cond
	turns   []Exchange
	next    uint64          // next ticket handed out by Begin
	serving uint64          // ticket allowed to write
	aborted map[uint64]bool // tickets released without writing
	pending int             // outstanding reservations
}

func newConversation() *conversation {
	c := &conversation{aborted: make(map[uint64]bool)}
	c.turnCh = sync.NewCond(&c.mu)
	return c
}

// NewContextStore creates a store that keeps at most maxTurns exchanges per
// user. Non-positive values fall back to DefaultMaxTurns.
func NewContextStore(maxTurns int) *ContextStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &ContextStore{
		maxTurns: maxTurns,
		contexts: make(map[string]*conversation),
	}
}

// MaxTurns returns the per-user limit.
func (s *ContextStore) MaxTurns() int {
	return s.maxTurns
}

// Get returns a copy of the user's history. Unknown users get an empty,
// non-nil slice.
func (s *ContextStore) Get(userID string) []Exchange {
	s.mu.Lock()
	c, ok := s.contexts[userID]
	s.mu.Unlock()
	if !ok {
		return []Exchange{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return copyTurns(c.turns)
}

// Append adds exchanges to the end of the user's history and drops the
// oldest entries beyond the limit.
func (s *ContextStore) Append(userID string, exchanges ...Exchange) {
	s.Begin(userID).Commit(exchanges...)
}

// Clear removes the user's history. Clearing an unknown user is a no-op.
func (s *ContextStore) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contexts[userID]
	if !ok {
		return
	}
	c.mu.Lock()
	c.turns = nil
	idle := c.pending == 0
	c.mu.Unlock()

	// In-flight reservations still reference the entry.
	if idle {
		delete(s.contexts, userID)
	}
}

// Len returns the number of users with a non-empty history.
func (s *ContextStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.contexts {
		c.mu.Lock()
		if len(c.turns) > 0 {
			n++
		}
		c.mu.Unlock()
	}
	return n
}

// Begin reserves the caller's place in the user's write queue and returns
// the history as of now. Every Begin must be followed by Commit or Abort;
// calling Abort after Commit is a no-op, so `defer p.Abort()` is safe.
func (s *ContextStore) Begin(userID string) *Pending {
	s.mu.Lock()
	c, ok := s.contexts[userID]
	if !ok {
		c = newConversation()
		s.contexts[userID] = c
	}
	c.mu.Lock()
	ticket := c.next
	c.next++
	c.pending++
	history := copyTurns(c.turns)
	c.mu.Unlock()
	s.mu.Unlock()

	return &Pending{store: s, userID: userID, conv: c, ticket: ticket, history: history}
}

// Pending is a reserved write slot for one user.
type Pending struct {
	store   *ContextStore
	userID  string
	conv    *conversation
	ticket  uint64
	history []Exchange
	done    bool
}

// History returns the snapshot taken by Begin.
func (p *Pending) History() []Exchange {
	return p.history
}

// Commit waits for earlier reservations on the same user to finish, then
// appends exchanges and trims to the limit.
func (p *Pending) Commit(exchanges ...Exchange) {
	if p.done {
		return
	}
	p.done = true

	c := p.conv
	c.mu.Lock()
	for c.serving != p.ticket {
		c.turnCh.Wait()
	}

	merged := make([]Exchange, 0, len(c.turns)+len(exchanges))
	merged = append(merged, c.turns...)
	merged = append(merged, copyTurns(exchanges)...)
	if over := len(merged) - p.store.maxTurns; over > 0 {
		merged = merged[over:]
	}
	c.turns = merged

	c.serving++
	idle := c.release()
	c.mu.Unlock()

	if idle {
		p.store.evictIfIdle(p.userID, c)
	}
}

// Abort gives up the slot without writing. It does not wait for earlier
// reservations.
func (p *Pending) Abort() {
	if p.done {
		return
	}
	p.done = true

	c := p.conv
	c.mu.Lock()
	if c.serving == p.ticket {
		c.serving++
	} else {
		c.aborted[p.ticket] = true
	}
	idle := c.release()
	c.mu.Unlock()

	if idle {
		p.store.evictIfIdle(p.userID, c)
	}
}

// release skips past aborted tickets, wakes waiters and reports whether
// the entry is now empty and unreferenced. Caller holds c.mu.
func (c *conversation) release() bool {
	for c.aborted[c.serving] {
		delete(c.aborted, c.serving)
		c.serving++
	}
	c.pending--
	c.turnCh.Broadcast()
	return c.pending == 0 && len(c.turns) == 0
}

// evictIfIdle drops an entry left empty by a Clear that raced with
// in-flight requests.
func (s *ContextStore) evictIfIdle(userID string, c *conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contexts[userID] != c {
		return
	}
	c.mu.Lock()
	idle := c.pending == 0 && len(c.turns) == 0
	c.mu.Unlock()
	if idle {
		delete(s.contexts, userID)
	}
}

func copyTurns(turns []Exchange) []Exchange {
	copied := make([]Exchange, len(turns))
	copy(copied, turns)
	return copied
}
