// internal/captcha/escalation.go

package captcha

import (
	"sort"
	"sync"
)

// Escalations tracks bots that are blocked on a human solving their
// challenge. Each open ticket carries a channel the blocked workflow
// selects on; resolving the ticket closes the channel and unblocks the
// workflow without polling.
type Escalations struct {
	mu      sync.Mutex
	tickets map[int]chan struct{}
}

// NewEscalations builds an empty registry.
func NewEscalations() *Escalations {
	return &Escalations{tickets: make(map[int]chan struct{})}
}

// Open registers a ticket for the bot and returns the channel that closes
// once an operator resolves it. Opening over an existing ticket replaces
// it without signalling the old channel: only Resolve may close a ticket,
// so a waiter on a replaced ticket can never mistake the hand-off for a
// solve. The replaced waiter runs out its own deadline instead.
func (e *Escalations) Open(botID int) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan struct{})
	e.tickets[botID] = ch
	return ch
}

// Resolve marks the bot's challenge as solved by the operator. Returns
// false if no ticket was open for that bot.
func (e *Escalations) Resolve(botID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.tickets[botID]
	if !ok {
		return false
	}
	delete(e.tickets, botID)
	close(ch)
	return true
}

// Drop discards the bot's ticket without signalling a solve. Used when the
// workflow gives up waiting. The caller passes back the channel it got
// from Open; a waiter whose ticket was already replaced by a newer Open
// must not discard the replacement, so Drop only deletes its own channel.
func (e *Escalations) Drop(botID int, ch <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.tickets[botID]; ok && (<-chan struct{})(cur) == ch {
		delete(e.tickets, botID)
	}
}

// Waiting reports whether the bot currently has an open ticket.
func (e *Escalations) Waiting(botID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tickets[botID]
	return ok
}

// Active lists bots with open tickets in ascending order.
func (e *Escalations) Active() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int, 0, len(e.tickets))
	for id := range e.tickets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
