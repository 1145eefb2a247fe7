// Package transcript accumulates conversation text during a live voice
// session and exports the finished history when the session ends.
//
// Text arrives as incremental deltas (partial words and phrases) on both
// the user and model sides. The [Accumulator] buffers those deltas per
// role and commits them as ordered [Entry] records at turn boundaries, so
// the final history reads as alternating complete utterances rather than
// a stream of fragments.
//
// Export is guarded by a [Gate]: at session teardown the gate decides,
// via its [ShouldDispatch] policy, whether the conversation is worth
// sending to the configured [Exporter]. Dispatch is fire-and-forget and
// never blocks teardown.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/live"
)

// Entry is one committed utterance in the session history.
type Entry struct {
	// Role identifies the speaker.
	Role live.Role `json:"role"`

	// Text is the complete utterance with surrounding whitespace trimmed.
	Text string `json:"text"`

	// Timestamp records when the utterance was committed.
	Timestamp time.Time `json:"timestamp"`
}

// Accumulator collects transcription deltas and commits them into ordered
// entries at turn boundaries. Safe for concurrent use.
type Accumulator struct {
	mu      sync.Mutex
	user    strings.Builder
	model   strings.Builder
	entries []Entry
	now     func() time.Time
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{now: time.Now}
}

// AddDelta appends a transcription fragment for the given role. Fragments
// accumulate verbatim until the next [Accumulator.CompleteTurn].
func (a *Accumulator) AddDelta(role live.Role, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch role {
	case live.RoleUser:
		a.user.WriteString(text)
	case live.RoleModel:
		a.model.WriteString(text)
	}
}

// CompleteTurn commits the buffered user text followed by the buffered
// model text as entries, then clears both buffers. Text that trims to
// empty is discarded. Entry order reflects turn completion, not token
// arrival.
func (a *Accumulator) CompleteTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commit(live.RoleUser, &a.user)
	a.commit(live.RoleModel, &a.model)
}

func (a *Accumulator) commit(role live.Role, b *strings.Builder) {
	text := strings.TrimSpace(b.String())
	b.Reset()
	if text == "" {
		return
	}
	a.entries = append(a.entries, Entry{Role: role, Text: text, Timestamp: a.now()})
}

// Entries returns a copy of the committed history.
func (a *Accumulator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Len reports the number of committed entries.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Reset discards all committed entries and any buffered partial text.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.model.Reset()
	a.entries = nil
}
