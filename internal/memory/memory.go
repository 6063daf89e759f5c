// Package memory keeps each user's bounded conversation window and system
// instruction in process memory.
package memory

import (
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/llm"
)

// Options configures a Memory.
type Options struct {
	// Exchanges is K, the number of user+assistant pairs retained.
	Exchanges int
	// SystemInstruction is the default for users who never ran /system.
	SystemInstruction string
	// MaxSessions bounds the number of conversation records kept. Zero
	// keeps every record for the process lifetime; otherwise the least
	// recently used record is evicted. Pinned records are never dropped,
	// so the count can exceed the bound by the number of pinned users.
	MaxSessions int
	// OnEvict is called with the user ID of an evicted record. It runs with
	// the memory lock held and must not call back into Memory.
	OnEvict func(userID string)
}

type record struct {
	system  string
	history []llm.Message
}

// Memory is safe for concurrent use.
type Memory struct {
	mu            sync.Mutex
	limit         int // 2K
	defaultSystem string

	records map[string]*record
	cache   *lru.Cache[string, *record]

	// pins counts holders per user. A pinned record pushed out of the
	// cache waits in parked until its last pin is released.
	pins   map[string]int
	parked map[string]*record
}

// New creates a Memory. Exchanges below 1 are treated as 1.
func New(opts Options) *Memory {
	k := opts.Exchanges
	if k < 1 {
		k = 1
	}
	m := &Memory{
		limit:         2 * k,
		defaultSystem: opts.SystemInstruction,
		pins:          make(map[string]int),
		parked:        make(map[string]*record),
	}

	if opts.MaxSessions > 0 {
		onEvict := opts.OnEvict
		cache, err := lru.NewWithEvict[string, *record](opts.MaxSessions, func(userID string, r *record) {
			// Evictions happen inside cache calls made with m.mu held.
			if m.pins[userID] > 0 {
				m.parked[userID] = r
				return
			}
			if onEvict != nil {
				onEvict(userID)
			}
		})
		if err == nil {
			m.cache = cache
			return m
		}
	}
	m.records = make(map[string]*record)
	return m
}

// record returns the user's record, creating it on first access.
// Callers must hold m.mu.
func (m *Memory) record(userID string) *record {
	if m.cache != nil {
		if r, ok := m.parked[userID]; ok {
			return r
		}
		if r, ok := m.cache.Get(userID); ok {
			return r
		}
		r := &record{system: m.defaultSystem}
		m.cache.Add(userID, r)
		return r
	}
	r, ok := m.records[userID]
	if !ok {
		r = &record{system: m.defaultSystem}
		m.records[userID] = r
	}
	return r
}

// Pin keeps the user's record from being evicted until the returned func
// is called. A dispatch pins its user so the assistant turn lands in the
// same record as the user turn it answers. Pins nest.
func (m *Memory) Pin(userID string) (unpin func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins[userID]++
	m.record(userID)

	var once sync.Once
	return func() {
		once.Do(func() { m.unpin(userID) })
	}
}

func (m *Memory) unpin(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pins[userID] > 1 {
		m.pins[userID]--
		return
	}
	delete(m.pins, userID)
	if r, ok := m.parked[userID]; ok {
		delete(m.parked, userID)
		m.cache.Add(userID, r)
	}
}

// Append adds a turn to the user's history. Once the history holds more
// than 2K entries the oldest pair is dropped.
func (m *Memory) Append(userID, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.record(userID)
	r.history = append(r.history, llm.Message{Role: role, Content: content})
	if len(r.history) > m.limit {
		drop := 2
		for len(r.history)-drop > m.limit {
			drop += 2
		}
		if drop > len(r.history) {
			drop = len(r.history)
		}
		r.history = slices.Clone(r.history[drop:])
	}
}

// Get returns the system instruction followed by the retained history,
// oldest first. The result is a copy.
func (m *Memory) Get(userID string) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.record(userID)
	out := make([]llm.Message, 0, len(r.history)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: r.system})
	return append(out, r.history...)
}

// History returns only the retained turns, without the system entry.
func (m *Memory) History(userID string) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.record(userID).history)
}

// SetSystemInstruction replaces the user's system instruction.
func (m *Memory) SetSystemInstruction(userID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(userID).system = text
}

// SystemInstruction returns the user's current system instruction.
func (m *Memory) SystemInstruction(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(userID).system
}

// Clear empties the user's history. The system instruction is kept.
func (m *Memory) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(userID).history = nil
}

// Len returns the number of conversation records held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache != nil {
		return m.cache.Len() + len(m.parked)
	}
	return len(m.records)
}
