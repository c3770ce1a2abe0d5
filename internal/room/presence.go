// ABOUTME: Ephemeral per-connection presence state for one room
// ABOUTME: Created on join, mutated only by the owning connection, destroyed on close

package room

import (
	"sort"
	"sync"
)

// Identity is the display identity a connection presents on join.
type Identity struct {
	DisplayName string `json:"displayName"`
	ColorHint   string `json:"colorHint"`
}

// Presence is one connection's ephemeral state. FocusedSection is advisory
// UI metadata ("N others are editing this section"); stale or missing values
// degrade to no indicator, never to an error.
type Presence struct {
	ConnectionID   string   `json:"connectionId"`
	Identity       Identity `json:"identity"`
	FocusedSection string   `json:"focusedSection,omitempty"`
}

// PresenceUpdate is a partial presence change. Nil fields are left untouched.
type PresenceUpdate struct {
	DisplayName    *string `json:"displayName,omitempty"`
	ColorHint      *string `json:"colorHint,omitempty"`
	FocusedSection *string `json:"focusedSection,omitempty"`
}

// PresenceTable holds the presence entries of one room. Never persisted.
type PresenceTable struct {
	mu      sync.RWMutex
	entries map[string]*Presence
}

// NewPresenceTable creates an empty table.
func NewPresenceTable() *PresenceTable {
	return &PresenceTable{entries: make(map[string]*Presence)}
}

// Add creates the entry for a joining connection and returns a copy.
func (p *PresenceTable) Add(connectionID string, identity Identity) Presence {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := &Presence{ConnectionID: connectionID, Identity: identity}
	p.entries[connectionID] = entry
	return *entry
}

// Set merges a partial update into a connection's own entry and returns a
// copy of the refreshed entry. Unknown connections return false: the update
// raced the disconnect and is dropped.
func (p *PresenceTable) Set(connectionID string, update PresenceUpdate) (Presence, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[connectionID]
	if !ok {
		return Presence{}, false
	}
	if update.DisplayName != nil {
		entry.Identity.DisplayName = *update.DisplayName
	}
	if update.ColorHint != nil {
		entry.Identity.ColorHint = *update.ColorHint
	}
	if update.FocusedSection != nil {
		entry.FocusedSection = *update.FocusedSection
	}
	return *entry, true
}

// Remove destroys a connection's entry immediately. No grace period.
func (p *PresenceTable) Remove(connectionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[connectionID]; !ok {
		return false
	}
	delete(p.entries, connectionID)
	return true
}

// List returns copies of all entries, ordered by connection id for stable
// payloads.
func (p *PresenceTable) List() []Presence {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Presence, 0, len(p.entries))
	for _, entry := range p.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// Roster returns the distinct display names currently present, for mention
// resolution against the room's known users.
func (p *PresenceTable) Roster() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := make(map[string]struct{}, len(p.entries))
	names := make([]string, 0, len(p.entries))
	for _, entry := range p.entries {
		name := entry.Identity.DisplayName
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
