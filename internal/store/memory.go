package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"wamirror/internal/models"
)

// Memory is a process-local Store used by tests and the "memory" driver.
type Memory struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	// insertion order breaks timestamp ties the way created_at does in SQL
	seq  map[string]int
	next int
}

func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string]*models.Message),
		seq:      make(map[string]int),
	}
}

func (m *Memory) UpsertOnID(_ context.Context, delta MessageDelta) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.messages[delta.Record.MessageID]
	if !ok {
		record := cloneMessage(&delta.Record)
		if record.CreatedAt.IsZero() {
			record.CreatedAt = delta.TouchedAt
		}
		if record.StatusHistory == nil {
			record.StatusHistory = []models.StatusEntry{}
		}
		existing = record
		m.store(existing)
	}
	existing.RawPayload = delta.RawPayload
	existing.UpdatedAt = delta.TouchedAt

	return cloneMessage(existing), nil
}

func (m *Memory) AppendStatus(_ context.Context, messageID string, update StatusUpdate) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.messages[messageID]
	if !ok {
		return nil, nil
	}
	existing.Status = update.Status
	existing.UpdatedAt = update.TouchedAt
	existing.RawPayload = update.RawPayload
	existing.StatusHistory = append(existing.StatusHistory, update.Entry)

	return cloneMessage(existing), nil
}

func (m *Memory) InsertIfAbsent(_ context.Context, msg *models.Message) (*models.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[msg.MessageID]; ok {
		return nil, false, nil
	}
	record := cloneMessage(msg)
	if record.StatusHistory == nil {
		record.StatusHistory = []models.StatusEntry{}
	}
	m.store(record)
	return cloneMessage(record), true, nil
}

func (m *Memory) FindByContact(_ context.Context, contactID string) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Message, 0)
	for _, msg := range m.messages {
		if msg.ContactID != nil && *msg.ContactID == contactID {
			out = append(out, cloneMessage(msg))
		}
	}
	m.sortAscending(out)
	return out, nil
}

func (m *Memory) LatestPerContact(_ context.Context) ([]models.ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*models.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		all = append(all, msg)
	}
	m.sortAscending(all)

	type group struct {
		first *models.Message
		last  *models.Message
	}
	groups := make(map[string]*group)
	var order []string
	var nullGroup *group
	for _, msg := range all {
		var g *group
		if msg.ContactID == nil {
			if nullGroup == nil {
				nullGroup = &group{first: msg}
			}
			g = nullGroup
		} else {
			key := *msg.ContactID
			if groups[key] == nil {
				groups[key] = &group{first: msg}
				order = append(order, key)
			}
			g = groups[key]
		}
		g.last = msg
	}

	summaries := make([]models.ConversationSummary, 0, len(groups)+1)
	appendSummary := func(g *group) {
		summaries = append(summaries, models.ConversationSummary{
			ContactID:     g.last.ContactID,
			ContactName:   g.first.ContactName,
			LastMessage:   g.last.Text,
			LastTimestamp: g.last.Timestamp,
			LastStatus:    g.last.Status,
		})
	}
	for _, key := range order {
		appendSummary(groups[key])
	}
	if nullGroup != nil {
		appendSummary(nullGroup)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return timeAfter(summaries[i].LastTimestamp, summaries[j].LastTimestamp)
	})
	return summaries, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) store(msg *models.Message) {
	m.messages[msg.MessageID] = msg
	m.seq[msg.MessageID] = m.next
	m.next++
}

// sortAscending orders by timestamp with missing timestamps first.
func (m *Memory) sortAscending(msgs []*models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].Timestamp, msgs[j].Timestamp
		switch {
		case a == nil && b == nil:
		case a == nil:
			return true
		case b == nil:
			return false
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return m.seq[msgs[i].MessageID] < m.seq[msgs[j].MessageID]
	})
}

// timeAfter orders descending with nil last.
func timeAfter(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.After(*b)
}

func cloneMessage(msg *models.Message) *models.Message {
	out := *msg
	out.ContactID = cloneString(msg.ContactID)
	out.ContactName = cloneString(msg.ContactName)
	out.Text = cloneString(msg.Text)
	if msg.Timestamp != nil {
		ts := *msg.Timestamp
		out.Timestamp = &ts
	}
	if msg.StatusHistory != nil {
		out.StatusHistory = append([]models.StatusEntry(nil), msg.StatusHistory...)
	}
	if msg.RawPayload != nil {
		out.RawPayload = maps.Clone(msg.RawPayload)
	}
	return &out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}
