package repository

import (
	"context"
	"errors"
	"strings"
	"sync"

	"slack-responder/internal/domain"
)

var errEmptyChannel = errors.New("repository: channel id must not be empty")

// MemoryLedger is the default process-lifetime ledger. A single lock guards
// the map, so concurrent writers to one channel resolve to last-write-wins.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]domain.ReplyRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]domain.ReplyRecord)}
}

func (l *MemoryLedger) Record(_ context.Context, rec domain.ReplyRecord) error {
	if strings.TrimSpace(rec.ChannelID) == "" {
		return errEmptyChannel
	}
	l.mu.Lock()
	l.records[rec.ChannelID] = rec
	l.mu.Unlock()
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, channelID string) (domain.ReplyRecord, bool, error) {
	l.mu.RLock()
	rec, ok := l.records[channelID]
	l.mu.RUnlock()
	return rec, ok, nil
}

// ClearIf removes the channel's record only while it still points at
// messageID, so a reply recorded after the caller's read survives.
func (l *MemoryLedger) ClearIf(_ context.Context, channelID, messageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[channelID]; ok && rec.MessageID == messageID {
		delete(l.records, channelID)
	}
	return nil
}
