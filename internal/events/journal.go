package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/nebulatrade/tradesim/internal/entity"
)

const (
	defaultJournalDir   = "./wal/events"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	journalKeyPrefix    = "trade_event_"
)

// Journal persists trade events in a WAL so the event stream survives
// restarts and late subscribers can catch up by index.
type Journal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewJournal initializes a WAL-backed event journal under dir.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "event_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init trade event WAL")
	}

	return &Journal{wal: wal}, nil
}

// Append writes the event to the WAL.
func (j *Journal) Append(e entity.TradeEvent) error {
	if j == nil || j.wal == nil {
		return errors.New("event journal is not initialized")
	}
	if e.ID == "" {
		return fmt.Errorf("trade event id is required")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal trade event")
	}

	key := fmt.Sprintf("%s%s", journalKeyPrefix, e.ID)

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// EventsAfter returns all trade events written after the provided WAL index.
func (j *Journal) EventsAfter(index uint64) ([]entity.TradeEventRecord, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("event journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	current := j.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]entity.TradeEventRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, ok := j.wal.Get(idx)
		if !ok || !strings.HasPrefix(key, journalKeyPrefix) {
			continue
		}
		var e entity.TradeEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, errors.Wrap(err, "decode trade event")
		}
		records = append(records, entity.TradeEventRecord{Index: idx, Event: e})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (j *Journal) CurrentIndex() uint64 {
	if j == nil || j.wal == nil {
		return 0
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return errors.New("event journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}
