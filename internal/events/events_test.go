package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulatrade/tradesim/internal/entity"
)

func sampleEvent(id string) entity.TradeEvent {
	return entity.TradeEvent{
		ID:        id,
		Type:      entity.EventAccountDebited,
		AccountID: "alice@example.com",
		Symbol:    "Apple",
		Quantity:  10,
		Amount:    "1500",
		At:        time.Now().UTC().Truncate(time.Second),
	}
}

func TestBroadcaster_PublishSubscribe(t *testing.T) {
	b := NewBroadcaster(4)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	want := sampleEvent("e1")
	b.Publish(want)

	select {
	case got := <-ch:
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Type, got.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBroadcaster_DropsWhenSubscriberIsSlow(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(sampleEvent("e1"))
	b.Publish(sampleEvent("e2")) // buffer full, dropped

	got := <-ch
	assert.Equal(t, "e1", got.ID)

	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %s", e.ID)
	default:
	}
}

func TestBroadcaster_UnsubscribeCloses(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// double unsubscribe is a no-op
	b.Unsubscribe(ch)
}

func TestJournal_AppendAndReplay(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(sampleEvent("e1")))
	require.NoError(t, j.Append(sampleEvent("e2")))

	records, err := j.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "e1", records[0].Event.ID)
	assert.Equal(t, "e2", records[1].Event.ID)
	assert.Less(t, records[0].Index, records[1].Index)
}

func TestJournal_EventsAfterIndex(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(sampleEvent("e1")))
	first := j.CurrentIndex()
	require.NoError(t, j.Append(sampleEvent("e2")))

	records, err := j.EventsAfter(first)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "e2", records[0].Event.ID)

	none, err := j.EventsAfter(j.CurrentIndex())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournal_RejectsEventWithoutID(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	e := sampleEvent("")
	assert.Error(t, j.Append(e))
}
