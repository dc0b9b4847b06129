package notify_test

import (
	"testing"

	"github.com/aarunya/kartapi/notify"
)

func drain(ch <-chan notify.Event) []notify.Event {
	var out []notify.Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestBrokerFanout(t *testing.T) {
	b := notify.New()
	defer b.Close()

	all, stopAll := b.Subscribe(notify.Filter{})
	defer stopAll()
	lapsDay2, stopLaps := b.Subscribe(notify.Filter{
		Tables: []notify.Table{notify.TableLaps},
		Day:    2,
	})
	defer stopLaps()

	b.Publish(notify.Event{Table: notify.TableEntries, Day: 1, EntryID: 7})
	b.Publish(notify.Event{Table: notify.TableLaps, Day: 2, EntryID: 9})
	b.Publish(notify.Event{Table: notify.TableLaps, Day: 1, EntryID: 3})

	if got := drain(all); len(got) != 3 {
		t.Fatalf("unfiltered subscriber got %d events, want 3", len(got))
	}
	got := drain(lapsDay2)
	if len(got) != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", len(got))
	}
	if got[0].EntryID != 9 {
		t.Errorf("filtered subscriber got entry %d, want 9", got[0].EntryID)
	}
}

func TestBrokerGlobalEventMatchesDayFilters(t *testing.T) {
	b := notify.New()
	defer b.Close()

	day3, stop := b.Subscribe(notify.Filter{Day: 3})
	defer stop()

	// Day 0 marks a global change (full reset).
	b.Publish(notify.Event{Table: notify.TableEntries})

	if got := drain(day3); len(got) != 1 {
		t.Fatalf("day-filtered subscriber got %d events, want 1 global event", len(got))
	}
}

func TestBrokerBulkEventMatchesEntryFilters(t *testing.T) {
	b := notify.New()
	defer b.Close()

	entry5, stop := b.Subscribe(notify.Filter{EntryID: 5})
	defer stop()

	// No EntryID marks a bulk change (queue cleared): every entry-filtered
	// subscriber must hear about it, since its entry may be gone.
	b.Publish(notify.Event{Table: notify.TableEntries, Day: 1})
	b.Publish(notify.Event{Table: notify.TableEntries, Day: 1, EntryID: 6})

	got := drain(entry5)
	if len(got) != 1 {
		t.Fatalf("entry-filtered subscriber got %d events, want the 1 bulk event", len(got))
	}
	if got[0].EntryID != 0 {
		t.Errorf("got entry %d, want the bulk event", got[0].EntryID)
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := notify.New()
	defer b.Close()

	ch, stop := b.Subscribe(notify.Filter{})
	stop()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(notify.Event{Table: notify.TableLaps, Day: 1})
}

func TestBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	b := notify.New(notify.WithBufferSize(1))
	defer b.Close()

	ch, stop := b.Subscribe(notify.Filter{})
	defer stop()

	b.Publish(notify.Event{Table: notify.TableLaps, Day: 1, EntryID: 1})
	b.Publish(notify.Event{Table: notify.TableLaps, Day: 1, EntryID: 2})

	got := drain(ch)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1 (second dropped)", len(got))
	}
	if got[0].EntryID != 1 {
		t.Errorf("kept event entry %d, want the first", got[0].EntryID)
	}
}

func TestBrokerClose(t *testing.T) {
	b := notify.New()
	ch, _ := b.Subscribe(notify.Filter{})
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after close")
	}
	// Idempotent close and post-close subscribe must be safe.
	b.Close()
	ch2, stop := b.Subscribe(notify.Filter{})
	defer stop()
	if _, ok := <-ch2; ok {
		t.Fatal("post-close subscription delivered an event")
	}
}
