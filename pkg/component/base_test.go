package component

import (
	"testing"

	"github.com/ohnolabs/mcsim/pkg/event"
	"github.com/ohnolabs/mcsim/pkg/message"
	"github.com/ohnolabs/mcsim/pkg/param"
)

func newTestBase(t *testing.T, interval uint64, numBanks int) (*Base, *event.Queue) {
	t.Helper()
	store := param.NewStore()
	q := event.New()
	b := &Base{
		ID:              message.ComponentID(1),
		Class:           "test",
		ProcessInterval: interval,
		Params:          param.WithPrefix(store, "pts.test."),
		Queue:           q,
		NumBanks:        numBanks,
	}
	b.Init()
	return b, q
}

func TestRoundUpToInterval(t *testing.T) {
	cases := []struct{ x, interval, want uint64 }{
		{0, 4, 0},
		{1, 4, 4},
		{4, 4, 4},
		{5, 4, 8},
		{10, 1, 10},
		{10, 0, 10},
	}
	for _, c := range cases {
		if got := RoundUpToInterval(c.x, c.interval); got != c.want {
			t.Fatalf("RoundUpToInterval(%d,%d): got %d, want %d", c.x, c.interval, got, c.want)
		}
	}
}

func TestAddReqEventRoundsAndSchedules(t *testing.T) {
	b, q := newTestBase(t, 4, 1)
	m := message.NewMessage(message.KindRead, message.ComponentID(2), 0x100, 0)
	arrival := b.AddReqEvent(5, m)
	if arrival != 8 {
		t.Fatalf("arrival: got %d, want 8", arrival)
	}

	wakeTime, targets, ok := q.RunOne()
	if !ok || wakeTime != 8 || len(targets) != 1 || targets[0] != b.ID {
		t.Fatalf("RunOne: wakeTime=%d targets=%v ok=%v", wakeTime, targets, ok)
	}

	b.Drain(8)
	if !b.HasPendingWork() {
		t.Fatalf("expected pending work after drain before pop")
	}
	got, ok := b.PopRequest(0)
	if !ok || got != m {
		t.Fatalf("PopRequest: got %v ok=%v, want original message", got, ok)
	}
	if b.HasPendingWork() {
		t.Fatalf("expected no pending work after pop")
	}
}

func TestReplyDrainedIntoSingleFIFORegardlessOfBank(t *testing.T) {
	b, _ := newTestBase(t, 1, 4)
	m := message.NewMessage(message.KindInvalidate, message.ComponentID(2), 0x40, 0)
	b.AddRepEvent(3, m)
	b.Drain(3)

	got, ok := b.PopReply()
	if !ok || got != m {
		t.Fatalf("PopReply: got %v ok=%v", got, ok)
	}
	if _, ok := b.PopReply(); ok {
		t.Fatalf("expected reply FIFO empty after single pop")
	}
}

func TestRequestsRouteToBankByAddress(t *testing.T) {
	b, _ := newTestBase(t, 1, 2)
	b.Bank = func(addr uint64) int { return int(addr % 2) }

	even := message.NewMessage(message.KindRead, message.ComponentID(2), 0x10, 0)
	odd := message.NewMessage(message.KindRead, message.ComponentID(2), 0x11, 0)
	b.AddReqEvent(1, even)
	b.AddReqEvent(1, odd)
	b.Drain(1)

	if got, ok := b.PopRequest(0); !ok || got != even {
		t.Fatalf("bank 0: got %v ok=%v, want even message", got, ok)
	}
	if got, ok := b.PopRequest(1); !ok || got != odd {
		t.Fatalf("bank 1: got %v ok=%v, want odd message", got, ok)
	}
}

func TestFatalPanicsWithProtocolViolation(t *testing.T) {
	b, _ := newTestBase(t, 1, 1)
	m := message.NewMessage(message.KindNack, message.ComponentID(2), 0x20, 0)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic")
		}
		if _, ok := r.(*ProtocolViolation); !ok {
			t.Fatalf("expected *ProtocolViolation panic, got %T", r)
		}
	}()
	b.Fatal("unexpected nack", m)
}
