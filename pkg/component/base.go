// Package component implements the per-component mailbox/scheduling base
// that every simulator component (cache, directory, memory controller,
// NoC router, core) embeds (spec §4.1).
//
// Grounded on original_source/McSim/PTSComponent.h's Component base class:
// the req_event/rep_event time-keyed multimaps, the req_q/rep_q FIFOs, and
// the process_interval-based scheduling discipline are reproduced here as
// Base, an embeddable Go type rather than a C++ abstract base class.
package component

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ohnolabs/mcsim/pkg/event"
	"github.com/ohnolabs/mcsim/pkg/message"
	"github.com/ohnolabs/mcsim/pkg/param"
)

// Sentinel return value for Tick, matching the original's "continue" return
// from process_event for every component except cores (which return a
// resumable hthread id to the driver loop, see pkg/core).
const ContinueSentinel uint32 = ^uint32(0)

// Logger is the process-wide zerolog logger used by every component for
// lifecycle and fatal-assertion logging. It writes structured events through
// zerolog's human-readable ConsoleWriter to stderr (zerolog is the
// ambient-stack logging library, see DESIGN.md).
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).With().Timestamp().Logger()

// BankFunc selects which request bank a message's address routes to.
// Components with a single request bank (the common case) can pass nil, in
// which case every request goes to bank 0.
type BankFunc func(addr uint64) int

// Router resolves a message.ComponentID to a live component and delivers a
// message into its request or reply mailbox. pkg/sim implements this over
// its component registries; components only ever see the interface, which
// keeps the cyclic L2<->directory<->MC references as id lookups through one
// shared table rather than pointers between packages (spec §9).
type Router interface {
	AddReqEvent(to message.ComponentID, t uint64, msg *message.Message)
	AddRepEvent(to message.ComponentID, t uint64, msg *message.Message)
}

// RoundUpToInterval rounds x up to the next multiple of interval ("ceil_by_y"
// in the original). An interval of 0 is treated as 1 (no rounding).
func RoundUpToInterval(x, interval uint64) uint64 {
	if interval <= 1 {
		return x
	}
	return ((x + interval - 1) / interval) * interval
}

// Base is the embeddable per-component state: identity, mailboxes, and
// parameter-store access. Concrete components embed Base and implement
// Tick (the Go name for process_event) plus their own AddReqEvent/
// AddRepEvent wrappers where protocol-specific side effects are needed.
type Base struct {
	ID              message.ComponentID
	Class           string // e.g. "l1d$", "l2$", "dir", "mc", "xbar", "core" — used as the log field and ProtocolViolation.Component; parameter lookups go through Params
	ProcessInterval uint64
	Params          param.Prefixed
	Queue           *event.Queue
	NumBanks        int
	Bank            BankFunc
	Router          Router

	reqEvents map[uint64][]*message.Message
	repEvents map[uint64][]*message.Message

	reqFIFOs [][]*message.Message
	repFIFO  []*message.Message

	log zerolog.Logger
}

// Init finishes constructing a Base that was declared as a zero-value
// struct field (Go has no constructor chaining, so concrete components
// call this from their own constructors after setting ID/Class/etc.).
func (b *Base) Init() {
	if b.NumBanks < 1 {
		b.NumBanks = 1
	}
	b.reqEvents = make(map[uint64][]*message.Message)
	b.repEvents = make(map[uint64][]*message.Message)
	b.reqFIFOs = make([][]*message.Message, b.NumBanks)
	b.log = Logger.With().Str("component", b.Class).Int32("id", int32(b.ID)).Logger()
}

// Log returns the component's structured logger.
func (b *Base) Log() *zerolog.Logger { return &b.log }

// addEvent rounds the target time up to the component's process interval,
// records the message in the given mailbox bucket, and schedules a global
// wake-up for this component at that rounded time.
func (b *Base) addEvent(mailbox map[uint64][]*message.Message, targetTime uint64, msg *message.Message) uint64 {
	arrival := RoundUpToInterval(targetTime, b.ProcessInterval)
	mailbox[arrival] = append(mailbox[arrival], msg)
	b.Queue.Enqueue(arrival, b.ID)
	return arrival
}

// AddReqEvent deposits a request message for delivery at (a rounding of)
// targetTime.
func (b *Base) AddReqEvent(targetTime uint64, msg *message.Message) uint64 {
	return b.addEvent(b.reqEvents, targetTime, msg)
}

// AddRepEvent deposits a reply message for delivery at (a rounding of)
// targetTime.
func (b *Base) AddRepEvent(targetTime uint64, msg *message.Message) uint64 {
	return b.addEvent(b.repEvents, targetTime, msg)
}

// Drain spills any mailbox entries whose arrival time equals now into the
// per-bank request FIFOs and the single reply FIFO, in arrival order. Must
// be called once at the top of a component's Tick before it inspects its
// FIFOs.
func (b *Base) Drain(now uint64) {
	if msgs, ok := b.reqEvents[now]; ok {
		for _, m := range msgs {
			bank := 0
			if b.Bank != nil {
				bank = b.Bank(m.Address) % b.NumBanks
			}
			b.reqFIFOs[bank] = append(b.reqFIFOs[bank], m)
		}
		delete(b.reqEvents, now)
	}
	if msgs, ok := b.repEvents[now]; ok {
		b.repFIFO = append(b.repFIFO, msgs...)
		delete(b.repEvents, now)
	}
}

// PopReply dequeues the oldest pending reply message, if any. Reply work
// has strict priority over request work at every component (spec §4.1).
func (b *Base) PopReply() (*message.Message, bool) {
	if len(b.repFIFO) == 0 {
		return nil, false
	}
	m := b.repFIFO[0]
	b.repFIFO = b.repFIFO[1:]
	return m, true
}

// PopRequest dequeues at most one oldest pending request message from the
// given bank.
func (b *Base) PopRequest(bank int) (*message.Message, bool) {
	if bank < 0 || bank >= len(b.reqFIFOs) || len(b.reqFIFOs[bank]) == 0 {
		return nil, false
	}
	m := b.reqFIFOs[bank][0]
	b.reqFIFOs[bank] = b.reqFIFOs[bank][1:]
	return m, true
}

// HasPendingWork reports whether any mailbox or FIFO still holds messages,
// used by the §8 invariant-4 shutdown check ("empty mailboxes when the
// event queue drains").
func (b *Base) HasPendingWork() bool {
	if len(b.reqEvents) != 0 || len(b.repEvents) != 0 || len(b.repFIFO) != 0 {
		return true
	}
	for _, fifo := range b.reqFIFOs {
		if len(fifo) != 0 {
			return true
		}
	}
	return false
}

// SendReq forwards msg to the component identified by to, arriving at (a
// rounding of) t, via the shared Router. Fatal-aborts if no Router was
// wired (a construction bug, not a runtime condition).
func (b *Base) SendReq(to message.ComponentID, t uint64, msg *message.Message) {
	if b.Router == nil {
		b.Fatal("no router installed", msg)
		return
	}
	b.Router.AddReqEvent(to, t, msg)
}

// SendRep is SendReq's reply-mailbox counterpart.
func (b *Base) SendRep(to message.ComponentID, t uint64, msg *message.Message) {
	if b.Router == nil {
		b.Fatal("no router installed", msg)
		return
	}
	b.Router.AddRepEvent(to, t, msg)
}

// ProtocolViolation is the error type raised by Fatal: an unexpected
// message/state combination that indicates an implementation bug, not a
// workload issue (spec §7).
type ProtocolViolation struct {
	Component string
	ID        message.ComponentID
	Message   string
	Queue     string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation in %s[%d]: %s (queue: %s)", e.Component, e.ID, e.Message, e.Queue)
}

// Fatal logs a structured fatal event naming the component, the offending
// message/condition, and an event-queue snapshot, then panics. Spec §7:
// "the system prints the component, message, and event queue then aborts."
func (b *Base) Fatal(detail string, msg *message.Message) {
	queueSnapshot := ""
	if b.Queue != nil {
		queueSnapshot = b.Queue.Snapshot()
	}
	err := &ProtocolViolation{
		Component: b.Class,
		ID:        b.ID,
		Message:   fmt.Sprintf("%s (msg=%+v)", detail, msg),
		Queue:     queueSnapshot,
	}
	// WithLevel rather than Fatal: zerolog's Fatal().Msg calls os.Exit(1),
	// which would end the process before the panic below.
	b.log.WithLevel(zerolog.FatalLevel).
		Str("detail", detail).
		Interface("message", msg).
		Str("event_queue", queueSnapshot).
		Msg("protocol violation")
	panic(err)
}
