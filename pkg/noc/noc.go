// Package noc implements the on-chip interconnect that routes request,
// coherence-request, and reply flits between L2s and directories (spec
// §4.6): three interchangeable topologies sharing one mailbox interface —
// Crossbar, Mesh, and Ring.
//
// Grounded on original_source/McSim/PTSXbar.h/.cc (crossbar) for the shared
// mailbox/priority discipline; mesh and ring are this repo's spec-directed
// expansion of the original's crossbar-only NoC, built in the same idiom
// (see DESIGN.md).
package noc

import (
	"github.com/ohnolabs/mcsim/pkg/component"
	"github.com/ohnolabs/mcsim/pkg/event"
	"github.com/ohnolabs/mcsim/pkg/message"
	"github.com/ohnolabs/mcsim/pkg/param"
)

// priority orders the three traffic classes a NoC carries when draining a
// destination's queue: replies always go first, then coherence requests,
// then plain requests (spec §4.6: "rep > crq > req when draining").
type priority int

const (
	prioRep priority = iota
	prioCrq
	prioReq
)

// flit is one in-flight unit in the NoC's own destination-aware mailbox.
// The NoC does not route messages through component.Base's generic
// per-component FIFOs (those assume the mailbox owner IS the destination);
// it keeps its own time-keyed queue of (destination, message) pairs instead,
// so a message's protocol back-stack is never touched in transit.
type flit struct {
	to   message.ComponentID
	msg  *message.Message
	prio priority
}

// Topology distinguishes which concrete router discipline a NoC instance
// runs. All three share the arrival/flit-expansion bookkeeping below, but
// Crossbar, Mesh, and Ring genuinely differ in how a tick's traffic is
// grouped and drained (spec §4.6):
//
//   - Crossbar: every (source, destination) pair has its own dedicated
//     link, so contention is tracked per destination; two sends per
//     destination per tick, with a rotating top-priority destination for
//     fairness (grounded on PTSXbar.h/.cc).
//   - Mesh: a router's five ports (N, S, E, W, local) are the unit of
//     contention, not individual destinations — several destinations behind
//     the same port genuinely compete for its one send-per-tick budget.
//     Mesh additionally rotates which PRIORITY TIER drains first each tick
//     ("rotating starting priority"), unlike the other two topologies' fixed
//     rep > crq > req order.
//   - Ring: per-node queues are likewise grouped by port (sized by a
//     configurable radix, "how many L2s and MCs attach at each ring stop"),
//     each port's own FIFO rotating its serviced flit for fairness, same
//     fixed rep > crq > req priority as Crossbar.
type Topology int

const (
	TopologyCrossbar Topology = iota
	TopologyMesh
	TopologyRing
)

// meshPorts is the fixed five-port router spec §4.6 describes for mesh: N,
// S, E, W, and the local cluster port.
const meshPorts = 5

// NoC is the shared component.
type NoC struct {
	component.Base

	Topology     Topology
	ToLinkT      uint64
	SendsPerTick int

	arrivals map[uint64][]flit // keyed by arrival tick, populated by AddReqEvent/AddRepEvent/AddCrqEvent

	// queues is the Crossbar model: one FIFO per final destination, since a
	// real crossbar gives every destination its own dedicated link.
	queues   map[message.ComponentID][]flit
	rotation int // rotating top-priority index across destinations, for fairness (spec §4.6)

	// portQueues is the Mesh/Ring model: flits bucketed by router port
	// rather than by final destination (portOf), so destinations sharing a
	// port genuinely contend for its single per-tick send budget.
	// portRotation tracks each port's independent fairness counter —
	// interpreted as a priority-tier rotation under Mesh, and a
	// same-priority flit rotation (like Crossbar's, but scoped to the
	// port) under Ring.
	portQueues   [][]flit
	portRotation []int

	NumFlits, NumDummyFlits uint64
	NumHops                 uint64
}

// New constructs a NoC of the given topology reading its parameters from the
// given prefixed store ("pts.noc.").
func New(id message.ComponentID, class string, topo Topology, params param.Prefixed, q *event.Queue) *NoC {
	sendsPerTick := uint64(1)
	if topo == TopologyCrossbar {
		sendsPerTick = 2
	}
	n := &NoC{
		Topology:     topo,
		ToLinkT:      params.Uint64("link_latency", 20),
		SendsPerTick: int(params.Uint64("sends_per_tick", sendsPerTick)),
		arrivals:     make(map[uint64][]flit),
		queues:       make(map[message.ComponentID][]flit),
	}
	switch topo {
	case TopologyMesh:
		n.portQueues = make([][]flit, meshPorts)
		n.portRotation = make([]int, meshPorts)
	case TopologyRing:
		radix := int(params.Uint64("radix", 3))
		if radix < 2 {
			radix = 2
		}
		n.portQueues = make([][]flit, radix)
		n.portRotation = make([]int, radix)
	}
	n.Base = component.Base{
		ID:              id,
		Class:           class,
		ProcessInterval: params.Uint64("process_interval", 1),
		Params:          params,
		Queue:           q,
	}
	n.Base.Init()
	return n
}

// portOf deterministically buckets a destination into one of a router's
// ports: real port assignment depends on physical node placement, which
// this single shared NoC component (one stand-in for every router in the
// network, same simplification Crossbar already makes) doesn't model
// directly — but it still needs *a* stable, traffic-dependent assignment so
// that destinations genuinely contend for shared port bandwidth rather than
// each getting its own, which is exactly the Crossbar behavior this is
// meant to differ from.
func portOf(to message.ComponentID, numPorts int) int {
	return int(to % message.ComponentID(numPorts))
}

// schedule deposits msg for delivery to `to` no earlier than targetTime,
// expanding it into numFlits-1 dummy padding flits (destroyed on arrival,
// spec §4.6) plus the real message: all land in the same arrival bucket but
// each consumes its own per-tick departure slot once dispatch begins.
func (n *NoC) schedule(to message.ComponentID, targetTime uint64, msg *message.Message, prio priority, numFlits int) {
	arrival := component.RoundUpToInterval(targetTime+n.ToLinkT, n.Base.ProcessInterval)
	if numFlits < 1 {
		numFlits = 1
	}
	for i := 0; i < numFlits-1; i++ {
		dummy := &message.Message{Kind: message.KindNop, Address: msg.Address, Dummy: true}
		n.arrivals[arrival] = append(n.arrivals[arrival], flit{to: to, msg: dummy, prio: prio})
		n.NumDummyFlits++
	}
	n.arrivals[arrival] = append(n.arrivals[arrival], flit{to: to, msg: msg, prio: prio})
	n.NumFlits++
	n.Base.Queue.Enqueue(arrival, n.Base.ID)
}

// AddReqEvent is the NoC's public request surface (spec §4.6).
func (n *NoC) AddReqEvent(to message.ComponentID, t uint64, msg *message.Message) {
	n.schedule(to, t, msg, prioReq, 1)
}

// AddRepEvent is the NoC's public reply surface.
func (n *NoC) AddRepEvent(to message.ComponentID, t uint64, msg *message.Message) {
	n.schedule(to, t, msg, prioRep, 1)
}

// AddCrqEvent deposits a coherence-request flit, which drains between
// requests and replies (spec §4.6).
func (n *NoC) AddCrqEvent(to message.ComponentID, t uint64, msg *message.Message) {
	n.schedule(to, t, msg, prioCrq, 1)
}

// AddReqEventFlits is AddReqEvent with an explicit flit count, for traffic
// wider than one cycle-slot (spec §4.6's "variant accepting a flit count").
func (n *NoC) AddReqEventFlits(to message.ComponentID, t uint64, msg *message.Message, numFlits int) {
	n.schedule(to, t, msg, prioReq, numFlits)
}

// Tick drains this cycle's arrivals into whichever contention model this
// NoC's Topology uses, dispatches what that model's budget allows, and
// re-arms itself while any traffic remains in flight.
func (n *NoC) Tick(now uint64) {
	if arrived, ok := n.arrivals[now]; ok {
		for _, f := range arrived {
			if n.Topology == TopologyCrossbar {
				n.queues[f.to] = append(n.queues[f.to], f)
			} else {
				p := portOf(f.to, len(n.portQueues))
				n.portQueues[p] = append(n.portQueues[p], f)
			}
		}
		delete(n.arrivals, now)
	}

	if n.Topology == TopologyCrossbar {
		n.tickCrossbar(now)
	} else {
		n.tickRouter(now)
	}

	pending := len(n.arrivals) > 0
	if n.Topology == TopologyCrossbar {
		pending = pending || len(n.queues) > 0
	} else {
		for _, q := range n.portQueues {
			if len(q) > 0 {
				pending = true
				break
			}
		}
	}
	if pending {
		n.Base.Queue.Enqueue(now+n.Base.ProcessInterval, n.Base.ID)
	}
}

// tickCrossbar dispatches up to SendsPerTick flits per destination in
// priority order (rep, crq, req), rotating which destination is serviced
// first each tick so no endpoint can starve another (spec §4.6 "rotating
// top-priority index").
func (n *NoC) tickCrossbar(now uint64) {
	destinations := make([]message.ComponentID, 0, len(n.queues))
	for to := range n.queues {
		destinations = append(destinations, to)
	}
	if len(destinations) > 0 {
		sortDestinations(destinations)
		n.rotation = n.rotation % len(destinations)
		rotated := make([]message.ComponentID, len(destinations))
		copy(rotated, destinations[n.rotation:])
		copy(rotated[len(destinations)-n.rotation:], destinations[:n.rotation])
		destinations = rotated
		n.rotation++
	}

	for _, to := range destinations {
		q := n.queues[to]
		sortByPriority(q)
		q = n.drain(now, q)
		if len(q) == 0 {
			delete(n.queues, to)
		} else {
			n.queues[to] = q
		}
	}
}

// tickRouter dispatches Mesh/Ring traffic per port rather than per
// destination: several destinations behind the same port genuinely contend
// for its SendsPerTick budget (spec §4.6). Mesh rotates which priority tier
// drains first each tick ("rotating starting priority"); Ring keeps the
// fixed rep > crq > req order but rotates which same-tier flit goes first,
// mirroring Crossbar's destination fairness scoped down to one port.
func (n *NoC) tickRouter(now uint64) {
	for p := range n.portQueues {
		q := n.portQueues[p]
		if len(q) == 0 {
			continue
		}

		if n.Topology == TopologyMesh {
			sortByRotatedPriority(q, n.portRotation[p])
			n.portRotation[p] = (n.portRotation[p] + 1) % 3
		} else {
			sortByPriority(q)
			// Rotate only the leading run of the highest tier present, so
			// the fixed rep > crq > req order still holds across tiers.
			top := 1
			for top < len(q) && q[top].prio == q[0].prio {
				top++
			}
			copy(q, rotateQueue(q[:top], n.portRotation[p]))
			n.portRotation[p]++
		}

		n.portQueues[p] = n.drain(now, q)
	}
}

// drain ships up to SendsPerTick flits off the front of q, in whatever
// order the caller already sorted it into, returning the remainder.
func (n *NoC) drain(now uint64, q []flit) []flit {
	sent := 0
	for sent < n.SendsPerTick && len(q) > 0 {
		f := q[0]
		q = q[1:]
		sent++
		n.NumHops++
		if f.msg.Dummy {
			continue // destroyed on arrival, never delivered (spec §4.6)
		}
		if f.prio == prioRep {
			n.deliverRep(f.to, now, f.msg)
		} else {
			n.deliverReq(f.to, now, f.msg)
		}
	}
	return q
}

// rotateQueue cyclically shifts q by rot positions, giving a port's fairness
// counter a concrete effect on which flit is serviced first this tick.
func rotateQueue(q []flit, rot int) []flit {
	if len(q) == 0 {
		return q
	}
	rot = rot % len(q)
	rotated := make([]flit, len(q))
	copy(rotated, q[rot:])
	copy(rotated[len(q)-rot:], q[:rot])
	return rotated
}

// sortByRotatedPriority orders q the way sortByPriority does, except the
// tier considered highest this tick is rotated by start (Mesh's "rotating
// starting priority across ticks"), cycling which of rep/crq/req drains
// first instead of always favoring replies.
func sortByRotatedPriority(q []flit, start int) {
	rank := func(p priority) int { return ((int(p) - start) % 3 + 3) % 3 }
	for i := 1; i < len(q); i++ {
		for j := i; j > 0 && rank(q[j].prio) < rank(q[j-1].prio); j-- {
			q[j], q[j-1] = q[j-1], q[j]
		}
	}
}

// sortDestinations gives the per-tick rotation a stable base ordering to
// rotate, independent of Go's randomized map iteration order.
func sortDestinations(ids []message.ComponentID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// sortByPriority orders a destination's queue rep-first, crq-second,
// req-last for draining (spec §4.6), stable on arrival order within a tier.
func sortByPriority(q []flit) {
	for i := 1; i < len(q); i++ {
		for j := i; j > 0 && q[j].prio < q[j-1].prio; j-- {
			q[j], q[j-1] = q[j-1], q[j]
		}
	}
}

// deliverReq/deliverRep hand a flit that has finished its NoC transit to the
// Router the NoC itself was wired with (pkg/sim, after every component
// exists), mirroring Base.SendReq/SendRep's own late-binding discipline.
func (n *NoC) deliverReq(to message.ComponentID, now uint64, msg *message.Message) {
	if n.Base.Router == nil {
		n.Base.Fatal("noc has no router installed", msg)
		return
	}
	n.Base.Router.AddReqEvent(to, now, msg)
}

func (n *NoC) deliverRep(to message.ComponentID, now uint64, msg *message.Message) {
	if n.Base.Router == nil {
		n.Base.Fatal("noc has no router installed", msg)
		return
	}
	n.Base.Router.AddRepEvent(to, now, msg)
}

// Stats is the machine-readable snapshot exposed alongside the human
// zerolog summary (SPEC_FULL.md §4 expansion).
type Stats struct {
	NumFlits, NumDummyFlits uint64
	NumHops                 uint64
}

func (n *NoC) Stats() Stats {
	return Stats{NumFlits: n.NumFlits, NumDummyFlits: n.NumDummyFlits, NumHops: n.NumHops}
}

func (n *NoC) LogSummary() {
	if n.NumFlits == 0 {
		return
	}
	n.Base.Log().Info().
		Uint64("flits", n.NumFlits).Uint64("dummy_flits", n.NumDummyFlits).
		Uint64("hops", n.NumHops).
		Msg("noc summary")
}
