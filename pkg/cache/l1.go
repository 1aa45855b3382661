// Package cache implements the two-level, MESI-coherent private/shared
// cache hierarchy (spec §4.2/§4.3): a per-core L1 instruction/data cache
// and a per-tile shared L2 that bridges L1s to the directory or the NoC.
//
// Grounded on original_source/McSim/PTSCache.h/.cc (CacheL1/CacheL2). The
// wire-direction convention is reproduced from that file's own call sites
// rather than invented: every send toward the directory/MC (misses,
// writebacks) goes out through Base.SendReq; every send back toward a core
// (data installs, directory-issued coherence commands, acks) goes out
// through Base.SendRep — matching PTSCache.cc/PTSDirectory.cc, which use
// add_req_event exclusively for memory-ward traffic and add_rep_event for
// everything flowing core-ward, coherence commands included.
package cache

import (
	"github.com/ohnolabs/mcsim/pkg/component"
	"github.com/ohnolabs/mcsim/pkg/event"
	"github.com/ohnolabs/mcsim/pkg/message"
	"github.com/ohnolabs/mcsim/pkg/param"
)

// L1Line is one way of an L1 set: a tag plus its MESI state. State ==
// message.Invalid marks an empty way.
type L1Line struct {
	Tag   uint64
	State message.CoherenceState
}

type prefetchEntry struct {
	addr uint64
	hit  bool
}

// L1 is a per-core, write-allocate, writeback L1 cache (instruction or
// data), with optional next-line prefetch.
type L1 struct {
	component.Base

	SetLSB      uint64
	L2SetLSB    uint64
	NumSets     uint64
	NumWays     uint64
	AlwaysHit   bool
	ToLSUT      uint64
	ToL2T       uint64
	UsePrefetch bool
	NumPreEntries uint64

	L2 message.ComponentID

	// sets[s] holds NumWays lines, ordered LRU (index 0) to MRU (last).
	sets [][]L1Line

	// pending tracks, per cache-line-aligned address, the message
	// currently in flight to L2 for that line so a concurrent access to
	// the same line is not issued twice.
	pending map[uint64]*message.Message

	pres               []prefetchEntry
	oldestPreEntryIdx  int
	numPrefetchReqs    uint64
	numPrefetchHits    uint64

	NumRdAccess      uint64
	NumRdMiss        uint64
	NumWrAccess      uint64
	NumWrMiss        uint64
	NumEvCoherency   uint64
	NumEvCapacity    uint64
	NumCoherencyAcc  uint64
	NumUpgradeReq    uint64
	NumBypass        uint64
	NumNack          uint64
}

// NewL1 constructs an L1 cache reading parameters from the given prefixed
// store (e.g. "pts.l1d$." or "pts.l1i$.").
func NewL1(id message.ComponentID, class string, l2 message.ComponentID, params param.Prefixed, q *event.Queue) *L1 {
	l := &L1{
		SetLSB:        params.Uint64("set_lsb", 6),
		NumSets:       params.Uint64("num_sets", 64),
		NumWays:       params.Uint64("num_ways", 4),
		AlwaysHit:     params.Bool("always_hit", false),
		ToLSUT:        params.Uint64("to_lsu_t", 0),
		ToL2T:         params.Uint64("to_l2_t", 45),
		UsePrefetch:   params.Bool("use_prefetch", false),
		NumPreEntries: params.Uint64("num_pre_entries", 64),
		L2:            l2,
		pending:       make(map[uint64]*message.Message),
	}
	l.L2SetLSB = params.Uint64("l2_set_lsb", l.SetLSB)
	if l.L2SetLSB < l.SetLSB {
		l.L2SetLSB = l.SetLSB
	}

	l.sets = make([][]L1Line, l.NumSets)
	for i := range l.sets {
		l.sets[i] = make([]L1Line, l.NumWays)
	}
	if l.UsePrefetch {
		l.pres = make([]prefetchEntry, l.NumPreEntries)
	}

	l.Base = component.Base{
		ID:              id,
		Class:           class,
		ProcessInterval: params.Uint64("process_interval", 10),
		Params:          params,
		Queue:           q,
	}
	l.Base.Init()
	return l
}

func (l *L1) setOf(addr uint64) uint64 { return (addr >> l.SetLSB) % l.NumSets }
func (l *L1) tagOf(addr uint64) uint64 { return (addr >> l.SetLSB) / l.NumSets }
func (l *L1) lineAddr(addr uint64) uint64 { return (addr >> l.SetLSB) << l.SetLSB }

// findWay returns the way index holding tag in set s, or -1.
func (l *L1) findWay(s uint64, tag uint64) int {
	for i, line := range l.sets[s] {
		if line.State != message.Invalid && line.Tag == tag {
			return i
		}
	}
	return -1
}

// promote moves way i to the MRU (last) position of its set.
func (l *L1) promote(s uint64, i int) {
	set := l.sets[s]
	line := set[i]
	copy(set[i:], set[i+1:])
	set[len(set)-1] = line
}

// Tick drains mailboxes and services at most one reply, or, when no reply
// is waiting, at most one request (L1 has a single request bank), per spec
// §4.2.
func (l *L1) Tick(now uint64) {
	l.Base.Drain(now)

	if rep, ok := l.Base.PopReply(); ok {
		l.handleReply(now, rep)
	} else if req, ok := l.Base.PopRequest(0); ok {
		l.handleRequest(now, req)
	}

	if l.Base.HasPendingWork() {
		l.Base.Queue.Enqueue(now+l.Base.ProcessInterval, l.Base.ID)
	}
}

func (l *L1) handleRequest(now uint64, req *message.Message) {
	s := l.setOf(req.Address)
	tag := l.tagOf(req.Address)
	way := l.findWay(s, tag)

	isWrite := req.Kind == message.KindWrite
	if isWrite {
		l.NumWrAccess++
	} else {
		l.NumRdAccess++
	}

	if l.AlwaysHit || (way >= 0 && l.hitCompatible(s, way, isWrite)) {
		if way < 0 {
			way = int(l.NumWays - 1)
		} else {
			if isWrite {
				l.sets[s][way].State = message.Modified
			}
			l.promote(s, way)
			way = len(l.sets[s]) - 1
		}
		reply := req.Clone()
		dest := reply.Pop()
		l.Base.SendRep(dest, now+l.ToLSUT, reply)
		if l.UsePrefetch && !isWrite {
			l.scorePrefetchHit(req.Address)
			l.doPrefetch(now, req.Address)
		}
		return
	}

	if way >= 0 {
		// Present but incompatible (a write against Shared):
		// invalidate locally and re-request as an upgrade.
		l.NumUpgradeReq++
		l.sets[s][way].State = message.Invalid
	}

	if isWrite {
		l.NumWrMiss++
	} else {
		l.NumRdMiss++
	}

	lineAddr := l.lineAddr(req.Address)
	if _, inflight := l.pending[lineAddr]; inflight {
		// A second access to an already-outstanding line: nack it back to
		// the core to retry later rather than double-issuing to L2.
		nack := req.Clone()
		nack.Kind = message.KindNack
		dest := nack.Pop()
		l.NumNack++
		l.Base.SendRep(dest, now+l.ToLSUT, nack)
		return
	}

	fwd := req.Clone()
	fwd.Push(l.Base.ID)
	l.pending[lineAddr] = req
	l.Base.SendReq(l.L2, now+l.ToL2T, fwd)
}

// hitCompatible reports whether an existing line can satisfy isWrite
// without a coherence upgrade: any non-invalid state serves a read; only
// Modified or Exclusive (promotable in place) serve a write.
func (l *L1) hitCompatible(s uint64, way int, isWrite bool) bool {
	st := l.sets[s][way].State
	if st == message.Invalid {
		return false
	}
	if !isWrite {
		return true
	}
	return st == message.Modified || st == message.Exclusive
}

// handleReply processes L2-originated traffic: data installs (carrying a
// resulting coherence state encoded in Kind) and coherence commands
// (m_to_s, m_to_m, invalidate/invalidate_nd) that demote or evict a line.
func (l *L1) handleReply(now uint64, rep *message.Message) {
	lineAddr := l.lineAddr(rep.Address)

	switch rep.Kind {
	case message.KindERd, message.KindSRd, message.KindWrite:
		l.install(now, rep)
		delete(l.pending, lineAddr)

	case message.KindNack:
		delete(l.pending, lineAddr)
		orig := rep.Clone()
		dest := orig.Pop()
		l.Base.SendRep(dest, now+l.ToLSUT, orig)

	case message.KindMToS, message.KindMToM:
		l.demote(now, rep, rep.Kind)

	case message.KindInvalidate, message.KindInvalidateND:
		l.invalidateLine(now, rep)

	default:
		l.Base.Fatal("unexpected reply kind at l1", rep)
	}
}

// install places an L2 reply's full line span into the L1 array (spec
// §4.2: "iterate over the sub-lines covered by one L2 line"). One L2 reply
// carries data for an entire L2 line; when L1's own line is smaller, every
// sub-line it covers is installed, not just the one the core asked for.
// L2SetLSB >= SetLSB always (enforced in NewL1), so this loop runs at
// least once, covering the equal-line-size case too.
func (l *L1) install(now uint64, rep *message.Message) {
	l1Line := uint64(1) << l.SetLSB
	numSubLines := uint64(1) << (l.L2SetLSB - l.SetLSB)
	base := (rep.Address >> l.L2SetLSB) << l.L2SetLSB

	for i := uint64(0); i < numSubLines; i++ {
		l.installLine(now, base+i*l1Line, rep.Kind, rep.ThreadID)
	}

	reply := rep.Clone()
	core := reply.Pop()
	l.Base.SendRep(core, now+l.ToLSUT, reply)
}

// installLine installs (or evicts-then-installs) the single L1 line at
// addr in the coherence state kind implies, issuing a writeback for any
// dirty victim.
func (l *L1) installLine(now uint64, addr uint64, kind message.Kind, tid uint32) {
	s := l.setOf(addr)
	tag := l.tagOf(addr)

	if way := l.findWay(s, tag); way >= 0 {
		l.sets[s][way].State = stateFor(kind)
		l.promote(s, way)
		return
	}

	victim := l.sets[s][0]
	if victim.State == message.Modified {
		l.NumEvCapacity++
		wb := message.NewMessage(message.KindEvict, l.Base.ID, (victim.Tag*l.NumSets+s)<<l.SetLSB, tid)
		l.Base.SendReq(l.L2, now+l.ToL2T, wb)
	} else if victim.State != message.Invalid {
		wb := message.NewMessage(message.KindEvictND, l.Base.ID, (victim.Tag*l.NumSets+s)<<l.SetLSB, tid)
		l.Base.SendReq(l.L2, now+l.ToL2T, wb)
	}
	l.sets[s][0] = L1Line{Tag: tag, State: stateFor(kind)}
	l.promote(s, 0)
}

func stateFor(k message.Kind) message.CoherenceState {
	switch k {
	case message.KindERd:
		return message.Exclusive
	case message.KindSRd:
		return message.Shared
	case message.KindWrite:
		return message.Modified
	default:
		return message.Invalid
	}
}

// demote handles an L2-issued m_to_s/m_to_m: the line downgrades to Shared
// (m_to_s) or is invalidated (m_to_m), and the data is forwarded back down
// to L2 so it can complete a pending request from a peer.
func (l *L1) demote(now uint64, msg *message.Message, downgradeTo message.Kind) {
	s := l.setOf(msg.Address)
	tag := l.tagOf(msg.Address)
	way := l.findWay(s, tag)
	if way < 0 {
		// Already evicted: bypass, nothing to forward but data.
		l.NumBypass++
		bypass := msg.Clone()
		bypass.Kind = message.KindRdBypass
		l.Base.SendReq(l.L2, now+l.ToL2T, bypass)
		return
	}

	l.NumCoherencyAcc++
	if downgradeTo == message.KindMToM {
		l.sets[s][way].State = message.Invalid
	} else {
		l.sets[s][way].State = message.Shared
	}
	ack := msg.Clone()
	ack.Kind = downgradeTo
	l.Base.SendReq(l.L2, now+l.ToL2T, ack)
}

// invalidateLine handles a directory-originated invalidate forwarded by L2:
// drop the line and reply with the data (invalidate) or a null ack
// (invalidate_nd) depending on whether it was dirty.
func (l *L1) invalidateLine(now uint64, msg *message.Message) {
	s := l.setOf(msg.Address)
	tag := l.tagOf(msg.Address)
	way := l.findWay(s, tag)
	if way < 0 {
		l.NumBypass++
		ack := msg.Clone()
		ack.Kind = message.KindInvalidateND
		l.Base.SendReq(l.L2, now+l.ToL2T, ack)
		return
	}

	l.NumCoherencyAcc++
	wasDirty := l.sets[s][way].State == message.Modified
	l.sets[s][way].State = message.Invalid
	if wasDirty {
		l.NumEvCoherency++
		ack := msg.Clone()
		ack.Kind = message.KindInvalidate
		l.Base.SendReq(l.L2, now+l.ToL2T, ack)
	} else {
		ack := msg.Clone()
		ack.Kind = message.KindInvalidateND
		l.Base.SendReq(l.L2, now+l.ToL2T, ack)
	}
}

// scorePrefetchHit marks the ring entry for addr as having been used by a
// real demand access, crediting the prefetcher's hit-rate stat.
func (l *L1) scorePrefetchHit(addr uint64) {
	lineAddrVal := l.lineAddr(addr)
	for i := range l.pres {
		if l.pres[i].addr == lineAddrVal && !l.pres[i].hit {
			l.pres[i].hit = true
			l.numPrefetchHits++
			return
		}
	}
}

// doPrefetch issues a next-line prefetch for the line adjacent to addr,
// opposite of whichever neighbor is already present, and records it in the
// small ring of outstanding prefetch entries (spec §4.2).
func (l *L1) doPrefetch(now uint64, addr uint64) {
	lineSize := uint64(1) << l.SetLSB
	prev := addr - lineSize
	next := addr + lineSize

	var target uint64
	if l.lineResident(prev) && !l.lineResident(next) {
		target = next
	} else if l.lineResident(next) && !l.lineResident(prev) {
		target = prev
	} else {
		return
	}
	if l.lineResident(target) {
		return
	}

	l.numPrefetchReqs++
	if len(l.pres) > 0 {
		l.pres[l.oldestPreEntryIdx] = prefetchEntry{addr: target}
		l.oldestPreEntryIdx = (l.oldestPreEntryIdx + 1) % len(l.pres)
	}

	lineAddrVal := l.lineAddr(target)
	if _, inflight := l.pending[lineAddrVal]; inflight {
		return
	}
	pf := message.NewMessage(message.KindRead, l.Base.ID, target, 0)
	pf.Push(l.Base.ID)
	l.pending[lineAddrVal] = pf
	l.Base.SendReq(l.L2, now+l.ToL2T, pf)
}

func (l *L1) lineResident(addr uint64) bool {
	s := l.setOf(addr)
	tag := l.tagOf(addr)
	return l.findWay(s, tag) >= 0
}

// L1Stats is the machine-readable snapshot exposed alongside the zerolog
// summary (SPEC_FULL.md §4 expansion).
type L1Stats struct {
	NumRdAccess, NumRdMiss   uint64
	NumWrAccess, NumWrMiss   uint64
	NumEvCoherency           uint64
	NumEvCapacity            uint64
	NumCoherencyAccess       uint64
	NumUpgradeReq            uint64
	NumBypass, NumNack       uint64
	NumPrefetchRequests      uint64
	NumPrefetchHits          uint64
}

func (l *L1) Stats() L1Stats {
	return L1Stats{
		NumRdAccess: l.NumRdAccess, NumRdMiss: l.NumRdMiss,
		NumWrAccess: l.NumWrAccess, NumWrMiss: l.NumWrMiss,
		NumEvCoherency: l.NumEvCoherency, NumEvCapacity: l.NumEvCapacity,
		NumCoherencyAccess: l.NumCoherencyAcc, NumUpgradeReq: l.NumUpgradeReq,
		NumBypass: l.NumBypass, NumNack: l.NumNack,
		NumPrefetchRequests: l.numPrefetchReqs, NumPrefetchHits: l.numPrefetchHits,
	}
}

func (l *L1) LogSummary() {
	if l.NumRdAccess == 0 && l.NumWrAccess == 0 {
		return
	}
	l.Base.Log().Info().
		Uint64("rd_access", l.NumRdAccess).Uint64("rd_miss", l.NumRdMiss).
		Uint64("wr_access", l.NumWrAccess).Uint64("wr_miss", l.NumWrMiss).
		Uint64("prefetch_hits", l.numPrefetchHits).Uint64("prefetch_reqs", l.numPrefetchReqs).
		Msg("l1 cache summary")
}
