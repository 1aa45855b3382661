package cache

import (
	"github.com/ohnolabs/mcsim/pkg/component"
	"github.com/ohnolabs/mcsim/pkg/event"
	"github.com/ohnolabs/mcsim/pkg/message"
	"github.com/ohnolabs/mcsim/pkg/param"
)

// L2Entry is one way of an L2 set (spec §3's "L2 line"):
//   - Tag/T: the directory-facing tag and coherence state.
//   - TL1: the L1-facing state summarizing what this tile's L1s collectively hold.
//   - Sharers: the set of L1 ComponentIDs currently caching the line.
//   - Pending: the message parked while a transient state resolves.
type L2Entry struct {
	Tag     uint64
	T       message.CoherenceState
	TL1     message.CoherenceState
	Sharers map[message.ComponentID]struct{}
	Pending *message.Message

	// PendingAcksRemaining/PendingGotCL track fan-in for a Pending command
	// that was broadcast to more than one local L1 (a directory-issued
	// invalidate, or a write upgrade invalidating several Shared sharers):
	// the line stays transient until every sharer has acked.
	PendingAcksRemaining int
	PendingGotCL         bool
	// PendingEscalate marks a local write-invalidate fan-in that still owes
	// a directory round trip once it completes (the line is Shared at the
	// directory's own granularity, so another tile may still hold a copy),
	// as opposed to one local to an already globally-Exclusive line.
	PendingEscalate bool

	FirstAccessTime uint64
	LastAccessTime  uint64
}

func newL2Entry() L2Entry {
	return L2Entry{T: message.Invalid, TL1: message.Invalid, Sharers: make(map[message.ComponentID]struct{})}
}

// L2 is a shared, per-tile L2 cache bridging its L1s to the directory (or
// the NoC for remote-tile requests).
type L2 struct {
	component.Base

	SetLSB    uint64
	NumSets   uint64
	NumWays   uint64
	AlwaysHit bool
	ToL1T     uint64
	ToDirT    uint64
	ToXbarT   uint64

	Directory message.ComponentID
	NoC       message.ComponentID
	// IsLocal reports whether addr's home memory controller/directory is
	// this L2's own directory, or must be routed through the NoC instead.
	// Defaults to "always local" (single-tile configurations) when nil.
	IsLocal func(addr uint64) bool
	// HomeDirectory resolves the remote directory owning addr when IsLocal
	// reports false; wired by pkg/sim from the tile layout. The resolved id
	// is pushed onto the message's back-stack immediately before handing it
	// to the NoC, which pops it back off to learn its real delivery target
	// (the NoC's own mailbox only knows "to the NoC", not "through it").
	HomeDirectory func(addr uint64) message.ComponentID

	sets [][]L2Entry

	NumRdAccess, NumRdMiss     uint64
	NumWrAccess, NumWrMiss     uint64
	NumEvFromL1, NumEvFromL1Miss uint64
	NumEvCapacity              uint64
	NumCoherencyAccess         uint64
	NumUpgradeReq              uint64
	NumBypass, NumNack         uint64
}

// NewL2 constructs an L2 cache reading parameters from the given prefixed
// store ("pts.l2$.").
func NewL2(id message.ComponentID, class string, directory, noc message.ComponentID, params param.Prefixed, q *event.Queue) *L2 {
	l := &L2{
		SetLSB:    params.Uint64("set_lsb", 6),
		NumSets:   params.Uint64("num_sets", 1024),
		NumWays:   params.Uint64("num_ways", 8),
		AlwaysHit: params.Bool("always_hit", false),
		ToL1T:     params.Uint64("to_l1_t", 45),
		ToDirT:    params.Uint64("to_dir_t", 100),
		ToXbarT:   params.Uint64("to_xbar_t", 20),
		Directory: directory,
		NoC:       noc,
	}
	l.sets = make([][]L2Entry, l.NumSets)
	for i := range l.sets {
		l.sets[i] = make([]L2Entry, l.NumWays)
		for j := range l.sets[i] {
			l.sets[i][j] = newL2Entry()
		}
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

func (l *L2) setOf(addr uint64) uint64   { return (addr >> l.SetLSB) % l.NumSets }
func (l *L2) tagOf(addr uint64) uint64   { return (addr >> l.SetLSB) / l.NumSets }
func (l *L2) lineAddr(addr uint64) uint64 { return (addr >> l.SetLSB) << l.SetLSB }

func (l *L2) findWay(s uint64, tag uint64) int {
	for i, e := range l.sets[s] {
		if e.T != message.Invalid && e.Tag == tag {
			return i
		}
	}
	return -1
}

func (l *L2) isLocal(addr uint64) bool {
	if l.IsLocal == nil {
		return true
	}
	return l.IsLocal(addr)
}

func (l *L2) homeDirectory(addr uint64) message.ComponentID {
	if l.HomeDirectory != nil {
		return l.HomeDirectory(addr)
	}
	return l.Directory
}

func (l *L2) sendDownRequest(now uint64, addr uint64, msg *message.Message) {
	if l.isLocal(addr) {
		l.Base.SendReq(l.Directory, now+l.ToDirT, msg)
	} else {
		msg.Push(l.homeDirectory(addr))
		l.Base.SendReq(l.NoC, now+l.ToXbarT, msg)
	}
}

func (l *L2) sendDownReply(now uint64, addr uint64, msg *message.Message) {
	if l.isLocal(addr) {
		l.Base.SendRep(l.Directory, now+l.ToDirT, msg)
	} else {
		msg.Push(l.homeDirectory(addr))
		l.Base.SendRep(l.NoC, now+l.ToXbarT, msg)
	}
}

// Tick drains mailboxes and services at most one reply (directory/NoC
// traffic, per spec §4.1/§4.3), else one request (L1 read/write misses,
// L1 evictions, and L1 acks to L2-issued commands, which arrive as
// requests; see handleRequest).
func (l *L2) Tick(now uint64) {
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

// handleRequest services an L1-originated read/write miss forward, or an
// L1 eviction writeback.
func (l *L2) handleRequest(now uint64, req *message.Message) {
	switch req.Kind {
	case message.KindEvict, message.KindEvictND:
		l.handleL1Evict(now, req)
		return
	case message.KindMToS, message.KindMToM, message.KindRdBypass:
		l.resolveOwnerAck(now, req)
		return
	case message.KindInvalidate, message.KindInvalidateND:
		l.resolveInvalidateAck(now, req)
		return
	}

	isWrite := req.Kind == message.KindWrite
	if isWrite {
		l.NumWrAccess++
	} else {
		l.NumRdAccess++
	}

	s := l.setOf(req.Address)
	tag := l.tagOf(req.Address)
	way := l.findWay(s, tag)
	fromL1 := req.Top()

	if way >= 0 {
		e := &l.sets[s][way]
		if e.T.IsTransient() || e.TL1.IsTransient() {
			nack := req.Clone()
			dest := nack.Pop()
			nack.Kind = message.KindNack
			l.NumNack++
			l.Base.SendRep(dest, now+l.ToL1T, nack)
			return
		}

		if !isWrite {
			l.readHit(now, s, way, req, fromL1)
			return
		}
		l.writeHit(now, s, way, req, fromL1)
		return
	}

	if isWrite {
		l.NumWrMiss++
	} else {
		l.NumRdMiss++
	}

	victim := -1
	for i, e := range l.sets[s] {
		if e.T == message.Invalid {
			victim = i
			break
		}
	}
	if victim < 0 {
		victim = l.evictVictim(now, s)
	}

	e := &l.sets[s][victim]
	*e = newL2Entry()
	e.Tag = tag
	if isWrite {
		e.T = message.TrToM
	} else {
		e.T = message.TrToE
	}
	e.Pending = req
	e.FirstAccessTime = now

	fwd := req.Clone()
	fwd.Push(l.Base.ID)
	l.sendDownRequest(now, req.Address, fwd)
}

// readHit upgrades the L1-facing state according to how many L1s now
// share the line (spec §4.3).
func (l *L2) readHit(now uint64, s uint64, way int, req *message.Message, fromL1 message.ComponentID) {
	e := &l.sets[s][way]
	e.LastAccessTime = now

	if e.TL1 == message.Modified {
		if _, alreadyOwner := e.Sharers[fromL1]; alreadyOwner {
			reply := req.Clone()
			dest := reply.Pop()
			l.Base.SendRep(dest, now+l.ToL1T, reply)
			return
		}
		var owner message.ComponentID
		for id := range e.Sharers {
			owner = id
			break
		}
		e.Pending = req
		e.TL1 = message.TrToS
		cmd := message.NewMessage(message.KindMToS, l.Base.ID, req.Address, req.ThreadID)
		l.Base.SendRep(owner, now+l.ToL1T, cmd)
		return
	}

	e.Sharers[fromL1] = struct{}{}
	if len(e.Sharers) <= 1 {
		e.TL1 = message.Exclusive
	} else {
		e.TL1 = message.Shared
	}
	reply := req.Clone()
	reply.Kind = message.KindERd
	dest := reply.Pop()
	l.Base.SendRep(dest, now+l.ToL1T, reply)
}

// writeHit handles a write against an already-present line (spec §4.3).
func (l *L2) writeHit(now uint64, s uint64, way int, req *message.Message, fromL1 message.ComponentID) {
	e := &l.sets[s][way]
	e.LastAccessTime = now

	_, isSoleSharer := e.Sharers[fromL1]
	soleSharer := isSoleSharer && len(e.Sharers) == 1

	if e.T == message.Exclusive && soleSharer {
		l.NumUpgradeReq++
		e.T = message.TrToM
		e.TL1 = message.Modified
		ack := req.Clone()
		ack.Kind = message.KindWriteND
		dest := ack.Pop()
		l.Base.SendRep(dest, now+l.ToL1T, ack)
		upgrade := message.NewMessage(message.KindEToM, l.Base.ID, req.Address, req.ThreadID)
		l.sendDownRequest(now, req.Address, upgrade)
		return
	}

	if e.TL1 == message.Modified && !soleSharer {
		var owner message.ComponentID
		for id := range e.Sharers {
			owner = id
			break
		}
		e.Pending = req
		e.TL1 = message.TrToM
		cmd := message.NewMessage(message.KindMToM, l.Base.ID, req.Address, req.ThreadID)
		l.Base.SendRep(owner, now+l.ToL1T, cmd)
		return
	}

	// Shared among possibly several L1s and/or other tiles: invalidate any
	// other local L1 sharers first. A line this L2 already owns exclusively
	// at the directory's granularity can promote straight to Modified once
	// those local acks are in; a line the directory still considers Shared
	// must escalate there first, so it can invalidate any other tile's copy
	// before this tile is granted Modified (spec §4.4's "S, write ->
	// tr_to_m, invalidate to all sharers" row, at the directory level).
	globallyExclusive := e.T == message.Exclusive

	others := 0
	for id := range e.Sharers {
		if id != fromL1 {
			others++
		}
	}
	if others == 0 {
		if globallyExclusive {
			e.T = message.TrToM
			e.TL1 = message.Modified
			e.Sharers = map[message.ComponentID]struct{}{fromL1: {}}
			reply := req.Clone()
			dest := reply.Pop()
			l.Base.SendRep(dest, now+l.ToL1T, reply)
			return
		}
		l.escalateWriteUpgrade(now, req, e)
		return
	}

	e.Pending = req
	e.T = message.TrToM
	e.TL1 = message.TrToM
	e.PendingAcksRemaining = others
	e.PendingGotCL = false
	e.PendingEscalate = !globallyExclusive
	for id := range e.Sharers {
		if id == fromL1 {
			continue
		}
		inv := message.NewMessage(message.KindInvalidate, l.Base.ID, req.Address, req.ThreadID)
		l.Base.SendRep(id, now+l.ToL1T, inv)
	}
	e.Sharers = map[message.ComponentID]struct{}{fromL1: {}}
}

// escalateWriteUpgrade forwards a write hit against a line the directory
// still considers Shared down to the directory, so it can invalidate any
// other tile's copy before this tile is granted Modified. Any local L1
// sharers besides the writer have already been dropped by the caller; the
// directory's eventual reply resolves through the same installFromBelow
// path an ordinary miss completes through.
func (l *L2) escalateWriteUpgrade(now uint64, req *message.Message, e *L2Entry) {
	l.NumUpgradeReq++
	e.Pending = req
	e.T = message.TrToM
	fwd := req.Clone()
	fwd.Push(l.Base.ID)
	l.sendDownRequest(now, req.Address, fwd)
}

// evictVictim picks the first way of a full set, evicting it toward the
// directory, and returns its index for reuse. L2 sets are not reordered on
// hits, so the first way is the oldest by placement order, not necessarily
// the least recently used line.
func (l *L2) evictVictim(now uint64, s uint64) int {
	set := l.sets[s]
	victim := set[0]
	l.NumEvCapacity++

	if victim.T != message.Invalid {
		addr := (victim.Tag*l.NumSets + s) << l.SetLSB
		kind := message.KindEvictND
		if victim.TL1 == message.Modified {
			kind = message.KindEvict
		}
		wb := message.NewMessage(kind, l.Base.ID, addr, 0)
		l.sendDownRequest(now, addr, wb)
	}

	copy(set, set[1:])
	set[len(set)-1] = newL2Entry()
	return len(set) - 1
}

// handleL1Evict processes an eviction/writeback arriving from an L1.
func (l *L2) handleL1Evict(now uint64, req *message.Message) {
	l.NumEvFromL1++
	s := l.setOf(req.Address)
	tag := l.tagOf(req.Address)
	way := l.findWay(s, tag)
	if way < 0 {
		l.NumEvFromL1Miss++
		return
	}

	e := &l.sets[s][way]
	delete(e.Sharers, req.Top())
	if len(e.Sharers) == 0 && !e.TL1.IsTransient() {
		e.TL1 = message.Invalid
	}

	if req.Kind == message.KindEvict {
		wb := req.Clone()
		l.sendDownRequest(now, req.Address, wb)
	}
}

// handleReply processes traffic arriving from below: directory/NoC data
// installs completing an outstanding miss, a directory nack of that miss,
// or a directory-issued coherence command (dir_rd/e_to_s/s_to_s/invalidate)
// asking this tile to downgrade or drop the line on a peer's behalf. L1
// acks to any of these commands travel back as requests (see handleRequest),
// not replies, per the wire-direction convention documented in the package
// comment (l1.go).
func (l *L2) handleReply(now uint64, rep *message.Message) {
	switch rep.Kind {
	case message.KindERd, message.KindSRd, message.KindWrite:
		l.installFromBelow(now, rep)
	case message.KindInvalidate, message.KindInvalidateND, message.KindDirRd, message.KindEToS, message.KindSToS:
		l.handleDirectoryCommand(now, rep)
	case message.KindNack:
		s := l.setOf(rep.Address)
		tag := l.tagOf(rep.Address)
		if way := l.findWay(s, tag); way >= 0 {
			e := &l.sets[s][way]
			pending := e.Pending
			*e = newL2Entry()
			if pending != nil {
				nack := pending.Clone()
				nack.Kind = message.KindNack
				dest := nack.Pop()
				l.Base.SendRep(dest, now+l.ToL1T, nack)
			}
		}
	default:
		l.Base.Fatal("unexpected reply kind at l2", rep)
	}
}

// installFromBelow completes a miss: install the line in the chosen way
// (already reserved in a transient state by handleRequest) and forward the
// data up to the originating L1. rep is the same logical message the miss
// forwarded downward, with the directory/MC hops already popped off its
// back-stack, so its remaining top is the correct next hop (the L1).
func (l *L2) installFromBelow(now uint64, rep *message.Message) {
	s := l.setOf(rep.Address)
	tag := l.tagOf(rep.Address)
	way := l.findWay(s, tag)
	if way < 0 {
		l.Base.Fatal("install reply for untracked line", rep)
		return
	}
	e := &l.sets[s][way]
	if e.Pending == nil {
		l.Base.Fatal("install reply with no pending request", rep)
		return
	}

	e.T = stateFor(rep.Kind)
	e.Pending = nil
	e.LastAccessTime = now

	reply := rep.Clone()
	requester := reply.Pop()
	e.Sharers = map[message.ComponentID]struct{}{requester: {}}
	e.TL1 = message.Exclusive

	l.Base.SendRep(requester, now+l.ToL1T, reply)
}

// handleDirectoryCommand services a directory-issued coherence command:
// dir_rd/e_to_s/s_to_s ask this tile to downgrade its sole L1 owner to
// Shared on behalf of a reader elsewhere; invalidate/invalidate_nd ask it
// to drop the line entirely on behalf of a writer elsewhere. Either way
// the command is forwarded down to the affected L1(s) and parked in
// Pending until their acks return (see resolveOwnerAck/resolveInvalidateAck).
func (l *L2) handleDirectoryCommand(now uint64, cmd *message.Message) {
	l.NumCoherencyAccess++
	s := l.setOf(cmd.Address)
	tag := l.tagOf(cmd.Address)
	way := l.findWay(s, tag)
	if way < 0 {
		l.NumBypass++
		ack := cmd.Clone()
		dest := ack.Pop()
		if cmd.Kind == message.KindInvalidate || cmd.Kind == message.KindInvalidateND {
			ack.Kind = message.KindInvalidateND
		}
		l.Base.SendReq(dest, now+l.ToDirT, ack)
		return
	}
	e := &l.sets[s][way]

	switch cmd.Kind {
	case message.KindInvalidate, message.KindInvalidateND:
		if len(e.Sharers) == 0 {
			ack := cmd.Clone()
			dest := ack.Pop()
			ack.Kind = message.KindInvalidateND
			*e = newL2Entry()
			e.Tag = tag
			l.Base.SendReq(dest, now+l.ToDirT, ack)
			return
		}
		e.Pending = cmd
		e.T = message.TrToI
		e.TL1 = message.TrToI
		e.PendingAcksRemaining = len(e.Sharers)
		e.PendingGotCL = false
		for id := range e.Sharers {
			inv := message.NewMessage(cmd.Kind, l.Base.ID, cmd.Address, cmd.ThreadID)
			l.Base.SendRep(id, now+l.ToL1T, inv)
		}
	default: // KindDirRd, KindEToS, KindSToS
		if len(e.Sharers) == 0 {
			ack := cmd.Clone()
			dest := ack.Pop()
			l.Base.SendReq(dest, now+l.ToDirT, ack)
			return
		}
		var owner message.ComponentID
		for id := range e.Sharers {
			owner = id
			break
		}
		e.Pending = cmd
		e.T = message.TrToS
		e.TL1 = message.TrToS
		down := message.NewMessage(message.KindMToS, l.Base.ID, cmd.Address, cmd.ThreadID)
		l.Base.SendRep(owner, now+l.ToL1T, down)
	}
}

// resolveOwnerAck dispatches an m_to_s/m_to_m/rd_bypass ack from a former
// owner L1 to whichever transaction it completes: a parked L1 demand miss
// (resolvePendingFromOwner) or a parked directory downgrade command
// (resolveDirectoryDowngrade).
func (l *L2) resolveOwnerAck(now uint64, ack *message.Message) {
	s := l.setOf(ack.Address)
	tag := l.tagOf(ack.Address)
	way := l.findWay(s, tag)
	if way < 0 {
		l.Base.Fatal("coherence ack for untracked line", ack)
		return
	}
	e := &l.sets[s][way]
	if e.Pending == nil {
		l.Base.Fatal("coherence ack with no pending request", ack)
		return
	}

	switch e.Pending.Kind {
	case message.KindRead, message.KindWrite:
		resultKind := message.KindSRd
		if e.TL1 == message.TrToM {
			resultKind = message.KindWrite
		}
		l.resolvePendingFromOwner(now, ack, resultKind)
	default:
		l.resolveDirectoryDowngrade(now, ack)
	}
}

// resolveDirectoryDowngrade completes a directory-issued dir_rd/e_to_s/
// s_to_s command once the single affected L1 has acked: the line settles
// to Shared locally and the ack travels back up to the directory.
func (l *L2) resolveDirectoryDowngrade(now uint64, ack *message.Message) {
	s := l.setOf(ack.Address)
	tag := l.tagOf(ack.Address)
	way := l.findWay(s, tag)
	if way < 0 {
		l.Base.Fatal("directory downgrade ack for untracked line", ack)
		return
	}
	e := &l.sets[s][way]
	if e.Pending == nil {
		l.Base.Fatal("directory downgrade ack with no pending command", ack)
		return
	}

	cmd := e.Pending
	e.Pending = nil
	e.T = message.Shared
	e.TL1 = message.Shared
	e.LastAccessTime = now

	reply := cmd.Clone()
	dest := reply.Pop()
	l.Base.SendReq(dest, now+l.ToDirT, reply)
}

// resolveInvalidateAck accumulates invalidate/invalidate_nd acks from every
// L1 a broadcast touched, finalizing once the last one arrives: either
// completing a local write-upgrade (Pending.Kind == KindWrite) by handing
// write permission to the requester (or, when PendingEscalate is set,
// forwarding the write to the directory via escalateWriteUpgrade), or
// acking a directory-issued invalidate by forwarding the combined got_cl
// status upward.
func (l *L2) resolveInvalidateAck(now uint64, ack *message.Message) {
	s := l.setOf(ack.Address)
	tag := l.tagOf(ack.Address)
	way := l.findWay(s, tag)
	if way < 0 {
		l.Base.Fatal("invalidate ack for untracked line", ack)
		return
	}
	e := &l.sets[s][way]
	if e.Pending == nil {
		l.Base.Fatal("invalidate ack with no pending command", ack)
		return
	}

	if ack.Kind == message.KindInvalidate {
		e.PendingGotCL = true
	}
	e.PendingAcksRemaining--
	if e.PendingAcksRemaining > 0 {
		return
	}

	pending := e.Pending
	e.Pending = nil
	gotCL := e.PendingGotCL
	e.PendingGotCL = false
	escalate := e.PendingEscalate
	e.PendingEscalate = false
	e.LastAccessTime = now

	switch pending.Kind {
	case message.KindWrite:
		if escalate {
			l.escalateWriteUpgrade(now, pending, e)
			return
		}
		e.T = message.Modified
		e.TL1 = message.Modified
		reply := pending.Clone()
		dest := reply.Pop()
		l.Base.SendRep(dest, now+l.ToL1T, reply)
	default:
		e.T = message.Invalid
		e.TL1 = message.Invalid
		e.Sharers = make(map[message.ComponentID]struct{})
		reply := pending.Clone()
		dest := reply.Pop()
		if gotCL {
			reply.Kind = message.KindInvalidate
		} else {
			reply.Kind = message.KindInvalidateND
		}
		l.Base.SendReq(dest, now+l.ToDirT, reply)
	}
}

// resolvePendingFromOwner completes a transaction that was parked waiting
// on a former owner's m_to_s/m_to_m downgrade ack, forwarding the
// requested data (or write permission) to the parked requester.
func (l *L2) resolvePendingFromOwner(now uint64, ack *message.Message, resultKind message.Kind) {
	s := l.setOf(ack.Address)
	tag := l.tagOf(ack.Address)
	way := l.findWay(s, tag)
	if way < 0 {
		l.Base.Fatal("coherence ack for untracked line", ack)
		return
	}
	e := &l.sets[s][way]
	if e.Pending == nil {
		l.Base.Fatal("coherence ack with no pending request", ack)
		return
	}

	pending := e.Pending
	e.Pending = nil
	e.T = stateFor(resultKind)
	e.LastAccessTime = now

	newRequester := pending.Top()
	if resultKind == message.KindSRd {
		e.Sharers[newRequester] = struct{}{}
		e.TL1 = message.Shared
	} else {
		e.Sharers = map[message.ComponentID]struct{}{newRequester: {}}
		e.TL1 = message.Modified
	}

	reply := pending.Clone()
	dest := reply.Pop()
	reply.Kind = resultKind
	l.Base.SendRep(dest, now+l.ToL1T, reply)
}

// L2Stats is the machine-readable snapshot exposed alongside the zerolog
// summary (SPEC_FULL.md §4 expansion).
type L2Stats struct {
	NumRdAccess, NumRdMiss       uint64
	NumWrAccess, NumWrMiss       uint64
	NumEvFromL1, NumEvFromL1Miss uint64
	NumEvCapacity                uint64
	NumCoherencyAccess            uint64
	NumUpgradeReq                 uint64
	NumBypass, NumNack            uint64
}

func (l *L2) Stats() L2Stats {
	return L2Stats{
		NumRdAccess: l.NumRdAccess, NumRdMiss: l.NumRdMiss,
		NumWrAccess: l.NumWrAccess, NumWrMiss: l.NumWrMiss,
		NumEvFromL1: l.NumEvFromL1, NumEvFromL1Miss: l.NumEvFromL1Miss,
		NumEvCapacity: l.NumEvCapacity, NumCoherencyAccess: l.NumCoherencyAccess,
		NumUpgradeReq: l.NumUpgradeReq, NumBypass: l.NumBypass, NumNack: l.NumNack,
	}
}

func (l *L2) LogSummary() {
	if l.NumRdAccess == 0 && l.NumWrAccess == 0 {
		return
	}
	l.Base.Log().Info().
		Uint64("rd_access", l.NumRdAccess).Uint64("rd_miss", l.NumRdMiss).
		Uint64("wr_access", l.NumWrAccess).Uint64("wr_miss", l.NumWrMiss).
		Msg("l2 cache summary")
}
