// Package core implements the out-of-order processor core: a fetch queue,
// a reorder buffer with dependency tracking, in-order commit, a gshare-style
// branch predictor, and TLB-mediated instruction/data cache accesses (spec
// §4.7).
//
// Grounded on original_source/McSim/PTSO3Core.h/.cc for the fetch-queue/ROB
// state machine and branch-prediction hook points; the scoreboard/bitmap
// dependency-scan style is adapted from _teacher_proto/ooo/ooo.go's
// CTZ-based ready-bitmap issue selection and _teacher_SupraX.go's
// BranchPredictor (see DESIGN.md).
package core

import (
	"github.com/ohnolabs/mcsim/pkg/component"
	"github.com/ohnolabs/mcsim/pkg/event"
	"github.com/ohnolabs/mcsim/pkg/message"
	"github.com/ohnolabs/mcsim/pkg/param"
)

// InstrCategory is the opaque per-instruction category the front-end
// supplies, used only to select execution latency and x87/SSE/CALL/branch
// handling (spec §4.7 "a category").
type InstrCategory uint8

const (
	CategoryALU InstrCategory = iota
	CategoryBranch
	CategoryLock
	CategoryUnlock
	CategoryBarrier
	CategoryX87
	CategorySSE
	CategoryCall
)

// InstructionRecord is one retired-instruction record from the front-end
// (spec §6 ingestion API).
type InstructionRecord struct {
	ThreadID    uint32
	Time        uint64
	WriteAddr   uint64
	WriteLen    uint32
	ReadAddr1   uint64
	ReadLen1    uint32
	ReadAddr2   uint64
	ReadLen2    uint32
	IP          uint64
	Category    InstrCategory
	IsBranch    bool
	BranchTaken bool
	IsLock      bool
	IsUnlock    bool
	IsBarrier   bool
	ReadRegs    [4]int32
	WriteRegs   [4]int32
}

func (r *InstructionRecord) isMemory() (isWrite bool, addr uint64, any bool) {
	if r.WriteLen > 0 {
		return true, r.WriteAddr, true
	}
	if r.ReadLen1 > 0 {
		return false, r.ReadAddr1, true
	}
	if r.ReadLen2 > 0 {
		return false, r.ReadAddr2, true
	}
	return false, 0, false
}

type fetchState uint8

const (
	fetchNotInQueue fetchState = iota
	fetchBeingLoaded
	fetchReady
)

type fetchSlot struct {
	valid  bool
	record InstructionRecord
	state  fetchState
	line   uint64
}

type robState uint8

const (
	robIssued robState = iota
	robExecuting
	robCompleted
)

// robEntry is one reorder-buffer slot (spec §3's "Out-of-order core" ROB
// expansion): MemDep/InstrDep/BranchDep are slot indices into the ROB
// circular buffer, -1 meaning "no dependency", carried between ticks so a
// later scan does not have to re-derive the whole dependency graph from
// scratch (SPEC_FULL.md §3 expansion).
type robEntry struct {
	valid    bool
	record   InstructionRecord
	state    robState
	issuedAt uint64
	readyAt  uint64

	memDep    int32
	instrDep  int32
	branchDep int32

	mispredicted bool
}

// branchPredictor is a gshare-style table of 2-bit saturating counters
// indexed by ip XOR (global_history << (64 - gpSizeLog2)) (spec §4.7,
// §9 "gshare-style hashed with a global history register").
type branchPredictor struct {
	counters     []uint8 // 2 bits used per entry, one byte per entry for simplicity
	history      uint64
	gpSizeLog    uint64
	tableSizeLog uint64

	numPredictions, numMispredicts uint64
}

func newBranchPredictor(tableSizeLog2, gpSizeLog uint64) *branchPredictor {
	size := uint64(1) << tableSizeLog2
	p := &branchPredictor{
		counters:     make([]uint8, size),
		gpSizeLog:    gpSizeLog,
		tableSizeLog: tableSizeLog2,
	}
	for i := range p.counters {
		p.counters[i] = 1 // weakly not-taken
	}
	return p
}

// index hashes ip against the global history register by shifting history
// up to the top bits (ip XOR (history << (64 - gpSizeLog))) and reading the
// index back off the top tableSizeLog2 bits of that hash, not the bottom
// ones: masking the low bits would put the shifted-away history outside the
// selected window entirely, degenerating to a plain bimodal predictor.
func (p *branchPredictor) index(ip uint64) uint64 {
	hashed := ip ^ (p.history << (64 - p.gpSizeLog))
	return hashed >> (64 - p.tableSizeLog)
}

func (p *branchPredictor) predict(ip uint64) bool {
	p.numPredictions++
	return p.counters[p.index(ip)] >= 2
}

func (p *branchPredictor) update(ip uint64, taken bool) {
	idx := p.index(ip)
	c := p.counters[idx]
	predictedTaken := c >= 2
	if predictedTaken != taken {
		p.numMispredicts++
	}
	if taken {
		if c < 3 {
			c++
		}
	} else {
		if c > 0 {
			c--
		}
	}
	p.counters[idx] = c
	if p.gpSizeLog > 0 {
		p.history = (p.history << 1) | boolToU64(taken)
		p.history &= (1 << p.gpSizeLog) - 1
	}
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// O3Core is the out-of-order processor pipeline for one hardware thread
// context.
type O3Core struct {
	component.Base

	ThreadID uint32
	Active   bool

	ICache message.ComponentID
	DCache message.ComponentID
	ITLB   message.ComponentID
	DTLB   message.ComponentID
	UseITLB, UseDTLB bool

	MaxIssueWidth  int
	MaxCommitWidth int
	MaxALU         int
	MaxLdSt        int
	MaxLd          int
	MaxSt          int
	MaxSSE         int
	MimickInorder  bool

	ICacheLineLSB uint64
	BranchMissPenalty uint64
	ConsecutiveNackThreshold uint64

	latALU, latLock, latUnlock, latBarrier, latX87, latSSE, latBranch uint64

	fetchQ     []fetchSlot
	fetchHead  int // oldest not-yet-dispatched
	fetchTail  int // next free slot

	rob      []robEntry
	robHead  int // oldest (commit point)
	robTail  int // next free slot
	robCount int

	predictor *branchPredictor

	stackBase, stackSize uint64

	consecutiveNacks map[uint64]uint64 // keyed by line address awaiting retry

	awaitingITLB map[uint64]bool // line addresses sent to ITLB, awaiting translation before the real I-cache access
	awaitingDTLB map[int32]bool  // ROB indices sent to DTLB, awaiting translation before the real D-cache access

	NumInstructions   uint64
	NumCommitted      uint64
	NumBranches       uint64
	NumMispredicts    uint64
	NumFetchStalls    uint64
	SumDependencyDist uint64
	NumDependencies   uint64
}

// New constructs an O3Core reading its parameters from the given prefixed
// store ("pts.o3core.").
func New(id message.ComponentID, class string, threadID uint32, icache, dcache message.ComponentID, params param.Prefixed, q *event.Queue) *O3Core {
	queueSize := params.Uint64("o3queue_max_size", 32) + 4
	robSize := params.Uint64("o3rob_max_size", 128)

	c := &O3Core{
		ThreadID:       threadID,
		ICache:         icache,
		DCache:         dcache,
		MaxIssueWidth:  int(params.Uint64("max_issue_width", 4)),
		MaxCommitWidth: int(params.Uint64("max_commit_width", 4)),
		MaxALU:         int(params.Uint64("max_alu", 4)),
		MaxLdSt:        int(params.Uint64("max_ldst", 2)),
		MaxLd:          int(params.Uint64("max_ld", 2)),
		MaxSt:          int(params.Uint64("max_st", 1)),
		MaxSSE:         int(params.Uint64("max_sse", 2)),
		MimickInorder:  params.Bool("mimick_inorder", false),
		ICacheLineLSB:  params.Uint64("set_lsb", 6),
		BranchMissPenalty:        params.Uint64("branch_miss_penalty", 14),
		ConsecutiveNackThreshold: params.Uint64("consecutive_nack_threshold", 1000),
		UseITLB: params.Bool("use_itlb", false),
		UseDTLB: params.Bool("use_dtlb", false),

		latALU:     params.Uint64("lat_alu", 1),
		latLock:    params.Uint64("lat_lock", 1),
		latUnlock:  params.Uint64("lat_unlock", 1),
		latBarrier: params.Uint64("lat_barrier", 1),
		latX87:     params.Uint64("lat_x87", 8),
		latSSE:     params.Uint64("lat_sse", 4),
		latBranch:  params.Uint64("lat_branch", 1),

		fetchQ:  make([]fetchSlot, queueSize),
		rob:     make([]robEntry, robSize),
		fetchHead: -1,
		robHead:   -1,

		predictor: newBranchPredictor(params.Uint64("bp_table_size_log2", 12), params.Uint64("bp_global_history_bits", 12)),

		consecutiveNacks: make(map[uint64]uint64),
		awaitingITLB:     make(map[uint64]bool),
		awaitingDTLB:     make(map[int32]bool),
	}

	c.Base = component.Base{
		ID:              id,
		Class:           class,
		ProcessInterval: params.Uint64("process_interval", 1),
		Params:          params,
		Queue:           q,
	}
	c.Base.Init()
	return c
}

// SetActive gates whether the driver may feed this hthread more
// instructions and whether it contributes events (spec §4.7 "Thread
// lifecycle").
func (c *O3Core) SetActive(active bool) { c.Active = active }

// SetStackNSize records the thread's stack range, consumed only by memory
// category classification the original used for stack-local accesses; kept
// here for surface-compat with spec §6, not otherwise load-bearing since
// this simulator models no functional memory contents.
func (c *O3Core) SetStackNSize(base, size uint64) { c.stackBase, c.stackSize = base, size }

// freeFetchSlots reports how many fetch-queue entries are currently unused.
func (c *O3Core) freeFetchSlots() int {
	used := 0
	for _, s := range c.fetchQ {
		if s.valid {
			used++
		}
	}
	return len(c.fetchQ) - used
}

// AddInstruction admits one retired-instruction record into the fetch
// queue, returning the number of free slots remaining (0 = back-pressure,
// the driver must pause this thread, spec §6).
func (c *O3Core) AddInstruction(rec InstructionRecord) uint32 {
	free := c.freeFetchSlots()
	if free == 0 {
		return 0
	}
	idx := c.fetchTail
	c.fetchQ[idx] = fetchSlot{valid: true, record: rec, state: fetchNotInQueue, line: (rec.IP >> c.ICacheLineLSB) << c.ICacheLineLSB}
	c.fetchTail = (c.fetchTail + 1) % len(c.fetchQ)
	if c.fetchHead < 0 {
		c.fetchHead = idx
	}
	c.NumInstructions++
	return uint32(c.freeFetchSlots())
}

// Tick runs one cycle of fetch, rename/issue, execute, and commit, in that
// order (spec §4.7), and re-enqueues the core for the next interval while
// it still has work. Tick returns nothing; whether the driver may feed
// this thread more instructions is reported by ReadyForMoreInstructions.
func (c *O3Core) Tick(now uint64) {
	c.Base.Drain(now)
	c.serviceITLBCompletions(now)
	c.serviceReplies(now)
	c.fetch(now)
	c.dispatch(now)
	c.execute(now)
	c.commit(now)

	if c.hasWork() {
		c.Base.Queue.Enqueue(now+c.Base.ProcessInterval, c.Base.ID)
	}
}

// serviceITLBCompletions drains requests the I-TLB re-issued after
// translating a fetch line (tlb.TLB forwards the untouched message back to
// the top of its back-stack rather than popping it, so the core is both the
// translation's requester and its recipient here). Each completion triggers
// the real I-cache access the translation was gating.
func (c *O3Core) serviceITLBCompletions(now uint64) {
	for {
		req, ok := c.Base.PopRequest(0)
		if !ok {
			break
		}
		line := req.Address
		if !c.awaitingITLB[line] {
			continue
		}
		delete(c.awaitingITLB, line)
		c.Base.SendReq(c.ICache, now, req)
	}
}

func (c *O3Core) hasWork() bool {
	return c.Base.HasPendingWork() || c.fetchHead >= 0 || c.robCount > 0
}

// fetch issues up to MaxIssueWidth fetch-queue entries' worth of I-cache
// accesses per tick: all entries sharing the same cache line are sent as
// one access and become Ready together once its reply returns (spec §4.7).
func (c *O3Core) fetch(now uint64) {
	if c.fetchHead < 0 {
		return
	}
	issued := 0
	idx := c.fetchHead
	seenLines := make(map[uint64]bool)
	for issued < c.MaxIssueWidth {
		slot := &c.fetchQ[idx]
		if !slot.valid {
			break
		}
		if slot.state == fetchNotInQueue && !seenLines[slot.line] {
			seenLines[slot.line] = true
			req := message.NewMessage(message.KindRead, c.Base.ID, slot.line, c.ThreadID)
			req.Push(c.Base.ID)
			if c.UseITLB {
				c.awaitingITLB[slot.line] = true
				c.Base.SendReq(c.ITLB, now, req)
			} else {
				c.Base.SendReq(c.ICache, now, req)
			}
			issued++
		}
		if slot.state == fetchNotInQueue {
			slot.state = fetchBeingLoaded
		}
		idx = (idx + 1) % len(c.fetchQ)
		if idx == c.fetchTail {
			break
		}
	}
	if issued == 0 && c.fetchQ[c.fetchHead].state == fetchBeingLoaded {
		c.NumFetchStalls++
	}
}

// serviceReplies processes I-cache/D-cache (and TLB, when enabled) replies
// arriving this tick: an I-cache reply marks every fetch-queue entry on
// that line Ready; a D-cache reply completes the originating ROB slot.
func (c *O3Core) serviceReplies(now uint64) {
	for {
		rep, ok := c.Base.PopReply()
		if !ok {
			break
		}
		switch rep.Kind {
		case message.KindNack:
			c.retryNacked(now, rep)
		default:
			if rep.ROBEntry >= 0 && c.awaitingDTLB[rep.ROBEntry] {
				delete(c.awaitingDTLB, rep.ROBEntry)
				c.Base.SendReq(c.DCache, now, rep)
			} else if rep.ROBEntry >= 0 {
				c.completeROBSlot(now, rep)
			} else {
				c.markLineReady(rep.Address)
			}
		}
	}
}

func (c *O3Core) retryNacked(now uint64, msg *message.Message) {
	line := (msg.Address >> c.ICacheLineLSB) << c.ICacheLineLSB
	c.consecutiveNacks[line]++
	if c.consecutiveNacks[line] > c.ConsecutiveNackThreshold {
		c.Base.Fatal("consecutive nack threshold exceeded (livelock)", msg)
		return
	}
	spinDelay := c.Base.ProcessInterval * (1 + c.consecutiveNacks[line])
	resend := msg.Clone()
	resend.Push(c.Base.ID)
	if msg.ROBEntry >= 0 {
		c.Base.SendReq(c.DCache, now+spinDelay, resend)
	} else {
		c.Base.SendReq(c.ICache, now+spinDelay, resend)
	}
}

func (c *O3Core) markLineReady(addr uint64) {
	line := (addr >> c.ICacheLineLSB) << c.ICacheLineLSB
	delete(c.consecutiveNacks, line)
	for i := range c.fetchQ {
		if c.fetchQ[i].valid && c.fetchQ[i].line == line && c.fetchQ[i].state == fetchBeingLoaded {
			c.fetchQ[i].state = fetchReady
		}
	}
}

func (c *O3Core) completeROBSlot(now uint64, msg *message.Message) {
	delete(c.consecutiveNacks, msg.Address)
	e := &c.rob[msg.ROBEntry]
	if !e.valid {
		return
	}
	e.state = robCompleted
	e.readyAt = now
	if e.mispredicted {
		e.readyAt += c.BranchMissPenalty
	}
}

// dispatch moves up to MaxIssueWidth Ready fetch-queue entries into the
// ROB, computing each one's register/memory/branch dependency by scanning
// the ROB newest-to-oldest (spec §4.7 "Rename/issue").
func (c *O3Core) dispatch(now uint64) {
	if c.fetchHead < 0 {
		return
	}
	dispatched := 0
	for dispatched < c.MaxIssueWidth && c.robCount < len(c.rob) {
		slot := &c.fetchQ[c.fetchHead]
		if !slot.valid || slot.state != fetchReady {
			break
		}

		robIdx := c.robTail
		e := &c.rob[robIdx]
		*e = robEntry{valid: true, record: slot.record, state: robIssued, memDep: -1, instrDep: -1, branchDep: -1}
		c.computeDependencies(robIdx)

		c.robTail = (c.robTail + 1) % len(c.rob)
		c.robCount++
		if c.robHead < 0 {
			c.robHead = robIdx
		}

		*slot = fetchSlot{}
		c.fetchHead = (c.fetchHead + 1) % len(c.fetchQ)
		if c.fetchHead == c.fetchTail {
			c.fetchHead = -1
		}
		dispatched++
	}
}

// computeDependencies scans the ROB from newest to oldest (excluding the
// entry itself) to find the nearest older producer for each dependency
// class: a register dependency on the first older slot whose write-reg set
// intersects this instruction's read-regs, a memory dependency on the
// youngest older memory op aliasing the same address, and a branch
// dependency on the nearest older not-yet-resolved branch (spec §4.7).
func (c *O3Core) computeDependencies(idx int) {
	e := &c.rob[idx]
	_, addr, isMem := e.record.isMemory()

	dist := 0
	for i := c.prevIdx(idx); i != idx; i = c.prevIdx(i) {
		o := &c.rob[i]
		if !o.valid {
			break
		}
		dist++

		if e.instrDep < 0 {
			for _, rr := range e.record.ReadRegs {
				if rr < 0 {
					continue
				}
				for _, wr := range o.record.WriteRegs {
					if wr == rr {
						e.instrDep = int32(i)
						break
					}
				}
				if e.instrDep >= 0 {
					break
				}
			}
		}

		if e.memDep < 0 && isMem {
			if _, oAddr, oIsMem := o.record.isMemory(); oIsMem && oAddr == addr {
				e.memDep = int32(i)
			}
		}

		if e.branchDep < 0 && o.record.Category == CategoryBranch && o.state != robCompleted {
			e.branchDep = int32(i)
		}

		if e.instrDep >= 0 && (e.memDep >= 0 || !isMem) && e.branchDep >= 0 {
			break
		}
	}
	if e.instrDep >= 0 || (isMem && e.memDep >= 0) {
		c.SumDependencyDist += uint64(dist)
		c.NumDependencies++
	}
}

func (c *O3Core) prevIdx(i int) int {
	if i == 0 {
		return len(c.rob) - 1
	}
	return i - 1
}

func (c *O3Core) depResolved(dep int32) bool {
	if dep < 0 {
		return true
	}
	e := &c.rob[dep]
	return !e.valid || e.state == robCompleted
}

// execute scans the ROB in order (oldest first), issuing every slot whose
// dependencies have resolved and whose functional-unit class still has
// issue bandwidth this tick (spec §4.7 "Execute"). Memory ops become
// Executing and emit a D-cache access; everything else completes after a
// category-specific latency.
func (c *O3Core) execute(now uint64) {
	if c.robHead < 0 {
		return
	}
	usedALU, usedLdSt, usedLd, usedSt, usedSSE := 0, 0, 0, 0, 0

	i := c.robHead
	for n := 0; n < c.robCount; n++ {
		e := &c.rob[i]
		ready := e.state == robIssued && c.depResolved(e.instrDep) && c.depResolved(e.branchDep)
		isWrite, addr, isMem := e.record.isMemory()
		if ready && isMem && !c.depResolved(e.memDep) {
			ready = false
		}

		if !ready {
			if c.MimickInorder {
				return
			}
			i = (i + 1) % len(c.rob)
			continue
		}

		issuedThisSlot := false
		switch {
		case isMem && isWrite:
			if usedLdSt < c.MaxLdSt && usedSt < c.MaxSt {
				usedLdSt++
				usedSt++
				c.issueMemory(now, i, addr, true)
				issuedThisSlot = true
			}
		case isMem:
			if usedLdSt < c.MaxLdSt && usedLd < c.MaxLd {
				usedLdSt++
				usedLd++
				c.issueMemory(now, i, addr, false)
				issuedThisSlot = true
			}
		case e.record.Category == CategorySSE:
			if usedSSE < c.MaxSSE {
				usedSSE++
				c.issueNonMemory(now, i)
				issuedThisSlot = true
			}
		default:
			if usedALU < c.MaxALU {
				usedALU++
				c.issueNonMemory(now, i)
				issuedThisSlot = true
			}
		}

		if !issuedThisSlot && c.MimickInorder {
			return
		}
		i = (i + 1) % len(c.rob)
	}
}

func (c *O3Core) issueMemory(now uint64, idx int, addr uint64, isWrite bool) {
	e := &c.rob[idx]
	e.state = robExecuting
	kind := message.KindRead
	if isWrite {
		kind = message.KindWrite
	}
	req := message.NewMessage(kind, c.Base.ID, addr, c.ThreadID)
	req.Push(c.Base.ID)
	req.ROBEntry = int32(idx)
	if c.UseDTLB {
		c.awaitingDTLB[int32(idx)] = true
		c.Base.SendReq(c.DTLB, now, req)
	} else {
		c.Base.SendReq(c.DCache, now, req)
	}
}

func (c *O3Core) issueNonMemory(now uint64, idx int) {
	e := &c.rob[idx]
	e.state = robExecuting

	var latency uint64
	switch e.record.Category {
	case CategoryLock:
		latency = c.latLock
	case CategoryUnlock:
		latency = c.latUnlock
	case CategoryBarrier:
		latency = c.latBarrier
	case CategoryX87:
		latency = c.latX87
	case CategorySSE:
		latency = c.latSSE
	case CategoryBranch:
		latency = c.latBranch
		c.resolveBranch(idx)
	default:
		latency = c.latALU
	}

	readyAt := now + latency
	if e.mispredicted {
		readyAt += c.BranchMissPenalty
	}
	e.state = robCompleted
	e.readyAt = readyAt
}

// resolveBranch predicts the branch at dispatch-equivalent time (here, at
// issue, since this model does not separately simulate a front-end
// redirect delay) and flags a bubble when the prediction disagrees with the
// retired-trace's actual outcome (spec §4.7 "Branch prediction").
func (c *O3Core) resolveBranch(idx int) {
	e := &c.rob[idx]
	if !e.record.IsBranch {
		return
	}
	c.NumBranches++
	predicted := c.predictor.predict(e.record.IP)
	c.predictor.update(e.record.IP, e.record.BranchTaken)
	if predicted != e.record.BranchTaken {
		c.NumMispredicts++
		e.mispredicted = true
	}
}

// commit retires up to MaxCommitWidth completed ROB slots in order from the
// head, stopping at the first slot that has not yet reached readyAt (spec
// §4.7 "Commit retires up to max_commit_width slots in-order").
func (c *O3Core) commit(now uint64) {
	committed := 0
	for committed < c.MaxCommitWidth && c.robHead >= 0 {
		e := &c.rob[c.robHead]
		if !e.valid || e.state != robCompleted || now < e.readyAt {
			break
		}
		*e = robEntry{}
		c.robCount--
		c.NumCommitted++
		c.robHead = (c.robHead + 1) % len(c.rob)
		if c.robCount == 0 {
			c.robHead = -1
		}
		committed++
	}
}

// ReadyForMoreInstructions reports whether the driver should be offered
// this thread for resume_simulation (spec §4.7 "Thread lifecycle"): active,
// with room in the fetch queue.
func (c *O3Core) ReadyForMoreInstructions() bool {
	return c.Active && c.freeFetchSlots() > 0
}

// IPC computes the running instructions-per-cycle figure, given the number
// of cycles elapsed (the caller, pkg/sim, tracks wall-clock cycles since
// this core has no notion of "simulation end" itself).
func (c *O3Core) IPC(cycles uint64) float64 {
	if cycles == 0 {
		return 0
	}
	return float64(c.NumCommitted) / float64(cycles)
}

// Stats is the machine-readable snapshot exposed alongside the human
// zerolog summary (SPEC_FULL.md §4 expansion).
type Stats struct {
	NumInstructions   uint64
	NumCommitted      uint64
	NumBranches       uint64
	NumMispredicts    uint64
	NumFetchStalls    uint64
	MeanDependencyDist float64
}

func (c *O3Core) Stats() Stats {
	mean := 0.0
	if c.NumDependencies > 0 {
		mean = float64(c.SumDependencyDist) / float64(c.NumDependencies)
	}
	return Stats{
		NumInstructions: c.NumInstructions, NumCommitted: c.NumCommitted,
		NumBranches: c.NumBranches, NumMispredicts: c.NumMispredicts,
		NumFetchStalls: c.NumFetchStalls, MeanDependencyDist: mean,
	}
}

func (c *O3Core) LogSummary() {
	if c.NumCommitted == 0 {
		return
	}
	accuracy := 0.0
	if c.NumBranches > 0 {
		accuracy = 100.0 * (1 - float64(c.NumMispredicts)/float64(c.NumBranches))
	}
	c.Base.Log().Info().
		Uint64("committed", c.NumCommitted).
		Uint64("branches", c.NumBranches).
		Float64("branch_accuracy_pct", accuracy).
		Msg("core summary")
}
