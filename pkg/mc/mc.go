// Package mc implements the memory controller: DRAM rank/bank state
// machines, the request scheduler (FR-FCFS / closed-page / PAR-BS), and the
// three operating modes of spec §4.5.
//
// Grounded on original_source/McSim/PTSMemoryController.h/.cc.
package mc

import (
	"github.com/ohnolabs/mcsim/pkg/component"
	"github.com/ohnolabs/mcsim/pkg/event"
	"github.com/ohnolabs/mcsim/pkg/message"
	"github.com/ohnolabs/mcsim/pkg/param"
)

// Mode selects the memory controller's timing fidelity (spec §4.5).
type Mode int

const (
	ModeFixedLatency Mode = iota
	ModeFixedBandwidth
	ModeFullDRAM
)

// PagePolicy selects how a bank's row buffer is managed under ModeFullDRAM.
type PagePolicy int

const (
	PageOpen PagePolicy = iota
	PageClosed
	PagePred
)

// lastAction distinguishes what a bank's row buffer most recently did, so
// the scheduler can check timing constraints against it.
type lastAction int

const (
	actionNone lastAction = iota
	actionActivate
	actionRead
	actionWrite
	actionPrecharge
)

// bankState is the per-(rank,bank) DRAM state machine (spec §3's "rank/bank
// status").
type bankState struct {
	last       lastAction
	lastTime   uint64
	openRow    int64 // -1 = no row open (closed)
	activateAt uint64

	// predRow is the per-bank next-row predictor consulted under
	// mc_scheduling_pred (§9 Open Question 2): it never changes scheduling,
	// only feeds NumPredHit/NumPredMiss.
	predRow     int64
	predThread  uint32
}

// pendingReq is one request sitting in the scheduler's sliding window.
type pendingReq struct {
	msg      *message.Message
	arrival  uint64
	rank     int
	bank     int
	row      int64
	isWrite  bool
	threadID uint32
}

// MemoryController schedules DRAM command traffic for one tile's address
// range and replies to the directory with the fetched (or sunk) data.
type MemoryController struct {
	component.Base

	Mode       Mode
	Policy     PagePolicy
	NumRanks   uint64
	NumBanks   uint64
	WindowSize uint64

	SetLSB          uint64
	RankShift       uint64
	BankShift       uint64
	XorShift        uint64
	FixedLatency    uint64
	ToDirT          uint64
	BandwidthCycles uint64

	TRCD uint64
	TRAS uint64
	TRP  uint64
	TRRD uint64
	TWR  uint64
	TBL  uint64
	TRR  uint64

	UseParBS       bool
	ParBSBatchSize uint64

	RefreshEnabled  bool
	RefreshInterval uint64

	banks  []bankState // indexed rank*NumBanks+bank
	window []*pendingReq

	// rankLastActivate/rankActivated track tRRD (original_source's tRR,
	// see bankReady): an activate in one bank of a rank holds off the next
	// activate anywhere else in that same rank.
	rankLastActivate []uint64
	rankActivated    []bool

	// nextReadBusFree/nextWriteBusFree are the full-duplex data-bus
	// timelines (spec §4.5): a read and a write may transfer
	// simultaneously, but two commands sharing a direction still queue
	// behind each other's tBL burst.
	nextReadBusFree  uint64
	nextWriteBusFree uint64

	refreshRank, refreshBank uint64
	nextRefreshAt            uint64

	inFlightPerThread map[uint32]int
	pageHistogram     map[uint64]uint64

	NumRead, NumWrite             uint64
	NumActivate, NumPrecharge     uint64
	NumRefresh                    uint64
	NumWriteToReadSwitch          uint64
	NumPredHit, NumPredMiss       uint64
	sumQueueDelay, numQueueSample uint64
	lastWasWrite                  bool
	haveLastBus                   bool
}

// New constructs a MemoryController reading its parameters from the given
// prefixed store ("pts.mc.").
func New(id message.ComponentID, class string, params param.Prefixed, q *event.Queue) *MemoryController {
	m := &MemoryController{
		NumRanks:        params.Uint64("num_ranks", 1),
		NumBanks:        params.Uint64("num_banks", 8),
		WindowSize:      params.Uint64("window_size", 16),
		SetLSB:          params.Uint64("set_lsb", 6),
		RankShift:       params.Uint64("rank_shift", 14),
		BankShift:       params.Uint64("bank_shift", 17),
		XorShift:        params.Uint64("interleave_xor_base_bit", 20),
		FixedLatency:    params.Uint64("fixed_latency", 200),
		ToDirT:          params.Uint64("to_dir_t", 50),
		BandwidthCycles: params.Uint64("process_interval", 4),
		TRCD:            params.Uint64("tRCD", 9),
		TRAS:            params.Uint64("tRAS", 22),
		TRP:             params.Uint64("tRP", 9),
		TRRD:            params.Uint64("tRRD", 4),
		TWR:             params.Uint64("tWR", 10),
		TBL:             params.Uint64("tBL", 4),
		TRR:             params.Uint64("tRR", 4),
		UseParBS:        params.Bool("use_par_bs", false),
		ParBSBatchSize:  params.Uint64("par_bs_batch_size", 8),
		RefreshEnabled:  params.Bool("refresh_enabled", false),
		RefreshInterval: params.Uint64("refresh_interval", 7800),
		inFlightPerThread: make(map[uint32]int),
		pageHistogram:     make(map[uint64]uint64),
	}
	switch params.String("mode") {
	case "fixed_bandwidth":
		m.Mode = ModeFixedBandwidth
	case "full_dram":
		m.Mode = ModeFullDRAM
	default:
		m.Mode = ModeFixedLatency
	}
	switch params.String("page_policy") {
	case "closed":
		m.Policy = PageClosed
	case "pred":
		m.Policy = PagePred
	default:
		m.Policy = PageOpen
	}

	m.banks = make([]bankState, m.NumRanks*m.NumBanks)
	for i := range m.banks {
		m.banks[i].openRow = -1
		m.banks[i].predRow = -1
	}
	m.rankLastActivate = make([]uint64, m.NumRanks)
	m.rankActivated = make([]bool, m.NumRanks)
	m.nextRefreshAt = m.RefreshInterval

	m.Base = component.Base{
		ID:              id,
		Class:           class,
		ProcessInterval: params.Uint64("process_interval", 4),
		Params:          params,
		Queue:           q,
	}
	m.Base.Init()
	return m
}

func (m *MemoryController) bankIdx(rank, bank int) int { return rank*int(m.NumBanks) + bank }

// mapAddress resolves an address into (rank, bank, row) the way §4.5
// describes: rank/bank are taken from a configurable bit field XORed with a
// high interleave mask for balance; the row is whatever remains once the
// line-offset and rank/bank bits are shifted away.
func (m *MemoryController) mapAddress(addr uint64) (rank, bank int, row int64) {
	a := addr >> m.SetLSB
	xor := addr >> m.XorShift
	if m.NumRanks > 1 {
		rank = int((a >> (m.RankShift - m.SetLSB)) ^ xor) % int(m.NumRanks)
	}
	if m.NumBanks > 1 {
		bank = int((a >> (m.BankShift - m.SetLSB)) ^ (xor >> 1)) % int(m.NumBanks)
	}
	row = int64(a >> ((m.BankShift - m.SetLSB) + 4))
	return rank, bank, row
}

// Tick drains the reply-side writeback sink (writes need no scheduling,
// §4.5 mode 1/2's "destroy writes"/"sink" behavior carries into full_dram
// too: a write completes once its bank is scheduled, without blocking on a
// data reply) and the request-side read/write intake, then runs the
// scheduler for one cycle under ModeFullDRAM.
func (m *MemoryController) Tick(now uint64) {
	m.Base.Drain(now)

	for {
		req, ok := m.Base.PopRequest(0)
		if !ok {
			break
		}
		m.intake(now, req)
	}

	if m.Mode == ModeFullDRAM {
		m.scheduleWindow(now)
		if m.RefreshEnabled {
			m.runRefresh(now)
		}
		if len(m.window) > 0 {
			m.Base.Queue.Enqueue(now+m.Base.ProcessInterval, m.Base.ID)
		}
	}

	if m.Base.HasPendingWork() {
		m.Base.Queue.Enqueue(now+m.Base.ProcessInterval, m.Base.ID)
	}
}

// intake admits a freshly arrived directory request into whichever
// scheduling discipline this controller's Mode selects.
func (m *MemoryController) intake(now uint64, req *message.Message) {
	if req.Kind == message.KindRdDirInfoReq {
		m.replyFixed(now, req, message.KindRdDirInfoRep)
		return
	}
	if req.Kind == message.KindDirEvict {
		// A dirty-line writeback forwarded from the directory: sunk
		// silently, no reply expected (spec §4.5 "silently sinks writes").
		return
	}

	isWrite := req.Kind == message.KindWrite || req.Kind == message.KindEToM
	switch m.Mode {
	case ModeFixedLatency:
		if isWrite {
			m.NumWrite++
			return
		}
		m.NumRead++
		m.replyFixed(now, req, req.Kind)
	case ModeFixedBandwidth:
		if isWrite {
			m.NumWrite++
			return
		}
		m.NumRead++
		m.replyFixed(now, req, req.Kind)
	case ModeFullDRAM:
		rank, bank, row := m.mapAddress(req.Address)
		m.window = append(m.window, &pendingReq{
			msg: req, arrival: now, rank: rank, bank: bank, row: row,
			isWrite: isWrite, threadID: req.ThreadID,
		})
		m.inFlightPerThread[req.ThreadID]++
		m.pageHistogram[req.Address>>m.SetLSB]++
	}
}

// replyFixed services modes 1/2: a constant-latency reply, carrying the
// original message back up unmodified (reads only; writes never reply).
func (m *MemoryController) replyFixed(now uint64, req *message.Message, kind message.Kind) {
	reply := req.Clone()
	reply.Kind = kind
	dest := reply.Pop()
	delay := m.FixedLatency
	if m.Mode == ModeFixedBandwidth {
		delay = m.BandwidthCycles
	}
	m.Base.SendRep(dest, now+delay, reply)
}

// bankReady reports whether bank b (in the given rank) may accept a new
// command at time now, i.e. every DRAM timing constraint against its last
// action, and against the rank's last activate, is satisfied. pageHit tells
// it whether the pending request can be serviced without a precharge/
// activate, since tRAS only gates a precharge of a still-young open row and
// tRRD only gates a fresh activate.
func (m *MemoryController) bankReady(now uint64, rank int, b *bankState, pageHit bool) bool {
	switch b.last {
	case actionActivate:
		if now < b.lastTime+m.TRCD {
			return false
		}
	case actionPrecharge:
		if now < b.lastTime+m.TRP {
			return false
		}
	case actionWrite:
		if now < b.lastTime+m.TWR {
			return false
		}
	case actionRead:
		if now < b.lastTime+m.TRR {
			return false
		}
	}
	if !pageHit {
		if b.openRow >= 0 && now < b.activateAt+m.TRAS {
			return false
		}
		if m.rankActivated[rank] && now < m.rankLastActivate[rank]+m.TRRD {
			return false
		}
	}
	return true
}

// isPageHit reports whether req can be serviced without a precharge/
// activate, i.e. its row matches the bank's currently open row. It is
// always false under PageClosed and PagePred, which treat every access as
// a row miss; the row a bank last opened stays recorded until the next
// access to that bank (or a refresh) precharges it.
func (m *MemoryController) isPageHit(b *bankState, req *pendingReq) bool {
	if m.Policy == PageClosed || m.Policy == PagePred {
		return false
	}
	return b.openRow == req.row
}

// scheduleWindow scans the sliding request window once per tick and issues
// at most one DRAM command per bank per tick, preferring page hits, then
// PAR-BS batch fairness, then arrival order (spec §4.5 "Scheduler").
func (m *MemoryController) scheduleWindow(now uint64) {
	issuedBanks := make(map[int]bool)

	for {
		idx := m.pickNext(now, issuedBanks)
		if idx < 0 {
			return
		}
		req := m.window[idx]
		bi := m.bankIdx(req.rank, req.bank)
		b := &m.banks[bi]
		issuedBanks[bi] = true

		if m.Policy == PagePred {
			if b.predThread == req.threadID && b.predRow == req.row {
				m.NumPredHit++
			} else {
				m.NumPredMiss++
			}
			b.predThread = req.threadID
			b.predRow = req.row
		}

		cmdTime := now
		if !m.isPageHit(b, req) {
			if b.openRow >= 0 {
				m.NumPrecharge++
				b.last = actionPrecharge
				b.lastTime = now
				cmdTime = now + m.TRP
			}
			if m.rankActivated[req.rank] && cmdTime < m.rankLastActivate[req.rank]+m.TRRD {
				cmdTime = m.rankLastActivate[req.rank] + m.TRRD
			}
			m.NumActivate++
			b.last = actionActivate
			b.lastTime = cmdTime
			b.activateAt = cmdTime
			b.openRow = req.row
			m.rankActivated[req.rank] = true
			m.rankLastActivate[req.rank] = cmdTime
			cmdTime += m.TRCD
		}

		start := m.issueDataCommand(cmdTime, b, req)
		m.completeReq(start, req)
		m.removeFromWindow(idx)
	}
}

// issueDataCommand emits the read or write command itself, queueing it
// behind its own direction's data-bus timeline: spec §4.5 tracks separate
// read/write timelines precisely so a full-duplex bus lets one of each run
// concurrently, only same-direction commands wait on one another. It
// returns the time the transfer actually starts (Testable Property 7).
// NumWriteToReadSwitch is a pure accounting stat of how often the direction
// changes between consecutive accesses; it costs no extra cycles.
func (m *MemoryController) issueDataCommand(now uint64, b *bankState, req *pendingReq) uint64 {
	busFree := &m.nextReadBusFree
	if req.isWrite {
		busFree = &m.nextWriteBusFree
	}
	start := now
	if start < *busFree {
		start = *busFree
	}
	if m.haveLastBus && m.lastWasWrite != req.isWrite {
		m.NumWriteToReadSwitch++
	}
	m.lastWasWrite = req.isWrite
	m.haveLastBus = true
	*busFree = start + m.TBL

	if req.isWrite {
		m.NumWrite++
		b.last = actionWrite
	} else {
		m.NumRead++
		b.last = actionRead
	}
	b.lastTime = start
	return start
}

// completeReq finishes a scheduled request: writes are sunk silently, reads
// reply with data after the row access plus burst length.
func (m *MemoryController) completeReq(now uint64, req *pendingReq) {
	m.inFlightPerThread[req.threadID]--
	m.sumQueueDelay += now - req.arrival
	m.numQueueSample++

	if req.isWrite {
		return
	}
	reply := req.msg.Clone()
	reply.Kind = req.msg.Kind
	dest := reply.Pop()
	m.Base.SendRep(dest, now+m.TBL, reply)
}

func (m *MemoryController) removeFromWindow(idx int) {
	m.window = append(m.window[:idx], m.window[idx+1:]...)
}

// pickNext selects the best-eligible window index not already serviced by
// issuedBanks this tick: among ready requests, a page hit beats a page
// miss; among page hits, oldest wins; under PAR-BS, requests are grouped
// into arrival batches and the thread with fewest in-flight requests wins
// within its batch.
func (m *MemoryController) pickNext(now uint64, issuedBanks map[int]bool) int {
	best := -1
	bestHit := false
	var bestKey uint64

	for i, req := range m.window {
		bi := m.bankIdx(req.rank, req.bank)
		if issuedBanks[bi] {
			continue
		}
		b := &m.banks[bi]
		hit := m.isPageHit(b, req)
		if !m.bankReady(now, req.rank, b, hit) {
			continue
		}

		var key uint64
		if m.UseParBS {
			batch := req.arrival / m.ParBSBatchSize
			key = batch<<32 | uint64(m.inFlightPerThread[req.threadID])
		} else {
			key = req.arrival
		}

		if best < 0 {
			best, bestHit, bestKey = i, hit, key
			continue
		}
		if hit && !bestHit {
			best, bestHit, bestKey = i, hit, key
			continue
		}
		if hit == bestHit && key < bestKey {
			best, bestHit, bestKey = i, hit, key
		}
	}
	return best
}

// runRefresh refreshes one bank per call in round-robin order, rank by
// rank, once the current round's start time has been reached: the bank's
// open row is closed and recorded as a precharge; no activate is issued.
// After the last bank of the last rank, the next round starts
// RefreshInterval cycles later (spec §4.5 "Refresh").
func (m *MemoryController) runRefresh(now uint64) {
	if now < m.nextRefreshAt {
		return
	}
	bi := m.bankIdx(int(m.refreshRank), int(m.refreshBank))
	b := &m.banks[bi]
	b.last = actionPrecharge
	b.lastTime = now
	b.openRow = -1
	m.NumRefresh++

	m.refreshBank++
	if m.refreshBank >= m.NumBanks {
		m.refreshBank = 0
		m.refreshRank++
		if m.refreshRank >= m.NumRanks {
			m.refreshRank = 0
			m.nextRefreshAt = now + m.RefreshInterval
		}
	}
}

// Stats is the machine-readable snapshot exposed alongside the human
// zerolog summary (SPEC_FULL.md §4 expansion).
type Stats struct {
	NumRead, NumWrite         uint64
	NumActivate, NumPrecharge uint64
	NumRefresh                uint64
	NumWriteToReadSwitch      uint64
	NumPredHit, NumPredMiss   uint64
	MeanQueueDelay            float64
	DistinctPagesTouched      int
}

func (m *MemoryController) Stats() Stats {
	mean := 0.0
	if m.numQueueSample > 0 {
		mean = float64(m.sumQueueDelay) / float64(m.numQueueSample)
	}
	return Stats{
		NumRead: m.NumRead, NumWrite: m.NumWrite,
		NumActivate: m.NumActivate, NumPrecharge: m.NumPrecharge,
		NumRefresh: m.NumRefresh, NumWriteToReadSwitch: m.NumWriteToReadSwitch,
		NumPredHit: m.NumPredHit, NumPredMiss: m.NumPredMiss,
		MeanQueueDelay:       mean,
		DistinctPagesTouched: len(m.pageHistogram),
	}
}

func (m *MemoryController) LogSummary() {
	if m.NumRead == 0 && m.NumWrite == 0 {
		return
	}
	m.Base.Log().Info().
		Uint64("reads", m.NumRead).Uint64("writes", m.NumWrite).
		Uint64("activates", m.NumActivate).Uint64("precharges", m.NumPrecharge).
		Uint64("refreshes", m.NumRefresh).
		Msg("memory controller summary")
}
