// Package sim wires every component of one simulated CMP together —
// cores, L1/L2 caches, directories, memory controllers, TLBs, and the
// shared on-chip interconnect — and exposes the instruction-ingestion
// surface a front-end driver calls into (spec §6).
//
// Grounded on original_source/McSim/PTS.h/.cc (PthreadTimingSimulator):
// the component-construction order, the per-tile grouping around one
// memory controller, and the resume_simulation/round-robin thread-dispatch
// loop are reproduced here, adapted from a single flat object graph of
// shared_ptrs to a stable-ComponentID registry implementing
// component.Router (spec §9's "integer ids instead of shared pointers").
package sim

import (
	"fmt"

	"github.com/ohnolabs/mcsim/pkg/cache"
	"github.com/ohnolabs/mcsim/pkg/core"
	"github.com/ohnolabs/mcsim/pkg/directory"
	"github.com/ohnolabs/mcsim/pkg/event"
	"github.com/ohnolabs/mcsim/pkg/mc"
	"github.com/ohnolabs/mcsim/pkg/message"
	"github.com/ohnolabs/mcsim/pkg/noc"
	"github.com/ohnolabs/mcsim/pkg/param"
	"github.com/ohnolabs/mcsim/pkg/tlb"
)

// InstructionRecord is the retired-instruction record the front-end feeds
// in via AddInstruction (spec §6's ingestion API).
type InstructionRecord = core.InstructionRecord

// mailbox is the promoted subset of component.Base every registered
// component exposes for direct (non-NoC) delivery. The NoC is excluded:
// it shadows AddReqEvent/AddRepEvent with a destination-taking signature
// and is handled separately in Simulator's Router methods.
type mailbox interface {
	AddReqEvent(t uint64, msg *message.Message) uint64
	AddRepEvent(t uint64, msg *message.Message) uint64
}

type ticker interface {
	Tick(now uint64)
}

type summarizer interface {
	LogSummary()
}

// tile groups one memory controller's address range: its directory, its
// shared L2, and the cores (with private L1s and optional TLBs) homed
// there (spec §2 "one directory+MC per tile").
type tile struct {
	mc  *mc.MemoryController
	dir *directory.Directory
	l2  *cache.L2

	cores []*core.O3Core
}

// Simulator owns the whole component graph and is the component.Router
// every component is wired with: a message addressed to ComponentID `to`
// is delivered by looking `to` up in the registry below, never by a
// pointer one component holds on another (spec §9).
type Simulator struct {
	store *param.Store
	queue *event.Queue

	noc   *noc.NoC
	nocID message.ComponentID

	tiles []*tile

	mailboxes map[message.ComponentID]mailbox
	tickers   map[message.ComponentID]ticker
	summaries []summarizer

	coreByThread map[uint32]*core.O3Core
	threadOrder  []uint32
	cursor       int

	homeShift uint64
	nextID    message.ComponentID
}

func (s *Simulator) alloc() message.ComponentID {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Simulator) register(id message.ComponentID, m mailbox, t ticker, sum summarizer) {
	s.mailboxes[id] = m
	s.tickers[id] = t
	if sum != nil {
		s.summaries = append(s.summaries, sum)
	}
}

// New builds a Simulator from the given parameter store. Tile count, cores
// per tile, TLB presence, and NoC topology are all store-driven (spec §6
// "parameter store"), so a single binary covers every configuration in §8's
// scenarios without recompiling.
func New(store *param.Store) *Simulator {
	top := param.WithPrefix(store, "pts.sim.")
	numTiles := int(top.Uint64("num_tiles", 1))
	if numTiles < 1 {
		numTiles = 1
	}
	coresPerTile := int(top.Uint64("cores_per_tile", 1))
	if coresPerTile < 1 {
		coresPerTile = 1
	}
	useITLB := top.Bool("use_itlb", false)
	useDTLB := top.Bool("use_dtlb", false)
	homeShift := top.Uint64("home_shift", 20)

	topology := noc.TopologyCrossbar
	switch top.String("topology") {
	case "mesh":
		topology = noc.TopologyMesh
	case "ring":
		topology = noc.TopologyRing
	}

	s := &Simulator{
		store:        store,
		queue:        event.New(),
		mailboxes:    make(map[message.ComponentID]mailbox),
		tickers:      make(map[message.ComponentID]ticker),
		coreByThread: make(map[uint32]*core.O3Core),
		homeShift:    homeShift,
	}

	s.nocID = s.alloc()
	s.noc = noc.New(s.nocID, "noc", topology, param.WithPrefix(store, "pts.noc."), s.queue)
	s.noc.Router = s
	s.tickers[s.nocID] = s.noc
	s.summaries = append(s.summaries, s.noc)

	for ti := 0; ti < numTiles; ti++ {
		t := s.buildTile(ti, coresPerTile, useITLB, useDTLB)
		s.tiles = append(s.tiles, t)
	}

	return s
}

func (s *Simulator) buildTile(ti, coresPerTile int, useITLB, useDTLB bool) *tile {
	store := s.store

	mcID := s.alloc()
	mcComp := mc.New(mcID, "mc", param.WithPrefix(store, "pts.mc."), s.queue)
	mcComp.Router = s
	s.register(mcID, mcComp, mcComp, mcComp)

	l2ID := s.alloc()
	dirID := s.alloc()

	l2 := cache.NewL2(l2ID, "l2$", dirID, s.nocID, param.WithPrefix(store, "pts.l2$."), s.queue)
	l2.Router = s
	myTile := ti
	l2.IsLocal = func(addr uint64) bool { return s.homeTile(addr) == myTile }
	l2.HomeDirectory = func(addr uint64) message.ComponentID { return s.tiles[s.homeTile(addr)].dir.Base.ID }
	s.register(l2ID, l2, l2, l2)

	dir := directory.New(dirID, "dir", mcID, l2ID, s.nocID, param.WithPrefix(store, "pts.dir."), s.queue)
	dir.Router = s
	s.register(dirID, dir, dir, dir)

	t := &tile{mc: mcComp, dir: dir, l2: l2}

	for ci := 0; ci < coresPerTile; ci++ {
		threadID := uint32(ti*coresPerTile + ci)

		icacheID := s.alloc()
		dcacheID := s.alloc()
		coreID := s.alloc()

		l1i := cache.NewL1(icacheID, "l1i$", l2ID, param.WithPrefix(store, "pts.l1i$."), s.queue)
		l1i.Router = s
		s.register(icacheID, l1i, l1i, l1i)

		l1d := cache.NewL1(dcacheID, "l1d$", l2ID, param.WithPrefix(store, "pts.l1d$."), s.queue)
		l1d.Router = s
		s.register(dcacheID, l1d, l1d, l1d)

		oc := core.New(coreID, "core", threadID, icacheID, dcacheID, param.WithPrefix(store, "pts.o3core."), s.queue)
		oc.Router = s

		if useITLB {
			itlbID := s.alloc()
			it := tlb.New(itlbID, tlb.KindInstruction, "tlbl1i", param.WithPrefix(store, "pts.tlbl1i."), s.queue)
			it.Router = s
			s.register(itlbID, it, it, it)
			oc.ITLB = itlbID
			oc.UseITLB = true
		}
		if useDTLB {
			dtlbID := s.alloc()
			dt := tlb.New(dtlbID, tlb.KindData, "tlbl1d", param.WithPrefix(store, "pts.tlbl1d."), s.queue)
			dt.Router = s
			s.register(dtlbID, dt, dt, dt)
			oc.DTLB = dtlbID
			oc.UseDTLB = true
		}

		s.register(coreID, oc, oc, oc)
		s.coreByThread[threadID] = oc
		s.threadOrder = append(s.threadOrder, threadID)
		t.cores = append(t.cores, oc)
	}

	return t
}

// homeTile picks the tile whose directory/MC owns addr, via the same
// shift-and-modulo idiom pkg/mc uses for bank/rank hashing (spec §4.5),
// applied one level up for tile assignment.
func (s *Simulator) homeTile(addr uint64) int {
	if len(s.tiles) <= 1 {
		return 0
	}
	return int((addr >> s.homeShift) % uint64(len(s.tiles)))
}

// AddReqEvent implements component.Router. A request addressed to the NoC
// carries its real destination pushed onto the message's back-stack (by
// whichever cache/directory routed it there, see pkg/cache and
// pkg/directory); everything else is delivered straight to the named
// component's own mailbox.
func (s *Simulator) AddReqEvent(to message.ComponentID, t uint64, msg *message.Message) {
	if to == s.nocID {
		dest := msg.Pop()
		s.noc.AddReqEvent(dest, t, msg)
		return
	}
	m, ok := s.mailboxes[to]
	if !ok {
		panic(fmt.Errorf("sim: request addressed to unknown component %d", to))
	}
	m.AddReqEvent(t, msg)
}

// AddRepEvent is AddReqEvent's reply-mailbox counterpart.
func (s *Simulator) AddRepEvent(to message.ComponentID, t uint64, msg *message.Message) {
	if to == s.nocID {
		dest := msg.Pop()
		s.noc.AddRepEvent(dest, t, msg)
		return
	}
	m, ok := s.mailboxes[to]
	if !ok {
		panic(fmt.Errorf("sim: reply addressed to unknown component %d", to))
	}
	m.AddRepEvent(t, msg)
}

// AddInstruction admits one retired-instruction record into its thread's
// fetch queue, returning the number of free fetch-queue slots remaining —
// 0 signals back-pressure, the driver must pause this thread (spec §6).
func (s *Simulator) AddInstruction(in InstructionRecord) uint32 {
	c, ok := s.coreByThread[in.ThreadID]
	if !ok {
		return 0
	}
	return c.AddInstruction(in)
}

// SetStackNSize records hthread's stack range (spec §6).
func (s *Simulator) SetStackNSize(hthread uint32, base, size uint64) {
	if c, ok := s.coreByThread[hthread]; ok {
		c.SetStackNSize(base, size)
	}
}

// SetActive gates whether hthread participates in resume_simulation's
// round robin (spec §4.7 "Thread lifecycle").
func (s *Simulator) SetActive(hthread uint32, active bool) {
	if c, ok := s.coreByThread[hthread]; ok {
		c.SetActive(active)
	}
}

// ResumeSimulation advances the event queue until some active hardware
// thread has room in its fetch queue for more instructions, then returns
// that thread and the time it became ready (spec §6, mirroring the
// original's resume_simulation/round-robin dispatch). If mustSwitch is
// false and the thread last returned is still ready, it is returned again
// at once; if mustSwitch is true, each round-robin pass checks every other
// thread before it, so it is returned only when no other thread is ready
// in that pass. Returns hthread 0 with
// the queue's final clock if the event queue drains with no thread ever
// becoming ready (deadlock/end-of-trace).
func (s *Simulator) ResumeSimulation(mustSwitch bool) (hthread uint32, time uint64) {
	if len(s.threadOrder) == 0 {
		return 0, s.queue.Clock()
	}

	if !mustSwitch {
		tid := s.threadOrder[s.cursor]
		if c := s.coreByThread[tid]; c.ReadyForMoreInstructions() {
			return tid, s.queue.Clock()
		}
	}

	for {
		for i := 0; i < len(s.threadOrder); i++ {
			s.cursor = (s.cursor + 1) % len(s.threadOrder)
			tid := s.threadOrder[s.cursor]
			if c := s.coreByThread[tid]; c.ReadyForMoreInstructions() {
				return tid, s.queue.Clock()
			}
		}
		if s.queue.Empty() {
			return 0, s.queue.Clock()
		}
		wakeTime, targets, ok := s.queue.RunOne()
		if !ok {
			return 0, s.queue.Clock()
		}
		for _, id := range targets {
			if t, ok := s.tickers[id]; ok {
				t.Tick(wakeTime)
			}
		}
	}
}

// GetParamUint64, GetParamBool, and GetParamString expose the underlying
// parameter store directly (spec §6), for driver code that wants to read
// back an effective configuration value (e.g. to size its own buffers to
// match num_tiles).
func (s *Simulator) GetParamUint64(key string, def uint64) uint64 { return s.store.Uint64(key, def) }
func (s *Simulator) GetParamBool(key string, def bool) bool       { return s.store.Bool(key, def) }
func (s *Simulator) GetParamString(key string) string             { return s.store.String(key) }

// Clock returns the simulator's current time.
func (s *Simulator) Clock() uint64 { return s.queue.Clock() }

// Done reports whether the event queue has drained (spec §8 invariant 4
// "empty mailboxes when the event queue drains").
func (s *Simulator) Done() bool { return s.queue.Empty() }

// LogSummary prints every component's one-line zerolog summary (spec §6
// "Statistics output"), in construction order (NoC, then tile by tile).
func (s *Simulator) LogSummary() {
	for _, c := range s.summaries {
		c.LogSummary()
	}
}
