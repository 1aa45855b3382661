package directory

import (
	"testing"

	"github.com/ohnolabs/mcsim/pkg/event"
	"github.com/ohnolabs/mcsim/pkg/message"
	"github.com/ohnolabs/mcsim/pkg/param"
)

type delivery struct {
	to  message.ComponentID
	at  uint64
	msg *message.Message
}

// soloRouter captures every send a standalone directory makes, for tests
// that exercise the directory's own logic directly rather than a full
// L2-directory-MC round trip.
type soloRouter struct {
	reqs []delivery
	reps []delivery
}

func (r *soloRouter) AddReqEvent(to message.ComponentID, t uint64, msg *message.Message) {
	r.reqs = append(r.reqs, delivery{to, t, msg})
}
func (r *soloRouter) AddRepEvent(to message.ComponentID, t uint64, msg *message.Message) {
	r.reps = append(r.reps, delivery{to, t, msg})
}

const (
	testL2ID  message.ComponentID = 3
	testMCID  message.ComponentID = 4
	testNocID message.ComponentID = 5
	testDirID message.ComponentID = 9
)

func newTestDirectory(t *testing.T) (*Directory, *soloRouter, *event.Queue) {
	t.Helper()
	store := param.NewStore()
	store.SetUint64("set_lsb", 6)
	store.SetUint64("num_sets", 4)
	store.SetUint64("num_ways", 4)
	store.SetUint64("to_mc_t", 450)
	store.SetUint64("to_l2_t", 140)
	store.SetUint64("to_xbar_t", 350)
	store.SetUint64("process_interval", 50)
	q := event.New()
	d := New(testDirID, "dir", testMCID, testL2ID, testNocID, param.WithPrefix(store, ""), q)
	router := &soloRouter{}
	d.Router = router
	return d, router, q
}

// TestHandleDemandColdMissAllocatesAndFetches exercises a fresh read miss
// forwarded by the local L2: the directory allocates a tr_to_e entry and
// forwards the request to the memory controller.
func TestHandleDemandColdMissAllocatesAndFetches(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	addr := uint64(0x1000)
	req := message.NewMessage(message.KindRead, message.ComponentID(201), addr, 0)
	req.Push(testL2ID)

	d.handleRequest(0, req)

	tag := d.dirEntryTag(addr)
	entry, ok := d.entries[tag]
	if !ok {
		t.Fatalf("expected a directory entry to be allocated")
	}
	if entry.Type != message.TrToE {
		t.Fatalf("fresh read should allocate tr_to_e, got %v", entry.Type)
	}
	if _, sharer := entry.Sharers[testL2ID]; !sharer {
		t.Fatalf("requesting L2 should be recorded as a sharer")
	}
	if len(router.reqs) != 1 {
		t.Fatalf("expected one request forwarded to the memory controller, got %d", len(router.reqs))
	}
	if router.reqs[0].to != testMCID {
		t.Fatalf("forward went to %d, want memory controller %d", router.reqs[0].to, testMCID)
	}
}

// TestHandleDemandOnTransientEntryNacks exercises the spec's "miss after
// miss" nack rule: a second demand against a line already mid-transaction
// is rejected rather than queued.
func TestHandleDemandOnTransientEntryNacks(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	addr := uint64(0x2000)
	tag := d.dirEntryTag(addr)
	d.entries[tag] = &DirEntry{Type: message.TrToE, Sharers: map[message.ComponentID]struct{}{testL2ID: {}}}

	req := message.NewMessage(message.KindRead, message.ComponentID(301), addr, 0)
	req.Push(testL2ID)

	d.handleRequest(0, req)

	if d.NumNack != 1 {
		t.Fatalf("expected a nack against a transient entry, NumNack=%d", d.NumNack)
	}
	if len(router.reps) != 1 || router.reps[0].msg.Kind != message.KindNack {
		t.Fatalf("expected a nack reply sent to the L2, got %+v", router.reps)
	}
	if router.reps[0].to != testL2ID {
		t.Fatalf("nack destination: got %d, want L2 %d", router.reps[0].to, testL2ID)
	}
}

// TestHandleReadHitOnExclusiveIssuesEToS exercises a read against a line
// another L2 holds Exclusive: the directory parks the reader and issues an
// e_to_s downgrade command to the current owner.
func TestHandleReadHitOnExclusiveIssuesEToS(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	addr := uint64(0x3000)
	tag := d.dirEntryTag(addr)
	owner := message.ComponentID(401)
	entry := &DirEntry{Type: message.Exclusive, Sharers: map[message.ComponentID]struct{}{owner: {}}}
	d.entries[tag] = entry

	reader := message.ComponentID(402)
	req := message.NewMessage(message.KindRead, reader, addr, 0)
	req.Push(testL2ID)

	d.handleRequest(0, req)

	if entry.Type != message.TrToS {
		t.Fatalf("entry should move to tr_to_s while the downgrade is outstanding, got %v", entry.Type)
	}
	if entry.Pending == nil {
		t.Fatalf("the triggering read should be parked")
	}
	if len(router.reps) != 1 {
		t.Fatalf("expected one e_to_s command issued, got %d", len(router.reps))
	}
	cmd := router.reps[0]
	if cmd.to != testNocID || cmd.msg.Top() != owner {
		t.Fatalf("e_to_s command should reach the remote owner %d via the NoC %d, got to=%d top=%v", owner, testNocID, cmd.to, cmd.msg.Top())
	}
	if cmd.msg.Kind != message.KindEToS {
		t.Fatalf("expected e_to_s command kind, got %v", cmd.msg.Kind)
	}
}

// TestHandleReadHitAlreadySharerNacks exercises a requester that is already
// listed as a sharer reading again: treated as a nack rather than coalesced
// with any in-flight transaction.
func TestHandleReadHitAlreadySharerNacks(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	addr := uint64(0x3800)
	tag := d.dirEntryTag(addr)
	d.entries[tag] = &DirEntry{Type: message.Shared, Sharers: map[message.ComponentID]struct{}{testL2ID: {}}}

	req := message.NewMessage(message.KindRead, message.ComponentID(1), addr, 0)
	req.Push(testL2ID)

	d.handleRequest(0, req)

	if d.NumNack != 1 {
		t.Fatalf("expected existing sharer's repeat read to be nacked, NumNack=%d", d.NumNack)
	}
}

// TestIssueInvalidateBroadcastTargetsEverySharer exercises a write against a
// Shared line with multiple sharers: every sharer gets an invalidate, and
// the request is parked pending their acks.
func TestIssueInvalidateBroadcastTargetsEverySharer(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	addr := uint64(0x4000)
	tag := d.dirEntryTag(addr)
	sharerA := message.ComponentID(501)
	sharerB := message.ComponentID(502)
	entry := &DirEntry{Type: message.Shared, Sharers: map[message.ComponentID]struct{}{sharerA: {}, sharerB: {}}}
	d.entries[tag] = entry

	writer := message.ComponentID(503)
	req := message.NewMessage(message.KindWrite, writer, addr, 0)
	req.Push(testL2ID)

	d.handleRequest(0, req)

	if entry.Type != message.TrToM {
		t.Fatalf("entry should move to tr_to_m while invalidates are outstanding, got %v", entry.Type)
	}
	if entry.PendingAcksRemaining != 2 {
		t.Fatalf("expected 2 outstanding acks, got %d", entry.PendingAcksRemaining)
	}
	if len(router.reps) != 2 {
		t.Fatalf("expected an invalidate sent to each sharer, got %d", len(router.reps))
	}
	for _, d := range router.reps {
		if d.msg.Kind != message.KindInvalidate {
			t.Fatalf("expected invalidate commands, got %v", d.msg.Kind)
		}
	}
}

// TestHandleInvalidateAckFinalizesOnGotCL exercises the last invalidate ack
// of a broadcast carrying data: the parked write completes immediately,
// forwarded to the requester as a write reply, without a memory round trip.
func TestHandleInvalidateAckFinalizesOnGotCL(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	addr := uint64(0x5000)
	tag := d.dirEntryTag(addr)
	sharerA := message.ComponentID(601)
	sharerB := message.ComponentID(602)
	requester := message.ComponentID(603)

	pending := message.NewMessage(message.KindWrite, requester, addr, 0)
	pending.Push(testL2ID)

	entry := &DirEntry{
		Type:                 message.TrToM,
		Sharers:              map[message.ComponentID]struct{}{sharerA: {}, sharerB: {}},
		Pending:              pending,
		PendingAcksRemaining: 2,
	}
	d.entries[tag] = entry

	// First ack: no data, doesn't finalize yet.
	ack1 := message.NewMessage(message.KindInvalidateND, sharerA, addr, 0)
	d.handleRequest(0, ack1)
	if entry.PendingAcksRemaining != 1 {
		t.Fatalf("expected 1 outstanding ack after the first, got %d", entry.PendingAcksRemaining)
	}
	if len(router.reps) != 0 {
		t.Fatalf("should not finalize before every ack is in, got %d sends", len(router.reps))
	}

	// Second ack carries data: finalizes, got_cl latches regardless of order.
	ack2 := message.NewMessage(message.KindInvalidate, sharerB, addr, 0)
	d.handleRequest(0, ack2)

	if entry.Type != message.Modified {
		t.Fatalf("entry should settle to Modified, got %v", entry.Type)
	}
	if entry.Pending != nil {
		t.Fatalf("pending should be cleared once finalized")
	}
	if _, ok := entry.Sharers[testL2ID]; !ok || len(entry.Sharers) != 1 {
		t.Fatalf("the requesting L2 should become the sole sharer, got %v", entry.Sharers)
	}
	if len(router.reps) != 1 {
		t.Fatalf("expected one write reply sent up, got %d", len(router.reps))
	}
	if router.reps[0].to != testL2ID || router.reps[0].msg.Kind != message.KindWrite {
		t.Fatalf("expected a write reply to the requesting L2, got %+v", router.reps[0])
	}
}

// TestHandleInvalidateAckFinalizesWithoutGotCLFetchesMemory exercises the
// all-null-reply case: the parked write cannot complete from invalidate
// data alone and falls back to a memory fetch.
func TestHandleInvalidateAckFinalizesWithoutGotCLFetchesMemory(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	addr := uint64(0x5800)
	tag := d.dirEntryTag(addr)
	sharer := message.ComponentID(701)
	requester := message.ComponentID(702)

	pending := message.NewMessage(message.KindWrite, requester, addr, 0)
	pending.Push(testL2ID)

	entry := &DirEntry{
		Type:                 message.TrToM,
		Sharers:              map[message.ComponentID]struct{}{sharer: {}},
		Pending:              pending,
		PendingAcksRemaining: 1,
	}
	d.entries[tag] = entry

	ack := message.NewMessage(message.KindInvalidateND, sharer, addr, 0)
	d.handleRequest(0, ack)

	if entry.Type != message.TrToM {
		t.Fatalf("entry should remain tr_to_m while the memory fetch is outstanding, got %v", entry.Type)
	}
	if len(router.reqs) != 1 {
		t.Fatalf("expected a memory fetch issued, got %d", len(router.reqs))
	}
	if router.reqs[0].to != testMCID {
		t.Fatalf("fetch should go to the memory controller %d, got %d", testMCID, router.reqs[0].to)
	}
}

// TestHandleReplyTrToEInstallsExclusive exercises the memory-controller
// completion of a cold read allocate: the entry settles Exclusive and the
// data is forwarded to the original requester.
func TestHandleReplyTrToEInstallsExclusive(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	addr := uint64(0x6000)
	tag := d.dirEntryTag(addr)
	d.entries[tag] = &DirEntry{Type: message.TrToE, Sharers: map[message.ComponentID]struct{}{testL2ID: {}}}

	rep := message.NewMessage(message.KindRead, testDirID, addr, 0)
	rep.Push(testL2ID)

	d.handleReply(0, rep)

	entry := d.entries[tag]
	if entry.Type != message.Exclusive {
		t.Fatalf("entry should settle Exclusive, got %v", entry.Type)
	}
	if len(router.reps) != 1 {
		t.Fatalf("expected a reply forwarded to the requesting L2, got %d", len(router.reps))
	}
	if router.reps[0].to != testL2ID || router.reps[0].msg.Kind != message.KindERd {
		t.Fatalf("expected an e_rd reply to the L2, got %+v", router.reps[0])
	}
}

// TestSendUpRemoteL2PushesDestination exercises the NoC destination-push
// convention: a reply addressed to an L2 other than this directory's own
// paired one is routed through the NoC with the real target pushed onto the
// back-stack, ready for pkg/sim's Router to pop back off.
func TestSendUpRemoteL2PushesDestination(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	remoteL2 := message.ComponentID(999)
	msg := message.NewMessage(message.KindERd, testDirID, 0x7000, 0)

	d.sendUp(remoteL2, 0, msg)

	if len(router.reps) != 1 {
		t.Fatalf("expected one reply sent, got %d", len(router.reps))
	}
	sent := router.reps[0]
	if sent.to != testNocID {
		t.Fatalf("remote L2 traffic should route via the NoC %d, got %d", testNocID, sent.to)
	}
	if sent.msg.Top() != remoteL2 {
		t.Fatalf("the real destination should be pushed on top of the back-stack, got %v", sent.msg.Top())
	}
}

// newTestDirectoryWithCache builds a directory with its optional directory
// cache enabled, a single set and a single way, so a second line mapping to
// the same set always forces an eviction.
func newTestDirectoryWithCache(t *testing.T) (*Directory, *soloRouter) {
	t.Helper()
	store := param.NewStore()
	store.SetUint64("set_lsb", 6)
	store.SetUint64("num_sets", 1)
	store.SetUint64("num_ways", 1)
	store.SetBool("has_directory_cache", true)
	store.SetUint64("to_mc_t", 450)
	store.SetUint64("to_l2_t", 140)
	store.SetUint64("to_xbar_t", 350)
	store.SetUint64("process_interval", 50)
	q := event.New()
	d := New(testDirID, "dir", testMCID, testL2ID, testNocID, param.WithPrefix(store, ""), q)
	router := &soloRouter{}
	d.Router = router
	return d, router
}

// TestDirectoryCacheEvictionInducesRdDirInfoRoundTrip exercises scenario S3:
// with num_ways=1, two reads to different lines mapping to the same
// directory-cache set each cost their own rd_dir_info_req/rep round trip,
// and the second evicts the first line's (by-then stable) entry to make
// room rather than nacking.
func TestDirectoryCacheEvictionInducesRdDirInfoRoundTrip(t *testing.T) {
	d, router := newTestDirectoryWithCache(t)

	addr1 := uint64(0x1000)
	addr2 := uint64(0x2000)
	tag1 := d.dirEntryTag(addr1)
	tag2 := d.dirEntryTag(addr2)
	if tag1 == tag2 || d.setOf(tag1) != d.setOf(tag2) {
		t.Fatalf("test addresses must be different lines mapping to the same set: tag1=%d tag2=%d", tag1, tag2)
	}

	req1 := message.NewMessage(message.KindRead, message.ComponentID(201), addr1, 0)
	req1.Push(testL2ID)
	d.handleRequest(0, req1)

	if d.NumDirCacheMiss != 1 {
		t.Fatalf("expected the cold lookup to count as a directory-cache miss, got %d", d.NumDirCacheMiss)
	}
	if len(router.reqs) != 1 || router.reqs[0].msg.Kind != message.KindRdDirInfoReq {
		t.Fatalf("expected a rd_dir_info_req sent to the memory controller, got %+v", router.reqs)
	}

	rep1 := message.NewMessage(message.KindRdDirInfoRep, testMCID, tag1<<d.SetLSB, 0)
	d.handleReply(450, rep1)
	if len(router.reqs) != 2 {
		t.Fatalf("expected allocateEntry's own mc fetch after the dir-cache reply, got %d reqs", len(router.reqs))
	}

	// Complete line 1's transaction so it settles stable; only a stable
	// entry is evictable.
	dataRep1 := message.NewMessage(message.KindRead, testDirID, addr1, 0)
	dataRep1.Push(testL2ID)
	d.handleReply(900, dataRep1)
	if entry1 := d.entries[tag1]; entry1.Type != message.Exclusive {
		t.Fatalf("expected line 1 to settle Exclusive before the second access, got %v", entry1.Type)
	}

	// Second access to a different line in the same (single-way) set:
	// evicts line 1's stable entry and costs exactly one more
	// rd_dir_info_req round trip for line 2.
	req2 := message.NewMessage(message.KindRead, message.ComponentID(202), addr2, 0)
	req2.Push(testL2ID)
	d.handleRequest(1000, req2)

	if d.NumDirCacheMiss != 2 {
		t.Fatalf("expected a second directory-cache miss for the evicting access, got %d", d.NumDirCacheMiss)
	}
	if len(router.reqs) != 3 || router.reqs[2].msg.Kind != message.KindRdDirInfoReq {
		t.Fatalf("expected exactly one more rd_dir_info_req for line 2, got %+v", router.reqs)
	}
	if router.reqs[2].msg.Address != addr2 {
		t.Fatalf("the new fetch should target line 2's address, got %#x", router.reqs[2].msg.Address)
	}
	if _, stillResident := d.entries[tag1]; stillResident {
		t.Fatalf("line 1's entry should have been evicted to make room, got %+v", d.entries[tag1])
	}
}

// TestSendCommandTwoPushTrick exercises sendCommand's back-stack setup: a
// fresh directory-issued command to a remote sharer goes via the NoC, and
// once pkg/sim's Router pops the pushed destination, this directory's id is
// at the top (the L2's reply destination) with the target's own id beneath
// it, so the ack the L2 sends after its own pop still identifies the acker.
func TestSendCommandTwoPushTrick(t *testing.T) {
	d, router, _ := newTestDirectory(t)

	remoteSharer := message.ComponentID(888)
	d.sendCommand(0, remoteSharer, message.KindInvalidate, 0x8000, 0)

	if len(router.reps) != 1 {
		t.Fatalf("expected one command sent, got %d", len(router.reps))
	}
	sent := router.reps[0]
	if sent.to != testNocID {
		t.Fatalf("remote command should route via the NoC, got %d", sent.to)
	}

	// Mirror what pkg/sim's Router does on delivery: pop the pushed
	// destination before handing off to the NoC/L2.
	delivered := sent.msg.Clone()
	dest := delivered.Pop()
	if dest != remoteSharer {
		t.Fatalf("router pop should yield the remote sharer %d, got %d", remoteSharer, dest)
	}
	if delivered.Top() != testDirID {
		t.Fatalf("after the router's pop, the command's own top should still be this directory %d, got %d", testDirID, delivered.Top())
	}
}
