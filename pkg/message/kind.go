// Package message defines the unit exchanged between simulator components:
// the coherence/traffic message alphabet (§3), the coherence state enum,
// and the in-flight message type itself, including its back-stack.
package message

// Kind enumerates the full coherence/traffic alphabet a message can carry
// (spec §3 "Message kinds").
type Kind uint8

const (
	KindRead Kind = iota
	KindWrite

	// L2 <-> directory.
	KindERd     // exclusive read request
	KindSRd     // shared read request
	KindDirRd   // read request originated from a directory (M -> S downgrade)
	KindDirRdND // not-in-directory null reply to KindDirRd

	// Writeback / eviction.
	KindEvict     // dirty (Modified) eviction, carries data
	KindEvictND   // clean eviction, no data
	KindDirEvict  // eviction forwarded from L2 to directory

	// Transitions.
	KindEToS
	KindEToSND
	KindSToS
	KindSToSND
	KindEToM
	KindEToI
	KindMToS
	KindMToM
	KindMToI

	// Directory-originated invalidations.
	KindInvalidate
	KindInvalidateND

	// Retries / padding.
	KindNack
	KindRdBypass
	KindNop
	KindWriteND

	// Directory-cache.
	KindRdDirInfoReq
	KindRdDirInfoRep

	// TLB.
	KindTLBRd
)

var kindNames = map[Kind]string{
	KindRead:         "read",
	KindWrite:        "write",
	KindERd:          "e_rd",
	KindSRd:          "s_rd",
	KindDirRd:        "dir_rd",
	KindDirRdND:      "dir_rd_nd",
	KindEvict:        "evict",
	KindEvictND:      "evict_nd",
	KindDirEvict:     "dir_evict",
	KindEToS:         "e_to_s",
	KindEToSND:       "e_to_s_nd",
	KindSToS:         "s_to_s",
	KindSToSND:       "s_to_s_nd",
	KindEToM:         "e_to_m",
	KindEToI:         "e_to_i",
	KindMToS:         "m_to_s",
	KindMToM:         "m_to_m",
	KindMToI:         "m_to_i",
	KindInvalidate:   "invalidate",
	KindInvalidateND: "invalidate_nd",
	KindNack:         "nack",
	KindRdBypass:     "rd_bypass",
	KindNop:          "nop",
	KindWriteND:      "write_nd",
	KindRdDirInfoReq: "rd_dir_info_req",
	KindRdDirInfoRep: "rd_dir_info_rep",
	KindTLBRd:        "tlb_rd",
}

// String implements fmt.Stringer, used in fatal-assertion log lines.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown_kind"
}

// IsNotDirectoryTerminal reports whether a kind is the "_nd"/null-reply
// variant of a transition, i.e. the request completed without a data
// payload (relevant to the §9 "got_cl" latch decision).
func (k Kind) IsNotDirectoryTerminal() bool {
	switch k {
	case KindDirRdND, KindEToSND, KindSToSND, KindInvalidateND, KindEvictND:
		return true
	default:
		return false
	}
}

// CarriesData reports whether a reply of this kind carries a data payload,
// as opposed to being a pure acknowledgement/null reply.
func (k Kind) CarriesData() bool {
	switch k {
	case KindInvalidate, KindEvict, KindEToS, KindSToS, KindDirRd:
		return true
	default:
		return false
	}
}
