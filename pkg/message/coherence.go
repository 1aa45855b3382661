package message

// CoherenceState is the per-line MESI(+transient) state carried by L1 lines,
// L2 lines (both the directory-facing and L1-facing state), and directory
// entries (spec §3).
type CoherenceState uint8

const (
	Invalid CoherenceState = iota
	Shared
	Exclusive
	Modified

	// Transient intermediates: forbid new requests against the line until
	// the pending transaction completes.
	TrToI
	TrToS
	TrToM
	TrToE
	MToS // Modified draining to Shared (directory-side "m_to_s" state)
)

var stateNames = [...]string{
	Invalid:   "I",
	Shared:    "S",
	Exclusive: "E",
	Modified:  "M",
	TrToI:     "tr_to_i",
	TrToS:     "tr_to_s",
	TrToM:     "tr_to_m",
	TrToE:     "tr_to_e",
	MToS:      "m_to_s",
}

func (c CoherenceState) String() string {
	if int(c) < len(stateNames) && stateNames[c] != "" {
		return stateNames[c]
	}
	return "?"
}

// IsTransient reports whether new requests against a line in this state
// must be nacked/queued until the pending transaction resolves.
func (c CoherenceState) IsTransient() bool {
	switch c {
	case TrToI, TrToS, TrToM, TrToE, MToS:
		return true
	default:
		return false
	}
}

// IsStable is the complement of IsTransient.
func (c CoherenceState) IsStable() bool { return !c.IsTransient() }
