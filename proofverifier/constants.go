package proofverifier

// State is a point in the verification pipeline. Every attempt ends in
// exactly one terminal state.
type State int

const (
	StateStart State = iota
	StateParsed
	StateSessionVerified
	StateSubstringsVerified
	StateRendered

	StateParseFailed
	StateSessionInvalid
	StateSubstringsInvalid
	// StateInternalFault means verifier output broke the range invariant.
	// It signals a bug, not a bad proof.
	StateInternalFault
)

var stateNames = [...]string{
	StateStart:              "start",
	StateParsed:             "parsed",
	StateSessionVerified:    "session_verified",
	StateSubstringsVerified: "substrings_verified",
	StateRendered:           "rendered",
	StateParseFailed:        "parse_failed",
	StateSessionInvalid:     "session_invalid",
	StateSubstringsInvalid:  "substrings_invalid",
	StateInternalFault:      "internal_fault",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText lets reports carry the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the pipeline stops in s
func (s State) Terminal() bool {
	return s == StateRendered || s.Failed()
}

// Failed reports whether s is a failure exit
func (s State) Failed() bool {
	return s >= StateParseFailed
}

