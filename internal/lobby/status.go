// internal/lobby/status.go
package lobby

// Status is the lifecycle state of a battle lobby.
type Status int

const (
	StatusUnknown Status = iota
	StatusCreated
	StatusActive
	StatusStarted
	StatusFinished
	StatusAbandoned
)

var statusNames = map[Status]string{
	StatusCreated:   "created",
	StatusActive:    "active",
	StatusStarted:   "started",
	StatusFinished:  "finished",
	StatusAbandoned: "abandoned",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus maps a wire status string to a Status. Unrecognized or empty
// strings return StatusUnknown, which no rule ever accepts.
func ParseStatus(raw string) Status {
	for s, name := range statusNames {
		if name == raw {
			return s
		}
	}
	return StatusUnknown
}

// Terminal reports whether no further transition may leave the state.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusAbandoned
}

// Requirement is the caller role a status transition demands.
type Requirement int

const (
	// RequireGuest: only the joining guest may perform the transition.
	RequireGuest Requirement = iota + 1
	// RequireHost: only the lobby host may perform the transition.
	RequireHost
	// RequireParticipant: host or guest may perform the transition.
	RequireParticipant
)

// transitions is the full table of legal status changes. A (from, to) pair
// absent from this table is illegal for every caller. Same-status writes are
// not transitions; the policy layer handles in-state progress separately.
var transitions = map[Status]map[Status]Requirement{
	StatusCreated: {
		StatusActive:    RequireGuest,
		StatusAbandoned: RequireParticipant,
	},
	StatusActive: {
		StatusStarted:   RequireHost,
		StatusAbandoned: RequireParticipant,
	},
	StatusStarted: {
		StatusFinished:  RequireParticipant,
		StatusAbandoned: RequireParticipant,
	},
}

// TransitionRequirement returns the role required for from→to, or ok=false
// when the transition is not in the table.
func TransitionRequirement(from, to Status) (Requirement, bool) {
	req, ok := transitions[from][to]
	return req, ok
}
