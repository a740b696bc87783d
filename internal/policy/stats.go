// internal/policy/stats.go
package policy

import (
	"github.com/genzdict/battlegate/internal/lobby"
)

// evaluateStats guards the users/{owner}/battle_stats/main singleton. This
// is the forged-record defense: the written lastLobbyCode must resolve to a
// real finished lobby whose participant set equals the proposed participants
// and contains the caller.
func (e *Evaluator) evaluateStats(req Request) Decision {
	role := ResolveRole(req.Caller, req.Path, req.Existing, req.Proposed)
	if role != RoleOwner {
		return Deny(CauseRoleMismatch, "stats writable only under own profile")
	}
	if req.Op == OpDelete {
		return Deny(CauseFieldMutation, "stats document cannot be deleted")
	}

	code, ok := req.Proposed.String("lastLobbyCode")
	if !ok || code == "" {
		return Deny(CauseLinkageInvalid, "stats lastLobbyCode missing")
	}
	participants, ok := req.Proposed.StringSet("participants")
	if !ok || len(participants) == 0 {
		return Deny(CauseLinkageInvalid, "stats participants missing")
	}
	games, ok := req.Proposed.Int("gamesPlayed")
	if !ok || games < 0 {
		return Deny(CauseFieldMutation, "stats gamesPlayed must be a non-negative number")
	}

	view, found := e.lookupLobby(code)
	if !found {
		return Deny(CauseLinkageInvalid, "stats reference unknown lobby "+code)
	}
	if view.Status != lobby.StatusFinished {
		return Deny(CauseLinkageInvalid, "stats reference a lobby that is not finished")
	}
	if !sameSet(participants, view.Participants()) {
		return Deny(CauseLinkageInvalid, "stats participants do not match the lobby")
	}
	if !participants[req.Caller] {
		return Deny(CauseLinkageInvalid, "caller is not a participant of lobby "+code)
	}

	// gamesPlayed is a counter: never allowed to shrink. Whether it must
	// step by exactly one is an open policy gap; only monotonicity is
	// enforced here.
	if req.Existing != nil && req.Existing.Has("gamesPlayed") {
		prev, pok := req.Existing.Int("gamesPlayed")
		if !pok {
			return Deny(CauseFieldMutation, "existing gamesPlayed is not a number")
		}
		if games < prev {
			return Deny(CauseFieldMutation, "gamesPlayed cannot decrease")
		}
	}
	return Allow()
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
