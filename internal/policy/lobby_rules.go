// internal/policy/lobby_rules.go
package policy

import (
	"fmt"

	"github.com/genzdict/battlegate/internal/lobby"
)

// lobbyProgressFields are the fields that may change while status stays in
// an in-battle state. Everything else on a lobby is frozen after creation
// (hostId, questions) or only moves with a status transition (guestId).
var lobbyProgressFields = map[string]bool{
	"status":       true,
	"currentIndex": true,
	"answers":      true,
	"locked":       true,
	"scores":       true,
}

func (e *Evaluator) evaluateLobby(req Request) Decision {
	switch req.Op {
	case OpCreate:
		return evaluateLobbyCreate(req)
	case OpUpdate:
		return e.evaluateLobbyUpdate(req)
	}
	// Lobbies are never deleted by clients; stale ones get abandoned.
	return Deny(CauseFieldMutation, "lobby delete not permitted")
}

// evaluateLobbyCreate admits a fresh lobby: the caller is the host, the
// status is "created", the question list is fixed and non-empty, and every
// in-battle structure starts empty.
func evaluateLobbyCreate(req Request) Decision {
	view, err := lobby.ParseView(req.Proposed)
	if err != nil {
		return Deny(CauseFieldMutation, err.Error())
	}
	if view.HostID != req.Caller {
		return Deny(CauseRoleMismatch, "lobby must be created by its host")
	}
	if view.Status != lobby.StatusCreated {
		return Deny(CauseIllegalTransition, "new lobby must start in created status")
	}
	if view.GuestID != "" {
		return Deny(CauseFieldMutation, "guestId is set on first join, not at creation")
	}
	if view.CurrentIndex != 0 {
		return Deny(CauseFieldMutation, "new lobby currentIndex must be 0")
	}
	if len(view.Answers) != 0 || len(view.Locked) != 0 || len(view.Scores) != 0 {
		return Deny(CauseFieldMutation, "new lobby must have empty answers, locked and scores")
	}
	if err := view.CheckInvariants(); err != nil {
		return Deny(CauseFieldMutation, err.Error())
	}
	return Allow()
}

func (e *Evaluator) evaluateLobbyUpdate(req Request) Decision {
	existing, err := lobby.ParseView(req.Existing)
	if err != nil {
		// A lobby we cannot read identity/state from grants no role to anyone.
		return Deny(CauseRoleMismatch, "existing lobby unreadable: "+err.Error())
	}
	proposed, err := lobby.ParseView(req.Proposed)
	if err != nil {
		return Deny(CauseFieldMutation, err.Error())
	}
	if err := proposed.CheckInvariants(); err != nil {
		return Deny(CauseFieldMutation, err.Error())
	}

	// Fixed-at-creation fields never move, regardless of status.
	if proposed.HostID != existing.HostID {
		return Deny(CauseFieldMutation, "hostId is immutable")
	}
	if !sameQuestions(existing.Questions, proposed.Questions) {
		return Deny(CauseFieldMutation, "questions are fixed at creation")
	}

	if proposed.Status == existing.Status {
		return e.evaluateLobbyProgress(req, existing, proposed)
	}
	return e.evaluateLobbyTransition(req, existing, proposed)
}

// evaluateLobbyProgress handles same-status writes: answer submission,
// locking, score updates and question-pointer advancement inside the battle,
// or host-side option tweaks before the guest joins.
func (e *Evaluator) evaluateLobbyProgress(req Request, existing, proposed lobby.View) Decision {
	role := ResolveRole(req.Caller, req.Path, req.Existing, req.Proposed)

	switch existing.Status {
	case lobby.StatusCreated:
		// Pre-join the host may still adjust per-question options.
		if role != RoleHost {
			return Deny(CauseRoleMismatch, "only the host may edit a created lobby")
		}
		for _, key := range changedKeysOf(req) {
			if key != "options" {
				return Deny(CauseFieldMutation, "field "+key+" is not editable before join")
			}
		}
		return Allow()

	case lobby.StatusActive, lobby.StatusStarted:
		if !role.Participant() {
			return Deny(CauseRoleMismatch, "in-battle writes require a participant")
		}
		if proposed.GuestID != existing.GuestID {
			return Deny(CauseFieldMutation, "guestId only changes on join")
		}
		for _, key := range changedKeysOf(req) {
			if !lobbyProgressFields[key] {
				return Deny(CauseFieldMutation, "field "+key+" is not writable in-battle")
			}
		}
		if proposed.CurrentIndex < existing.CurrentIndex {
			return Deny(CauseFieldMutation, "currentIndex never moves backwards")
		}
		return checkBattleProgress(req.Caller, existing, proposed)
	}

	// finished and abandoned are terminal; nothing further may change.
	return Deny(CauseIllegalTransition,
		fmt.Sprintf("lobby in terminal status %s", existing.Status))
}

// evaluateLobbyTransition validates a status change against the transition
// table, the caller's role, and the field changes allowed alongside it.
func (e *Evaluator) evaluateLobbyTransition(req Request, existing, proposed lobby.View) Decision {
	requirement, legal := lobby.TransitionRequirement(existing.Status, proposed.Status)
	if !legal {
		return Deny(CauseIllegalTransition,
			fmt.Sprintf("no transition %s -> %s", existing.Status, proposed.Status))
	}

	role := ResolveRole(req.Caller, req.Path, req.Existing, req.Proposed)

	switch requirement {
	case lobby.RequireGuest:
		// created -> active: the joining caller claims the empty guest seat.
		return checkGuestJoin(req, existing, proposed)

	case lobby.RequireHost:
		if role != RoleHost {
			return Deny(CauseRoleMismatch,
				fmt.Sprintf("transition %s -> %s requires the host", existing.Status, proposed.Status))
		}

	case lobby.RequireParticipant:
		if !role.Participant() {
			return Deny(CauseRoleMismatch,
				fmt.Sprintf("transition %s -> %s requires a participant", existing.Status, proposed.Status))
		}
	}

	if proposed.GuestID != existing.GuestID {
		return Deny(CauseFieldMutation, "guestId only changes on join")
	}

	if proposed.Status == lobby.StatusFinished {
		// The finishing write carries the status change plus final battle
		// progress; frozen fields like options stay frozen.
		for _, key := range changedKeysOf(req) {
			if !lobbyProgressFields[key] {
				return Deny(CauseFieldMutation, "field "+key+" is not writable on finish")
			}
		}
		if proposed.CurrentIndex < existing.CurrentIndex {
			return Deny(CauseFieldMutation, "currentIndex never moves backwards")
		}
		return checkFinish(req.Caller, existing, proposed)
	}

	// Remaining table transitions (active->started, ->abandoned) carry the
	// status change alone.
	for _, key := range changedKeysOf(req) {
		if key != "status" {
			return Deny(CauseFieldMutation,
				fmt.Sprintf("transition %s -> %s may only change status, not %s",
					existing.Status, proposed.Status, key))
		}
	}
	return Allow()
}

// checkGuestJoin validates created -> active: a non-host caller takes the
// guest seat, and nothing else about the lobby moves.
func checkGuestJoin(req Request, existing, proposed lobby.View) Decision {
	if req.Caller == existing.HostID {
		return Deny(CauseRoleMismatch, "host cannot join own lobby as guest")
	}
	if existing.GuestID != "" && existing.GuestID != req.Caller {
		return Deny(CauseRoleMismatch, "guest seat already taken")
	}
	if proposed.GuestID != req.Caller {
		return Deny(CauseFieldMutation, "joining caller must set guestId to itself")
	}
	for _, key := range changedKeysOf(req) {
		if key != "status" && key != "guestId" {
			return Deny(CauseFieldMutation, "join may only change status and guestId, not "+key)
		}
	}
	return Allow()
}

// checkFinish validates started -> finished: every question locked by both
// participants, or the scoring-complete early finish. The finisher may write
// the final scores and its own last answer/lock in the same commit.
func checkFinish(caller string, existing, proposed lobby.View) Decision {
	if d := checkBattleProgress(caller, existing, proposed); !d.Allowed {
		return d
	}
	if !proposed.AllLockedByBoth() && !proposed.ScoringComplete() {
		return Deny(CauseIllegalTransition, "finish requires all questions locked by both participants")
	}
	return Allow()
}

func sameQuestions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
