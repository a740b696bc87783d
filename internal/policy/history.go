// internal/policy/history.go
package policy

import (
	"github.com/genzdict/battlegate/internal/document"
	"github.com/genzdict/battlegate/internal/lobby"
)

// validOutcomes are the accepted battle-history results.
var validOutcomes = map[string]bool{
	"win":  true,
	"loss": true,
	"draw": true,
}

// evaluateHistory guards users/{owner}/battle_history/{code}. An entry is
// created once, by the owner, who must be a participant of the referenced
// lobby, and only after that lobby has finished. The ownership check comes
// first: a stranger writing under another user's history is denied before
// any lobby lookup happens.
func (e *Evaluator) evaluateHistory(req Request) Decision {
	role := ResolveRole(req.Caller, req.Path, req.Existing, req.Proposed)
	if role != RoleOwner {
		return Deny(CauseRoleMismatch, "history writable only under own profile")
	}

	switch req.Op {
	case OpDelete:
		return Deny(CauseFieldMutation, "history entries are immutable")
	case OpUpdate:
		// Key = lobby code, so a second write to the same path is a rewrite
		// of a recorded battle.
		return Deny(CauseFieldMutation, "history entries are created once")
	}

	view, found := e.lookupLobby(req.Path.LobbyCode)
	if !found {
		return Deny(CauseLinkageInvalid, "history references unknown lobby "+req.Path.LobbyCode)
	}
	if view.Status != lobby.StatusFinished {
		return Deny(CauseLinkageInvalid, "history references a lobby that is not finished")
	}
	if !view.IsParticipant(req.Caller) {
		return Deny(CauseRoleMismatch, "caller is not a participant of lobby "+req.Path.LobbyCode)
	}
	return checkHistoryFields(req, view)
}

// checkHistoryFields pins the entry's identity fields to the source lobby so
// a recorded battle cannot disagree with the lobby it cites.
func checkHistoryFields(req Request, view lobby.View) Decision {
	if uid, ok := req.Proposed.String("uid"); !ok || uid != req.Path.OwnerID {
		return Deny(CauseLinkageInvalid, "history uid must match the owning profile")
	}
	if code, ok := req.Proposed.String("lobbyCode"); !ok || code != req.Path.LobbyCode {
		return Deny(CauseLinkageInvalid, "history lobbyCode must match its document key")
	}
	if host, ok := req.Proposed.String("hostId"); !ok || host != view.HostID {
		return Deny(CauseLinkageInvalid, "history hostId does not match the lobby")
	}
	if guest, ok := req.Proposed.String("guestId"); !ok || guest != view.GuestID {
		return Deny(CauseLinkageInvalid, "history guestId does not match the lobby")
	}
	if outcome, ok := req.Proposed.String("outcome"); !ok || !validOutcomes[outcome] {
		return Deny(CauseFieldMutation, "history outcome must be win, loss or draw")
	}
	if _, ok := req.Proposed.Int("myScore"); !ok {
		return Deny(CauseFieldMutation, "history myScore must be a number")
	}
	if _, ok := req.Proposed.Int("opponentScore"); !ok {
		return Deny(CauseFieldMutation, "history opponentScore must be a number")
	}
	if !req.Proposed.Has("recordedAt") {
		return Deny(CauseFieldMutation, "history recordedAt is required")
	}
	return Allow()
}

// lookupLobby fetches and decodes a lobby through the injected collaborator.
// Unknown, unreadable or probe documents all report not-found.
func (e *Evaluator) lookupLobby(code string) (lobby.View, bool) {
	if code == "" || code == document.TimeSyncDocID || e.lookup == nil {
		return lobby.View{}, false
	}
	doc, ok := e.lookup.LookupDocument(document.LobbyPath(code))
	if !ok {
		return lobby.View{}, false
	}
	view, err := lobby.ParseView(doc)
	if err != nil {
		return lobby.View{}, false
	}
	return view, true
}
