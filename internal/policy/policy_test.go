// internal/policy/policy_test.go
package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genzdict/battlegate/internal/document"
)

// docset is a fake cross-document lookup over a fixed map.
type docset map[string]document.Doc

func (d docset) LookupDocument(path string) (document.Doc, bool) {
	doc, ok := d[path]
	return doc, ok
}

func mustPath(t *testing.T, raw string) document.Path {
	t.Helper()
	p, err := document.ParsePath(raw)
	require.NoError(t, err)
	return p
}

// battleLobby builds a two-player lobby document with sensible defaults.
// Overrides replace top-level fields; a nil override value removes the field.
func battleLobby(status string, overrides document.Doc) document.Doc {
	doc := document.Doc{
		"hostId":       "hostA",
		"guestId":      "guestB",
		"status":       status,
		"currentIndex": 0,
		"questions":    []interface{}{"q1", "q2"},
		"answers":      map[string]interface{}{},
		"locked":       map[string]interface{}{},
		"scores":       map[string]interface{}{},
		"options":      map[string]interface{}{},
	}
	for k, v := range overrides {
		if v == nil {
			delete(doc, k)
		} else {
			doc[k] = v
		}
	}
	return doc
}

func evalWith(docs docset, req Request) Decision {
	return NewEvaluator(docs).Evaluate(req)
}

func TestUnauthenticatedAlwaysDenied(t *testing.T) {
	d := evalWith(nil, Request{
		Caller:   "",
		Op:       OpCreate,
		Path:     mustPath(t, "battle_lobbies/_time_sync"),
		Proposed: document.Doc{"ts": 123},
	})
	assert.False(t, d.Allowed)
	assert.Equal(t, CauseUnauthenticated, d.Cause)
}

func TestTimeSyncWritableByAnySignedInUser(t *testing.T) {
	d := evalWith(nil, Request{
		Caller:   "u1",
		Op:       OpCreate,
		Path:     mustPath(t, "battle_lobbies/_time_sync"),
		Proposed: document.Doc{"ts": 1712000000},
	})
	assert.True(t, d.Allowed)
}

func TestProfileRules(t *testing.T) {
	path := mustPath(t, "users/u1")
	existing := document.Doc{"displayId": "old_name", "displayIdLower": "old_name"}

	t.Run("owner may update displayId fields jointly", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller:   "u1",
			Op:       OpUpdate,
			Path:     path,
			Existing: existing,
			Proposed: document.Doc{"displayId": "RizzBoss", "displayIdLower": "rizzboss"},
		})
		assert.True(t, d.Allowed)
	})

	t.Run("displayIdLower must be the folded copy", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller:   "u1",
			Op:       OpUpdate,
			Path:     path,
			Existing: existing,
			Proposed: document.Doc{"displayId": "RizzBoss", "displayIdLower": "rizz_boss"},
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseFieldMutation, d.Cause)
	})

	t.Run("non-owner update denied", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller:   "u2",
			Op:       OpUpdate,
			Path:     path,
			Existing: existing,
			Proposed: document.Doc{"displayId": "Taken", "displayIdLower": "taken"},
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseRoleMismatch, d.Cause)
	})

	t.Run("profile delete denied even for owner", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller:   "u1",
			Op:       OpDelete,
			Path:     path,
			Existing: existing,
		})
		assert.False(t, d.Allowed)
	})

	t.Run("fields outside the display pair denied", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller:   "u1",
			Op:       OpUpdate,
			Path:     path,
			Existing: existing,
			Proposed: document.Doc{"displayId": "old_name", "displayIdLower": "old_name", "isAdmin": true},
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseFieldMutation, d.Cause)
	})
}

func TestLobbyCreate(t *testing.T) {
	path := mustPath(t, "battle_lobbies/NEW001")
	fresh := battleLobby("created", document.Doc{"guestId": nil})

	t.Run("host creates its own lobby", func(t *testing.T) {
		d := evalWith(nil, Request{Caller: "hostA", Op: OpCreate, Path: path, Proposed: fresh})
		assert.True(t, d.Allowed)
	})

	t.Run("caller must be the host", func(t *testing.T) {
		d := evalWith(nil, Request{Caller: "guestB", Op: OpCreate, Path: path, Proposed: fresh})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseRoleMismatch, d.Cause)
	})

	t.Run("new lobby cannot skip created", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpCreate, Path: path,
			Proposed: battleLobby("started", document.Doc{"guestId": nil}),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseIllegalTransition, d.Cause)
	})

	t.Run("guest seat must start empty", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpCreate, Path: path,
			Proposed: battleLobby("created", nil),
		})
		assert.False(t, d.Allowed)
	})
}

func TestGuestJoin(t *testing.T) {
	path := mustPath(t, "battle_lobbies/JOIN01")
	open := battleLobby("created", document.Doc{"guestId": nil})

	t.Run("guest takes the empty seat", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "guestB", Op: OpUpdate, Path: path,
			Existing: open,
			Proposed: battleLobby("active", nil),
		})
		assert.True(t, d.Allowed)
	})

	t.Run("host cannot join its own lobby", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: open,
			Proposed: battleLobby("active", document.Doc{"guestId": "hostA"}),
		})
		assert.False(t, d.Allowed)
	})

	t.Run("joining caller must claim the seat itself", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "guestB", Op: OpUpdate, Path: path,
			Existing: open,
			Proposed: battleLobby("active", document.Doc{"guestId": "someone_else"}),
		})
		assert.False(t, d.Allowed)
	})

	t.Run("taken seat rejects a second joiner", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "intruder", Op: OpUpdate, Path: path,
			Existing: battleLobby("created", nil),
			Proposed: battleLobby("active", document.Doc{"guestId": "intruder"}),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseRoleMismatch, d.Cause)
	})
}

// TestStatusTransitionTable sweeps every status pair not in the transition
// table and asserts the status-only write is denied for every caller.
func TestStatusTransitionTable(t *testing.T) {
	statuses := []string{"created", "active", "started", "finished", "abandoned"}
	legal := map[string]bool{
		"created>active":    true,
		"created>abandoned": true,
		"active>started":    true,
		"active>abandoned":  true,
		"started>finished":  true,
		"started>abandoned": true,
	}
	path := mustPath(t, "battle_lobbies/SWEEP1")

	for _, from := range statuses {
		for _, to := range statuses {
			if from == to || legal[from+">"+to] {
				continue
			}
			for _, caller := range []string{"hostA", "guestB", "intruder"} {
				d := evalWith(nil, Request{
					Caller: caller, Op: OpUpdate, Path: path,
					Existing: battleLobby(from, nil),
					Proposed: battleLobby(to, nil),
				})
				assert.Falsef(t, d.Allowed, "%s -> %s by %s should be denied", from, to, caller)
			}
		}
	}
}

func TestStartTransition(t *testing.T) {
	path := mustPath(t, "battle_lobbies/LOCK01")
	active := battleLobby("active", nil)
	started := battleLobby("started", nil)

	t.Run("host moves active lobby to started", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: active, Proposed: started,
		})
		assert.True(t, d.Allowed)
	})

	t.Run("guest may not start the battle", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "guestB", Op: OpUpdate, Path: path,
			Existing: active, Proposed: started,
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseRoleMismatch, d.Cause)
	})

	t.Run("non-participant may not change status", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "intruder", Op: OpUpdate, Path: path,
			Existing: active, Proposed: started,
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseRoleMismatch, d.Cause)
	})
}

func TestAnswerLockCoordinator(t *testing.T) {
	path := mustPath(t, "battle_lobbies/BATT01")

	inBattle := func(answers, locked map[string]interface{}) document.Doc {
		return battleLobby("started", document.Doc{
			"answers": answers,
			"locked":  locked,
		})
	}
	empty := map[string]interface{}{}

	t.Run("participant submits its own answer", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: inBattle(empty, empty),
			Proposed: inBattle(map[string]interface{}{
				"0": map[string]interface{}{"hostA": "rizz"},
			}, empty),
		})
		assert.True(t, d.Allowed)
	})

	t.Run("cannot write another identity's slot", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: inBattle(empty, empty),
			Proposed: inBattle(map[string]interface{}{
				"0": map[string]interface{}{"guestB": "forged"},
			}, empty),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseFieldMutation, d.Cause)
	})

	t.Run("answer and lock land in one write", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "guestB", Op: OpUpdate, Path: path,
			Existing: inBattle(empty, empty),
			Proposed: inBattle(map[string]interface{}{
				"0": map[string]interface{}{"guestB": "no cap"},
			}, map[string]interface{}{
				"0": []interface{}{"guestB"},
			}),
		})
		assert.True(t, d.Allowed)
	})

	t.Run("locked answers cannot be rewritten", func(t *testing.T) {
		existing := inBattle(map[string]interface{}{
			"0": map[string]interface{}{"hostA": "first"},
		}, map[string]interface{}{
			"0": []interface{}{"hostA"},
		})
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: existing,
			Proposed: inBattle(map[string]interface{}{
				"0": map[string]interface{}{"hostA": "second thoughts"},
			}, map[string]interface{}{
				"0": []interface{}{"hostA"},
			}),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseAlreadyLocked, d.Cause)
	})

	t.Run("re-answer before lock is fine", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: inBattle(map[string]interface{}{
				"0": map[string]interface{}{"hostA": "first"},
			}, empty),
			Proposed: inBattle(map[string]interface{}{
				"0": map[string]interface{}{"hostA": "better"},
			}, empty),
		})
		assert.True(t, d.Allowed)
	})

	t.Run("locks are irreversible", func(t *testing.T) {
		existing := inBattle(map[string]interface{}{
			"0": map[string]interface{}{"hostA": "final"},
		}, map[string]interface{}{
			"0": []interface{}{"hostA"},
		})
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: existing,
			Proposed: inBattle(map[string]interface{}{
				"0": map[string]interface{}{"hostA": "final"},
			}, empty),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseAlreadyLocked, d.Cause)
	})

	t.Run("identical rewrite of a locked state is idempotent", func(t *testing.T) {
		state := inBattle(map[string]interface{}{
			"0": map[string]interface{}{"hostA": "final"},
		}, map[string]interface{}{
			"0": []interface{}{"hostA"},
		})
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: state,
			Proposed: state,
		})
		assert.True(t, d.Allowed)
	})

	t.Run("cannot lock without an answer", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: inBattle(empty, empty),
			Proposed: inBattle(empty, map[string]interface{}{
				"0": []interface{}{"hostA"},
			}),
		})
		assert.False(t, d.Allowed)
	})

	t.Run("disjoint slots are independently approvable", func(t *testing.T) {
		// Host and guest race on the same question index; each proposal is
		// built from the same snapshot and touches only its own slot.
		snapshot := inBattle(empty, empty)

		hostWrite := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: snapshot,
			Proposed: inBattle(map[string]interface{}{
				"0": map[string]interface{}{"hostA": "a"},
			}, empty),
		})
		guestWrite := evalWith(nil, Request{
			Caller: "guestB", Op: OpUpdate, Path: path,
			Existing: snapshot,
			Proposed: inBattle(map[string]interface{}{
				"0": map[string]interface{}{"guestB": "b"},
			}, empty),
		})
		assert.True(t, hostWrite.Allowed)
		assert.True(t, guestWrite.Allowed)
	})
}

func TestFinishTransition(t *testing.T) {
	path := mustPath(t, "battle_lobbies/FIN001")

	allLocked := map[string]interface{}{
		"0": []interface{}{"hostA", "guestB"},
		"1": []interface{}{"hostA", "guestB"},
	}
	allAnswered := map[string]interface{}{
		"0": map[string]interface{}{"hostA": "x", "guestB": "y"},
		"1": map[string]interface{}{"hostA": "x", "guestB": "y"},
	}

	t.Run("participant finishes a fully locked battle", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "guestB", Op: OpUpdate, Path: path,
			Existing: battleLobby("started", document.Doc{"answers": allAnswered, "locked": allLocked}),
			Proposed: battleLobby("finished", document.Doc{
				"answers": allAnswered,
				"locked":  allLocked,
				"scores":  map[string]interface{}{"hostA": 4, "guestB": 2},
			}),
		})
		assert.True(t, d.Allowed)
	})

	t.Run("finish with unlocked questions denied", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: battleLobby("started", nil),
			Proposed: battleLobby("finished", nil),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseIllegalTransition, d.Cause)
	})

	t.Run("finish cannot touch frozen fields", func(t *testing.T) {
		existing := battleLobby("started", document.Doc{
			"answers": allAnswered,
			"locked":  allLocked,
			"options": map[string]interface{}{"timeLimitSec": 30},
		})
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: existing,
			Proposed: battleLobby("finished", document.Doc{
				"answers": allAnswered,
				"locked":  allLocked,
				"options": map[string]interface{}{"timeLimitSec": 1, "cheat": true},
			}),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseFieldMutation, d.Cause)
	})

	t.Run("finish cannot rewind the question pointer", func(t *testing.T) {
		existing := battleLobby("started", document.Doc{
			"answers":      allAnswered,
			"locked":       allLocked,
			"currentIndex": 2,
		})
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: existing,
			Proposed: battleLobby("finished", document.Doc{
				"answers":      allAnswered,
				"locked":       allLocked,
				"currentIndex": 0,
			}),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseFieldMutation, d.Cause)
	})

	t.Run("scoring-complete early finish", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: battleLobby("started", document.Doc{
				"currentIndex": 2,
				"scores":       map[string]interface{}{"hostA": 3, "guestB": 3},
			}),
			Proposed: battleLobby("finished", document.Doc{
				"currentIndex": 2,
				"scores":       map[string]interface{}{"hostA": 3, "guestB": 3},
			}),
		})
		assert.True(t, d.Allowed)
	})
}

func TestAbandonTransition(t *testing.T) {
	path := mustPath(t, "battle_lobbies/GONE01")

	for _, from := range []string{"created", "active", "started"} {
		d := evalWith(nil, Request{
			Caller: "guestB", Op: OpUpdate, Path: path,
			Existing: battleLobby(from, nil),
			Proposed: battleLobby("abandoned", nil),
		})
		assert.Truef(t, d.Allowed, "participant should abandon from %s", from)
	}

	t.Run("finished battles cannot be abandoned", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: battleLobby("finished", nil),
			Proposed: battleLobby("abandoned", nil),
		})
		assert.False(t, d.Allowed)
	})

	t.Run("strangers cannot abandon", func(t *testing.T) {
		d := evalWith(nil, Request{
			Caller: "intruder", Op: OpUpdate, Path: path,
			Existing: battleLobby("started", nil),
			Proposed: battleLobby("abandoned", nil),
		})
		assert.False(t, d.Allowed)
	})
}

func TestHistoryWritePolicy(t *testing.T) {
	docs := docset{
		"battle_lobbies/ABC123": battleLobby("finished", document.Doc{
			"scores": map[string]interface{}{"hostA": 4, "guestB": 2},
		}),
		"battle_lobbies/OPEN01": battleLobby("started", nil),
	}

	entry := func(owner string) document.Doc {
		return document.Doc{
			"uid":           owner,
			"hostId":        "hostA",
			"guestId":       "guestB",
			"lobbyCode":     "ABC123",
			"myScore":       4,
			"opponentScore": 2,
			"outcome":       "win",
			"recordedAt":    1712000000,
		}
	}

	t.Run("non-participant cannot write history for others", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "intruder", Op: OpCreate,
			Path:     mustPath(t, "users/hostA/battle_history/ABC123"),
			Proposed: entry("hostA"),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseRoleMismatch, d.Cause)
	})

	t.Run("participant records its own finished battle", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpCreate,
			Path:     mustPath(t, "users/hostA/battle_history/ABC123"),
			Proposed: entry("hostA"),
		})
		assert.True(t, d.Allowed)
	})

	t.Run("unfinished lobby cannot be recorded", func(t *testing.T) {
		e := entry("hostA")
		e["lobbyCode"] = "OPEN01"
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpCreate,
			Path:     mustPath(t, "users/hostA/battle_history/OPEN01"),
			Proposed: e,
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseLinkageInvalid, d.Cause)
	})

	t.Run("unknown lobby cannot be recorded", func(t *testing.T) {
		e := entry("hostA")
		e["lobbyCode"] = "GHOST9"
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpCreate,
			Path:     mustPath(t, "users/hostA/battle_history/GHOST9"),
			Proposed: e,
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseLinkageInvalid, d.Cause)
	})

	t.Run("owner who was not a participant is denied", func(t *testing.T) {
		e := entry("spectatorC")
		d := evalWith(docs, Request{
			Caller: "spectatorC", Op: OpCreate,
			Path:     mustPath(t, "users/spectatorC/battle_history/ABC123"),
			Proposed: e,
		})
		assert.False(t, d.Allowed)
	})

	t.Run("entries are immutable once recorded", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpUpdate,
			Path:     mustPath(t, "users/hostA/battle_history/ABC123"),
			Existing: entry("hostA"),
			Proposed: entry("hostA"),
		})
		assert.False(t, d.Allowed)
	})
}

func TestStatsLinkageValidator(t *testing.T) {
	docs := docset{
		"battle_lobbies/REAL01": battleLobby("finished", nil),
		"battle_lobbies/OPEN01": battleLobby("started", nil),
	}
	path := mustPath(t, "users/hostA/battle_stats/main")

	stats := func(code string, participants []interface{}, games int) document.Doc {
		return document.Doc{
			"lastLobbyCode": code,
			"participants":  participants,
			"gamesPlayed":   games,
		}
	}
	both := []interface{}{"hostA", "guestB"}

	t.Run("fabricated lobby code denied", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpCreate, Path: path,
			Proposed: stats("FAKE01", both, 999),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseLinkageInvalid, d.Cause)
	})

	t.Run("valid linkage allowed", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpCreate, Path: path,
			Proposed: stats("REAL01", both, 1),
		})
		assert.True(t, d.Allowed)
	})

	t.Run("lobby must be finished", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpCreate, Path: path,
			Proposed: stats("OPEN01", both, 1),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseLinkageInvalid, d.Cause)
	})

	t.Run("participant set must match the lobby", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpCreate, Path: path,
			Proposed: stats("REAL01", []interface{}{"hostA", "ringer"}, 1),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseLinkageInvalid, d.Cause)
	})

	t.Run("stats live only under own profile", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "guestB", Op: OpCreate, Path: path,
			Proposed: stats("REAL01", both, 1),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseRoleMismatch, d.Cause)
	})

	t.Run("unreadable existing gamesPlayed fails closed", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: document.Doc{
				"lastLobbyCode": "REAL01",
				"participants":  both,
				"gamesPlayed":   "many",
			},
			Proposed: stats("REAL01", both, 3),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseFieldMutation, d.Cause)
	})

	t.Run("gamesPlayed never decreases", func(t *testing.T) {
		d := evalWith(docs, Request{
			Caller: "hostA", Op: OpUpdate, Path: path,
			Existing: stats("REAL01", both, 5),
			Proposed: stats("REAL01", both, 4),
		})
		assert.False(t, d.Allowed)
		assert.Equal(t, CauseFieldMutation, d.Cause)
	})
}
