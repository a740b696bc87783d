// internal/policy/answers.go
package policy

import (
	"fmt"

	"github.com/genzdict/battlegate/internal/document"
	"github.com/genzdict/battlegate/internal/lobby"
)

// checkBattleProgress is the answer/lock coordinator. It validates the delta
// between two lobby views for one caller: answers and locks touch only the
// caller's own slots, locks are irreversible and final, and score entries
// follow the same own-slot discipline. Host and guest writes to the same
// question index stay independently approvable because neither may touch the
// other's slot.
func checkBattleProgress(caller string, existing, proposed lobby.View) Decision {
	if d := checkAnswers(caller, existing, proposed); !d.Allowed {
		return d
	}
	if d := checkLocks(caller, existing, proposed); !d.Allowed {
		return d
	}
	return checkScores(caller, existing, proposed)
}

// checkAnswers validates changes to answers[i][identity] slots.
func checkAnswers(caller string, existing, proposed lobby.View) Decision {
	for idx := range unionIndexes(existing.Answers, proposed.Answers) {
		oldSlot := existing.Answers[idx]
		newSlot := proposed.Answers[idx]

		for uid, oldVal := range oldSlot {
			newVal, still := newSlot[uid]
			if !still {
				return Deny(CauseFieldMutation,
					fmt.Sprintf("answer for %s at question %d cannot be removed", uid, idx))
			}
			if document.Equal(oldVal, newVal) {
				continue
			}
			if uid != caller {
				return Deny(CauseFieldMutation,
					fmt.Sprintf("cannot change another identity's answer at question %d", idx))
			}
			if existing.Locked[idx][caller] {
				return Deny(CauseAlreadyLocked,
					fmt.Sprintf("answer at question %d is locked", idx))
			}
		}
		for uid := range newSlot {
			if _, had := oldSlot[uid]; had {
				continue
			}
			if uid != caller {
				return Deny(CauseFieldMutation,
					fmt.Sprintf("cannot submit an answer for %s at question %d", uid, idx))
			}
			if existing.Locked[idx][caller] {
				return Deny(CauseAlreadyLocked,
					fmt.Sprintf("answer at question %d is locked", idx))
			}
		}
	}
	return Allow()
}

// checkLocks validates changes to locked[i] sets: they only grow, and only
// by the caller locking its own (already answered) slot.
func checkLocks(caller string, existing, proposed lobby.View) Decision {
	for idx := range unionLockIndexes(existing.Locked, proposed.Locked) {
		oldSet := existing.Locked[idx]
		newSet := proposed.Locked[idx]

		for uid := range oldSet {
			if !newSet[uid] {
				return Deny(CauseAlreadyLocked,
					fmt.Sprintf("lock by %s at question %d is irreversible", uid, idx))
			}
		}
		for uid := range newSet {
			if oldSet[uid] {
				continue
			}
			if uid != caller {
				return Deny(CauseFieldMutation,
					fmt.Sprintf("cannot lock question %d on behalf of %s", idx, uid))
			}
			// The proposed view's invariants already require a matching
			// answer for every lock; nothing more to check here.
		}
	}
	return Allow()
}

// checkScores validates changes to the scores map. While a battle is in
// progress each participant maintains only its own entry; the finishing
// write may set both participants' final entries (last committer wins on a
// racing finish).
func checkScores(caller string, existing, proposed lobby.View) Decision {
	finishing := proposed.Status == lobby.StatusFinished && existing.Status != lobby.StatusFinished

	for uid, newScore := range proposed.Scores {
		oldScore, had := existing.Scores[uid]
		if had && oldScore == newScore {
			continue
		}
		if uid != caller && !finishing {
			return Deny(CauseFieldMutation, "cannot change another identity's score")
		}
	}
	for uid := range existing.Scores {
		if _, still := proposed.Scores[uid]; !still {
			return Deny(CauseFieldMutation,
				fmt.Sprintf("score entry for %s cannot be removed", uid))
		}
	}
	return Allow()
}

func unionIndexes(a, b map[int]document.Doc) map[int]bool {
	out := make(map[int]bool, len(a)+len(b))
	for i := range a {
		out[i] = true
	}
	for i := range b {
		out[i] = true
	}
	return out
}

func unionLockIndexes(a, b map[int]map[string]bool) map[int]bool {
	out := make(map[int]bool, len(a)+len(b))
	for i := range a {
		out[i] = true
	}
	for i := range b {
		out[i] = true
	}
	return out
}
