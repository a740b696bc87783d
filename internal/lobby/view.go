// internal/lobby/view.go
package lobby

import (
	"fmt"
	"strconv"

	"github.com/genzdict/battlegate/internal/document"
)

// View is a typed decoding of a battle lobby document. All policy checks run
// against Views rather than raw maps so that a malformed field surfaces as a
// parse error exactly once.
type View struct {
	HostID       string
	GuestID      string
	Status       Status
	CurrentIndex int
	Questions    []string

	// Answers maps question index -> identity -> submitted answer.
	Answers map[int]document.Doc
	// Locked maps question index -> set of identities whose answer is final.
	Locked map[int]map[string]bool
	// Scores maps identity -> running score.
	Scores map[string]int

	Options document.Doc
}

// ParseView decodes a lobby document. Required fields are hostId, status and
// questions; everything else defaults to empty. Any present-but-mistyped
// field is an error so the caller can fail closed.
func ParseView(doc document.Doc) (View, error) {
	var v View

	host, ok := doc.String("hostId")
	if !ok || host == "" {
		return View{}, fmt.Errorf("lobby document missing hostId")
	}
	v.HostID = host

	if doc.Has("guestId") {
		guest, gok := doc.String("guestId")
		if !gok {
			return View{}, fmt.Errorf("lobby guestId is not a string")
		}
		v.GuestID = guest
	}

	rawStatus, ok := doc.String("status")
	if !ok {
		return View{}, fmt.Errorf("lobby document missing status")
	}
	v.Status = ParseStatus(rawStatus)
	if v.Status == StatusUnknown {
		return View{}, fmt.Errorf("unrecognized lobby status %q", rawStatus)
	}

	questions, ok := doc.StringSlice("questions")
	if !ok || len(questions) == 0 {
		return View{}, fmt.Errorf("lobby document missing questions")
	}
	v.Questions = questions

	if doc.Has("currentIndex") {
		idx, iok := doc.Int("currentIndex")
		if !iok {
			return View{}, fmt.Errorf("lobby currentIndex is not a number")
		}
		v.CurrentIndex = idx
	}

	answers, err := parseAnswers(doc)
	if err != nil {
		return View{}, err
	}
	v.Answers = answers

	locked, err := parseLocked(doc)
	if err != nil {
		return View{}, err
	}
	v.Locked = locked

	scores, err := parseScores(doc)
	if err != nil {
		return View{}, err
	}
	v.Scores = scores

	if doc.Has("options") {
		opts, ook := doc.Map("options")
		if !ook {
			return View{}, fmt.Errorf("lobby options is not an object")
		}
		v.Options = opts
	}

	return v, nil
}

func parseAnswers(doc document.Doc) (map[int]document.Doc, error) {
	out := make(map[int]document.Doc)
	if !doc.Has("answers") {
		return out, nil
	}
	raw, ok := doc.Map("answers")
	if !ok {
		return nil, fmt.Errorf("lobby answers is not an object")
	}
	for key := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("lobby answers has bad index key %q", key)
		}
		slot, sok := raw.Map(key)
		if !sok {
			return nil, fmt.Errorf("lobby answers[%s] is not an object", key)
		}
		out[idx] = slot
	}
	return out, nil
}

func parseLocked(doc document.Doc) (map[int]map[string]bool, error) {
	out := make(map[int]map[string]bool)
	if !doc.Has("locked") {
		return out, nil
	}
	raw, ok := doc.Map("locked")
	if !ok {
		return nil, fmt.Errorf("lobby locked is not an object")
	}
	for key := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("lobby locked has bad index key %q", key)
		}
		set, sok := raw.StringSet(key)
		if !sok {
			return nil, fmt.Errorf("lobby locked[%s] is not a list of identities", key)
		}
		out[idx] = set
	}
	return out, nil
}

func parseScores(doc document.Doc) (map[string]int, error) {
	out := make(map[string]int)
	if !doc.Has("scores") {
		return out, nil
	}
	raw, ok := doc.Map("scores")
	if !ok {
		return nil, fmt.Errorf("lobby scores is not an object")
	}
	for uid := range raw {
		score, sok := raw.Int(uid)
		if !sok {
			return nil, fmt.Errorf("lobby scores[%s] is not a number", uid)
		}
		out[uid] = score
	}
	return out, nil
}

// IsParticipant reports whether uid is the host or the (set) guest.
func (v View) IsParticipant(uid string) bool {
	if uid == "" {
		return false
	}
	return uid == v.HostID || (v.GuestID != "" && uid == v.GuestID)
}

// Participants returns the set of bound identities.
func (v View) Participants() map[string]bool {
	out := map[string]bool{v.HostID: true}
	if v.GuestID != "" {
		out[v.GuestID] = true
	}
	return out
}

// AllLockedByBoth reports whether every question index has been locked by
// both the host and the guest. False whenever the guest seat is empty.
func (v View) AllLockedByBoth() bool {
	if v.GuestID == "" {
		return false
	}
	for i := range v.Questions {
		set := v.Locked[i]
		if !set[v.HostID] || !set[v.GuestID] {
			return false
		}
	}
	return true
}

// ScoringComplete reports the early-finish condition: the question pointer
// has run off the end and both participants have a recorded score.
func (v View) ScoringComplete() bool {
	if v.GuestID == "" {
		return false
	}
	if v.CurrentIndex < len(v.Questions) {
		return false
	}
	_, hostScored := v.Scores[v.HostID]
	_, guestScored := v.Scores[v.GuestID]
	return hostScored && guestScored
}

// CheckInvariants validates the structural invariants every lobby document
// must satisfy regardless of transition: distinct host/guest, a bounded
// question pointer, and no lock without a matching answer.
func (v View) CheckInvariants() error {
	if v.GuestID != "" && v.GuestID == v.HostID {
		return fmt.Errorf("hostId and guestId must differ")
	}
	if v.CurrentIndex < 0 || v.CurrentIndex > len(v.Questions) {
		return fmt.Errorf("currentIndex %d out of range [0, %d]", v.CurrentIndex, len(v.Questions))
	}
	for idx, set := range v.Locked {
		if idx >= len(v.Questions) {
			return fmt.Errorf("locked index %d beyond question list", idx)
		}
		for uid := range set {
			if !v.IsParticipant(uid) {
				return fmt.Errorf("locked[%d] contains non-participant %q", idx, uid)
			}
			if _, answered := v.Answers[idx][uid]; !answered {
				return fmt.Errorf("identity %q locked question %d without an answer", uid, idx)
			}
		}
	}
	for idx, slot := range v.Answers {
		if idx >= len(v.Questions) {
			return fmt.Errorf("answers index %d beyond question list", idx)
		}
		for uid := range slot {
			if !v.IsParticipant(uid) {
				return fmt.Errorf("answers[%d] contains non-participant %q", idx, uid)
			}
		}
	}
	for uid := range v.Scores {
		if !v.IsParticipant(uid) {
			return fmt.Errorf("scores contains non-participant %q", uid)
		}
	}
	return nil
}
