// internal/policy/policy.go
package policy

import (
	"github.com/genzdict/battlegate/internal/document"
)

// Op is the write operation being evaluated.
type Op int

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// DenyCause classifies why a write was refused. The caller only ever sees a
// boolean deny; causes exist for audit logging.
type DenyCause int

const (
	CauseNone DenyCause = iota
	CauseUnauthenticated
	CauseRoleMismatch
	CauseIllegalTransition
	CauseAlreadyLocked
	CauseLinkageInvalid
	CauseFieldMutation
)

func (c DenyCause) String() string {
	switch c {
	case CauseUnauthenticated:
		return "unauthenticated"
	case CauseRoleMismatch:
		return "role-mismatch"
	case CauseIllegalTransition:
		return "illegal-transition"
	case CauseAlreadyLocked:
		return "already-locked"
	case CauseLinkageInvalid:
		return "linkage-invalid"
	case CauseFieldMutation:
		return "field-mutation-outside-allowed-set"
	}
	return "none"
}

// Decision is the outcome of evaluating one write request.
type Decision struct {
	Allowed bool
	Cause   DenyCause
	Detail  string
}

// Allow is the single allowed decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a refusal with an audit cause and detail.
func Deny(cause DenyCause, detail string) Decision {
	return Decision{Cause: cause, Detail: detail}
}

// Lookup resolves another document within the same consistent evaluation.
// The store injects a snapshot- or transaction-scoped implementation; a
// missing document is reported via ok=false, never an error.
type Lookup interface {
	LookupDocument(path string) (document.Doc, bool)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(path string) (document.Doc, bool)

// LookupDocument implements Lookup.
func (f LookupFunc) LookupDocument(path string) (document.Doc, bool) {
	return f(path)
}

// Request carries everything the evaluator may consult for one write. The
// evaluator holds no state between calls; each Request is a fresh snapshot.
type Request struct {
	// Caller is the authenticated identity, or "" for anonymous callers.
	Caller string
	Op     Op
	Path   document.Path

	// Existing is the committed document at Path, nil if absent.
	Existing document.Doc
	// Proposed is the full post-write document, nil for deletes.
	Proposed document.Doc
}

// Evaluator decides whether a write request may commit. It is pure and
// re-entrant: the only collaborator is the injected Lookup, and every
// evaluation works solely from the request snapshot.
type Evaluator struct {
	lookup Lookup
}

// NewEvaluator builds an evaluator around the given cross-document lookup.
func NewEvaluator(lookup Lookup) *Evaluator {
	return &Evaluator{lookup: lookup}
}

// Evaluate returns the allow/deny decision for a single write request.
// It never panics on malformed input; anything unreadable denies.
func (e *Evaluator) Evaluate(req Request) Decision {
	if req.Caller == "" {
		return Deny(CauseUnauthenticated, "anonymous caller")
	}

	switch req.Op {
	case OpCreate:
		if req.Existing != nil {
			return Deny(CauseFieldMutation, "create over existing document")
		}
		if req.Proposed == nil {
			return Deny(CauseFieldMutation, "create without document body")
		}
	case OpUpdate:
		if req.Existing == nil {
			return Deny(CauseFieldMutation, "update of missing document")
		}
		if req.Proposed == nil {
			return Deny(CauseFieldMutation, "update without document body")
		}
	case OpDelete:
		if req.Existing == nil {
			return Deny(CauseFieldMutation, "delete of missing document")
		}
	default:
		return Deny(CauseFieldMutation, "unknown operation")
	}

	switch req.Path.Kind {
	case document.KindTimeSync:
		// Clock-skew probe: writable by any signed-in identity.
		return Allow()
	case document.KindUserProfile:
		return e.evaluateProfile(req)
	case document.KindLobby:
		return e.evaluateLobby(req)
	case document.KindBattleHistory:
		return e.evaluateHistory(req)
	case document.KindBattleStats:
		return e.evaluateStats(req)
	}
	return Deny(CauseFieldMutation, "unrecognized document path")
}

// changedKeysOf lists the top-level fields the request mutates.
func changedKeysOf(req Request) []string {
	return document.ChangedKeys(req.Existing, req.Proposed)
}
