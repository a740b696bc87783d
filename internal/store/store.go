// internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/genzdict/battlegate/internal/document"
	"github.com/genzdict/battlegate/internal/policy"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ChangeEvent describes one committed write, fanned out to subscribers.
type ChangeEvent struct {
	Path string       `json:"path"`
	Op   string       `json:"op"` // create, update, delete
	Doc  document.Doc `json:"doc,omitempty"`
	At   time.Time    `json:"at"`
}

// DenyRecord is the audit trail entry for a refused write.
type DenyRecord struct {
	Caller    string `json:"caller"`
	Op        string `json:"op"`
	Path      string `json:"path"`
	Cause     string `json:"cause"`
	Detail    string `json:"detail"`
	Timestamp int64  `json:"timestamp"` // epoch millis
}

// Notifier receives the store's post-commit fan-out. Implementations must
// tolerate being called concurrently.
type Notifier interface {
	PublishChange(ctx context.Context, ev ChangeEvent)
	PublishDeny(ctx context.Context, rec DenyRecord)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) PublishChange(context.Context, ChangeEvent) {}
func (NopNotifier) PublishDeny(context.Context, DenyRecord)    {}

// Store is a policy-guarded document store. Put applies whole-document set
// semantics (create when absent, full replace when present); every client
// write is checked by the policy evaluator against a consistent snapshot
// before it commits. System writes bypass policy and exist for account
// provisioning and the abandonment sweeper only.
type Store interface {
	Get(ctx context.Context, path string) (document.Doc, error)
	Put(ctx context.Context, caller, path string, doc document.Doc) (policy.Decision, error)
	Delete(ctx context.Context, caller, path string) (policy.Decision, error)

	PutSystem(ctx context.Context, path string, doc document.Doc) error
	ListCollection(ctx context.Context, collection string) (map[string]document.Doc, error)
}

// buildRequest assembles the evaluator input for one write.
func buildRequest(caller string, path document.Path, existing, proposed document.Doc) policy.Request {
	op := policy.OpUpdate
	switch {
	case proposed == nil:
		op = policy.OpDelete
	case existing == nil:
		op = policy.OpCreate
	}
	return policy.Request{
		Caller:   caller,
		Op:       op,
		Path:     path,
		Existing: existing,
		Proposed: proposed,
	}
}

// denyRecordFor converts a refusal into its audit record.
func denyRecordFor(req policy.Request, d policy.Decision) DenyRecord {
	return DenyRecord{
		Caller:    req.Caller,
		Op:        req.Op.String(),
		Path:      req.Path.Raw,
		Cause:     d.Cause.String(),
		Detail:    d.Detail,
		Timestamp: time.Now().UnixMilli(),
	}
}

// changeEventFor converts a committed write into its fan-out event.
func changeEventFor(req policy.Request) ChangeEvent {
	return ChangeEvent{
		Path: req.Path.Raw,
		Op:   req.Op.String(),
		Doc:  req.Proposed,
		At:   time.Now(),
	}
}
