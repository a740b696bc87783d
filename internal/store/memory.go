// internal/store/memory.go
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/genzdict/battlegate/internal/document"
	"github.com/genzdict/battlegate/internal/policy"
)

// Memory is an in-memory document store guarded by the policy evaluator.
// Used for tests and local development; each write runs under the mutex, so
// the evaluator always sees a consistent snapshot, mirroring the row-locked
// transaction the Postgres store provides.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string]document.Doc
	notifier Notifier
}

// NewMemory returns an empty in-memory store. A nil notifier discards events.
func NewMemory(notifier Notifier) *Memory {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Memory{
		docs:     make(map[string]document.Doc),
		notifier: notifier,
	}
}

// Get returns a copy of the document at path.
func (m *Memory) Get(_ context.Context, path string) (document.Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// Put applies a client write through the policy evaluator.
func (m *Memory) Put(ctx context.Context, caller, rawPath string, doc document.Doc) (policy.Decision, error) {
	return m.apply(ctx, caller, rawPath, doc.Clone())
}

// Delete applies a client delete through the policy evaluator.
func (m *Memory) Delete(ctx context.Context, caller, rawPath string) (policy.Decision, error) {
	return m.apply(ctx, caller, rawPath, nil)
}

func (m *Memory) apply(ctx context.Context, caller, rawPath string, proposed document.Doc) (policy.Decision, error) {
	path, err := document.ParsePath(rawPath)
	if err != nil {
		// Unrecognized paths fail closed rather than erroring.
		d := policy.Deny(policy.CauseFieldMutation, err.Error())
		m.notifier.PublishDeny(ctx, DenyRecord{
			Caller: caller, Op: "write", Path: rawPath,
			Cause: d.Cause.String(), Detail: d.Detail,
			Timestamp: time.Now().UnixMilli(),
		})
		return d, nil
	}

	m.mu.Lock()
	existing := m.docs[rawPath]
	req := buildRequest(caller, path, existing, proposed)

	eval := policy.NewEvaluator(policy.LookupFunc(func(p string) (document.Doc, bool) {
		doc, ok := m.docs[p]
		return doc, ok
	}))
	decision := eval.Evaluate(req)

	if decision.Allowed {
		if proposed == nil {
			delete(m.docs, rawPath)
		} else {
			m.docs[rawPath] = proposed
		}
	}
	m.mu.Unlock()

	if decision.Allowed {
		m.notifier.PublishChange(ctx, changeEventFor(req))
	} else {
		m.notifier.PublishDeny(ctx, denyRecordFor(req, decision))
	}
	return decision, nil
}

// PutSystem writes a document without policy evaluation. Account
// provisioning and the abandonment sweeper are its only callers.
func (m *Memory) PutSystem(ctx context.Context, rawPath string, doc document.Doc) error {
	if _, err := document.ParsePath(rawPath); err != nil {
		return err
	}
	m.mu.Lock()
	existed := m.docs[rawPath] != nil
	m.docs[rawPath] = doc.Clone()
	m.mu.Unlock()

	op := "create"
	if existed {
		op = "update"
	}
	m.notifier.PublishChange(ctx, ChangeEvent{Path: rawPath, Op: op, Doc: doc})
	return nil
}

// ListCollection returns all documents whose path sits directly under the
// given top-level collection, keyed by document ID.
func (m *Memory) ListCollection(_ context.Context, collection string) (map[string]document.Doc, error) {
	prefix := collection + "/"
	out := make(map[string]document.Doc)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for path, doc := range m.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		out[rest] = doc.Clone()
	}
	return out, nil
}
