// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genzdict/battlegate/internal/document"
	"github.com/genzdict/battlegate/internal/policy"
)

// Postgres persists documents as JSONB rows in the documents table:
//
//	CREATE TABLE documents (
//	    path       TEXT PRIMARY KEY,
//	    collection TEXT NOT NULL,
//	    body       JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
// Each client write runs in a transaction that locks the target row, so the
// policy evaluator sees the committed state as of commit time; two racing
// writers are serialized and each re-validated against whatever the earlier
// commit left behind.
type Postgres struct {
	pool     *pgxpool.Pool
	notifier Notifier
}

// NewPostgres wraps a pgx pool. A nil notifier discards events.
func NewPostgres(pool *pgxpool.Pool, notifier Notifier) *Postgres {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Postgres{pool: pool, notifier: notifier}
}

// Get fetches the document at path.
func (p *Postgres) Get(ctx context.Context, path string) (document.Doc, error) {
	var body []byte
	err := p.pool.QueryRow(ctx,
		`SELECT body FROM documents WHERE path = $1`, path).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return decodeBody(body)
}

// Put applies a client write through the policy evaluator.
func (p *Postgres) Put(ctx context.Context, caller, rawPath string, doc document.Doc) (policy.Decision, error) {
	return p.apply(ctx, caller, rawPath, doc)
}

// Delete applies a client delete through the policy evaluator.
func (p *Postgres) Delete(ctx context.Context, caller, rawPath string) (policy.Decision, error) {
	return p.apply(ctx, caller, rawPath, nil)
}

func (p *Postgres) apply(ctx context.Context, caller, rawPath string, proposed document.Doc) (policy.Decision, error) {
	path, err := document.ParsePath(rawPath)
	if err != nil {
		d := policy.Deny(policy.CauseFieldMutation, err.Error())
		p.notifier.PublishDeny(ctx, DenyRecord{
			Caller: caller, Op: "write", Path: rawPath,
			Cause: d.Cause.String(), Detail: d.Detail,
			Timestamp: time.Now().UnixMilli(),
		})
		return d, nil
	}

	var req policy.Request
	var decision policy.Decision

	err = pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		existing, lockErr := lockRow(ctx, tx, rawPath)
		if lockErr != nil {
			return lockErr
		}

		req = buildRequest(caller, path, existing, proposed)
		eval := policy.NewEvaluator(policy.LookupFunc(func(lp string) (document.Doc, bool) {
			doc, lookupErr := getTx(ctx, tx, lp)
			if lookupErr != nil {
				return nil, false
			}
			return doc, true
		}))
		decision = eval.Evaluate(req)
		if !decision.Allowed {
			// Nothing to write; the tx commits empty.
			return nil
		}

		if proposed == nil {
			_, execErr := tx.Exec(ctx, `DELETE FROM documents WHERE path = $1`, rawPath)
			return execErr
		}
		body, marshalErr := json.Marshal(proposed)
		if marshalErr != nil {
			return fmt.Errorf("marshal document: %w", marshalErr)
		}
		_, execErr := tx.Exec(ctx, `
			INSERT INTO documents (path, collection, body, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (path)
			DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
		`, rawPath, topCollection(rawPath), body)
		return execErr
	})
	if err != nil {
		return policy.Decision{}, fmt.Errorf("apply write %s: %w", rawPath, err)
	}

	if decision.Allowed {
		p.notifier.PublishChange(ctx, changeEventFor(req))
	} else {
		p.notifier.PublishDeny(ctx, denyRecordFor(req, decision))
	}
	return decision, nil
}

// PutSystem writes without policy evaluation (provisioning, sweeper).
func (p *Postgres) PutSystem(ctx context.Context, rawPath string, doc document.Doc) error {
	if _, err := document.ParsePath(rawPath); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	var existed bool
	if err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE path = $1)`, rawPath).Scan(&existed); err != nil {
		return fmt.Errorf("check document: %w", err)
	}
	if _, err := p.pool.Exec(ctx, `
		INSERT INTO documents (path, collection, body, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (path)
		DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, rawPath, topCollection(rawPath), body); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	op := "create"
	if existed {
		op = "update"
	}
	p.notifier.PublishChange(ctx, ChangeEvent{Path: rawPath, Op: op, Doc: doc})
	return nil
}

// ListCollection returns all documents directly under a top-level collection.
func (p *Postgres) ListCollection(ctx context.Context, collection string) (map[string]document.Doc, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT path, body FROM documents
		WHERE collection = $1 AND path NOT LIKE $2
	`, collection, collection+"/%/%")
	if err != nil {
		return nil, fmt.Errorf("list collection %s: %w", collection, err)
	}
	defer rows.Close()

	out := make(map[string]document.Doc)
	for rows.Next() {
		var path string
		var body []byte
		if err := rows.Scan(&path, &body); err != nil {
			return nil, err
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(path, collection+"/")] = doc
	}
	return out, rows.Err()
}

// lockRow fetches the target row under FOR UPDATE, returning nil when the
// document does not exist yet.
func lockRow(ctx context.Context, tx pgx.Tx, path string) (document.Doc, error) {
	var body []byte
	err := tx.QueryRow(ctx,
		`SELECT body FROM documents WHERE path = $1 FOR UPDATE`, path).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock document row: %w", err)
	}
	return decodeBody(body)
}

func getTx(ctx context.Context, tx pgx.Tx, path string) (document.Doc, error) {
	var body []byte
	err := tx.QueryRow(ctx,
		`SELECT body FROM documents WHERE path = $1`, path).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeBody(body)
}

func decodeBody(body []byte) (document.Doc, error) {
	var doc document.Doc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document body: %w", err)
	}
	return doc, nil
}

func topCollection(path string) string {
	if idx := strings.Index(path, "/"); idx > 0 {
		return path[:idx]
	}
	return path
}
