// internal/auditor/auditor.go is the asynchronous audit worker: it drains
// policy-denial records from the Redis queue into PostgreSQL and sweeps
// battle lobbies that have sat idle too long into the abandoned state.
package auditor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/genzdict/battlegate/internal/document"
	"github.com/genzdict/battlegate/internal/lobby"
	"github.com/genzdict/battlegate/internal/notify"
	"github.com/genzdict/battlegate/internal/store"
)

// Service batches deny records into the policy_denials table and runs the
// lobby-abandonment sweep. It is the "timeout collaborator" the policy core
// expects: abandonment reaches clients as an ordinary status change event.
type Service struct {
	pool        *pgxpool.Pool
	redisClient *redis.Client
	notifier    store.Notifier

	queueName  string
	batchSize  int
	flushDelay time.Duration
	inactivity time.Duration

	batchMu sync.Mutex
	batch   []store.DenyRecord

	ctx      context.Context
	cancelFn context.CancelFunc
}

// New constructs the auditor from environment variables or defaults:
// AUDIT_BATCH_SIZE, AUDIT_FLUSH_MS, LOBBY_INACTIVITY_TIMEOUT_SEC,
// DENY_QUEUE_NAME.
func New(pool *pgxpool.Pool, redisClient *redis.Client, notifier store.Notifier) *Service {
	if notifier == nil {
		notifier = store.NopNotifier{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	batchSize := getEnvInt("AUDIT_BATCH_SIZE", 20)
	return &Service{
		pool:        pool,
		redisClient: redisClient,
		notifier:    notifier,
		queueName:   getEnv("DENY_QUEUE_NAME", notify.DefaultDenyQueue),
		batchSize:   batchSize,
		flushDelay:  time.Duration(getEnvInt("AUDIT_FLUSH_MS", 500)) * time.Millisecond,
		inactivity:  time.Duration(getEnvInt("LOBBY_INACTIVITY_TIMEOUT_SEC", 600)) * time.Second,
		batch:       make([]store.DenyRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run starts the queue reader and the inactivity sweep, blocking until Stop.
func (s *Service) Run() {
	go s.readQueueLoop()
	go s.sweepLoop()

	log.Info("battlegate auditor started")
	<-s.ctx.Done()
	log.Info("battlegate auditor shutting down")
}

// Stop gracefully stops the service, flushing any buffered records.
func (s *Service) Stop() {
	s.cancelFn()
	s.flushBatch()
}

// readQueueLoop pops deny records off the Redis queue and batches them.
func (s *Service) readQueueLoop() {
	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			s.flushBatch()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := s.redisClient.BLPop(s.ctx, 3*time.Second, s.queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if s.ctx.Err() != nil {
					return
				}
				log.Errorf("BLPop: %v", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var rec store.DenyRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				log.Warnf("invalid deny record: %v", err)
				continue
			}
			s.appendToBatch(rec)
		}
	}
}

func (s *Service) appendToBatch(rec store.DenyRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	shouldFlush := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flushBatch()
	}
}

// flushBatch writes the buffered records in one transaction.
func (s *Service) flushBatch() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	batchCopy := make([]store.DenyRecord, len(s.batch))
	copy(batchCopy, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertDenialTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertDenialTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Errorf("flushBatch: %v", err)
	} else {
		log.Infof("Flushed %d deny records to DB.", len(batchCopy))
	}
}

func insertDenialTx(ctx context.Context, tx pgx.Tx, rec store.DenyRecord) error {
	q := `
		INSERT INTO policy_denials (caller, op, path, cause, detail, denied_at)
		VALUES ($1, $2, $3, $4, $5, to_timestamp($6 / 1000.0))
	`
	_, err := tx.Exec(ctx, q, rec.Caller, rec.Op, rec.Path, rec.Cause, rec.Detail, rec.Timestamp)
	return err
}

// sweepLoop periodically abandons lobbies idle beyond the threshold.
func (s *Service) sweepLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleLobbies()
		}
	}
}

// sweepStaleLobbies marks non-terminal lobbies with no writes since the
// inactivity cutoff as abandoned, publishing the change like any commit.
func (s *Service) sweepStaleLobbies() {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `
		SELECT path, body FROM documents
		WHERE collection = $1
		  AND path <> $2
		  AND updated_at < NOW() - $3::interval
	`, document.LobbiesCollection,
		document.LobbyPath(document.TimeSyncDocID),
		fmt.Sprintf("%d seconds", int(s.inactivity.Seconds())))
	if err != nil {
		log.Errorf("sweep query: %v", err)
		return
	}
	defer rows.Close()

	type stale struct {
		path string
		doc  document.Doc
	}
	var candidates []stale
	for rows.Next() {
		var path string
		var body []byte
		if err := rows.Scan(&path, &body); err != nil {
			log.Errorf("sweep scan: %v", err)
			return
		}
		var doc document.Doc
		if err := json.Unmarshal(body, &doc); err != nil {
			log.Warnf("sweep: unreadable lobby %s: %v", path, err)
			continue
		}
		rawStatus, _ := doc.String("status")
		if lobby.ParseStatus(rawStatus).Terminal() {
			continue
		}
		candidates = append(candidates, stale{path: path, doc: doc})
	}
	if rows.Err() != nil {
		log.Errorf("sweep rows: %v", rows.Err())
		return
	}

	for _, c := range candidates {
		c.doc["status"] = lobby.StatusAbandoned.String()
		body, err := json.Marshal(c.doc)
		if err != nil {
			log.Errorf("sweep marshal %s: %v", c.path, err)
			continue
		}
		if _, err := s.pool.Exec(ctx, `
			UPDATE documents SET body = $2, updated_at = NOW() WHERE path = $1
		`, c.path, body); err != nil {
			log.Errorf("sweep update %s: %v", c.path, err)
			continue
		}
		s.notifier.PublishChange(ctx, store.ChangeEvent{
			Path: c.path,
			Op:   "update",
			Doc:  c.doc,
			At:   time.Now(),
		})
		log.Infof("Marked lobby %s as abandoned due to inactivity.", c.path)
	}
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
