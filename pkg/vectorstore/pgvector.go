package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
)

// DefaultStatementTimeout bounds the similarity query inside Postgres.
const DefaultStatementTimeout = 60 * time.Millisecond

// PgVectorStore searches lexicon entry embeddings stored in Postgres with
// the pgvector extension. Calls run behind a circuit breaker so a struggling
// database sheds vector traffic instead of dragging every decision to its
// statement timeout.
type PgVectorStore struct {
	pool             *pgxpool.Pool
	embeddingModel   string
	statementTimeout time.Duration
	breaker          *gobreaker.CircuitBreaker
}

// PgVectorOptions configures a PgVectorStore.
type PgVectorOptions struct {
	Pool           *pgxpool.Pool
	EmbeddingModel string
	// StatementTimeout defaults to DefaultStatementTimeout.
	StatementTimeout time.Duration
}

// NewPgVectorStore builds the store.
func NewPgVectorStore(opts PgVectorOptions) *PgVectorStore {
	timeout := opts.StatementTimeout
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "pgvector-search",
		Timeout: 5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &PgVectorStore{
		pool:             opts.Pool,
		embeddingModel:   opts.EmbeddingModel,
		statementTimeout: timeout,
		breaker:          breaker,
	}
}

func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.8f", x)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Search implements Store. REVIEW-action entries only; ordered by distance
// then entry id so equal distances resolve deterministically.
func (s *PgVectorStore) Search(ctx context.Context, version string, query []float32, minSimilarity float64) (*Match, error) {
	if isZero(query) {
		return nil, nil
	}
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.search(ctx, version, query)
	})
	if err != nil {
		return nil, err
	}
	match, _ := result.(*Match)
	if match == nil {
		return nil, nil
	}
	if match.Similarity < minSimilarity {
		return nil, nil
	}
	return match, nil
}

func (s *PgVectorStore) search(ctx context.Context, version string, query []float32) (*Match, error) {
	literal := vectorLiteral(query)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin vector search tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", s.statementTimeout.Milliseconds())); err != nil {
		return nil, fmt.Errorf("failed to set statement timeout: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT
		  le.id,
		  le.term,
		  le.action,
		  le.label,
		  le.reason_code,
		  le.severity,
		  le.lang,
		  (1 - (emb.embedding <=> $1::vector))::float8 AS similarity
		FROM lexicon_entries AS le
		JOIN lexicon_entry_embeddings AS emb
		  ON emb.lexicon_entry_id = le.id
		WHERE le.status = 'active'
		  AND le.lexicon_version = $2
		  AND le.action = 'REVIEW'
		  AND emb.embedding_model = $3
		ORDER BY emb.embedding <=> $1::vector ASC, le.id ASC
		LIMIT 1`,
		literal, version, s.embeddingModel)

	var (
		id         int64
		entry      lexicon.Entry
		similarity float64
	)
	if err := row.Scan(&id, &entry.Term, &entry.Action, &entry.Label, &entry.ReasonCode, &entry.Severity, &entry.Lang, &similarity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("vector similarity lookup failed: %w", err)
	}
	if math.IsNaN(similarity) || math.IsInf(similarity, 0) {
		logging.Warnf("non-finite similarity discarded (version=%s match_id=%d)", version, id)
		return nil, nil
	}
	entry.ID = fmt.Sprintf("%d", id)
	return &Match{
		Entry:      entry,
		MatchID:    entry.ID,
		Similarity: clamp01(similarity),
	}, nil
}
