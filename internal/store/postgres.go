package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/Border-Link/immigration-ai-sub000/internal/db"
	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot pipeline paths.
var preparedStatements = map[string]string{
	"get_document":  `SELECT id, content_hash, raw_text, jurisdiction, source_name, created_at FROM document_versions WHERE id = $1`,
	"has_rules":     `SELECT EXISTS (SELECT 1 FROM parsed_rules WHERE document_version_id = $1)`,
	"insert_audit":  `INSERT INTO audit_log (id, document_version_id, event, detail, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"insert_result": `INSERT INTO eligibility_results (id, case_id, visa_type_id, rule_version_id, status, confidence, reasoning_summary, missing_facts, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS document_versions (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	content_hash TEXT NOT NULL,
	raw_text     TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	source_name  TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (content_hash, jurisdiction)
);

CREATE TABLE IF NOT EXISTS parsed_rules (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_version_id TEXT NOT NULL REFERENCES document_versions(id),
	visa_code           TEXT NOT NULL,
	requirement_code    TEXT NOT NULL,
	description         TEXT NOT NULL,
	category            TEXT NOT NULL DEFAULT 'other',
	conditions          JSONB NOT NULL,
	confidence          DOUBLE PRECISION NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	source_excerpt      TEXT,
	provenance          JSONB NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (document_version_id, visa_code, requirement_code)
);

CREATE TABLE IF NOT EXISTS rule_validation_tasks (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	rule_id        TEXT NOT NULL UNIQUE REFERENCES parsed_rules(id),
	sla_deadline   TIMESTAMPTZ NOT NULL,
	assigned_to    TEXT,
	status         TEXT NOT NULL DEFAULT 'pending',
	reviewer_notes TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	closed_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS eligibility_results (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	case_id           TEXT NOT NULL,
	visa_type_id      TEXT NOT NULL,
	rule_version_id   TEXT NOT NULL,
	status            TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	reasoning_summary TEXT NOT NULL DEFAULT '',
	missing_facts     JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_version_id TEXT,
	event               TEXT NOT NULL,
	detail              JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_parsed_rules_doc ON parsed_rules(document_version_id);
CREATE INDEX IF NOT EXISTS idx_parsed_rules_status ON parsed_rules(status);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON rule_validation_tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_sla ON rule_validation_tasks(sla_deadline);
CREATE INDEX IF NOT EXISTS idx_results_case ON eligibility_results(case_id, visa_type_id);
CREATE INDEX IF NOT EXISTS idx_audit_doc ON audit_log(document_version_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// HashContent returns the canonical content hash for ingested text.
func HashContent(rawText string) string {
	sum := sha256.Sum256([]byte(rawText))
	return hex.EncodeToString(sum[:])
}

// CreateDocumentVersion ingests text as an immutable snapshot. Ingesting
// identical text for the same jurisdiction returns the existing version.
func (s *PostgresStore) CreateDocumentVersion(ctx context.Context, rawText, jurisdiction, sourceName string) (*model.DocumentVersion, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	hash := HashContent(rawText)

	var dv model.DocumentVersion
	err := s.pool.QueryRow(ctx,
		`INSERT INTO document_versions (id, content_hash, raw_text, jurisdiction, source_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (content_hash, jurisdiction) DO UPDATE SET content_hash = EXCLUDED.content_hash
		 RETURNING id, content_hash, raw_text, jurisdiction, source_name, created_at`,
		id, hash, rawText, jurisdiction, sourceName, now,
	).Scan(&dv.ID, &dv.ContentHash, &dv.RawText, &dv.Jurisdiction, &dv.SourceName, &dv.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create document version")
	}
	return &dv, nil
}

func (s *PostgresStore) GetDocumentVersion(ctx context.Context, id string) (*model.DocumentVersion, error) {
	var dv model.DocumentVersion
	var sourceName *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, content_hash, raw_text, jurisdiction, source_name, created_at FROM document_versions WHERE id = $1`,
		id,
	).Scan(&dv.ID, &dv.ContentHash, &dv.RawText, &dv.Jurisdiction, &sourceName, &dv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "document version %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get document version %s", id)
	}
	if sourceName != nil {
		dv.SourceName = *sourceName
	}
	return &dv, nil
}

func (s *PostgresStore) HasRules(ctx context.Context, documentVersionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM parsed_rules WHERE document_version_id = $1)`,
		documentVersionID,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: has rules")
}

// WithDocumentLock takes an advisory lock keyed by the document version id
// for the duration of fn. The transaction exists only to scope the lock;
// fn's own writes commit independently.
func (s *PostgresStore) WithDocumentLock(ctx context.Context, documentVersionID string, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin lock tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		documentVersionID,
	); err != nil {
		return eris.Wrap(err, "postgres: acquire document lock")
	}

	if err := fn(ctx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: release document lock")
}

func (s *PostgresStore) CreateRuleWithTask(ctx context.Context, rule *model.ParsedRule, task *model.ValidationTask) (bool, error) {
	now := time.Now().UTC()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now

	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal conditions")
	}
	provenanceJSON, err := json.Marshal(rule.Provenance)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal provenance")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin rule tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`INSERT INTO parsed_rules
		 (id, document_version_id, visa_code, requirement_code, description, category, conditions, confidence, status, source_excerpt, provenance, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (document_version_id, visa_code, requirement_code) DO NOTHING`,
		rule.ID, rule.DocumentVersionID, rule.VisaCode, rule.RequirementCode,
		rule.Description, string(rule.Category), conditionsJSON, rule.Confidence,
		string(rule.Status), rule.SourceExcerpt, provenanceJSON, now, now,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert rule")
	}
	if tag.RowsAffected() == 0 {
		// Duplicate extraction for this document+visa+requirement.
		return false, nil
	}

	if task != nil {
		if task.ID == "" {
			task.ID = uuid.New().String()
		}
		task.RuleID = rule.ID
		task.CreatedAt = now
		if _, err := tx.Exec(ctx,
			`INSERT INTO rule_validation_tasks (id, rule_id, sla_deadline, assigned_to, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (rule_id) DO NOTHING`,
			task.ID, task.RuleID, task.SLADeadline, task.AssignedTo, string(task.Status), now,
		); err != nil {
			return false, eris.Wrap(err, "postgres: insert task")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit rule tx")
	}
	return true, nil
}

func (s *PostgresStore) ListRules(ctx context.Context, documentVersionID string, filter RuleFilter) ([]model.ParsedRule, error) {
	query := `SELECT id, document_version_id, visa_code, requirement_code, description, category, conditions, confidence, status, source_excerpt, provenance, created_at, updated_at
	          FROM parsed_rules WHERE document_version_id = $1`
	args := []any{documentVersionID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.MinConfidence > 0 {
		query += fmt.Sprintf(` AND confidence >= $%d`, argIdx)
		args = append(args, filter.MinConfidence)
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rules")
	}
	defer rows.Close()

	var rules []model.ParsedRule
	for rows.Next() {
		var r model.ParsedRule
		var conditionsJSON, provenanceJSON []byte
		var sourceExcerpt *string

		if err := rows.Scan(&r.ID, &r.DocumentVersionID, &r.VisaCode, &r.RequirementCode,
			&r.Description, &r.Category, &conditionsJSON, &r.Confidence,
			&r.Status, &sourceExcerpt, &provenanceJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rule")
		}
		if err := json.Unmarshal(conditionsJSON, &r.Conditions); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal conditions")
		}
		if err := json.Unmarshal(provenanceJSON, &r.Provenance); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal provenance")
		}
		if sourceExcerpt != nil {
			r.SourceExcerpt = *sourceExcerpt
		}
		rules = append(rules, r)
	}
	return rules, eris.Wrap(rows.Err(), "postgres: list rules iterate")
}

// ruleStatusForDecision maps a closing task decision to the rule status it
// implies.
func ruleStatusForDecision(decision model.TaskStatus) (model.RuleStatus, error) {
	switch decision {
	case model.TaskStatusApproved:
		return model.RuleStatusApproved, nil
	case model.TaskStatusRejected:
		return model.RuleStatusRejected, nil
	default:
		return "", eris.Errorf("invalid review decision: %s", decision)
	}
}

func (s *PostgresStore) CloseTask(ctx context.Context, taskID string, decision model.TaskStatus, reviewer, notes string) error {
	ruleStatus, err := ruleStatusForDecision(decision)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin review tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var ruleID string
	err = tx.QueryRow(ctx,
		`UPDATE rule_validation_tasks
		 SET status = $1, assigned_to = $2, reviewer_notes = $3, closed_at = $4
		 WHERE id = $5 AND status = 'pending'
		 RETURNING rule_id`,
		string(decision), reviewer, notes, now, taskID,
	).Scan(&ruleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "open task %s", taskID)
		}
		return eris.Wrapf(err, "postgres: close task %s", taskID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE parsed_rules SET status = $1, updated_at = $2 WHERE id = $3`,
		string(ruleStatus), now, ruleID,
	); err != nil {
		return eris.Wrapf(err, "postgres: update rule status %s", ruleID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit review tx")
}

func (s *PostgresStore) ListOpenTasks(ctx context.Context, limit int) ([]model.ValidationTask, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, rule_id, sla_deadline, assigned_to, status, reviewer_notes, created_at, closed_at
		 FROM rule_validation_tasks WHERE status = 'pending'
		 ORDER BY sla_deadline ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list open tasks")
	}
	defer rows.Close()

	var tasks []model.ValidationTask
	for rows.Next() {
		var t model.ValidationTask
		var assignedTo, notes *string
		if err := rows.Scan(&t.ID, &t.RuleID, &t.SLADeadline, &assignedTo, &t.Status, &notes, &t.CreatedAt, &t.ClosedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		if assignedTo != nil {
			t.AssignedTo = *assignedTo
		}
		if notes != nil {
			t.ReviewerNotes = *notes
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list open tasks iterate")
}

func (s *PostgresStore) CreateEligibilityResult(ctx context.Context, result *model.EligibilityResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	result.CreatedAt = time.Now().UTC()

	missingJSON, err := json.Marshal(result.MissingFacts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal missing facts")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO eligibility_results (id, case_id, visa_type_id, rule_version_id, status, confidence, reasoning_summary, missing_facts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		result.ID, result.CaseID, result.VisaTypeID, result.RuleVersionID,
		string(result.Status), result.Confidence, result.ReasoningSummary,
		missingJSON, result.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert eligibility result")
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entries ...model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	if len(entries) == 1 {
		e := entries[0]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		detailJSON, err := json.Marshal(e.Detail)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal audit detail")
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO audit_log (id, document_version_id, event, detail, created_at) VALUES ($1, $2, $3, $4, $5)`,
			e.ID, nullable(e.DocumentVersionID), e.Event, detailJSON, now,
		)
		return eris.Wrap(err, "postgres: insert audit entry")
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		detailJSON, err := json.Marshal(e.Detail)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal audit detail")
		}
		rows = append(rows, []any{e.ID, nullable(e.DocumentVersionID), e.Event, detailJSON, now})
	}
	_, err := db.CopyFrom(ctx, s.pool, "audit_log",
		[]string{"id", "document_version_id", "event", "detail", "created_at"}, rows)
	return eris.Wrap(err, "postgres: append audit entries")
}

func (s *PostgresStore) ListAudit(ctx context.Context, documentVersionID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_version_id, event, detail, created_at FROM audit_log
		 WHERE document_version_id = $1 ORDER BY created_at ASC`,
		documentVersionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var docID *string
		var detailJSON []byte
		if err := rows.Scan(&e.ID, &docID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		if docID != nil {
			e.DocumentVersionID = *docID
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal audit detail")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
