package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for
// local and development use; document locking is process-level.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS document_versions (
	id           TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	raw_text     TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	source_name  TEXT,
	created_at   DATETIME NOT NULL,
	UNIQUE (content_hash, jurisdiction)
);

CREATE TABLE IF NOT EXISTS parsed_rules (
	id                  TEXT PRIMARY KEY,
	document_version_id TEXT NOT NULL REFERENCES document_versions(id),
	visa_code           TEXT NOT NULL,
	requirement_code    TEXT NOT NULL,
	description         TEXT NOT NULL,
	category            TEXT NOT NULL DEFAULT 'other',
	conditions          TEXT NOT NULL,
	confidence          REAL NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	source_excerpt      TEXT,
	provenance          TEXT NOT NULL,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL,
	UNIQUE (document_version_id, visa_code, requirement_code)
);

CREATE TABLE IF NOT EXISTS rule_validation_tasks (
	id             TEXT PRIMARY KEY,
	rule_id        TEXT NOT NULL UNIQUE REFERENCES parsed_rules(id),
	sla_deadline   DATETIME NOT NULL,
	assigned_to    TEXT,
	status         TEXT NOT NULL DEFAULT 'pending',
	reviewer_notes TEXT,
	created_at     DATETIME NOT NULL,
	closed_at      DATETIME
);

CREATE TABLE IF NOT EXISTS eligibility_results (
	id                TEXT PRIMARY KEY,
	case_id           TEXT NOT NULL,
	visa_type_id      TEXT NOT NULL,
	rule_version_id   TEXT NOT NULL,
	status            TEXT NOT NULL,
	confidence        REAL NOT NULL,
	reasoning_summary TEXT NOT NULL DEFAULT '',
	missing_facts     TEXT,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id                  TEXT PRIMARY KEY,
	document_version_id TEXT,
	event               TEXT NOT NULL,
	detail              TEXT,
	created_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_parsed_rules_doc ON parsed_rules(document_version_id);
CREATE INDEX IF NOT EXISTS idx_parsed_rules_status ON parsed_rules(status);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON rule_validation_tasks(status);
CREATE INDEX IF NOT EXISTS idx_audit_doc ON audit_log(document_version_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDocumentVersion(ctx context.Context, rawText, jurisdiction, sourceName string) (*model.DocumentVersion, error) {
	hash := HashContent(rawText)

	if existing, err := s.getDocumentByHash(ctx, hash, jurisdiction); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	dv := &model.DocumentVersion{
		ID:           uuid.New().String(),
		ContentHash:  hash,
		RawText:      rawText,
		Jurisdiction: jurisdiction,
		SourceName:   sourceName,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_versions (id, content_hash, raw_text, jurisdiction, source_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		dv.ID, dv.ContentHash, dv.RawText, dv.Jurisdiction, dv.SourceName, dv.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert document version")
	}
	return dv, nil
}

func (s *SQLiteStore) getDocumentByHash(ctx context.Context, hash, jurisdiction string) (*model.DocumentVersion, error) {
	var dv model.DocumentVersion
	var sourceName sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash, raw_text, jurisdiction, source_name, created_at
		 FROM document_versions WHERE content_hash = ? AND jurisdiction = ?`,
		hash, jurisdiction,
	).Scan(&dv.ID, &dv.ContentHash, &dv.RawText, &dv.Jurisdiction, &sourceName, &dv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get document by hash")
	}
	dv.SourceName = sourceName.String
	return &dv, nil
}

func (s *SQLiteStore) GetDocumentVersion(ctx context.Context, id string) (*model.DocumentVersion, error) {
	var dv model.DocumentVersion
	var sourceName sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash, raw_text, jurisdiction, source_name, created_at FROM document_versions WHERE id = ?`,
		id,
	).Scan(&dv.ID, &dv.ContentHash, &dv.RawText, &dv.Jurisdiction, &sourceName, &dv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "document version %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document version %s", id)
	}
	dv.SourceName = sourceName.String
	return &dv, nil
}

func (s *SQLiteStore) HasRules(ctx context.Context, documentVersionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM parsed_rules WHERE document_version_id = ?)`,
		documentVersionID,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: has rules")
}

// WithDocumentLock serializes work per document version with a process
// mutex. Sufficient for the single-node deployments SQLite targets.
func (s *SQLiteStore) WithDocumentLock(ctx context.Context, documentVersionID string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	lock, ok := s.locks[documentVersionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[documentVersionID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (s *SQLiteStore) CreateRuleWithTask(ctx context.Context, rule *model.ParsedRule, task *model.ValidationTask) (bool, error) {
	now := time.Now().UTC()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now

	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal conditions")
	}
	provenanceJSON, err := json.Marshal(rule.Provenance)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal provenance")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin rule tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO parsed_rules
		 (id, document_version_id, visa_code, requirement_code, description, category, conditions, confidence, status, source_excerpt, provenance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.DocumentVersionID, rule.VisaCode, rule.RequirementCode,
		rule.Description, string(rule.Category), string(conditionsJSON), rule.Confidence,
		string(rule.Status), rule.SourceExcerpt, string(provenanceJSON), now, now,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert rule")
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	} else if n == 0 {
		return false, nil
	}

	if task != nil {
		if task.ID == "" {
			task.ID = uuid.New().String()
		}
		task.RuleID = rule.ID
		task.CreatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO rule_validation_tasks (id, rule_id, sla_deadline, assigned_to, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			task.ID, task.RuleID, task.SLADeadline, task.AssignedTo, string(task.Status), now,
		); err != nil {
			return false, eris.Wrap(err, "sqlite: insert task")
		}
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit rule tx")
	}
	return true, nil
}

func (s *SQLiteStore) ListRules(ctx context.Context, documentVersionID string, filter RuleFilter) ([]model.ParsedRule, error) {
	query := `SELECT id, document_version_id, visa_code, requirement_code, description, category, conditions, confidence, status, source_excerpt, provenance, created_at, updated_at
	          FROM parsed_rules WHERE document_version_id = ?`
	args := []any{documentVersionID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.MinConfidence > 0 {
		query += ` AND confidence >= ?`
		args = append(args, filter.MinConfidence)
	}
	query += ` ORDER BY created_at ASC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rules")
	}
	defer rows.Close()

	var rules []model.ParsedRule
	for rows.Next() {
		var r model.ParsedRule
		var conditionsJSON, provenanceJSON string
		var sourceExcerpt sql.NullString

		if err := rows.Scan(&r.ID, &r.DocumentVersionID, &r.VisaCode, &r.RequirementCode,
			&r.Description, &r.Category, &conditionsJSON, &r.Confidence,
			&r.Status, &sourceExcerpt, &provenanceJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rule")
		}
		if err := json.Unmarshal([]byte(conditionsJSON), &r.Conditions); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal conditions")
		}
		if err := json.Unmarshal([]byte(provenanceJSON), &r.Provenance); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal provenance")
		}
		r.SourceExcerpt = sourceExcerpt.String
		rules = append(rules, r)
	}
	return rules, eris.Wrap(rows.Err(), "sqlite: list rules iterate")
}

func (s *SQLiteStore) CloseTask(ctx context.Context, taskID string, decision model.TaskStatus, reviewer, notes string) error {
	ruleStatus, err := ruleStatusForDecision(decision)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin review tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var ruleID string
	err = tx.QueryRowContext(ctx,
		`SELECT rule_id FROM rule_validation_tasks WHERE id = ? AND status = 'pending'`,
		taskID,
	).Scan(&ruleID)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "open task %s", taskID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: find open task %s", taskID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rule_validation_tasks SET status = ?, assigned_to = ?, reviewer_notes = ?, closed_at = ? WHERE id = ?`,
		string(decision), reviewer, notes, now, taskID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: close task %s", taskID)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE parsed_rules SET status = ?, updated_at = ? WHERE id = ?`,
		string(ruleStatus), now, ruleID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: update rule status %s", ruleID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit review tx")
}

func (s *SQLiteStore) ListOpenTasks(ctx context.Context, limit int) ([]model.ValidationTask, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rule_id, sla_deadline, assigned_to, status, reviewer_notes, created_at, closed_at
		 FROM rule_validation_tasks WHERE status = 'pending'
		 ORDER BY sla_deadline ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list open tasks")
	}
	defer rows.Close()

	var tasks []model.ValidationTask
	for rows.Next() {
		var t model.ValidationTask
		var assignedTo, notes sql.NullString
		var closedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.RuleID, &t.SLADeadline, &assignedTo, &t.Status, &notes, &t.CreatedAt, &closedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		t.AssignedTo = assignedTo.String
		t.ReviewerNotes = notes.String
		if closedAt.Valid {
			t.ClosedAt = &closedAt.Time
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list open tasks iterate")
}

func (s *SQLiteStore) CreateEligibilityResult(ctx context.Context, result *model.EligibilityResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	result.CreatedAt = time.Now().UTC()

	missingJSON, err := json.Marshal(result.MissingFacts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal missing facts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO eligibility_results (id, case_id, visa_type_id, rule_version_id, status, confidence, reasoning_summary, missing_facts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.CaseID, result.VisaTypeID, result.RuleVersionID,
		string(result.Status), result.Confidence, result.ReasoningSummary,
		string(missingJSON), result.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert eligibility result")
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entries ...model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		detailJSON, err := json.Marshal(e.Detail)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal audit detail")
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO audit_log (id, document_version_id, event, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
			e.ID, nullable(e.DocumentVersionID), e.Event, string(detailJSON), now,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert audit entry")
		}
	}
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, documentVersionID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_version_id, event, detail, created_at FROM audit_log
		 WHERE document_version_id = ? ORDER BY created_at ASC`,
		documentVersionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var docID, detailJSON sql.NullString
		if err := rows.Scan(&e.ID, &docID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		e.DocumentVersionID = docID.String
		if detailJSON.Valid && detailJSON.String != "" && detailJSON.String != "null" {
			if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal audit detail")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}
