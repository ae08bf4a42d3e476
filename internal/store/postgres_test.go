package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetDocumentVersion_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, content_hash, raw_text, jurisdiction, source_name, created_at FROM document_versions`).
		WithArgs("nonexistent-doc").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetDocumentVersion(context.Background(), "nonexistent-doc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasRules(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.HasRules(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithDocumentLock_CommitsAfterFn(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	var ran bool
	err := s.WithDocumentLock(context.Background(), "doc-1", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithDocumentLock_FnErrorRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectRollback()

	err := s.WithDocumentLock(context.Background(), "doc-1", func(ctx context.Context) error {
		return assert.AnError
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// anyArgs returns n pgxmock.AnyArg matchers, for expectations that do not
// constrain argument values.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func testRule() *model.ParsedRule {
	return &model.ParsedRule{
		DocumentVersionID: "doc-1",
		VisaCode:          "UK_SKILLED_WORKER",
		RequirementCode:   "MIN_SALARY",
		Description:       "Minimum salary of £25,600 per year",
		Category:          model.CategoryEligibility,
		Conditions:        map[string]any{">=": []any{map[string]any{"var": "applicant.salary"}, 25600.0}},
		Confidence:        0.85,
		Status:            model.RuleStatusPending,
		Provenance:        model.Provenance{ModelName: "claude-haiku-4-5-20251001"},
	}
}

func TestPostgresStore_CreateRuleWithTask_Created(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO parsed_rules`).
		WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO rule_validation_tasks`).
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	task := &model.ValidationTask{
		SLADeadline: time.Now().Add(48 * time.Hour),
		Status:      model.TaskStatusPending,
	}
	created, err := s.CreateRuleWithTask(context.Background(), testRule(), task)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRuleWithTask_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO parsed_rules`).
		WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	created, err := s.CreateRuleWithTask(context.Background(), testRule(), nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseTask_FlipsRuleStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE rule_validation_tasks`).
		WithArgs("approved", "reviewer@example.com", "looks right", pgxmock.AnyArg(), "task-1").
		WillReturnRows(pgxmock.NewRows([]string{"rule_id"}).AddRow("rule-1"))
	mock.ExpectExec(`UPDATE parsed_rules SET status`).
		WithArgs("approved", pgxmock.AnyArg(), "rule-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.CloseTask(context.Background(), "task-1", model.TaskStatusApproved, "reviewer@example.com", "looks right")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseTask_AlreadyClosed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE rule_validation_tasks`).
		WithArgs(anyArgs(5)...).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.CloseTask(context.Background(), "task-1", model.TaskStatusRejected, "reviewer", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseTask_InvalidDecision(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	err := s.CloseTask(context.Background(), "task-1", model.TaskStatusPending, "reviewer", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid review decision")
}

func TestPostgresStore_AppendAudit_Single(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendAudit(context.Background(), model.AuditEntry{
		DocumentVersionID: "doc-1",
		Event:             model.AuditParseStarted,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAudit_BatchUsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom([]string{"audit_log"}, []string{"id", "document_version_id", "event", "detail", "created_at"}).
		WillReturnResult(2)

	err := s.AppendAudit(context.Background(),
		model.AuditEntry{DocumentVersionID: "doc-1", Event: model.AuditParseStarted},
		model.AuditEntry{DocumentVersionID: "doc-1", Event: model.AuditParseCompleted},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateEligibilityResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO eligibility_results`).
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.CreateEligibilityResult(context.Background(), &model.EligibilityResult{
		CaseID:        "case-1",
		VisaTypeID:    "visa-1",
		RuleVersionID: "rv-1",
		Status:        model.StatusEligible,
		Confidence:    0.9,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
