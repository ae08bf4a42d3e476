package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedDocument(t *testing.T, st *SQLiteStore) *model.DocumentVersion {
	t.Helper()
	dv, err := st.CreateDocumentVersion(context.Background(),
		"Applicants must earn at least £25,600 salary per year to qualify.", "UK", "gov-uk-guidance")
	require.NoError(t, err)
	return dv
}

func TestSQLite_CreateDocumentVersion_DedupesByHash(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateDocumentVersion(ctx, "same regulatory text body here", "UK", "src-a")
	require.NoError(t, err)

	second, err := st.CreateDocumentVersion(ctx, "same regulatory text body here", "UK", "src-b")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Same text, different jurisdiction is a distinct version.
	other, err := st.CreateDocumentVersion(ctx, "same regulatory text body here", "US", "src-a")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSQLite_GetDocumentVersion_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetDocumentVersion(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_CreateRuleWithTask_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	dv := seedDocument(t, st)

	rule := &model.ParsedRule{
		DocumentVersionID: dv.ID,
		VisaCode:          "UK_SKILLED_WORKER",
		RequirementCode:   "MIN_SALARY",
		Description:       "Minimum salary of £25,600 per year",
		Category:          model.CategoryEligibility,
		Conditions:        map[string]any{">=": []any{map[string]any{"var": "applicant.salary"}, 25600.0}},
		Confidence:        0.85,
		Status:            model.RuleStatusPending,
		SourceExcerpt:     "at least £25,600 salary",
		Provenance:        model.Provenance{ModelName: "claude-haiku-4-5-20251001", InputTokens: 1200, OutputTokens: 300},
	}
	task := &model.ValidationTask{
		SLADeadline: time.Now().UTC().Add(48 * time.Hour),
		Status:      model.TaskStatusPending,
	}

	created, err := st.CreateRuleWithTask(ctx, rule, task)
	require.NoError(t, err)
	assert.True(t, created)

	has, err := st.HasRules(ctx, dv.ID)
	require.NoError(t, err)
	assert.True(t, has)

	rules, err := st.ListRules(ctx, dv.ID, RuleFilter{})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "MIN_SALARY", rules[0].RequirementCode)
	assert.Equal(t, model.CategoryEligibility, rules[0].Category)
	assert.InDelta(t, 0.85, rules[0].Confidence, 1e-9)
	// Condition expression survives the store round trip unchanged.
	assert.Equal(t, rule.Conditions, rules[0].Conditions)
	assert.Equal(t, "claude-haiku-4-5-20251001", rules[0].Provenance.ModelName)
}

func TestSQLite_CreateRuleWithTask_DuplicateSkipped(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	dv := seedDocument(t, st)

	rule := &model.ParsedRule{
		DocumentVersionID: dv.ID,
		VisaCode:          "UK_SKILLED_WORKER",
		RequirementCode:   "MIN_SALARY",
		Description:       "Minimum salary requirement",
		Category:          model.CategoryEligibility,
		Conditions:        map[string]any{"var": "x"},
		Status:            model.RuleStatusPending,
	}
	created, err := st.CreateRuleWithTask(ctx, rule, nil)
	require.NoError(t, err)
	assert.True(t, created)

	dup := *rule
	dup.ID = ""
	created, err = st.CreateRuleWithTask(ctx, &dup, nil)
	require.NoError(t, err)
	assert.False(t, created)

	rules, err := st.ListRules(ctx, dv.ID, RuleFilter{})
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestSQLite_CloseTask_ApproveFlipsRule(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	dv := seedDocument(t, st)

	rule := &model.ParsedRule{
		DocumentVersionID: dv.ID,
		VisaCode:          "UK_SKILLED_WORKER",
		RequirementCode:   "ENGLISH_LANGUAGE",
		Description:       "English language requirement at B1 level",
		Category:          model.CategoryEligibility,
		Conditions:        map[string]any{"==": []any{map[string]any{"var": "applicant.english_level"}, "B1"}},
		Status:            model.RuleStatusPending,
	}
	task := &model.ValidationTask{
		SLADeadline: time.Now().UTC().Add(5 * 24 * time.Hour),
		Status:      model.TaskStatusPending,
	}
	_, err := st.CreateRuleWithTask(ctx, rule, task)
	require.NoError(t, err)

	open, err := st.ListOpenTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)

	err = st.CloseTask(ctx, open[0].ID, model.TaskStatusApproved, "reviewer@example.com", "verified against source")
	require.NoError(t, err)

	open, err = st.ListOpenTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)

	rules, err := st.ListRules(ctx, dv.ID, RuleFilter{Status: model.RuleStatusApproved})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, model.RuleStatusApproved, rules[0].Status)

	// Closing again fails: the task is no longer open.
	err = st.CloseTask(ctx, open0ID(t, st, ctx, dv.ID), model.TaskStatusApproved, "reviewer", "")
	require.Error(t, err)
}

// open0ID finds the task id for the document's first rule, open or closed.
func open0ID(t *testing.T, st *SQLiteStore, ctx context.Context, docID string) string {
	t.Helper()
	rules, err := st.ListRules(ctx, docID, RuleFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, rules)

	var taskID string
	err = st.db.QueryRowContext(ctx,
		`SELECT id FROM rule_validation_tasks WHERE rule_id = ?`, rules[0].ID,
	).Scan(&taskID)
	require.NoError(t, err)
	return taskID
}

func TestSQLite_WithDocumentLock_Serializes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var order []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.WithDocumentLock(ctx, "doc-1", func(ctx context.Context) error {
			order = append(order, 1)
			time.Sleep(20 * time.Millisecond)
			order = append(order, 2)
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)
	err := st.WithDocumentLock(ctx, "doc-1", func(ctx context.Context) error {
		order = append(order, 3)
		return nil
	})
	require.NoError(t, err)
	<-done
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSQLite_Audit_AppendAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	dv := seedDocument(t, st)

	err := st.AppendAudit(ctx,
		model.AuditEntry{DocumentVersionID: dv.ID, Event: model.AuditParseStarted},
		model.AuditEntry{DocumentVersionID: dv.ID, Event: model.AuditParseCompleted, Detail: map[string]any{"rules_created": float64(3)}},
	)
	require.NoError(t, err)

	entries, err := st.ListAudit(ctx, dv.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.AuditParseStarted, entries[0].Event)
	assert.Equal(t, float64(3), entries[1].Detail["rules_created"])
}

func TestSQLite_CreateEligibilityResult(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res := &model.EligibilityResult{
		CaseID:           "case-1",
		VisaTypeID:       "visa-1",
		RuleVersionID:    "rv-1",
		Status:           model.StatusMissingFacts,
		Confidence:       0.4,
		ReasoningSummary: "insufficient facts",
		MissingFacts:     []string{"applicant.salary"},
	}
	require.NoError(t, st.CreateEligibilityResult(ctx, res))
	assert.NotEmpty(t, res.ID)
}
