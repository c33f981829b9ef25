package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/followup/pkg/intake"
	"github.com/dukex/followup/pkg/leads"
	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence/file"
	"github.com/dukex/followup/pkg/scanner"
	"github.com/dukex/followup/pkg/services"
	"github.com/dukex/followup/pkg/tracker"
	"github.com/dukex/followup/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	report *scanner.Report
	err    error
}

func (s *stubScanner) ScanOnce(context.Context) (*scanner.Report, error) {
	return s.report, s.err
}

type testEnv struct {
	app       *fiber.App
	directory *leads.FileDirectory
	scanner   *stubScanner
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := file.NewPersistence(dir)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))
	tr := tracker.New(p, clock, logger)
	directory := leads.NewFileDirectory(filepath.Join(dir, "leads.json"))
	scan := &stubScanner{report: &scanner.Report{Due: 2, Executed: 2}}

	handlers := web.NewAPIHandlers(
		services.NewSequence(p),
		services.NewAssignment(p, tr, directory, nil, logger),
		intake.New(directory, p.SequenceRepository(), tr, nil, nil, logger),
		scan,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Routes(app)

	return &testEnv{app: app, directory: directory, scanner: scan}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func (e *testEnv) createSequence(t *testing.T, name string, autoAssign bool) models.SequenceDefinition {
	t.Helper()

	resp, body := e.do(t, http.MethodPost, "/sequences", web.CreateSequenceRequest{Name: name, AutoAssignNewLeads: autoAssign})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var sequence models.SequenceDefinition
	require.NoError(t, json.Unmarshal(body, &sequence))

	return sequence
}

func (e *testEnv) addStep(t *testing.T, sequenceID string, delay int, tag string) models.SequenceStep {
	t.Helper()

	resp, body := e.do(t, http.MethodPost, "/sequences/"+sequenceID+"/steps", web.AddStepRequest{DelayDays: delay, TriggerTag: tag})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var step models.SequenceStep
	require.NoError(t, json.Unmarshal(body, &step))

	return step
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func TestAPIHandlers_SequenceLifecycle(t *testing.T) {
	env := setupTestApp(t)

	sequence := env.createSequence(t, "Onboarding", false)
	assert.True(t, sequence.Active)

	env.addStep(t, sequence.ID, 0, "welcome")
	second := env.addStep(t, sequence.ID, 3, "reminder")
	assert.Equal(t, 2, second.Order)

	resp, _ := env.do(t, http.MethodDelete, "/sequences/"+sequence.ID+"/steps/"+second.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	third := env.addStep(t, sequence.ID, 7, "final")
	assert.Equal(t, 3, third.Order)

	resp, body := env.do(t, http.MethodPatch, "/sequences/"+sequence.ID, map[string]any{"active": false, "description": "paused"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.SequenceDefinition
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.False(t, updated.Active)
	assert.Equal(t, "paused", updated.Description)
	assert.Equal(t, "Onboarding", updated.Name)

	resp, body = env.do(t, http.MethodGet, "/sequences/"+sequence.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.SequenceDefinition
	require.NoError(t, json.Unmarshal(body, &fetched))
	require.Len(t, fetched.Steps, 2)
	assert.Equal(t, []int{1, 3}, []int{fetched.Steps[0].Order, fetched.Steps[1].Order})

	resp, body = env.do(t, http.MethodGet, "/sequences", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Sequences  []models.SequenceDefinition `json:"sequences"`
		TotalCount int                         `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.TotalCount)

	resp, _ = env.do(t, http.MethodDelete, "/sequences/"+sequence.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/sequences/"+sequence.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "sequence_not_found", problemType(t, body))
}

func TestAPIHandlers_ValidationErrors(t *testing.T) {
	env := setupTestApp(t)
	sequence := env.createSequence(t, "Onboarding", false)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"malformed json", http.MethodPost, "/sequences", "{", http.StatusBadRequest, "validation_error"},
		{"missing name", http.MethodPost, "/sequences", web.CreateSequenceRequest{}, http.StatusBadRequest, "validation_error"},
		{"blank name", http.MethodPost, "/sequences", web.CreateSequenceRequest{Name: "  "}, http.StatusBadRequest, "validation_error"},
		{"negative delay", http.MethodPost, "/sequences/" + sequence.ID + "/steps", map[string]any{"delay_days": -1, "trigger_tag": "x"}, http.StatusBadRequest, "validation_error"},
		{"missing tag", http.MethodPost, "/sequences/" + sequence.ID + "/steps", map[string]any{"delay_days": 1}, http.StatusBadRequest, "validation_error"},
		{"step on unknown sequence", http.MethodPost, "/sequences/missing/steps", web.AddStepRequest{TriggerTag: "x"}, http.StatusNotFound, "sequence_not_found"},
		{"unknown step", http.MethodDelete, "/sequences/" + sequence.ID + "/steps/missing", nil, http.StatusNotFound, "step_not_found"},
		{"unknown assignment", http.MethodGet, "/assignments/missing", nil, http.StatusNotFound, "assignment_not_found"},
		{"enroll without lead", http.MethodPost, "/sequences/" + sequence.ID + "/assignments", map[string]any{}, http.StatusBadRequest, "validation_error"},
		{"enroll unknown lead", http.MethodPost, "/sequences/" + sequence.ID + "/assignments", web.EnrollRequest{LeadID: "ghost"}, http.StatusNotFound, "lead_not_found"},
		{"bad status filter", http.MethodGet, "/sequences/" + sequence.ID + "/assignments?status=paused", nil, http.StatusBadRequest, "validation_error"},
		{"bad limit", http.MethodGet, "/sequences/" + sequence.ID + "/assignments?limit=x", nil, http.StatusBadRequest, "validation_error"},
		{"invalid lead payload", http.MethodPost, "/leads/events", `{"name":"no id"}`, http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Equal(t, tt.kind, problemType(t, body))
		})
	}
}

func TestAPIHandlers_EnrollAndRemove(t *testing.T) {
	env := setupTestApp(t)
	require.NoError(t, env.directory.SaveLead(t.Context(), &models.Lead{ID: "lead-1", Name: "Ada", Email: "ada@example.com"}))

	sequence := env.createSequence(t, "Onboarding", false)
	env.addStep(t, sequence.ID, 1, "welcome")

	resp, body := env.do(t, http.MethodPost, "/sequences/"+sequence.ID+"/assignments", web.EnrollRequest{LeadID: "lead-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var enrolled services.AssignmentView
	require.NoError(t, json.Unmarshal(body, &enrolled))
	assert.Equal(t, "Ada", enrolled.LeadName)
	assert.Equal(t, models.AssignmentStatusActive, enrolled.Status)

	resp, body = env.do(t, http.MethodPost, "/sequences/"+sequence.ID+"/assignments", web.EnrollRequest{LeadID: "lead-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_active_assignment", problemType(t, body))

	resp, body = env.do(t, http.MethodGet, "/sequences/"+sequence.ID+"/assignments?status=active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Assignments []services.AssignmentView `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Assignments, 1)
	assert.Equal(t, "ada@example.com", list.Assignments[0].LeadEmail)

	resp, body = env.do(t, http.MethodDelete, "/assignments/"+enrolled.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var removed services.AssignmentView
	require.NoError(t, json.Unmarshal(body, &removed))
	assert.Equal(t, models.AssignmentStatusRemoved, removed.Status)
	assert.Nil(t, removed.NextStepDueAt)

	resp, _ = env.do(t, http.MethodDelete, "/assignments/"+enrolled.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/sequences/"+sequence.ID+"/assignments", web.EnrollRequest{LeadID: "lead-1"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode, "re-enroll after removal")
}

func TestAPIHandlers_EnrollInactiveSequence(t *testing.T) {
	env := setupTestApp(t)
	require.NoError(t, env.directory.SaveLead(t.Context(), &models.Lead{ID: "lead-1"}))

	sequence := env.createSequence(t, "Onboarding", false)

	resp, _ := env.do(t, http.MethodPatch, "/sequences/"+sequence.ID, map[string]any{"active": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/sequences/"+sequence.ID+"/assignments", web.EnrollRequest{LeadID: "lead-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "sequence_inactive", problemType(t, body))
}

func TestAPIHandlers_LeadCreated(t *testing.T) {
	env := setupTestApp(t)

	sequence := env.createSequence(t, "Onboarding", true)
	env.addStep(t, sequence.ID, 0, "welcome")

	resp, body := env.do(t, http.MethodPost, "/leads/events", `{"id":"lead-9","name":"Grace","email":"grace@example.com"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var result intake.Result
	require.NoError(t, json.Unmarshal(body, &result))
	require.Len(t, result.Enrolled, 1)
	assert.Equal(t, sequence.ID, result.Enrolled[0].SequenceID)

	lead, err := env.directory.GetLead(t.Context(), "lead-9")
	require.NoError(t, err)
	assert.Equal(t, "Grace", lead.Name)
}

func TestAPIHandlers_TriggerScan(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, http.MethodPost, "/scans", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report scanner.Report
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 2, report.Executed)

	env.scanner.err = scanner.ErrScanInProgress

	resp, body = env.do(t, http.MethodPost, "/scans", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "scan_in_progress", problemType(t, body))
}

func TestAPIHandlers_Health(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])

	resp, body = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}
