package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/api/schemas"
	"github.com/xkilldash9x/accountsmith/internal/captcha"
	"github.com/xkilldash9x/accountsmith/internal/config"
	"github.com/xkilldash9x/accountsmith/internal/coordinator"
	"github.com/xkilldash9x/accountsmith/internal/identity"
	"github.com/xkilldash9x/accountsmith/internal/signup"
	"github.com/xkilldash9x/accountsmith/internal/store"
)

type nullSession struct{}

func (nullSession) ID() string                             { return "null" }
func (nullSession) Navigate(context.Context, string) error { return nil }
func (nullSession) Fill(context.Context, schemas.Strategy, string) schemas.Result {
	return schemas.Hit
}
func (nullSession) Click(context.Context, []schemas.Strategy) schemas.Result { return schemas.Hit }
func (nullSession) ClickButtonWithText(context.Context, string) schemas.Result {
	return schemas.Hit
}
func (nullSession) PressEnter(context.Context, schemas.Strategy) schemas.Result {
	return schemas.Hit
}
func (nullSession) SelectOption(context.Context, []schemas.Strategy, string) schemas.Result {
	return schemas.Hit
}
func (nullSession) ClickAt(context.Context, float64, float64) error { return nil }
func (nullSession) Evaluate(context.Context, string, any) error     { return nil }
func (nullSession) ChallengeFramePresent(context.Context) bool      { return false }
func (nullSession) ClickInChallengeFrame(context.Context) schemas.Result {
	return schemas.NotFound
}
func (nullSession) Screenshot(context.Context, bool) (string, error) {
	return "data:image/png;base64,AAAA", nil
}
func (nullSession) Close(context.Context) error { return nil }

type nullLauncher struct{}

func (nullLauncher) Launch(context.Context, string) (schemas.SessionContext, error) {
	return nullSession{}, nil
}

type instantWorkflow struct{}

func (instantWorkflow) Run(_ context.Context, _ int, _ schemas.SessionContext, id identity.Identity, setStatus func(string)) signup.Outcome {
	setStatus("Success: " + id.Email)
	return signup.Outcome{
		Success: true,
		Account: &schemas.Account{
			Email:    id.Email,
			Password: id.Password,
			Username: id.Username,
			Created:  time.Now().UTC(),
		},
	}
}

type harness struct {
	srv      *httptest.Server
	esc      *captcha.Escalations
	accounts *store.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := *config.NewDefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "accounts.txt")
	cfg.Server.ScreenshotRate = time.Millisecond

	accounts, err := store.New(cfg.Store.Path, zap.NewNop())
	require.NoError(t, err)

	esc := captcha.NewEscalations()
	coord := coordinator.New(nullLauncher{}, instantWorkflow{}, esc, accounts, cfg, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, coord.Shutdown(ctx))
	})

	s := New(cfg.Server, coord, accounts, zap.NewNop())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)

	return &harness{srv: ts, esc: esc, accounts: accounts}
}

func (h *harness) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (h *harness) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) startJob(t *testing.T, count int) string {
	t.Helper()
	resp, body := h.post(t, "/api/create-accounts", schemas.CreateAccountsRequest{Count: count})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)
	return jobID
}

func (h *harness) waitComplete(t *testing.T, jobID string) map[string]any {
	t.Helper()
	var body map[string]any
	require.Eventually(t, func() bool {
		resp, b := h.get(t, "/api/account-progress?job_id="+jobID)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		body = b
		return body["status"] == "complete"
	}, 5*time.Second, 10*time.Millisecond)
	return body
}

func TestCreateAccountsAndProgress(t *testing.T) {
	h := newHarness(t)

	jobID := h.startJob(t, 2)
	body := h.waitComplete(t, jobID)

	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(2), body["created"])
	assert.Equal(t, float64(100), body["progress"])
	accounts, ok := body["accounts"].([]any)
	require.True(t, ok)
	assert.Len(t, accounts, 2)
}

func TestCreateAccountsDefaultsCount(t *testing.T) {
	h := newHarness(t)
	resp, body := h.post(t, "/api/create-accounts", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobID := body["job_id"].(string)

	progress := h.waitComplete(t, jobID)
	assert.Equal(t, float64(5), progress["total"])
}

func TestProgressUnknownJob(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get(t, "/api/account-progress?job_id=job_missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Job not found", body["error"])
}

func TestCaptchaSolvedValidation(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.post(t, "/api/captcha-solved", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Known bot but nothing waiting.
	resp, body := h.post(t, "/api/captcha-solved", map[string]any{"bot_id": 3})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	ch := h.esc.Open(3)
	resp, body = h.post(t, "/api/captcha-solved", map[string]any{"bot_id": 3})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("solve notification never reached the ticket")
	}
}

func TestCaptchaClickWithoutJobs(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.post(t, "/api/captcha-click", map[string]any{"bot_id": 0, "x": 10, "y": 20})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClickEndpointsOnFinishedBot(t *testing.T) {
	h := newHarness(t)
	jobID := h.startJob(t, 1)
	h.waitComplete(t, jobID)

	// The bot finished its attempt, so its browser session is gone.
	resp, body := h.post(t, "/api/captcha-click", map[string]any{"bot_id": 0, "x": 10, "y": 20})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "no active session")

	resp, body = h.post(t, "/api/captcha-press-continue", map[string]any{"bot_id": 0})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "no active session")
}

func TestBotScreenshotInvalidAndInactive(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.get(t, "/api/bot-screenshot/abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	jobID := h.startJob(t, 1)
	h.waitComplete(t, jobID)

	resp, body := h.get(t, "/api/bot-screenshot/0")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["screenshot"])
	assert.NotEmpty(t, body["status"])
}

func TestBotStatusKeys(t *testing.T) {
	h := newHarness(t)
	jobID := h.startJob(t, 2)
	h.waitComplete(t, jobID)

	resp, body := h.get(t, "/api/bot-status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "0")
	assert.Contains(t, body, "1")
}

func TestAccountsDownloadAndClear(t *testing.T) {
	h := newHarness(t)
	jobID := h.startJob(t, 1)
	h.waitComplete(t, jobID)

	resp, body := h.get(t, "/api/accounts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	resp, body = h.get(t, "/api/download-accounts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	content, _ := body["content"].(string)
	assert.Contains(t, content, "@")

	resp, body = h.post(t, "/api/clear-accounts", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "All accounts cleared", body["message"])

	resp, body = h.get(t, "/api/accounts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["total"])
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
