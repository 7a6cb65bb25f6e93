// internal/coordinator/coordinator_test.go
package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/api/schemas"
	"github.com/xkilldash9x/accountsmith/internal/captcha"
	"github.com/xkilldash9x/accountsmith/internal/config"
	"github.com/xkilldash9x/accountsmith/internal/identity"
	"github.com/xkilldash9x/accountsmith/internal/signup"
	"github.com/xkilldash9x/accountsmith/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubSession is the minimal live-session stand-in for coordinator tests.
type stubSession struct {
	mu       sync.Mutex
	closed   bool
	clicks   []schemas.Strategy
	clickAts [][2]float64
}

func (s *stubSession) ID() string                             { return "stub" }
func (s *stubSession) Navigate(context.Context, string) error { return nil }
func (s *stubSession) Fill(context.Context, schemas.Strategy, string) schemas.Result {
	return schemas.Hit
}
func (s *stubSession) Click(_ context.Context, strats []schemas.Strategy) schemas.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, strats...)
	return schemas.Hit
}
func (s *stubSession) ClickButtonWithText(context.Context, string) schemas.Result {
	return schemas.Hit
}
func (s *stubSession) PressEnter(context.Context, schemas.Strategy) schemas.Result {
	return schemas.Hit
}
func (s *stubSession) SelectOption(context.Context, []schemas.Strategy, string) schemas.Result {
	return schemas.Hit
}
func (s *stubSession) ClickAt(_ context.Context, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clickAts = append(s.clickAts, [2]float64{x, y})
	return nil
}
func (s *stubSession) Evaluate(context.Context, string, any) error { return nil }
func (s *stubSession) ChallengeFramePresent(context.Context) bool  { return false }
func (s *stubSession) ClickInChallengeFrame(context.Context) schemas.Result {
	return schemas.NotFound
}
func (s *stubSession) Screenshot(context.Context, bool) (string, error) {
	return "data:image/png;base64,AAAA", nil
}
func (s *stubSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type stubLauncher struct {
	mu       sync.Mutex
	err      error
	sessions []*stubSession
}

func (l *stubLauncher) Launch(context.Context, string) (schemas.SessionContext, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	s := &stubSession{}
	l.sessions = append(l.sessions, s)
	return s, nil
}

type stubWorkflow struct {
	succeed bool
	reason  string
	block   bool
	started chan int
}

func (w *stubWorkflow) Run(ctx context.Context, botID int, _ schemas.SessionContext, id identity.Identity, setStatus func(string)) signup.Outcome {
	setStatus("working")
	if w.started != nil {
		w.started <- botID
	}
	if w.block {
		<-ctx.Done()
		return signup.Outcome{Reason: "cancelled"}
	}
	if w.succeed {
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
	return signup.Outcome{Reason: w.reason}
}

func testConfig(t *testing.T) config.Config {
	cfg := *config.NewDefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "accounts.txt")
	cfg.Server.ScreenshotRate = time.Millisecond
	return cfg
}

func newTestCoordinator(t *testing.T, launcher Launcher, wf Workflow) (*Coordinator, *store.Store) {
	t.Helper()
	cfg := testConfig(t)
	accounts, err := store.New(cfg.Store.Path, zap.NewNop())
	require.NoError(t, err)
	c := New(launcher, wf, captcha.NewEscalations(), accounts, cfg, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, c.Shutdown(ctx))
	})
	return c, accounts
}

func waitComplete(t *testing.T, c *Coordinator, jobID string) schemas.JobProgress {
	t.Helper()
	var progress schemas.JobProgress
	require.Eventually(t, func() bool {
		p, err := c.Poll(jobID)
		if err != nil {
			return false
		}
		progress = p
		return progress.Status == schemas.JobComplete
	}, 5*time.Second, 10*time.Millisecond)
	return progress
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	launcher := &stubLauncher{}
	c, accounts := newTestCoordinator(t, launcher, &stubWorkflow{succeed: true})

	jobID, err := c.Submit(3)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	progress := waitComplete(t, c, jobID)
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 3, progress.Created)
	assert.Equal(t, 100, progress.Progress)
	assert.Len(t, progress.Accounts, 3)
	require.NotNil(t, progress.CurrentBotID)

	persisted, err := accounts.List()
	require.NoError(t, err)
	assert.Len(t, persisted, 3)

	// Every session must have been torn down.
	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	require.Len(t, launcher.sessions, 3)
	for _, s := range launcher.sessions {
		assert.True(t, s.closed)
	}
}

func TestSubmitRejectsNonPositiveCount(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubLauncher{}, &stubWorkflow{succeed: true})
	_, err := c.Submit(0)
	assert.Error(t, err)
}

func TestPollUnknownJob(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubLauncher{}, &stubWorkflow{succeed: true})
	_, err := c.Poll("job_missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestLaunchFailureStillCompletesJob(t *testing.T) {
	launcher := &stubLauncher{err: errors.New("no chrome")}
	c, accounts := newTestCoordinator(t, launcher, &stubWorkflow{succeed: true})

	jobID, err := c.Submit(2)
	require.NoError(t, err)

	progress := waitComplete(t, c, jobID)
	assert.Equal(t, 2, progress.Created)
	assert.Empty(t, progress.Accounts)

	persisted, err := accounts.List()
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestWorkflowFailureRecordsReason(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubLauncher{}, &stubWorkflow{reason: "challenge not solved in time"})

	jobID, err := c.Submit(1)
	require.NoError(t, err)

	progress := waitComplete(t, c, jobID)
	assert.Equal(t, 1, progress.Created)
	assert.Empty(t, progress.Accounts)
	assert.NotEmpty(t, progress.CurrentAccount, "failed attempt email is still surfaced")

	statuses := c.BotStatuses()
	assert.Contains(t, statuses[0], "challenge not solved in time")
}

func TestBotOperationsWithoutJobs(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubLauncher{}, &stubWorkflow{succeed: true})

	err := c.ForwardClick(context.Background(), 0, 1, 2)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = c.PressContinue(context.Background(), 0)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestBotOperationsOnLiveSession(t *testing.T) {
	launcher := &stubLauncher{}
	wf := &stubWorkflow{block: true, started: make(chan int, 1)}
	c, _ := newTestCoordinator(t, launcher, wf)

	_, err := c.Submit(1)
	require.NoError(t, err)
	<-wf.started

	require.NoError(t, c.ForwardClick(context.Background(), 0, 120, 340))

	pressed, err := c.PressContinue(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, pressed)

	shot, err := c.Screenshot(context.Background(), 0, true)
	require.NoError(t, err)
	require.NotNil(t, shot.Screenshot)
	assert.Contains(t, *shot.Screenshot, "data:image/png;base64")
	assert.Equal(t, "working", shot.Status)

	err = c.ForwardClick(context.Background(), 9, 0, 0)
	assert.ErrorIs(t, err, ErrBotNotFound)

	launcher.mu.Lock()
	session := launcher.sessions[0]
	launcher.mu.Unlock()
	session.mu.Lock()
	assert.Equal(t, [][2]float64{{120, 340}}, session.clickAts)
	session.mu.Unlock()
}

func TestScreenshotInactiveBot(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubLauncher{}, &stubWorkflow{succeed: true})

	jobID, err := c.Submit(1)
	require.NoError(t, err)
	waitComplete(t, c, jobID)

	shot, err := c.Screenshot(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Nil(t, shot.Screenshot)
	assert.NotEmpty(t, shot.Status)
}

func TestClickOperationsOnFinishedBot(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubLauncher{}, &stubWorkflow{succeed: true})

	jobID, err := c.Submit(1)
	require.NoError(t, err)
	waitComplete(t, c, jobID)

	// The bot still exists in the arena but its session is detached.
	err = c.ForwardClick(context.Background(), 0, 10, 20)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = c.PressContinue(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestResolveCaptcha(t *testing.T) {
	cfg := testConfig(t)
	accounts, err := store.New(cfg.Store.Path, zap.NewNop())
	require.NoError(t, err)
	esc := captcha.NewEscalations()
	c := New(&stubLauncher{}, &stubWorkflow{succeed: true}, esc, accounts, cfg, zap.NewNop())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	}()

	assert.False(t, c.ResolveCaptcha(4))

	ch := esc.Open(4)
	assert.True(t, c.ResolveCaptcha(4))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("resolution did not reach the ticket channel")
	}
}

func TestShutdownCancelsRunningBots(t *testing.T) {
	wf := &stubWorkflow{block: true, started: make(chan int, 2)}
	cfg := testConfig(t)
	accounts, err := store.New(cfg.Store.Path, zap.NewNop())
	require.NoError(t, err)
	c := New(&stubLauncher{}, wf, captcha.NewEscalations(), accounts, cfg, zap.NewNop())

	_, err = c.Submit(2)
	require.NoError(t, err)
	<-wf.started
	<-wf.started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
}
