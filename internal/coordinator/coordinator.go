// internal/coordinator/coordinator.go

// Package coordinator owns account-creation jobs: it spawns the per-bot
// workers, commits their results to the store, and brokers every operator
// intervention (solve notifications, forwarded clicks, live screenshots)
// to the right bot's browser session.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/accountsmith/api/schemas"
	"github.com/xkilldash9x/accountsmith/internal/captcha"
	"github.com/xkilldash9x/accountsmith/internal/config"
	"github.com/xkilldash9x/accountsmith/internal/identity"
	"github.com/xkilldash9x/accountsmith/internal/signup"
	"github.com/xkilldash9x/accountsmith/internal/store"
)

var (
	// ErrJobNotFound means the job id (or any job at all) is unknown.
	ErrJobNotFound = errors.New("job not found")
	// ErrBotNotFound means the bot id is outside the current job's arena.
	ErrBotNotFound = errors.New("bot not found")
	// ErrNoSession means the bot exists but has no live browser.
	ErrNoSession = errors.New("bot has no active session")
)

// Launcher starts browser sessions. Satisfied by browser.Manager.
type Launcher interface {
	Launch(ctx context.Context, proxy string) (schemas.SessionContext, error)
}

// Workflow runs one signup attempt. Satisfied by signup.Runner.
type Workflow interface {
	Run(ctx context.Context, botID int, session schemas.SessionContext, id identity.Identity, setStatus func(string)) signup.Outcome
}

// Coordinator is the scheduling hub. Bot-addressed operations resolve
// against the most recently submitted job's arena, which is how the
// single-dashboard operator UI addresses bots.
type Coordinator struct {
	launcher    Launcher
	workflow    Workflow
	escalations *captcha.Escalations
	accounts    *store.Store
	cfg         config.Config
	log         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*Job
	latest *Job
}

// New builds a coordinator. The context passed to Submit's workers derives
// from the coordinator's own lifetime, not the submitting HTTP request.
func New(
	launcher Launcher,
	workflow Workflow,
	escalations *captcha.Escalations,
	accounts *store.Store,
	cfg config.Config,
	logger *zap.Logger,
) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		launcher:    launcher,
		workflow:    workflow,
		escalations: escalations,
		accounts:    accounts,
		cfg:         cfg,
		log:         logger.Named("coordinator"),
		ctx:         ctx,
		cancel:      cancel,
		jobs:        make(map[string]*Job),
	}
}

// Submit starts a job of count bots and returns its id immediately. Each
// bot gets its own goroutine; actual browser parallelism is capped by the
// launcher's semaphore.
func (c *Coordinator) Submit(count int) (string, error) {
	if count < 1 {
		return "", fmt.Errorf("job needs at least one bot, got %d", count)
	}

	jobID := "job_" + uuid.New().String()
	burst := c.cfg.Server.ScreenshotBurst
	if burst < 1 {
		burst = 1
	}
	job := newJob(jobID, count, rate.Every(c.cfg.Server.ScreenshotRate), burst)

	c.mu.Lock()
	c.jobs[jobID] = job
	c.latest = job
	c.mu.Unlock()

	c.log.Info("Job submitted", zap.String("job_id", jobID), zap.Int("count", count))

	var botWG sync.WaitGroup
	for botID := 0; botID < count; botID++ {
		botWG.Add(1)
		c.wg.Add(1)
		go func(id int) {
			defer botWG.Done()
			defer c.wg.Done()
			c.runBot(job, id)
		}(botID)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		botWG.Wait()
		job.complete()
		c.log.Info("Job complete", zap.String("job_id", jobID))
	}()

	return jobID, nil
}

// runBot owns one bot's full lifecycle: launch, signup attempt, result
// commit, teardown. The session is always closed on exit.
func (c *Coordinator) runBot(job *Job, botID int) {
	bot := job.Bot(botID)
	log := c.log.With(zap.String("job_id", job.ID()), zap.Int("bot_id", botID))

	bot.SetStatus("Launching browser...")
	proxy := identity.ProxyFor(botID, c.cfg.Signup.Proxies)
	session, err := c.launcher.Launch(c.ctx, proxy)
	if err != nil {
		log.Error("Browser launch failed", zap.Error(err))
		bot.SetStatus(fmt.Sprintf("Failed: %v", err))
		job.recordFailure("", botID)
		return
	}
	bot.attach(session)
	defer func() {
		bot.detach()
		if err := session.Close(context.Background()); err != nil {
			log.Warn("Session close failed", zap.Error(err))
		}
	}()

	id := identity.New(c.cfg.Signup.EmailDomain)
	outcome := c.workflow.Run(c.ctx, botID, session, id, bot.SetStatus)

	if outcome.Success && outcome.Account != nil {
		if err := c.accounts.Append(*outcome.Account); err != nil {
			log.Error("Failed to persist account", zap.Error(err))
		}
		job.recordSuccess(*outcome.Account, botID)
		log.Info("Account created", zap.String("email", outcome.Account.Email))
		return
	}

	bot.SetStatus("Failed: " + outcome.Reason)
	job.recordFailure(id.Email, botID)
	log.Warn("Signup attempt failed", zap.String("reason", outcome.Reason))
}

// Poll returns the job's progress snapshot.
func (c *Coordinator) Poll(jobID string) (schemas.JobProgress, error) {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return schemas.JobProgress{}, ErrJobNotFound
	}
	return job.Progress(), nil
}

// bot resolves a bot id against the latest job's arena.
func (c *Coordinator) bot(botID int) (*Bot, error) {
	c.mu.Lock()
	job := c.latest
	c.mu.Unlock()
	if job == nil {
		return nil, ErrJobNotFound
	}
	bot := job.Bot(botID)
	if bot == nil {
		return nil, ErrBotNotFound
	}
	return bot, nil
}

// liveSession resolves a bot that currently has a browser attached.
func (c *Coordinator) liveSession(botID int) (*Bot, schemas.SessionContext, error) {
	bot, err := c.bot(botID)
	if err != nil {
		return nil, nil, err
	}
	session := bot.Session()
	if session == nil {
		return bot, nil, ErrNoSession
	}
	return bot, session, nil
}

// ResolveCaptcha signals a bot blocked on a manual solve. Returns false if
// the bot was not waiting.
func (c *Coordinator) ResolveCaptcha(botID int) bool {
	resolved := c.escalations.Resolve(botID)
	if resolved {
		c.log.Info("Challenge marked solved by operator", zap.Int("bot_id", botID))
	}
	return resolved
}

// ForwardClick dispatches an operator click into the bot's browser at page
// coordinates.
func (c *Coordinator) ForwardClick(ctx context.Context, botID int, x, y float64) error {
	_, session, err := c.liveSession(botID)
	if err != nil {
		return err
	}
	return session.ClickAt(ctx, x, y)
}

// PressContinue clicks the post-solve confirmation button in the bot's
// browser. Returns false when no such button is on the page.
func (c *Coordinator) PressContinue(ctx context.Context, botID int) (bool, error) {
	_, session, err := c.liveSession(botID)
	if err != nil {
		return false, err
	}
	return session.Click(ctx, signup.ContinueStrategies()) == schemas.Hit, nil
}

// Screenshot captures the bot's browser view, optionally cropped to the
// challenge widget. A bot without a session yields a null screenshot plus
// its last status rather than an error, so dashboards can poll freely.
func (c *Coordinator) Screenshot(ctx context.Context, botID int, cropToChallenge bool) (schemas.ScreenshotResponse, error) {
	bot, session, err := c.liveSession(botID)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			status := "Inactive"
			if bot != nil && bot.Status() != "Pending" {
				status = bot.Status()
			}
			return schemas.ScreenshotResponse{Status: status}, nil
		}
		return schemas.ScreenshotResponse{}, err
	}

	if err := bot.limiter.Wait(ctx); err != nil {
		return schemas.ScreenshotResponse{}, fmt.Errorf("screenshot throttled: %w", err)
	}

	shot, err := session.Screenshot(ctx, cropToChallenge)
	if err != nil {
		return schemas.ScreenshotResponse{}, err
	}
	return schemas.ScreenshotResponse{Screenshot: &shot, Status: bot.Status()}, nil
}

// BotStatuses snapshots every bot's status line in the latest job, keyed
// by bot id.
func (c *Coordinator) BotStatuses() map[int]string {
	c.mu.Lock()
	job := c.latest
	c.mu.Unlock()

	statuses := make(map[int]string)
	if job == nil {
		return statuses
	}
	for _, bot := range job.Bots() {
		statuses[bot.ID()] = bot.Status()
	}
	return statuses
}

// Shutdown cancels all running bots and waits for them to unwind, bounded
// by the given context.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out waiting for bots: %w", ctx.Err())
	}
}
