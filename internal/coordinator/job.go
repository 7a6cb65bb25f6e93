// internal/coordinator/job.go
package coordinator

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/accountsmith/api/schemas"
)

// Bot is one worker slot in a job's arena: its live session (if any), its
// operator-visible status line, and a limiter that throttles screenshot
// captures so dashboard polling cannot hammer the browser.
type Bot struct {
	id      int
	limiter *rate.Limiter

	mu      sync.Mutex
	status  string
	session schemas.SessionContext
}

func newBot(id int, screenshotRate rate.Limit, burst int) *Bot {
	return &Bot{
		id:      id,
		status:  "Pending",
		limiter: rate.NewLimiter(screenshotRate, burst),
	}
}

// ID returns the bot's slot index within its job.
func (b *Bot) ID() int { return b.id }

// SetStatus publishes a new status line for the dashboard.
func (b *Bot) SetStatus(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Status returns the current status line.
func (b *Bot) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bot) attach(s schemas.SessionContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = s
}

func (b *Bot) detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = nil
}

// Session returns the bot's live session, or nil when the bot is between
// sessions or finished.
func (b *Bot) Session() schemas.SessionContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Job tracks one account creation batch and owns its bot arena. All
// counters sit behind one mutex; the lock is never held across browser or
// disk operations.
type Job struct {
	id    string
	total int
	bots  []*Bot

	mu             sync.Mutex
	created        int
	status         schemas.JobStatus
	currentAccount string
	currentBotID   *int
	accounts       []schemas.Account
}

func newJob(id string, total int, screenshotRate rate.Limit, burst int) *Job {
	bots := make([]*Bot, total)
	for i := range bots {
		bots[i] = newBot(i, screenshotRate, burst)
	}
	return &Job{
		id:       id,
		total:    total,
		bots:     bots,
		status:   schemas.JobRunning,
		accounts: []schemas.Account{},
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Bot returns the bot in the given slot, or nil if out of range.
func (j *Job) Bot(botID int) *Bot {
	if botID < 0 || botID >= len(j.bots) {
		return nil
	}
	return j.bots[botID]
}

// Bots returns the arena.
func (j *Job) Bots() []*Bot { return j.bots }

// recordSuccess files a created account and advances the counters.
func (j *Job) recordSuccess(account schemas.Account, botID int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.accounts = append(j.accounts, account)
	j.created++
	j.currentAccount = account.Email
	j.currentBotID = &botID
}

// recordFailure advances the counters without filing an account. The email
// is still surfaced so the operator can see which attempt died.
func (j *Job) recordFailure(email string, botID int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.created++
	if email != "" {
		j.currentAccount = email
		j.currentBotID = &botID
	}
}

func (j *Job) complete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = schemas.JobComplete
}

// Progress snapshots the job for the polling endpoint.
func (j *Job) Progress() schemas.JobProgress {
	j.mu.Lock()
	defer j.mu.Unlock()

	progress := 0
	if j.total > 0 {
		progress = j.created * 100 / j.total
	}
	accounts := make([]schemas.Account, len(j.accounts))
	copy(accounts, j.accounts)

	return schemas.JobProgress{
		JobID:          j.id,
		Total:          j.total,
		Created:        j.created,
		Status:         j.status,
		Progress:       progress,
		CurrentAccount: j.currentAccount,
		CurrentBotID:   j.currentBotID,
		Accounts:       accounts,
	}
}
