package schemas

import "time"

// JobStatus describes the aggregate state of an account-creation job.
type JobStatus string

const (
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
)

// Account is a single provisioned account record. It is immutable once
// created and is persisted as one JSON line in the durable store.
type Account struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Username string    `json:"username"`
	Created  time.Time `json:"created"`
}

// JobProgress is the point-in-time snapshot returned to polling clients.
// CurrentBotID is null until the first bot reports in.
type JobProgress struct {
	JobID          string    `json:"job_id"`
	Total          int       `json:"total"`
	Created        int       `json:"created"`
	Status         JobStatus `json:"status"`
	Progress       int       `json:"progress"`
	CurrentAccount string    `json:"current_account"`
	CurrentBotID   *int      `json:"current_bot_id"`
	Accounts       []Account `json:"accounts"`
}

// --- Operator API payloads ---

// CreateAccountsRequest asks the coordinator to start a new job.
type CreateAccountsRequest struct {
	Count int `json:"count"`
}

// CreateAccountsResponse acknowledges a submitted job.
type CreateAccountsResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// CaptchaSolvedRequest marks a bot's escalation ticket as resolved by the
// operator. BotID is a pointer so a missing field can be rejected with 400.
type CaptchaSolvedRequest struct {
	BotID *int `json:"bot_id"`
}

// CaptchaClickRequest forwards a synthetic pointer click into a bot's live
// browser session at page coordinates.
type CaptchaClickRequest struct {
	BotID *int    `json:"bot_id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// ScreenshotResponse carries a live capture of a bot's browser view.
// Screenshot is a base64 PNG data URI, or null when the bot has no session.
type ScreenshotResponse struct {
	Screenshot *string `json:"screenshot"`
	Status     string  `json:"status"`
}

// AccountsResponse lists all persisted account records.
type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
	Total    int       `json:"total"`
}

// DownloadResponse carries the raw newline-joined store contents.
type DownloadResponse struct {
	Content string `json:"content"`
}
