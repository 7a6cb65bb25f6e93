package schemas

import "context"

// Strategy describes one way to locate a page element. Interactions walk an
// ordered list of strategies and stop at the first that lands.
type Strategy struct {
	// Name identifies the strategy in logs.
	Name string
	// Query is a CSS selector, or an XPath expression when XPath is set.
	Query string
	XPath bool
}

// Result reports how a locator-driven interaction ended. DOM operations
// never raise for "the page didn't look like we expected"; callers decide
// whether a miss is fatal for their step.
type Result int

const (
	// Hit means a strategy located the element and the action landed.
	Hit Result = iota
	// NotFound means no strategy located the element in time.
	NotFound
	// Failed means the interaction was aborted (session or context gone).
	Failed
)

func (r Result) String() string {
	switch r {
	case Hit:
		return "hit"
	case NotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// SessionContext is the contract for one controlled browser instance. One
// session belongs to exactly one bot; handles are never shared between bots.
type SessionContext interface {
	// ID returns the unique identifier for the session.
	ID() string

	// Navigate loads a page and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Fill locates a field by the given strategy and types a value into it.
	Fill(ctx context.Context, s Strategy, value string) Result

	// Click walks the strategies in order and clicks the first element that
	// can be located, falling back to a scripted click when a native click
	// is rejected.
	Click(ctx context.Context, strategies []Strategy) Result

	// ClickButtonWithText clicks a button identified by its visible text,
	// trying the standard span-wrapper/direct/case-insensitive/partial
	// locator sequence.
	ClickButtonWithText(ctx context.Context, text string) Result

	// PressEnter sends the keyboard submit key to the element located by s.
	PressEnter(ctx context.Context, s Strategy) Result

	// SelectOption sets the value of a <select> located by the first
	// strategy that matches, dispatching a change event.
	SelectOption(ctx context.Context, strategies []Strategy, value string) Result

	// ClickAt dispatches a synthetic pointer press and release at page
	// coordinates. Used to forward operator clicks into the live session.
	ClickAt(ctx context.Context, x, y float64) error

	// Evaluate runs a JavaScript expression and unmarshals its result.
	Evaluate(ctx context.Context, expr string, out any) error

	// ChallengeFramePresent reports whether a CAPTCHA challenge frame is
	// currently embedded in the page.
	ChallengeFramePresent(ctx context.Context) bool

	// ClickInChallengeFrame enters the challenge iframe context, clicks the
	// checkbox control inside it, and restores the outer document context
	// regardless of outcome.
	ClickInChallengeFrame(ctx context.Context) Result

	// Screenshot captures the current view as a base64 PNG data URI. When
	// cropToChallenge is set and a challenge region is determinable, the
	// capture is clipped to that region.
	Screenshot(ctx context.Context, cropToChallenge bool) (string, error)

	// Close terminates the browser session. Safe to call more than once.
	Close(ctx context.Context) error
}
