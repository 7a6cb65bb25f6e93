// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/api/schemas"
)

// Session wraps one live Chrome instance (its chromedp context) and
// implements schemas.SessionContext. All DOM operations honour the caller's
// context for cancellation and the configured fieldWait as the per-element
// deadline.
type Session struct {
	id        string
	ctx       context.Context
	fieldWait time.Duration
	log       *zap.Logger

	mu       sync.Mutex
	closed   bool
	teardown func()
}

var _ schemas.SessionContext = (*Session)(nil)

func newSession(browserCtx context.Context, fieldWait time.Duration, logger *zap.Logger, teardown func()) *Session {
	id := uuid.New().String()
	if fieldWait <= 0 {
		fieldWait = 15 * time.Second
	}
	return &Session{
		id:        id,
		ctx:       browserCtx,
		fieldWait: fieldWait,
		log:       logger.With(zap.String("session_id", id)),
		teardown:  teardown,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// run executes chromedp actions against the browser context, bounded by the
// given timeout and cancelled early if the caller's context dies.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session %s is closed", s.id)
	}
	s.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(taskCtx, actions...)
}

// Navigate loads the given URL and waits for the page load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, 2*s.fieldWait, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page, unmarshalling its
// result into out (which may be nil).
func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	if err := s.run(ctx, s.fieldWait, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// ClickAt dispatches a raw mouse click at viewport coordinates. Used to
// forward operator clicks into challenge widgets that cannot be reached by
// selector.
func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	if err := s.run(ctx, s.fieldWait, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("failed to click at (%.0f, %.0f): %w", x, y, err)
	}
	s.log.Debug("Forwarded coordinate click", zap.Float64("x", x), zap.Float64("y", y))
	return nil
}

// Close tears down the browser process. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.teardown != nil {
		s.teardown()
	}
	s.log.Info("Session closed")
	return nil
}
