// internal/captcha/pipeline.go

// Package captcha detects anti-bot challenges on the signup page and tries
// to clear them automatically before escalating to a human operator.
package captcha

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/api/schemas"
)

// Kind classifies a detected challenge.
type Kind string

const (
	KindNone      Kind = ""
	KindRecaptcha Kind = "reCAPTCHA"
	KindGeneric   Kind = "Generic"
)

// detectScript classifies the challenge present on the page. Frames whose
// src mentions recaptcha or challenge win over a bare captcha input.
const detectScript = `(() => {
	const frames = document.querySelectorAll('iframe');
	for (const f of frames) {
		const src = (f.src || '').toLowerCase();
		if (src.includes('recaptcha') || src.includes('challenge')) {
			return 'recaptcha';
		}
	}
	if (document.querySelector("input[name='captcha']")) {
		return 'generic';
	}
	return '';
})()`

// challengeExpandedScript reports whether the full image-grid challenge
// frame is open. A bare checkbox widget without it can verify silently.
const challengeExpandedScript = `document.querySelectorAll("iframe[src*='api2/bframe']").length > 0`

// checkboxStrategies locate the "I'm not a robot" checkbox from the top
// document, in preference order.
var checkboxStrategies = []schemas.Strategy{
	{Name: "widget input", Query: `div.g-recaptcha input[type='checkbox']`},
	{Name: "checkbox border", Query: `div.rc-checkbox-border`},
	{Name: "widget input xpath", Query: `//div[@class='g-recaptcha']//input[@type='checkbox']`, XPath: true},
	{Name: "labelled robot input", Query: `label > input[type='checkbox'][aria-label*='robot']`},
}

// Pipeline runs challenge detection and the automatic solve ladder against
// a browser session.
type Pipeline struct {
	settleWait      time.Duration
	recheckWait     time.Duration
	passiveAttempts int
	log             *zap.Logger
}

// NewPipeline builds a pipeline with the configured pacing.
func NewPipeline(settleWait, recheckWait time.Duration, passiveAttempts int, logger *zap.Logger) *Pipeline {
	if passiveAttempts < 1 {
		passiveAttempts = 1
	}
	return &Pipeline{
		settleWait:      settleWait,
		recheckWait:     recheckWait,
		passiveAttempts: passiveAttempts,
		log:             logger.Named("captcha"),
	}
}

// Detect reports whether a challenge is present and what kind it is. Any
// evaluation failure is treated as "no challenge seen".
func (p *Pipeline) Detect(ctx context.Context, session schemas.SessionContext) (bool, Kind) {
	var result string
	if err := session.Evaluate(ctx, detectScript, &result); err != nil {
		p.log.Debug("Challenge detection script failed", zap.Error(err))
		return false, KindNone
	}
	switch result {
	case "recaptcha":
		return true, KindRecaptcha
	case "generic":
		return true, KindGeneric
	default:
		return false, KindNone
	}
}

// AutoSolve works through the solve ladder and reports whether the
// challenge cleared. It never returns an error: every failure mode just
// falls through to the next rung, and a false return means manual solving
// is needed.
func (p *Pipeline) AutoSolve(ctx context.Context, session schemas.SessionContext) bool {
	log := p.log.With(zap.String("session_id", session.ID()))

	// Rung 1: click the checkbox from the top document.
	log.Info("Auto-solve: clicking checkbox from top document")
	for _, strat := range checkboxStrategies {
		if session.Click(ctx, []schemas.Strategy{strat}) != schemas.Hit {
			continue
		}
		log.Debug("Clicked checkbox", zap.String("strategy", strat.Name))
		if !sleepCtx(ctx, p.settleWait) {
			return false
		}
		if !p.challengeExpanded(ctx, session) {
			log.Info("Challenge verified without image grid")
			return true
		}
		if !sleepCtx(ctx, p.recheckWait) {
			return false
		}
		if !session.ChallengeFramePresent(ctx) {
			log.Info("Challenge cleared after checkbox click")
			return true
		}
	}

	// Rung 2: click inside the challenge frame itself.
	log.Info("Auto-solve: clicking inside challenge frame")
	if session.ClickInChallengeFrame(ctx) == schemas.Hit {
		if !sleepCtx(ctx, p.settleWait+p.settleWait) {
			return false
		}
		if !session.ChallengeFramePresent(ctx) {
			log.Info("Challenge cleared via in-frame click")
			return true
		}
	}

	// Rung 3: wait for background verification to pass on its own.
	log.Info("Auto-solve: waiting for background verification")
	for attempt := 1; attempt <= p.passiveAttempts; attempt++ {
		if !sleepCtx(ctx, p.recheckWait) {
			return false
		}
		if !session.ChallengeFramePresent(ctx) {
			log.Info("Challenge cleared passively", zap.Int("attempt", attempt))
			return true
		}
	}

	log.Info("Auto-solve exhausted, manual intervention needed")
	return false
}

func (p *Pipeline) challengeExpanded(ctx context.Context, session schemas.SessionContext) bool {
	var expanded bool
	if err := session.Evaluate(ctx, challengeExpandedScript, &expanded); err != nil {
		return false
	}
	return expanded
}

// sleepCtx waits for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
