// internal/signup/workflow.go

// Package signup drives one browser session through the account creation
// form: field entry, birthday and gender selection, terms, final submit,
// and the post-submit challenge handling with operator escalation.
package signup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/api/schemas"
	"github.com/xkilldash9x/accountsmith/internal/captcha"
	"github.com/xkilldash9x/accountsmith/internal/config"
	"github.com/xkilldash9x/accountsmith/internal/identity"
)

// Field locators for the signup form. The email, password and name steps
// are load-bearing: if their field never appears the attempt is abandoned.
// Later steps degrade gracefully since the form sometimes skips them.
var (
	cookieButton  = schemas.Strategy{Name: "accept cookies", Query: `button[data-testid='accept-cookies']`}
	emailField    = schemas.Strategy{Name: "email", Query: `input[name='username']`}
	passwordField = schemas.Strategy{Name: "password", Query: `input[name='new-password']`}
	nameField     = schemas.Strategy{Name: "display name", Query: `#displayName`}
	dayField      = schemas.Strategy{Name: "birth day", Query: `#day`}
	yearField     = schemas.Strategy{Name: "birth year", Query: `#year`}

	monthStrategies = []schemas.Strategy{
		{Name: "month by id", Query: `#month`},
		{Name: "month by name", Query: `select[name='month']`},
	}

	submitStrategies = []schemas.Strategy{
		{Name: "sign up span", Query: `//span[contains(text(), 'Sign up')]/..`, XPath: true},
	}

	// continueStrategies matches whatever post-submit confirmation button
	// the flow renders, loosest match last.
	continueStrategies = []schemas.Strategy{
		{Name: "text continue", Query: `//button[contains(text(), 'Continue')]`, XPath: true},
		{Name: "text next", Query: `//button[contains(text(), 'Next')]`, XPath: true},
		{Name: "submit type", Query: `//button[@type='submit']`, XPath: true},
		{Name: "span continue", Query: `//span[contains(text(), 'Continue')]/..`, XPath: true},
		{Name: "submit class", Query: `.submit-button`},
	}
)

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Outcome is the result of one signup attempt.
type Outcome struct {
	Success bool
	Reason  string
	Account *schemas.Account
}

func failed(reason string) Outcome { return Outcome{Reason: reason} }

// Runner executes signup attempts. It is stateless across attempts and
// safe for concurrent use by many bots.
type Runner struct {
	cfg           config.SignupConfig
	pipeline      *captcha.Pipeline
	escalations   *captcha.Escalations
	manualTimeout time.Duration
	log           *zap.Logger
}

// NewRunner builds a workflow runner.
func NewRunner(
	cfg config.SignupConfig,
	pipeline *captcha.Pipeline,
	escalations *captcha.Escalations,
	manualTimeout time.Duration,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		cfg:           cfg,
		pipeline:      pipeline,
		escalations:   escalations,
		manualTimeout: manualTimeout,
		log:           logger.Named("signup"),
	}
}

// Run walks a session through the whole signup flow for the given identity.
// setStatus publishes human-readable progress for the operator dashboard.
// The session is the caller's to close.
func (r *Runner) Run(
	ctx context.Context,
	botID int,
	session schemas.SessionContext,
	id identity.Identity,
	setStatus func(string),
) Outcome {
	log := r.log.With(zap.Int("bot_id", botID), zap.String("session_id", session.ID()))

	setStatus("Loading signup page...")
	if err := session.Navigate(ctx, r.cfg.URL); err != nil {
		log.Error("Navigation failed", zap.Error(err))
		return failed(fmt.Sprintf("navigation failed: %v", err))
	}
	if !sleepCtx(ctx, r.cfg.NavigateSettle) {
		return failed("cancelled")
	}

	setStatus("Accepting cookies...")
	session.Click(ctx, []schemas.Strategy{cookieButton})
	sleepCtx(ctx, 800*time.Millisecond)

	setStatus("Email: " + truncate(id.Email, 15) + "...")
	if res := session.Fill(ctx, emailField, id.Email); res != schemas.Hit {
		log.Warn("Email field unavailable", zap.Stringer("result", res))
		return failed("email field unavailable")
	}
	r.advance(ctx, session, emailField)

	setStatus("Password...")
	if res := session.Fill(ctx, passwordField, id.Password); res != schemas.Hit {
		log.Warn("Password field unavailable", zap.Stringer("result", res))
		return failed("password field unavailable")
	}
	r.advance(ctx, session, passwordField)

	setStatus("Display name...")
	if res := session.Fill(ctx, nameField, id.Username); res != schemas.Hit {
		log.Warn("Display name field unavailable", zap.Stringer("result", res))
		return failed("display name field unavailable")
	}
	r.advance(ctx, session, nameField)

	setStatus("Birthday...")
	r.fillBirthday(ctx, session, id, log)

	setStatus("Gender...")
	r.pickGender(ctx, session, id.Gender, log)

	r.acceptTerms(ctx, session)

	setStatus("Creating account...")
	if session.Click(ctx, submitStrategies) != schemas.Hit {
		session.ClickButtonWithText(ctx, "Sign up")
	}
	if !sleepCtx(ctx, r.cfg.SubmitSettle) {
		return failed("cancelled")
	}

	return r.finish(ctx, botID, session, id, setStatus, log)
}

// advance moves to the next form step: the Next button if one exists,
// otherwise Enter in the field just filled.
func (r *Runner) advance(ctx context.Context, session schemas.SessionContext, field schemas.Strategy) {
	if session.ClickButtonWithText(ctx, "Next") != schemas.Hit {
		session.PressEnter(ctx, field)
	}
	sleepCtx(ctx, r.cfg.StepPause)
}

func (r *Runner) fillBirthday(ctx context.Context, session schemas.SessionContext, id identity.Identity, log *zap.Logger) {
	if res := session.Fill(ctx, dayField, id.Day); res != schemas.Hit {
		log.Warn("Birthday day field missing, advancing anyway")
		session.ClickButtonWithText(ctx, "Next")
		sleepCtx(ctx, r.cfg.StepPause)
		return
	}

	if session.SelectOption(ctx, monthStrategies, id.Month) != schemas.Hit {
		// Some variants only accept the month's visible name.
		r.selectMonthByName(ctx, session, id.Month, log)
	}

	session.Fill(ctx, yearField, id.Year)
	sleepCtx(ctx, r.cfg.StepPause)
	r.advance(ctx, session, yearField)
	sleepCtx(ctx, r.cfg.StepPause)
}

func (r *Runner) selectMonthByName(ctx context.Context, session schemas.SessionContext, month string, log *zap.Logger) {
	n, err := strconv.Atoi(month)
	if err != nil || n < 1 || n > len(monthNames) {
		return
	}
	idx := n - 1
	script := fmt.Sprintf(`(() => {
		const sel = document.querySelector('#month');
		if (!sel) { return false; }
		for (const opt of sel.options) {
			if (opt.text.trim() === %q) {
				sel.value = opt.value;
				sel.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
		return false;
	})()`, monthNames[idx])

	var ok bool
	if err := session.Evaluate(ctx, script, &ok); err != nil || !ok {
		log.Debug("Month selection by name failed", zap.Error(err))
	}
}

// pickGender scans the page for a matching radio or label. The four match
// passes run inside one script so the DOM is only walked once.
func (r *Runner) pickGender(ctx context.Context, session schemas.SessionContext, gender string, log *zap.Logger) {
	short := "m"
	if gender == "female" {
		short = "f"
	}
	script := fmt.Sprintf(`(() => {
		const gender = %q, short = %q;
		let el = null;
		for (const radio of document.querySelectorAll("input[type='radio']")) {
			const v = (radio.value || '').toLowerCase();
			if (v === short || v === gender || v.includes(gender)) { el = radio; break; }
		}
		if (!el) { el = document.querySelector("label[for='gender_option_" + short + "']"); }
		if (!el) { el = document.querySelector("label[for*='" + gender + "']"); }
		if (!el) {
			for (const label of document.querySelectorAll('label')) {
				if (label.outerHTML.toLowerCase().includes(gender)) { el = label; break; }
			}
		}
		if (!el) { return false; }
		el.scrollIntoView({block: 'center'});
		el.click();
		return true;
	})()`, gender, short)

	var clicked bool
	if err := session.Evaluate(ctx, script, &clicked); err != nil || !clicked {
		log.Warn("Gender selection failed", zap.String("gender", gender), zap.Error(err))
	}
	sleepCtx(ctx, 1500*time.Millisecond)
	session.ClickButtonWithText(ctx, "Next")
	sleepCtx(ctx, r.cfg.StepPause)
}

// acceptTerms ticks the terms checkbox if it is present and unchecked.
func (r *Runner) acceptTerms(ctx context.Context, session schemas.SessionContext) {
	script := `(() => {
		const box = document.querySelector("input[name='terms']");
		if (box && !box.checked) { box.click(); }
		return true;
	})()`
	var ok bool
	_ = session.Evaluate(ctx, script, &ok)
	sleepCtx(ctx, time.Second)
}

// finish handles everything after the final submit: challenge detection,
// the auto-solve ladder, and waiting on a human if automation fails.
func (r *Runner) finish(
	ctx context.Context,
	botID int,
	session schemas.SessionContext,
	id identity.Identity,
	setStatus func(string),
	log *zap.Logger,
) Outcome {
	detected, kind := r.pipeline.Detect(ctx, session)

	// Some flows interpose a confirmation step before the account lands.
	if session.Click(ctx, continueStrategies) == schemas.Hit {
		sleepCtx(ctx, r.cfg.StepPause)
	}

	if !detected {
		return r.succeed(id, setStatus)
	}

	log.Info("Challenge detected", zap.String("kind", string(kind)))
	setStatus("Attempting auto-solve...")
	if r.pipeline.AutoSolve(ctx, session) {
		setStatus("Challenge auto-solved")
		sleepCtx(ctx, r.cfg.StepPause)
		return r.succeed(id, setStatus)
	}

	setStatus(string(kind) + " - waiting for manual solve")
	solved := r.escalations.Open(botID)
	defer r.escalations.Drop(botID, solved)

	timer := time.NewTimer(r.manualTimeout)
	defer timer.Stop()
	select {
	case <-solved:
		setStatus("Challenge solved, verifying account...")
		sleepCtx(ctx, r.cfg.StepPause)
		return r.succeed(id, setStatus)
	case <-timer.C:
		setStatus("Challenge timeout exceeded")
		log.Warn("Manual solve window expired", zap.Duration("timeout", r.manualTimeout))
		return failed("challenge not solved in time")
	case <-ctx.Done():
		return failed("cancelled")
	}
}

func (r *Runner) succeed(id identity.Identity, setStatus func(string)) Outcome {
	setStatus("Success: " + truncate(id.Email, 15) + "...")
	return Outcome{
		Success: true,
		Account: &schemas.Account{
			Email:    id.Email,
			Password: id.Password,
			Username: id.Username,
			Created:  time.Now().UTC(),
		},
	}
}

// ContinueStrategies exposes the post-solve confirmation button list for
// the operator-triggered continue press.
func ContinueStrategies() []schemas.Strategy {
	out := make([]schemas.Strategy, len(continueStrategies))
	copy(out, continueStrategies)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

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
