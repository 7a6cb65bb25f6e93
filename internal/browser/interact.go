// internal/browser/interact.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/api/schemas"
)

// probeWait bounds the existence check for each strategy in a fallback
// list. Kept short so walking a four-entry list stays responsive.
const probeWait = 2 * time.Second

func queryOpt(st schemas.Strategy) chromedp.QueryOption {
	if st.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// locatorJS returns a JavaScript expression that resolves the strategy to
// an element, for operations done entirely in page script.
func locatorJS(st schemas.Strategy) string {
	if st.XPath {
		return fmt.Sprintf(
			`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
			st.Query)
	}
	return fmt.Sprintf(`document.querySelector(%q)`, st.Query)
}

// present reports whether the strategy matches at least one element right
// now, without waiting for one to appear.
func (s *Session) present(ctx context.Context, st schemas.Strategy) (bool, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, probeWait,
		chromedp.Nodes(st.Query, &nodes, queryOpt(st), chromedp.AtLeast(0)))
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Fill waits for the strategy's element and types the value into it. A
// deadline means the element never appeared.
func (s *Session) Fill(ctx context.Context, st schemas.Strategy, value string) schemas.Result {
	err := s.run(ctx, s.fieldWait, chromedp.SendKeys(st.Query, value, queryOpt(st)))
	if err == nil {
		return schemas.Hit
	}
	if ctx.Err() != nil {
		// Caller cancellation, not a missing element.
		return schemas.Failed
	}
	if isDeadline(err) {
		s.log.Debug("Field never appeared", zap.String("strategy", st.Name))
		return schemas.NotFound
	}
	s.log.Warn("Field fill failed", zap.String("strategy", st.Name), zap.Error(err))
	return schemas.Failed
}

// Click walks the strategy list in order and clicks the first element that
// exists. Returns Failed only when an element was found but could not be
// clicked; a clean miss across every strategy is NotFound.
func (s *Session) Click(ctx context.Context, strategies []schemas.Strategy) schemas.Result {
	failed := false
	for _, st := range strategies {
		found, err := s.present(ctx, st)
		if err != nil || !found {
			continue
		}
		if err := s.run(ctx, s.fieldWait, chromedp.Click(st.Query, queryOpt(st))); err != nil {
			s.log.Debug("Click failed, trying next strategy",
				zap.String("strategy", st.Name), zap.Error(err))
			failed = true
			continue
		}
		s.log.Debug("Clicked element", zap.String("strategy", st.Name))
		return schemas.Hit
	}
	if failed {
		return schemas.Failed
	}
	return schemas.NotFound
}

// buttonTextStrategies builds the fallback list for clicking a button whose
// visible label contains text, most specific first.
func buttonTextStrategies(text string) []schemas.Strategy {
	lower := strings.ToLower(text)
	return []schemas.Strategy{
		{Name: "span wrapper", XPath: true,
			Query: fmt.Sprintf(`//button//span[contains(text(), '%s')]/..`, text)},
		{Name: "direct button", XPath: true,
			Query: fmt.Sprintf(`//button[contains(normalize-space(), '%s')]`, text)},
		{Name: "case-insensitive", XPath: true,
			Query: fmt.Sprintf(
				`//button//span[contains(translate(text(), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), '%s')]/..`,
				lower)},
		{Name: "partial match", XPath: true,
			Query: fmt.Sprintf(`//button[contains(., '%s')]`, text)},
	}
}

// ClickButtonWithText clicks a button by its visible label, falling back
// through progressively looser XPath matches.
func (s *Session) ClickButtonWithText(ctx context.Context, text string) schemas.Result {
	return s.Click(ctx, buttonTextStrategies(text))
}

// PressEnter sends the Enter key to the strategy's element.
func (s *Session) PressEnter(ctx context.Context, st schemas.Strategy) schemas.Result {
	err := s.run(ctx, s.fieldWait, chromedp.SendKeys(st.Query, kb.Enter, queryOpt(st)))
	if err == nil {
		return schemas.Hit
	}
	if ctx.Err() != nil {
		return schemas.Failed
	}
	if isDeadline(err) {
		return schemas.NotFound
	}
	s.log.Warn("Enter press failed", zap.String("strategy", st.Name), zap.Error(err))
	return schemas.Failed
}

// SelectOption sets a dropdown's value via page script and fires a change
// event, walking the strategy list until one matches.
func (s *Session) SelectOption(ctx context.Context, strategies []schemas.Strategy, value string) schemas.Result {
	failed := false
	for _, st := range strategies {
		script := fmt.Sprintf(`(() => {
			const el = %s;
			if (!el) { return 'missing'; }
			el.value = %q;
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return 'ok';
		})()`, locatorJS(st), value)

		var result string
		if err := s.run(ctx, s.fieldWait, chromedp.Evaluate(script, &result)); err != nil {
			s.log.Debug("Select script failed", zap.String("strategy", st.Name), zap.Error(err))
			failed = true
			continue
		}
		if result == "ok" {
			s.log.Debug("Selected option", zap.String("strategy", st.Name), zap.String("value", value))
			return schemas.Hit
		}
	}
	if failed {
		return schemas.Failed
	}
	return schemas.NotFound
}

// ChallengeFramePresent reports whether an anti-bot widget frame is still
// on the page.
func (s *Session) ChallengeFramePresent(ctx context.Context) bool {
	var present bool
	expr := `document.querySelectorAll("iframe[src*='recaptcha'], iframe[src*='hcaptcha']").length > 0`
	if err := s.run(ctx, probeWait, chromedp.Evaluate(expr, &present)); err != nil {
		// Unknown state counts as still present so callers keep waiting.
		return true
	}
	return present
}

// ClickInChallengeFrame locates the challenge widget's iframe and clicks
// the checkbox inside it. Only same-process frames are reachable this way.
func (s *Session) ClickInChallengeFrame(ctx context.Context) schemas.Result {
	var frames []*cdp.Node
	err := s.run(ctx, probeWait,
		chromedp.Nodes("iframe", &frames, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return schemas.Failed
	}

	for _, frame := range frames {
		src := strings.ToLower(frame.AttributeValue("src"))
		if !strings.Contains(src, "recaptcha") && !strings.Contains(src, "hcaptcha") {
			continue
		}
		err := s.run(ctx, s.fieldWait,
			chromedp.Click("input[type='checkbox']", chromedp.ByQuery, chromedp.FromNode(frame)))
		if err != nil {
			s.log.Debug("In-frame checkbox click failed", zap.Error(err))
			return schemas.Failed
		}
		s.log.Debug("Clicked checkbox inside challenge frame")
		return schemas.Hit
	}
	return schemas.NotFound
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
