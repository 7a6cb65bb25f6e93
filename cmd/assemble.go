// -- cmd/assemble.go --
package cmd

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/internal/browser"
	"github.com/xkilldash9x/accountsmith/internal/captcha"
	"github.com/xkilldash9x/accountsmith/internal/config"
	"github.com/xkilldash9x/accountsmith/internal/coordinator"
	"github.com/xkilldash9x/accountsmith/internal/signup"
	"github.com/xkilldash9x/accountsmith/internal/store"
)

// assemble wires the browser manager, challenge pipeline, workflow runner,
// escalation registry and account store into a coordinator.
func assemble(cfg *config.Config, logger *zap.Logger) (*coordinator.Coordinator, *store.Store, error) {
	accounts, err := store.New(cfg.Store.Path, logger)
	if err != nil {
		return nil, nil, err
	}

	manager := browser.NewManager(cfg.Browser, logger)
	escalations := captcha.NewEscalations()
	pipeline := captcha.NewPipeline(
		cfg.Captcha.SettleWait,
		cfg.Captcha.RecheckWait,
		cfg.Captcha.PassiveAttempts,
		logger,
	)
	runner := signup.NewRunner(cfg.Signup, pipeline, escalations, cfg.Captcha.ManualTimeout, logger)

	coord := coordinator.New(manager, runner, escalations, accounts, *cfg, logger)
	return coord, accounts, nil
}
