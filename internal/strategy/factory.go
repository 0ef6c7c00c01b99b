package strategy

import (
	"fmt"

	"github.com/skalibog/btma/internal/config"
)

// New создает стратегию по конфигурации.
// Обертка hold-streak применяется поверх любой базовой стратегии.
func New(cfg config.StrategyConfig, advisorCfg config.AdvisorConfig) (Strategy, error) {
	var base Strategy

	switch cfg.Type {
	case "rules":
		base = NewRules()
	case "advisor":
		advisor, err := NewAdvisor(advisorCfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания советника: %w", err)
		}
		base = advisor
	default:
		return nil, fmt.Errorf("неизвестный тип стратегии: %q", cfg.Type)
	}

	if cfg.HoldStreakEnabled {
		return NewHoldStreak(base, cfg.HoldStreakThreshold), nil
	}
	return base, nil
}
