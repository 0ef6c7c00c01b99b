package strategy

import (
	"context"
	"errors"

	"github.com/skalibog/btma/pkg/models"
)

// HoldStreak обертка над любой базовой стратегией: считает подряд идущие
// решения hold и по достижении порога выдает одну принудительную покупку
// с флагом Final — после ее исполнения цикл завершает процесс.
// Buy или sell базовой стратегии сбрасывают счетчик.
type HoldStreak struct {
	base      Strategy
	threshold int
	streak    int
}

// NewHoldStreak оборачивает стратегию счетчиком серии hold
func NewHoldStreak(base Strategy, threshold int) *HoldStreak {
	return &HoldStreak{base: base, threshold: threshold}
}

// Streak возвращает текущую длину серии hold
func (h *HoldStreak) Streak() int {
	return h.streak
}

// Decide делегирует решение базовой стратегии и ведет счетчик серии
func (h *HoldStreak) Decide(ctx context.Context, candles []*models.Candle, indicators []models.IndicatorSet, sentiment *models.SentimentIndex) (models.Decision, error) {
	decision, err := h.base.Decide(ctx, candles, indicators, sentiment)
	if err != nil {
		// Недоступный советник равнозначен hold и тоже наращивает серию
		if errors.Is(err, ErrAdviceUnavailable) {
			decision = models.Decision{Action: models.ActionHold}
		} else {
			return models.Decision{}, err
		}
	}

	if decision.Action != models.ActionHold {
		h.streak = 0
		return decision, err
	}

	h.streak++
	if h.streak >= h.threshold {
		return models.Decision{
			Action:  models.ActionBuy,
			Reasons: []models.Reason{models.ReasonHoldLimit},
			Final:   true,
		}, nil
	}
	return decision, err
}
