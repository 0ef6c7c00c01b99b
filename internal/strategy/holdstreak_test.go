package strategy

import (
	"context"
	"testing"

	"github.com/skalibog/btma/pkg/models"
)

// scriptedStrategy отдает заранее заданные решения по очереди
type scriptedStrategy struct {
	decisions []models.Decision
	errs      []error
	calls     int
}

func (s *scriptedStrategy) Decide(context.Context, []*models.Candle, []models.IndicatorSet, *models.SentimentIndex) (models.Decision, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.decisions) {
		return s.decisions[i], err
	}
	return models.Decision{Action: models.ActionHold}, err
}

func hold() models.Decision { return models.Decision{Action: models.ActionHold} }
func buy() models.Decision  { return models.Decision{Action: models.ActionBuy} }

func TestHoldStreakForcesBuyAtThreshold(t *testing.T) {
	wrapped := NewHoldStreak(&scriptedStrategy{decisions: []models.Decision{hold(), hold(), hold()}}, 3)

	for i := 0; i < 2; i++ {
		decision, err := wrapped.Decide(context.Background(), nil, nil, nil)
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if decision.Action != models.ActionHold || decision.Final {
			t.Fatalf("цикл %d: %+v", i, decision)
		}
	}

	decision, err := wrapped.Decide(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Action != models.ActionBuy {
		t.Fatalf("третий hold подряд обязан дать принудительную покупку, получено %s", decision.Action)
	}
	if !decision.Final {
		t.Error("принудительная покупка должна завершать процесс")
	}
	if len(decision.Reasons) != 1 || decision.Reasons[0] != models.ReasonHoldLimit {
		t.Errorf("reasons = %v", decision.Reasons)
	}
}

func TestHoldStreakResetOnTrade(t *testing.T) {
	wrapped := NewHoldStreak(&scriptedStrategy{
		decisions: []models.Decision{hold(), hold(), buy(), hold(), hold(), hold()},
	}, 3)

	for i := 0; i < 5; i++ {
		decision, err := wrapped.Decide(context.Background(), nil, nil, nil)
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if decision.Final {
			t.Fatalf("цикл %d: преждевременное финальное решение, серия не сброшена покупкой", i)
		}
	}

	// Шестое решение — третий hold после сброса
	decision, _ := wrapped.Decide(context.Background(), nil, nil, nil)
	if !decision.Final {
		t.Error("после трех hold подряд ожидалось финальное решение")
	}
}

func TestHoldStreakCountsUnavailableAdvice(t *testing.T) {
	// Недоступный советник равнозначен hold и наращивает серию
	wrapped := NewHoldStreak(&scriptedStrategy{
		errs: []error{ErrAdviceUnavailable, ErrAdviceUnavailable, ErrAdviceUnavailable},
	}, 3)

	var decision models.Decision
	for i := 0; i < 3; i++ {
		decision, _ = wrapped.Decide(context.Background(), nil, nil, nil)
	}
	if !decision.Final || decision.Action != models.ActionBuy {
		t.Errorf("после трех недоступных ответов ожидалась финальная покупка: %+v", decision)
	}
}
