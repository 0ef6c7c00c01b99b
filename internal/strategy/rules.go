package strategy

import (
	"context"
	"fmt"

	"github.com/skalibog/btma/pkg/models"
)

// Пороговые значения правил из исходной стратегии
const (
	rsiOversold   = 35
	rsiOverbought = 65
	fearExtreme   = 30
	greedExtreme  = 70

	buySignalsRequired  = 3
	sellSignalsRequired = 2
)

// Rules стратегия на пяти булевых сигналах последнего бара.
// Покупка требует не менее трех бычьих сигналов, продажа — не менее
// двух медвежьих: продать проще, чем купить. При одновременном
// выполнении обоих порогов приоритет у продажи — убытки режутся быстро.
type Rules struct{}

// NewRules создает правило-ориентированную стратегию
func NewRules() *Rules {
	return &Rules{}
}

// Decide оценивает пять сигналов последнего бара
func (r *Rules) Decide(_ context.Context, candles []*models.Candle, indicators []models.IndicatorSet, sentiment *models.SentimentIndex) (models.Decision, error) {
	if len(candles) == 0 || len(indicators) != len(candles) {
		return models.Decision{}, fmt.Errorf("нет данных для принятия решения: %d свечей, %d наборов индикаторов", len(candles), len(indicators))
	}

	latest := candles[len(candles)-1]
	ind := indicators[len(indicators)-1]

	var buyReasons, sellReasons []models.Reason

	// 1. Кроссовер скользящих средних
	if ind.MA5 > ind.MA20 {
		buyReasons = append(buyReasons, models.ReasonMACross)
	} else if ind.MA5 < ind.MA20 {
		sellReasons = append(sellReasons, models.ReasonMACross)
	}

	// 2. Перепроданность / перекупленность по RSI
	if ind.RSI < rsiOversold {
		buyReasons = append(buyReasons, models.ReasonRSI)
	} else if ind.RSI > rsiOverbought {
		sellReasons = append(sellReasons, models.ReasonRSI)
	}

	// 3. MACD против сигнальной линии
	if ind.MACD > ind.MACDSignal {
		buyReasons = append(buyReasons, models.ReasonMACD)
	} else if ind.MACD < ind.MACDSignal {
		sellReasons = append(sellReasons, models.ReasonMACD)
	}

	// 4. Пробой полосы Боллинджера
	if latest.Close < ind.LowerBB {
		buyReasons = append(buyReasons, models.ReasonBollinger)
	} else if latest.Close > ind.UpperBB {
		sellReasons = append(sellReasons, models.ReasonBollinger)
	}

	// 5. Экстремум индекса страха и жадности.
	// Отсутствующий индекс не учитывается ни на одной стороне.
	if sentiment != nil {
		if sentiment.Value < fearExtreme {
			buyReasons = append(buyReasons, models.ReasonSentiment)
		} else if sentiment.Value > greedExtreme {
			sellReasons = append(sellReasons, models.ReasonSentiment)
		}
	}

	// Продажа имеет приоритет над покупкой
	if len(sellReasons) >= sellSignalsRequired {
		return models.Decision{Action: models.ActionSell, Reasons: sellReasons}, nil
	}
	if len(buyReasons) >= buySignalsRequired {
		return models.Decision{Action: models.ActionBuy, Reasons: buyReasons}, nil
	}
	return models.Decision{Action: models.ActionHold}, nil
}
