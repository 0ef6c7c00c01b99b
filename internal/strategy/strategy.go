package strategy

import (
	"context"
	"errors"

	"github.com/skalibog/btma/pkg/models"
)

// ErrAdviceUnavailable советник недоступен или вернул нечитаемый ответ.
// Цикл обязан трактовать это как hold без причин и продолжать работу:
// испорченный внешний ответ не должен превращаться в сделку.
var ErrAdviceUnavailable = errors.New("решение советника недоступно")

// Strategy движок решений: чистая функция от рыночных данных
// и опционального индекса настроений к дискретному действию.
// sentiment может быть nil — это отсутствие сигнала, а не ноль.
type Strategy interface {
	Decide(ctx context.Context, candles []*models.Candle, indicators []models.IndicatorSet, sentiment *models.SentimentIndex) (models.Decision, error)
}
