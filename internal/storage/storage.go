package storage

import (
	"context"

	"github.com/skalibog/btma/pkg/models"
)

// Storage телеметрия торгового агента: свечи, решения и исполненные
// ордера пишутся для последующего разбора. Цикл никогда не читает
// торговое состояние обратно — восстановление позиции после рестарта
// сознательно не поддерживается.
type Storage interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	SaveDecision(ctx context.Context, market string, decision models.Decision, sentiment *models.SentimentIndex) error
	SaveOrder(ctx context.Context, order *models.OrderResult) error
	Close()
}

// Noop заглушка при выключенной телеметрии
type Noop struct{}

func (Noop) SaveCandles(context.Context, []*models.Candle) error { return nil }

func (Noop) SaveDecision(context.Context, string, models.Decision, *models.SentimentIndex) error {
	return nil
}

func (Noop) SaveOrder(context.Context, *models.OrderResult) error { return nil }

func (Noop) Close() {}
