package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
	"github.com/skalibog/btma/internal/analysis/indicators"
	"github.com/skalibog/btma/internal/config"
	"github.com/skalibog/btma/internal/exchange"
	"github.com/skalibog/btma/internal/storage"
	"github.com/skalibog/btma/internal/strategy"
	"github.com/skalibog/btma/pkg/logger"
	"github.com/skalibog/btma/pkg/models"
	"go.uber.org/zap"
)

// Exchange операции биржи, нужные торговому циклу
type Exchange interface {
	GetCandles(ctx context.Context, market, interval string, count int) ([]*models.Candle, error)
	GetTicker(ctx context.Context, market string) (*models.Ticker, error)
	GetBalance(ctx context.Context, currency string) (*models.Balance, error)
	BuyMarket(ctx context.Context, market string, krwAmount decimal.Decimal) (*models.OrderResult, error)
	SellMarket(ctx context.Context, market string, volume decimal.Decimal) (*models.OrderResult, error)
}

// SentimentSource опциональный источник индекса настроений
type SentimentSource interface {
	Fetch(ctx context.Context) (*models.SentimentIndex, error)
}

// recentOrderLister опциональная возможность биржи перечислять
// последние ордера рынка
type recentOrderLister interface {
	GetOrders(ctx context.Context, market string, limit int) ([]models.OrderResult, error)
}

// recentOrdersLimit сколько последних ордеров запрашивается для сверки
const recentOrdersLimit = 5

// errShutdown сигнал штатного завершения цикла после финального решения
var errShutdown = errors.New("завершение торгового цикла")

// errSkipCycle сигнал пропуска цикла без наращивания паузы ошибок
var errSkipCycle = errors.New("цикл пропущен")

// Status снимок состояния для терминального интерфейса
type Status struct {
	Market       string
	QuoteBalance decimal.Decimal
	BaseBalance  decimal.Decimal
	LastPrice    float64
	LastDecision models.Decision
	TradesToday  int
	PositionSize int
	InvestedKRW  decimal.Decimal
	UpdatedAt    time.Time
}

// Loop торговый цикл: получение данных, решение, защитные проверки,
// исполнение, пауза. Однопоточный — следующий цикл начинается только
// после полного завершения предыдущего.
type Loop struct {
	cfg       config.TradingConfig
	exchange  Exchange
	sentiment SentimentSource
	strategy  strategy.Strategy
	session   *Session
	store     storage.Storage
	onStatus  func(Status)

	quoteCurrency string
	baseCurrency  string
}

// NewLoop создает торговый цикл
func NewLoop(cfg config.TradingConfig, ex Exchange, sent SentimentSource, strat strategy.Strategy, session *Session, store storage.Storage) *Loop {
	quote, base := splitMarket(cfg.Market)
	return &Loop{
		cfg:           cfg,
		exchange:      ex,
		sentiment:     sent,
		strategy:      strat,
		session:       session,
		store:         store,
		quoteCurrency: quote,
		baseCurrency:  base,
	}
}

// OnStatus регистрирует получателя снимков состояния (терминальный UI)
func (l *Loop) OnStatus(fn func(Status)) {
	l.onStatus = fn
}

// splitMarket разбирает KRW-BTC на валюту котировки и базовую валюту
func splitMarket(market string) (quote, base string) {
	parts := strings.SplitN(market, "-", 2)
	if len(parts) != 2 {
		return "KRW", market
	}
	return parts[0], parts[1]
}

// Run крутит цикл до отмены контекста или финального решения стратегии.
// Ошибка одного цикла никогда не останавливает цикл: она логируется,
// затем следует пауза с экспоненциальным ростом.
func (l *Loop) Run(ctx context.Context) error {
	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	logger.Info("Торговый цикл запущен",
		zap.String("market", l.cfg.Market),
		zap.String("interval", l.cfg.Interval),
		zap.Float64("fixed_buy_krw", l.cfg.FixedBuyKRW),
		zap.Int("max_daily_trades", l.cfg.MaxDailyTrades))

	for {
		err := l.runCycle(ctx)
		switch {
		case errors.Is(err, errShutdown):
			logger.Info("Торговый цикл завершен по решению стратегии")
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		case errors.Is(err, errSkipCycle):
			if !sleep(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		case err != nil:
			pause := retry.Duration()
			logger.Error("Ошибка цикла, пауза перед повтором", zap.Error(err), zap.Duration("pause", pause))
			if !sleep(ctx, pause) {
				return ctx.Err()
			}
			continue
		}

		retry.Reset()
		if !sleep(ctx, l.cfg.CycleInterval()) {
			return ctx.Err()
		}
	}
}

// sleep ждет интервал или отмену контекста
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// runCycle выполняет один цикл: Fetching -> Deciding -> Executing.
// Паника внутри цикла перехватывается на его границе.
func (l *Loop) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в торговом цикле: %v", r)
		}
	}()

	if l.session.ResetDailyIfNeeded(time.Now()) {
		logger.Info("Суточный счетчик сделок сброшен", zap.String("market", l.cfg.Market))
	}

	// Fetching: без свечей решение не принимается
	candles, err := l.exchange.GetCandles(ctx, l.cfg.Market, l.cfg.Interval, l.cfg.CandleCount)
	if err != nil {
		logger.Warn("Свечи недоступны, цикл пропущен", zap.Error(err))
		return errSkipCycle
	}
	if len(candles) == 0 {
		logger.Warn("Пустая серия свечей, цикл пропущен")
		return errSkipCycle
	}
	if err := l.store.SaveCandles(ctx, candles); err != nil {
		logger.Warn("Не удалось сохранить свечи", zap.Error(err))
	}

	inds, err := indicators.Compute(candles)
	if err != nil {
		logger.Warn("Индикаторы не рассчитаны, цикл пропущен", zap.Error(err))
		return errSkipCycle
	}

	// Индекс настроений опционален: ошибка — отсутствие сигнала
	var sent *models.SentimentIndex
	if l.sentiment != nil {
		if s, err := l.sentiment.Fetch(ctx); err != nil {
			logger.Warn("Индекс страха и жадности недоступен", zap.Error(err))
		} else {
			sent = s
		}
	}

	// Deciding
	decision, err := l.strategy.Decide(ctx, candles, inds, sent)
	if err != nil {
		if !errors.Is(err, strategy.ErrAdviceUnavailable) {
			return fmt.Errorf("ошибка стратегии: %w", err)
		}
		// Недоступный советник равнозначен hold без причин
		logger.Warn("Советник недоступен, действие hold", zap.Error(err))
		decision = models.Decision{Action: models.ActionHold}
	}

	logger.Info("Решение стратегии",
		zap.String("market", l.cfg.Market),
		zap.String("action", string(decision.Action)),
		zap.Any("reasons", decision.Reasons),
		zap.String("raw", decision.RawText))

	if err := l.store.SaveDecision(ctx, l.cfg.Market, decision, sent); err != nil {
		logger.Warn("Не удалось сохранить решение", zap.Error(err))
	}

	// Executing
	switch decision.Action {
	case models.ActionBuy:
		if err := l.executeBuy(ctx, decision); err != nil {
			return err
		}
	case models.ActionSell:
		if err := l.executeSell(ctx, decision); err != nil {
			return err
		}
	}

	l.publishStatus(ctx, decision)

	if decision.Final {
		return errShutdown
	}
	return nil
}

// executeBuy проверяет защитные условия и размещает покупку.
// Все отказы логируются, но циклом не считаются ошибкой.
func (l *Loop) executeBuy(ctx context.Context, decision models.Decision) error {
	if l.session.TradesToday() >= l.cfg.MaxDailyTrades {
		logger.Info("Покупка отклонена: исчерпан суточный лимит сделок",
			zap.Int("trades_today", l.session.TradesToday()),
			zap.Int("limit", l.cfg.MaxDailyTrades))
		return nil
	}

	balance, err := l.exchange.GetBalance(ctx, l.quoteCurrency)
	if err != nil {
		// Недоступный баланс не считается нулевым: покупка просто не выполняется
		logger.Warn("Баланс недоступен, покупка пропущена", zap.Error(err))
		return nil
	}

	notional := decimal.NewFromFloat(l.cfg.FixedBuyKRW)
	if balance.Available.LessThan(notional) {
		// Ордер не размещается: до клиента биржи запрос не доходит
		logger.Info("Покупка отклонена: недостаточно средств",
			zap.String("available", balance.Available.String()),
			zap.String("required", notional.String()))
		return nil
	}

	order, err := l.exchange.BuyMarket(ctx, l.cfg.Market, notional)
	if err != nil {
		// Повтор после таймаута небезопасен: заявка могла остаться на бирже
		l.logOrderFailure(ctx, "покупки", err)
		return nil
	}

	l.session.RecordBuy(order)
	logger.Info("Рыночная покупка исполнена",
		zap.String("market", l.cfg.Market),
		zap.String("price", order.FilledPrice.String()),
		zap.String("amount", order.FilledAmount.String()),
		zap.String("fee", order.Fee.String()),
		zap.Int("trades_today", l.session.TradesToday()))

	if err := l.store.SaveOrder(ctx, order); err != nil {
		logger.Warn("Не удалось сохранить ордер", zap.Error(err))
	}
	return nil
}

// executeSell проверяет, что рыночная стоимость базовой валюты превышает
// минимум, и продает весь доступный остаток. Частичных продаж нет.
func (l *Loop) executeSell(ctx context.Context, decision models.Decision) error {
	balance, err := l.exchange.GetBalance(ctx, l.baseCurrency)
	if err != nil {
		logger.Warn("Баланс недоступен, продажа пропущена", zap.Error(err))
		return nil
	}
	if balance.Available.IsZero() {
		logger.Info("Продажа отклонена: нет доступного остатка", zap.String("currency", l.baseCurrency))
		return nil
	}

	ticker, err := l.exchange.GetTicker(ctx, l.cfg.Market)
	if err != nil {
		logger.Warn("Котировки недоступны, продажа пропущена", zap.Error(err))
		return nil
	}

	// Защита продажи сравнивает текущую стоимость позиции с минимумом,
	// защита покупки — доступные KRW с фиксированной суммой.
	// Асимметрия сознательная и выравниванию не подлежит.
	value := balance.Available.Mul(decimal.NewFromFloat(ticker.Last))
	minValue := decimal.NewFromFloat(l.cfg.MinSellKRW)
	if value.LessThan(minValue) {
		logger.Info("Продажа отклонена: стоимость позиции ниже минимума",
			zap.String("value", value.String()),
			zap.String("min", minValue.String()))
		return nil
	}

	order, err := l.exchange.SellMarket(ctx, l.cfg.Market, balance.Available)
	if err != nil {
		l.logOrderFailure(ctx, "продажи", err)
		return nil
	}

	profit := l.session.SettleSell(order)
	logger.Info("Рыночная продажа исполнена, позиция закрыта",
		zap.String("market", l.cfg.Market),
		zap.String("price", order.FilledPrice.String()),
		zap.String("amount", order.FilledAmount.String()),
		zap.String("fee", order.Fee.String()),
		zap.String("profit_krw", profit.StringFixed(2)))

	if err := l.store.SaveOrder(ctx, order); err != nil {
		logger.Warn("Не удалось сохранить ордер", zap.Error(err))
	}
	return nil
}

// logOrderFailure различает отказ биржи и сетевую ошибку.
// Ни то, ни другое не приводит к автоматическому повтору ордера.
func (l *Loop) logOrderFailure(ctx context.Context, op string, err error) {
	var rejected *exchange.OrderRejected
	var transient *exchange.TransientNetworkError
	switch {
	case errors.As(err, &rejected):
		logger.Error("Биржа отклонила ордер "+op, zap.Error(err))
	case errors.As(err, &transient):
		logger.Error("Сетевая ошибка при размещении ордера "+op+": судьба заявки неизвестна, повтор не выполняется", zap.Error(err))
		l.reportRecentOrders(ctx)
	default:
		logger.Error("Ошибка ордера "+op, zap.Error(err))
	}
}

// reportRecentOrders логирует последние ордера рынка для ручной сверки,
// когда судьба размещенной заявки неизвестна
func (l *Loop) reportRecentOrders(ctx context.Context) {
	lister, ok := l.exchange.(recentOrderLister)
	if !ok {
		return
	}

	orders, err := lister.GetOrders(ctx, l.cfg.Market, recentOrdersLimit)
	if err != nil {
		logger.Warn("Не удалось получить последние ордера для сверки", zap.Error(err))
		return
	}
	for _, o := range orders {
		logger.Info("Последний ордер на бирже",
			zap.String("order_id", o.OrderID),
			zap.String("side", string(o.Side)),
			zap.String("price", o.FilledPrice.String()),
			zap.String("amount", o.FilledAmount.String()))
	}
}

// publishStatus отдает снимок состояния получателю (если он есть)
func (l *Loop) publishStatus(ctx context.Context, decision models.Decision) {
	if l.onStatus == nil {
		return
	}

	status := Status{
		Market:       l.cfg.Market,
		LastDecision: decision,
		TradesToday:  l.session.TradesToday(),
		PositionSize: l.session.PositionSize(),
		InvestedKRW:  l.session.InvestedKRW(),
		UpdatedAt:    time.Now(),
	}
	if b, err := l.exchange.GetBalance(ctx, l.quoteCurrency); err == nil {
		status.QuoteBalance = b.Available
	}
	if b, err := l.exchange.GetBalance(ctx, l.baseCurrency); err == nil {
		status.BaseBalance = b.Available
	}
	if t, err := l.exchange.GetTicker(ctx, l.cfg.Market); err == nil {
		status.LastPrice = t.Last
	}

	l.onStatus(status)
}
