package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle представляет свечу OHLCV
type Candle struct {
	Market    string
	Interval  string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// IndicatorSet представляет набор индикаторов для одной свечи.
// Значения рассчитываются только по барам с индексом не выше текущего.
type IndicatorSet struct {
	MA5        float64
	MA20       float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	UpperBB    float64
	LowerBB    float64
}

// Ticker представляет текущие котировки по рынку
type Ticker struct {
	Market string
	Bid    float64
	Ask    float64
	Last   float64
}

// OrderBookLevel представляет уровень стакана
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBook представляет стакан заявок
type OrderBook struct {
	Market    string
	Timestamp time.Time
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// Balance представляет баланс по одной валюте
type Balance struct {
	Currency  string
	Total     decimal.Decimal
	Locked    decimal.Decimal
	Available decimal.Decimal
}

// Side сторона ордера
type Side string

const (
	SideBuy  Side = "bid"
	SideSell Side = "ask"
)

// OrderResult представляет результат исполнения рыночного ордера
type OrderResult struct {
	OrderID      string
	Market       string
	Side         Side
	FilledPrice  decimal.Decimal
	FilledAmount decimal.Decimal
	Fee          decimal.Decimal
	CreatedAt    time.Time
}

// SentimentIndex представляет индекс страха и жадности (0-100).
// Отсутствие значения моделируется nil-указателем, а не нулем.
type SentimentIndex struct {
	Value     int
	Timestamp time.Time
}

// Action дискретное торговое решение
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Reason код причины решения
type Reason string

const (
	ReasonMACross   Reason = "ma_cross"    // MA5 против MA20
	ReasonRSI       Reason = "rsi"         // перепроданность / перекупленность
	ReasonMACD      Reason = "macd"        // MACD против сигнальной линии
	ReasonBollinger Reason = "bollinger"   // пробой полосы Боллинджера
	ReasonSentiment Reason = "sentiment"   // экстремум индекса страха и жадности
	ReasonAdvisor   Reason = "advisor"     // решение внешнего советника
	ReasonHoldLimit Reason = "hold_streak" // принудительная покупка после серии hold
)

// Decision представляет решение стратегии
type Decision struct {
	Action  Action
	Reasons []Reason
	RawText string // свободный текст советника, пустой для правил
	Final   bool   // после исполнения цикл должен завершиться
}

// PositionEntry представляет одну покупку в рамках открытой позиции
type PositionEntry struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
	Fee    decimal.Decimal
	Time   time.Time
}
