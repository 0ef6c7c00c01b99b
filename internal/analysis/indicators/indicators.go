package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/btma/pkg/models"
)

// Периоды индикаторов из исходной стратегии
const (
	maFastPeriod  = 5
	maSlowPeriod  = 20
	rsiPeriod     = 14
	macdFast      = 12
	macdSlow      = 26
	macdSignal    = 9
	bbPeriod      = 20
	bbDeviation   = 2.0
)

// MinBars минимальное число свечей для полного набора индикаторов
const MinBars = macdSlow + macdSignal

// Compute рассчитывает набор индикаторов для каждой свечи серии.
// Значения для бара i зависят только от баров с индексом не выше i:
// все функции talib смотрят строго назад.
func Compute(candles []*models.Candle) ([]models.IndicatorSet, error) {
	if len(candles) < MinBars {
		return nil, fmt.Errorf("недостаточно данных для анализа: %d свечей, требуется %d", len(candles), MinBars)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	ma5 := talib.Sma(closes, maFastPeriod)
	ma20 := talib.Sma(closes, maSlowPeriod)
	rsi := talib.Rsi(closes, rsiPeriod)
	macd, signal, _ := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	upper, _, lower := talib.BBands(closes, bbPeriod, bbDeviation, bbDeviation, talib.SMA)

	sets := make([]models.IndicatorSet, len(candles))
	for i := range candles {
		sets[i] = models.IndicatorSet{
			MA5:        ma5[i],
			MA20:       ma20[i],
			RSI:        rsi[i],
			MACD:       macd[i],
			MACDSignal: signal[i],
			UpperBB:    upper[i],
			LowerBB:    lower[i],
		}
	}
	return sets, nil
}
