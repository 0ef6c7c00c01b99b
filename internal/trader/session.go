package trader

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/btma/pkg/models"
)

// Session изменяемое состояние процесса: открытая позиция и суточный
// счетчик сделок. Живет только в памяти — после рестарта позиция
// начинается с нуля, это осознанное ограничение, а не ошибка.
// Мьютекс нужен из-за чтения снимков из горутины UI.
type Session struct {
	mu          sync.Mutex
	position    []models.PositionEntry
	tradesToday int
	resetDate   time.Time // полночь даты последнего сброса
}

// NewSession создает пустое состояние сессии
func NewSession(now time.Time) *Session {
	return &Session{resetDate: midnight(now)}
}

// midnight обрезает время до начала календарной даты
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ResetDailyIfNeeded сбрасывает суточный счетчик при смене календарной
// даты. Повторные вызовы в пределах одной даты ничего не меняют.
// Возвращает true, если сброс произошел.
func (s *Session) ResetDailyIfNeeded(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := midnight(now)
	if !day.After(s.resetDate) {
		return false
	}
	s.resetDate = day
	s.tradesToday = 0
	return true
}

// TradesToday возвращает число покупок за текущие сутки
func (s *Session) TradesToday() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradesToday
}

// RecordBuy добавляет покупку в позицию и наращивает суточный счетчик
func (s *Session) RecordBuy(order *models.OrderResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.position = append(s.position, models.PositionEntry{
		Price:  order.FilledPrice,
		Amount: order.FilledAmount,
		Fee:    order.Fee,
		Time:   order.CreatedAt,
	})
	s.tradesToday++
}

// PositionSize возвращает число покупок в открытой позиции
func (s *Session) PositionSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.position)
}

// InvestedKRW возвращает суммарную стоимость покупок позиции без комиссий
func (s *Session) InvestedKRW() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, e := range s.position {
		total = total.Add(e.Price.Mul(e.Amount))
	}
	return total
}

// SettleSell закрывает позицию после успешной полной продажи и
// возвращает точную прибыль:
// выручка минус стоимость покупок минус все комиссии (покупок и продажи).
func (s *Session) SettleSell(order *models.OrderResult) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost := decimal.Zero
	fees := order.Fee
	for _, e := range s.position {
		cost = cost.Add(e.Price.Mul(e.Amount))
		fees = fees.Add(e.Fee)
	}

	proceeds := order.FilledPrice.Mul(order.FilledAmount)
	profit := proceeds.Sub(cost).Sub(fees)

	s.position = s.position[:0]
	return profit
}
