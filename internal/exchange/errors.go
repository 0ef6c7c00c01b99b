package exchange

import (
	"errors"
	"fmt"
)

// Ошибки конфигурации и подписи фатальны на старте,
// все остальные обрабатываются на границе торгового цикла.
var (
	// ErrNoCredentials отсутствующие или пустые ключи API
	ErrNoCredentials = errors.New("не заданы ключи API")

	// ErrBalanceUnavailable баланс недоступен, вызывающий не должен считать его нулевым
	ErrBalanceUnavailable = errors.New("баланс недоступен")

	// ErrQuoteUnavailable котировки недоступны
	ErrQuoteUnavailable = errors.New("котировки недоступны")
)

// SigningError представляет ошибку подписи запроса (некорректный ключ)
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("ошибка подписи запроса: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// TransientNetworkError представляет сетевую ошибку (таймаут, 5xx, обрыв).
// Повтор на следующем цикле безопасен для чтения, но не для размещения
// ордера: заявка могла остаться на бирже, клиент этого не знает.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("сетевая ошибка %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// OrderRejected представляет отказ биржи в размещении ордера.
// HTTP 200 не означает успех: проверяется код статуса в теле ответа.
type OrderRejected struct {
	Status  string
	Message string
}

func (e *OrderRejected) Error() string {
	return fmt.Sprintf("ордер отклонен биржей: %s (код %s)", e.Message, e.Status)
}
