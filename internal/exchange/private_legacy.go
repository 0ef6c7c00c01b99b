package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/btma/pkg/models"
)

// legacyStatusOK код успеха в конверте старого API.
// HTTP 200 сам по себе успехом не является.
const legacyStatusOK = "0000"

// legacyEnvelope представляет конверт ответа старого API
type legacyEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	OrderID string          `json:"order_id"`
}

// legacyContract представляет одну сделку в ответе /info/order_detail
type legacyContract struct {
	Price string `json:"price"`
	Units string `json:"units"`
	Fee   string `json:"fee"`
}

// legacyCurrencies разбирает KRW-BTC на валюту ордера и валюту платежа
func legacyCurrencies(market string) (orderCurrency, paymentCurrency string) {
	parts := strings.SplitN(market, "-", 2)
	if len(parts) != 2 {
		return market, "KRW"
	}
	return parts[1], parts[0]
}

// legacyBalance получает баланс через /info/balance (HMAC)
func (c *BithumbClient) legacyBalance(ctx context.Context, currency string) (*models.Balance, error) {
	params := url.Values{}
	params.Set("currency", strings.ToUpper(currency))

	data, err := c.doLegacy(ctx, "/info/balance", params)
	if err != nil {
		return nil, errors.Join(ErrBalanceUnavailable, err)
	}

	// Поля data именуются по валюте: total_btc, available_btc и так далее
	var fields map[string]json.Number
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: ошибка разбора баланса: %v", ErrBalanceUnavailable, err)
	}

	suffix := strings.ToLower(currency)
	total, err := decimal.NewFromString(string(fields["total_"+suffix]))
	if err != nil {
		return nil, fmt.Errorf("%w: нет поля total_%s", ErrBalanceUnavailable, suffix)
	}
	available := total
	if raw, ok := fields["available_"+suffix]; ok {
		if parsed, err := decimal.NewFromString(string(raw)); err == nil {
			available = parsed
		}
	}

	return &models.Balance{
		Currency:  strings.ToUpper(currency),
		Total:     total,
		Locked:    total.Sub(available),
		Available: available,
	}, nil
}

// legacyBuyMarket размещает рыночную покупку через /trade/market_buy.
// Старый API принимает объем в базовой валюте, поэтому сумма KRW
// пересчитывается по лучшему ask; сделки добираются из /info/order_detail.
func (c *BithumbClient) legacyBuyMarket(ctx context.Context, market string, krwAmount decimal.Decimal) (*models.OrderResult, error) {
	ob, err := c.GetOrderBook(ctx, market)
	if err != nil {
		return nil, err
	}
	if len(ob.Asks) == 0 {
		return nil, fmt.Errorf("%w: нет заявок на продажу в стакане %s", ErrQuoteUnavailable, market)
	}
	askPrice := decimal.NewFromFloat(ob.Asks[0].Price)
	units := krwAmount.Div(askPrice).Round(8)

	return c.legacyMarketOrder(ctx, "/trade/market_buy", market, models.SideBuy, units, askPrice, krwAmount)
}

// legacySellMarket размещает рыночную продажу через /trade/market_sell
func (c *BithumbClient) legacySellMarket(ctx context.Context, market string, volume decimal.Decimal) (*models.OrderResult, error) {
	ticker, err := c.GetTicker(ctx, market)
	if err != nil {
		return nil, err
	}
	lastPrice := decimal.NewFromFloat(ticker.Last)

	return c.legacyMarketOrder(ctx, "/trade/market_sell", market, models.SideSell, volume, lastPrice, lastPrice.Mul(volume))
}

// legacyMarketOrder размещает рыночный ордер и собирает результат исполнения
func (c *BithumbClient) legacyMarketOrder(ctx context.Context, path, market string, side models.Side, units, estimatedPrice, notional decimal.Decimal) (*models.OrderResult, error) {
	orderCurrency, paymentCurrency := legacyCurrencies(market)

	params := url.Values{}
	params.Set("units", units.String())
	params.Set("order_currency", orderCurrency)
	params.Set("payment_currency", paymentCurrency)

	var envelope legacyEnvelope
	if _, err := c.doLegacyRaw(ctx, path, params, &envelope); err != nil {
		return nil, err
	}

	result := &models.OrderResult{
		OrderID:      envelope.OrderID,
		Market:       market,
		Side:         side,
		FilledPrice:  estimatedPrice,
		FilledAmount: units,
		Fee:          notional.Mul(c.feeRate),
		CreatedAt:    time.Now(),
	}

	// Фактические сделки уточняются из деталей ордера; если детали
	// недоступны, остается оценка по стакану — ордер уже размещен,
	// и повторять его из-за ошибки чтения нельзя
	if fills, err := c.OrderDetail(ctx, envelope.OrderID, market); err == nil && fills != nil {
		result.FilledPrice = fills.FilledPrice
		result.FilledAmount = fills.FilledAmount
		result.Fee = fills.Fee
	}

	return result, nil
}

// OrderDetail получает агрегированные сделки ордера через /info/order_detail (HMAC)
func (c *BithumbClient) OrderDetail(ctx context.Context, orderID, market string) (*models.OrderResult, error) {
	orderCurrency, paymentCurrency := legacyCurrencies(market)

	params := url.Values{}
	params.Set("order_id", orderID)
	params.Set("order_currency", orderCurrency)
	params.Set("payment_currency", paymentCurrency)

	data, err := c.doLegacy(ctx, "/info/order_detail", params)
	if err != nil {
		return nil, err
	}

	var detail struct {
		OrderStatus string           `json:"order_status"`
		Contracts   []legacyContract `json:"contract"`
	}
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("ошибка разбора деталей ордера: %w", err)
	}
	if len(detail.Contracts) == 0 {
		return nil, nil
	}

	// Средневзвешенная цена по всем сделкам ордера
	totalUnits := decimal.Zero
	totalCost := decimal.Zero
	totalFee := decimal.Zero
	for _, contract := range detail.Contracts {
		price, err := decimal.NewFromString(contract.Price)
		if err != nil {
			continue
		}
		units, err := decimal.NewFromString(contract.Units)
		if err != nil {
			continue
		}
		totalUnits = totalUnits.Add(units)
		totalCost = totalCost.Add(price.Mul(units))
		if fee, err := decimal.NewFromString(contract.Fee); err == nil {
			totalFee = totalFee.Add(fee)
		}
	}
	if totalUnits.IsZero() {
		return nil, nil
	}

	return &models.OrderResult{
		OrderID:      orderID,
		Market:       market,
		FilledPrice:  totalCost.Div(totalUnits),
		FilledAmount: totalUnits,
		Fee:          totalFee,
	}, nil
}

// doLegacy выполняет подписанный HMAC-запрос старого API и возвращает поле data
func (c *BithumbClient) doLegacy(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	var envelope legacyEnvelope
	return c.doLegacyRaw(ctx, path, params, &envelope)
}

// doLegacyRaw выполняет запрос старого API с проверкой конверта статуса
func (c *BithumbClient) doLegacyRaw(ctx context.Context, path string, params url.Values, envelope *legacyEnvelope) (json.RawMessage, error) {
	headers, err := c.hmac.Sign(http.MethodPost, path, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientNetworkError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &TransientNetworkError{Op: "POST " + path, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	if err := json.Unmarshal(readBody(resp.Body), envelope); err != nil {
		return nil, fmt.Errorf("ошибка разбора конверта %s: %w", path, err)
	}
	if envelope.Status != legacyStatusOK {
		return nil, &OrderRejected{Status: envelope.Status, Message: envelope.Message}
	}
	return envelope.Data, nil
}
