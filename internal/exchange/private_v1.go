package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/btma/pkg/models"
)

// v1Error представляет форму ошибки нового API.
// Поле name бывает и числом, и строкой.
type v1Error struct {
	Error struct {
		Name    interface{} `json:"name"`
		Message string      `json:"message"`
	} `json:"error"`
}

// v1Account представляет счет в ответе /v1/accounts
type v1Account struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
}

// v1Order представляет ордер в ответах /v1/orders
type v1Order struct {
	UUID           string `json:"uuid"`
	Side           string `json:"side"`
	OrdType        string `json:"ord_type"`
	Price          string `json:"price"`
	State          string `json:"state"`
	Market         string `json:"market"`
	CreatedAt      string `json:"created_at"`
	Volume         string `json:"volume"`
	ReservedFee    string `json:"reserved_fee"`
	PaidFee        string `json:"paid_fee"`
	ExecutedVolume string `json:"executed_volume"`
}

// v1Balance получает баланс через /v1/accounts (JWT)
func (c *BithumbClient) v1Balance(ctx context.Context, currency string) (*models.Balance, error) {
	var accounts []v1Account
	if err := c.doV1(ctx, http.MethodGet, "/v1/accounts", nil, &accounts); err != nil {
		return nil, errors.Join(ErrBalanceUnavailable, err)
	}

	for _, acc := range accounts {
		if acc.Currency != currency {
			continue
		}
		total, err := decimal.NewFromString(acc.Balance)
		if err != nil {
			return nil, fmt.Errorf("%w: некорректный баланс %q", ErrBalanceUnavailable, acc.Balance)
		}
		locked, err := decimal.NewFromString(acc.Locked)
		if err != nil {
			return nil, fmt.Errorf("%w: некорректное значение locked %q", ErrBalanceUnavailable, acc.Locked)
		}
		return &models.Balance{
			Currency:  currency,
			Total:     total,
			Locked:    locked,
			Available: total.Sub(locked),
		}, nil
	}

	// Валюта без счета: подтвержденный биржей нулевой баланс
	return &models.Balance{Currency: currency}, nil
}

// v1BuyMarket размещает рыночную покупку, размер задается в KRW (ord_type=price).
// Цена исполнения оценивается по лучшему ask до размещения, как в исходной
// стратегии: новый API не возвращает цену сделки в ответе на создание ордера.
func (c *BithumbClient) v1BuyMarket(ctx context.Context, market string, krwAmount decimal.Decimal) (*models.OrderResult, error) {
	ob, err := c.GetOrderBook(ctx, market)
	if err != nil {
		return nil, err
	}
	if len(ob.Asks) == 0 {
		return nil, fmt.Errorf("%w: нет заявок на продажу в стакане %s", ErrQuoteUnavailable, market)
	}
	askPrice := decimal.NewFromFloat(ob.Asks[0].Price)

	params := url.Values{}
	params.Set("market", market)
	params.Set("side", string(models.SideBuy))
	params.Set("price", krwAmount.String())
	params.Set("ord_type", "price")

	var order v1Order
	if err := c.doV1(ctx, http.MethodPost, "/v1/orders", params, &order); err != nil {
		return nil, err
	}

	fee := firstDecimal(order.PaidFee, order.ReservedFee)
	if fee.IsZero() {
		fee = krwAmount.Mul(c.feeRate)
	}

	return &models.OrderResult{
		OrderID:      order.UUID,
		Market:       market,
		Side:         models.SideBuy,
		FilledPrice:  askPrice,
		FilledAmount: krwAmount.Div(askPrice),
		Fee:          fee,
		CreatedAt:    time.Now(),
	}, nil
}

// v1SellMarket размещает рыночную продажу, размер задается объемом (ord_type=market)
func (c *BithumbClient) v1SellMarket(ctx context.Context, market string, volume decimal.Decimal) (*models.OrderResult, error) {
	ticker, err := c.GetTicker(ctx, market)
	if err != nil {
		return nil, err
	}
	lastPrice := decimal.NewFromFloat(ticker.Last)

	params := url.Values{}
	params.Set("market", market)
	params.Set("side", string(models.SideSell))
	params.Set("volume", volume.String())
	params.Set("ord_type", "market")

	var order v1Order
	if err := c.doV1(ctx, http.MethodPost, "/v1/orders", params, &order); err != nil {
		return nil, err
	}

	fee := firstDecimal(order.PaidFee, order.ReservedFee)
	if fee.IsZero() {
		fee = lastPrice.Mul(volume).Mul(c.feeRate)
	}

	return &models.OrderResult{
		OrderID:      order.UUID,
		Market:       market,
		Side:         models.SideSell,
		FilledPrice:  lastPrice,
		FilledAmount: volume,
		Fee:          fee,
		CreatedAt:    time.Now(),
	}, nil
}

// GetOrders возвращает последние ордера по рынку (новый API)
func (c *BithumbClient) GetOrders(ctx context.Context, market string, limit int) ([]models.OrderResult, error) {
	params := url.Values{}
	params.Set("market", market)
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("page", "1")
	params.Set("order_by", "desc")

	var orders []v1Order
	if err := c.doV1(ctx, http.MethodGet, "/v1/orders", params, &orders); err != nil {
		return nil, err
	}

	results := make([]models.OrderResult, 0, len(orders))
	for _, o := range orders {
		results = append(results, models.OrderResult{
			OrderID:      o.UUID,
			Market:       o.Market,
			Side:         models.Side(o.Side),
			FilledPrice:  firstDecimal(o.Price),
			FilledAmount: firstDecimal(o.ExecutedVolume, o.Volume),
			Fee:          firstDecimal(o.PaidFee, o.ReservedFee),
		})
	}
	return results, nil
}

// doV1 выполняет подписанный JWT-запрос нового API.
// GET передает параметры строкой запроса, POST — JSON-телом;
// в обоих случаях query_hash считается по той же строке параметров.
func (c *BithumbClient) doV1(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	headers, err := c.jwt.Sign(method, path, params)
	if err != nil {
		return err
	}

	reqURL := c.baseURL + path
	var body *bytes.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
		body = bytes.NewReader(nil)
	} else {
		payload := make(map[string]string, len(params))
		for k := range params {
			payload[k] = params.Get(k)
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("ошибка сериализации параметров: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("ошибка формирования запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientNetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &TransientNetworkError{Op: method + " " + path, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr v1Error
		if err := json.Unmarshal(readBody(resp.Body), &apiErr); err == nil && apiErr.Error.Message != "" {
			return &OrderRejected{Status: fmt.Sprint(apiErr.Error.Name), Message: apiErr.Error.Message}
		}
		return &OrderRejected{Status: fmt.Sprintf("%d", resp.StatusCode), Message: "запрос отклонен биржей"}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ошибка разбора ответа %s: %w", path, err)
	}
	return nil
}

// firstDecimal возвращает первое непустое и ненулевое значение из списка строк
func firstDecimal(values ...string) decimal.Decimal {
	for _, v := range values {
		if v == "" {
			continue
		}
		if d, err := decimal.NewFromString(v); err == nil && !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}
