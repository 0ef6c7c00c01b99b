package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/btma/internal/config"
	"github.com/skalibog/btma/pkg/models"
)

// requestTimeout ограничивает каждый HTTP-вызов к бирже
const requestTimeout = 10 * time.Second

// BithumbClient клиент для взаимодействия с Bithumb.
// Приватные запросы подписываются через JWT (новый API /v1)
// или HMAC (старый API /info, /trade) в зависимости от api_version.
type BithumbClient struct {
	baseURL string
	http    *http.Client
	hmac    *HMACSigner
	jwt     *JWTSigner
	legacy  bool
	feeRate decimal.Decimal
}

// NewBithumbClient создает новый клиент Bithumb.
// Отсутствие ключей и некорректный секрет фатальны до первого сетевого вызова.
func NewBithumbClient(cfg config.BithumbConfig, feeRate float64) (*BithumbClient, error) {
	hmacSigner, err := NewHMACSigner(cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		// Для старой схемы секрет обязан быть base64; для новой это не требуется,
		// но один и тот же ключ Bithumb подходит обеим.
		return nil, err
	}
	jwtSigner, err := NewJWTSigner(cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	return &BithumbClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		hmac:    hmacSigner,
		jwt:     jwtSigner,
		legacy:  cfg.APIVersion == "legacy",
		feeRate: decimal.NewFromFloat(feeRate),
	}, nil
}

// v1Candle представляет свечу в ответе нового API
type v1Candle struct {
	Market     string  `json:"market"`
	Timestamp  int64   `json:"timestamp"`
	Open       float64 `json:"opening_price"`
	High       float64 `json:"high_price"`
	Low        float64 `json:"low_price"`
	Close      float64 `json:"trade_price"`
	Volume     float64 `json:"candle_acc_trade_volume"`
}

// GetCandles получает исторические свечи (публичный API, новые — первыми,
// результат разворачивается по возрастанию времени)
func (c *BithumbClient) GetCandles(ctx context.Context, market, interval string, count int) ([]*models.Candle, error) {
	path, err := candlePath(interval)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("market", market)
	params.Set("count", fmt.Sprintf("%d", count))

	var raw []v1Candle
	if err := c.getPublic(ctx, path, params, &raw); err != nil {
		return nil, err
	}

	candles := make([]*models.Candle, len(raw))
	for i, k := range raw {
		candles[len(raw)-1-i] = &models.Candle{
			Market:    market,
			Interval:  interval,
			Timestamp: time.UnixMilli(k.Timestamp),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		}
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

// candlePath переводит интервал конфигурации в путь API свечей
func candlePath(interval string) (string, error) {
	switch interval {
	case "day":
		return "/v1/candles/days", nil
	case "week":
		return "/v1/candles/weeks", nil
	case "month":
		return "/v1/candles/months", nil
	case "hour1":
		return "/v1/candles/minutes/60", nil
	case "hour4":
		return "/v1/candles/minutes/240", nil
	}
	if unit, ok := strings.CutPrefix(interval, "minute"); ok {
		return "/v1/candles/minutes/" + unit, nil
	}
	return "", fmt.Errorf("неизвестный интервал свечей: %q", interval)
}

// GetTicker получает текущие котировки: последняя цена из тикера,
// лучшие bid и ask из стакана
func (c *BithumbClient) GetTicker(ctx context.Context, market string) (*models.Ticker, error) {
	params := url.Values{}
	params.Set("markets", market)

	var tickers []struct {
		Market     string  `json:"market"`
		TradePrice float64 `json:"trade_price"`
	}
	if err := c.getPublic(ctx, "/v1/ticker", params, &tickers); err != nil {
		return nil, errors.Join(ErrQuoteUnavailable, err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: пустой ответ тикера для %s", ErrQuoteUnavailable, market)
	}

	ob, err := c.GetOrderBook(ctx, market)
	if err != nil {
		return nil, err
	}
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return nil, fmt.Errorf("%w: пустой стакан для %s", ErrQuoteUnavailable, market)
	}

	return &models.Ticker{
		Market: market,
		Bid:    ob.Bids[0].Price,
		Ask:    ob.Asks[0].Price,
		Last:   tickers[0].TradePrice,
	}, nil
}

// GetOrderBook получает стакан заявок
func (c *BithumbClient) GetOrderBook(ctx context.Context, market string) (*models.OrderBook, error) {
	params := url.Values{}
	params.Set("markets", market)

	var raw []struct {
		Market string `json:"market"`
		Units  []struct {
			AskPrice float64 `json:"ask_price"`
			BidPrice float64 `json:"bid_price"`
			AskSize  float64 `json:"ask_size"`
			BidSize  float64 `json:"bid_size"`
		} `json:"orderbook_units"`
	}
	if err := c.getPublic(ctx, "/v1/orderbook", params, &raw); err != nil {
		return nil, errors.Join(ErrQuoteUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: пустой ответ стакана для %s", ErrQuoteUnavailable, market)
	}

	ob := &models.OrderBook{
		Market:    market,
		Timestamp: time.Now(),
		Bids:      make([]models.OrderBookLevel, len(raw[0].Units)),
		Asks:      make([]models.OrderBookLevel, len(raw[0].Units)),
	}
	for i, u := range raw[0].Units {
		ob.Bids[i] = models.OrderBookLevel{Price: u.BidPrice, Amount: u.BidSize}
		ob.Asks[i] = models.OrderBookLevel{Price: u.AskPrice, Amount: u.AskSize}
	}
	return ob, nil
}

// GetBalance получает доступный баланс по валюте.
// При любой ошибке вызывающий не должен подставлять ноль.
func (c *BithumbClient) GetBalance(ctx context.Context, currency string) (*models.Balance, error) {
	if c.legacy {
		return c.legacyBalance(ctx, currency)
	}
	return c.v1Balance(ctx, currency)
}

// BuyMarket размещает рыночную покупку на фиксированную сумму в KRW
func (c *BithumbClient) BuyMarket(ctx context.Context, market string, krwAmount decimal.Decimal) (*models.OrderResult, error) {
	if c.legacy {
		return c.legacyBuyMarket(ctx, market, krwAmount)
	}
	return c.v1BuyMarket(ctx, market, krwAmount)
}

// SellMarket размещает рыночную продажу указанного объема базовой валюты
func (c *BithumbClient) SellMarket(ctx context.Context, market string, volume decimal.Decimal) (*models.OrderResult, error) {
	if c.legacy {
		return c.legacySellMarket(ctx, market, volume)
	}
	return c.v1SellMarket(ctx, market, volume)
}

// getPublic выполняет GET-запрос публичного API и декодирует JSON-ответ
func (c *BithumbClient) getPublic(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("ошибка формирования запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientNetworkError{Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &TransientNetworkError{Op: "GET " + path, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d от %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ошибка разбора ответа %s: %w", path, err)
	}
	return nil
}

// readBody читает тело ответа с разумным ограничением размера
func readBody(r io.Reader) []byte {
	b, _ := io.ReadAll(io.LimitReader(r, 1<<16))
	return b
}
