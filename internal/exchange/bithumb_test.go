package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/skalibog/btma/internal/config"
)

// newTestClient создает клиент, направленный на тестовый сервер
func newTestClient(t *testing.T, serverURL, apiVersion string) *BithumbClient {
	t.Helper()
	client, err := NewBithumbClient(config.BithumbConfig{
		AccessKey:  "access",
		SecretKey:  fixtureSecret,
		BaseURL:    serverURL,
		APIVersion: apiVersion,
	}, 0.0004)
	if err != nil {
		t.Fatalf("NewBithumbClient: %v", err)
	}
	return client
}

func TestV1BalanceParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts" {
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Error("нет Bearer-токена в запросе баланса")
		}
		w.Write([]byte(`[
			{"currency":"KRW","balance":"150000.5","locked":"50000.5"},
			{"currency":"BTC","balance":"0.01","locked":"0"}
		]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "v1")
	balance, err := client.GetBalance(context.Background(), "KRW")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}

	if got := balance.Available.String(); got != "100000" {
		t.Errorf("Available = %s, ожидалось 100000", got)
	}
	if got := balance.Total.String(); got != "150000.5" {
		t.Errorf("Total = %s", got)
	}
}

func TestV1BalanceUnknownCurrencyIsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"currency":"KRW","balance":"1000","locked":"0"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "v1")
	balance, err := client.GetBalance(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	// Валюта без счета: подтвержденный нулевой баланс, не ошибка
	if !balance.Available.IsZero() {
		t.Errorf("Available = %s", balance.Available)
	}
}

func TestV1BalanceUnavailableOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "v1")
	_, err := client.GetBalance(context.Background(), "KRW")
	if !errors.Is(err, ErrBalanceUnavailable) {
		t.Errorf("ожидался ErrBalanceUnavailable, получено %v", err)
	}
	var transient *TransientNetworkError
	if !errors.As(err, &transient) {
		t.Errorf("5xx должен классифицироваться как TransientNetworkError: %v", err)
	}
}

func TestV1BuyMarket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/orderbook":
			w.Write([]byte(`[{"market":"KRW-BTC","orderbook_units":[{"ask_price":100000000,"bid_price":99990000,"ask_size":1,"bid_size":1}]}]`))
		case "/v1/orders":
			if r.Method != http.MethodPost {
				t.Errorf("метод %s", r.Method)
			}
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				t.Error("нет Bearer-токена при размещении ордера")
			}
			w.Write([]byte(`{"uuid":"order-1","side":"bid","ord_type":"price","price":"10000","state":"wait","market":"KRW-BTC","paid_fee":"4","executed_volume":"0"}`))
		default:
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "v1")
	order, err := client.BuyMarket(context.Background(), "KRW-BTC", decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("BuyMarket: %v", err)
	}

	if order.OrderID != "order-1" {
		t.Errorf("OrderID = %q", order.OrderID)
	}
	if got := order.FilledPrice.String(); got != "100000000" {
		t.Errorf("FilledPrice = %s", got)
	}
	if got := order.FilledAmount.String(); got != "0.0001" {
		t.Errorf("FilledAmount = %s", got)
	}
	if got := order.Fee.String(); got != "4" {
		t.Errorf("Fee = %s", got)
	}
}

func TestV1OrderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/orderbook":
			w.Write([]byte(`[{"market":"KRW-BTC","orderbook_units":[{"ask_price":100000000,"bid_price":99990000,"ask_size":1,"bid_size":1}]}]`))
		case "/v1/orders":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"name":"insufficient_funds","message":"주문가능한 금액이 부족합니다."}}`))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "v1")
	_, err := client.BuyMarket(context.Background(), "KRW-BTC", decimal.NewFromInt(10000))

	var rejected *OrderRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("ожидался OrderRejected, получено %v", err)
	}
	if rejected.Status != "insufficient_funds" {
		t.Errorf("Status = %q", rejected.Status)
	}
}

func TestLegacyEnvelopeStatusCheck(t *testing.T) {
	// HTTP 200 с кодом статуса не-0000 обязан считаться отказом
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/orderbook":
			w.Write([]byte(`[{"market":"KRW-BTC","orderbook_units":[{"ask_price":100000000,"bid_price":99990000,"ask_size":1,"bid_size":1}]}]`))
		case "/trade/market_buy":
			if r.Header.Get("Api-Key") == "" || r.Header.Get("Api-Sign") == "" || r.Header.Get("Api-Nonce") == "" {
				t.Error("нет HMAC-заголовков в приватном запросе")
			}
			w.Write([]byte(`{"status":"5600","message":"잔액이 부족합니다"}`))
		default:
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "legacy")
	_, err := client.BuyMarket(context.Background(), "KRW-BTC", decimal.NewFromInt(10000))

	var rejected *OrderRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("ожидался OrderRejected, получено %v", err)
	}
	if rejected.Status != "5600" {
		t.Errorf("Status = %q", rejected.Status)
	}
}

func TestLegacyBuyCollectsFills(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/orderbook":
			w.Write([]byte(`[{"market":"KRW-BTC","orderbook_units":[{"ask_price":100000000,"bid_price":99990000,"ask_size":1,"bid_size":1}]}]`))
		case "/trade/market_buy":
			w.Write([]byte(`{"status":"0000","order_id":"legacy-1"}`))
		case "/info/order_detail":
			w.Write([]byte(`{"status":"0000","data":{"order_status":"Completed","contract":[
				{"price":"99990000","units":"0.00005","fee":"2"},
				{"price":"100010000","units":"0.00005","fee":"2"}
			]}}`))
		default:
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "legacy")
	order, err := client.BuyMarket(context.Background(), "KRW-BTC", decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("BuyMarket: %v", err)
	}

	if order.OrderID != "legacy-1" {
		t.Errorf("OrderID = %q", order.OrderID)
	}
	// Средневзвешенная цена двух сделок равного объема
	if got := order.FilledPrice.String(); got != "100000000" {
		t.Errorf("FilledPrice = %s", got)
	}
	if got := order.FilledAmount.String(); got != "0.0001" {
		t.Errorf("FilledAmount = %s", got)
	}
	if got := order.Fee.String(); got != "4" {
		t.Errorf("Fee = %s", got)
	}
}

func TestLegacyBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info/balance" {
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"0000","data":{"total_btc":"0.005","available_btc":"0.004","total_krw":"100000","available_krw":"100000"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "legacy")
	balance, err := client.GetBalance(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got := balance.Available.String(); got != "0.004" {
		t.Errorf("Available = %s", got)
	}
	if got := balance.Locked.String(); got != "0.001" {
		t.Errorf("Locked = %s", got)
	}
}

func TestGetCandlesAscending(t *testing.T) {
	// API отдает свечи новыми вперед, клиент разворачивает по возрастанию
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/candles/minutes/60" {
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"market":"KRW-BTC","timestamp":1700003600000,"opening_price":101,"high_price":103,"low_price":100,"trade_price":102,"candle_acc_trade_volume":2.5},
			{"market":"KRW-BTC","timestamp":1700000000000,"opening_price":100,"high_price":102,"low_price":99,"trade_price":101,"candle_acc_trade_volume":1.5}
		]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "v1")
	candles, err := client.GetCandles(context.Background(), "KRW-BTC", "hour1", 2)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("len = %d", len(candles))
	}
	if !candles[0].Timestamp.Before(candles[1].Timestamp) {
		t.Error("свечи не отсортированы по возрастанию времени")
	}
	if candles[0].Close != 101 || candles[1].Close != 102 {
		t.Errorf("цены закрытия: %v, %v", candles[0].Close, candles[1].Close)
	}
}

func TestGetTickerComposesQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/ticker":
			w.Write([]byte(`[{"market":"KRW-BTC","trade_price":100500000}]`))
		case "/v1/orderbook":
			w.Write([]byte(`[{"market":"KRW-BTC","orderbook_units":[{"ask_price":100510000,"bid_price":100490000,"ask_size":1,"bid_size":1}]}]`))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "v1")
	ticker, err := client.GetTicker(context.Background(), "KRW-BTC")
	if err != nil {
		t.Fatalf("GetTicker: %v", err)
	}
	if ticker.Last != 100500000 || ticker.Ask != 100510000 || ticker.Bid != 100490000 {
		t.Errorf("ticker = %+v", ticker)
	}
}

func TestQuoteUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "v1")
	_, err := client.GetTicker(context.Background(), "KRW-BTC")
	if !errors.Is(err, ErrQuoteUnavailable) {
		t.Errorf("ожидался ErrQuoteUnavailable, получено %v", err)
	}
}

func TestV1GetOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" || r.Method != http.MethodGet {
			t.Errorf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Error("нет Bearer-токена в запросе ордеров")
		}
		q := r.URL.Query()
		if q.Get("market") != "KRW-BTC" || q.Get("limit") != "5" {
			t.Errorf("параметры запроса: %v", q)
		}
		if q.Get("page") != "1" || q.Get("order_by") != "desc" {
			t.Errorf("параметры листания: %v", q)
		}
		w.Write([]byte(`[
			{"uuid":"order-2","side":"ask","market":"KRW-BTC","price":"101000000","volume":"0.0002","executed_volume":"0.0002","paid_fee":"8.08","state":"done"},
			{"uuid":"order-1","side":"bid","market":"KRW-BTC","price":"100000000","volume":"0.0003","executed_volume":"","reserved_fee":"4","state":"wait"}
		]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "v1")
	orders, err := client.GetOrders(context.Background(), "KRW-BTC", 5)
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("получено %d ордеров", len(orders))
	}

	if orders[0].OrderID != "order-2" || orders[0].Side != "ask" {
		t.Errorf("первый ордер: %+v", orders[0])
	}
	if got := orders[0].Fee.String(); got != "8.08" {
		t.Errorf("fee = %s", got)
	}
	// Без исполненного объема остается заявленный
	if got := orders[1].FilledAmount.String(); got != "0.0003" {
		t.Errorf("amount = %s", got)
	}
}
