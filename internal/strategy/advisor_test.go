package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skalibog/btma/internal/config"
	"github.com/skalibog/btma/pkg/models"
)

// advisorServer поднимает сервер, отвечающий как chat completions API
func advisorServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("метод %s", r.Method)
		}
		reply := map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		}
		json.NewEncoder(w).Encode(reply)
	}))
}

func newTestAdvisor(t *testing.T, serverURL string) *Advisor {
	t.Helper()
	advisor, err := NewAdvisor(config.AdvisorConfig{
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		BaseURL:     serverURL,
		Temperature: 0.2,
		Bars:        5,
	})
	if err != nil {
		t.Fatalf("NewAdvisor: %v", err)
	}
	return advisor
}

func advisorBars() ([]*models.Candle, []models.IndicatorSet) {
	candles := make([]*models.Candle, 6)
	inds := make([]models.IndicatorSet, 6)
	for i := range candles {
		candles[i] = &models.Candle{
			Market:    "KRW-BTC",
			Interval:  "hour1",
			Timestamp: time.Date(2026, 1, 1, i, 0, 0, 0, time.UTC),
			Open:      100, High: 110, Low: 95, Close: 105, Volume: 1,
		}
		inds[i] = models.IndicatorSet{MA5: 100, MA20: 100, RSI: 50, UpperBB: 110, LowerBB: 90}
	}
	return candles, inds
}

func TestAdvisorParsesDecision(t *testing.T) {
	server := advisorServer(t, `{"decision": "buy", "reason": "MA5>MA20, RSI 28"}`)
	defer server.Close()

	candles, inds := advisorBars()
	decision, err := newTestAdvisor(t, server.URL).Decide(context.Background(), candles, inds, &models.SentimentIndex{Value: 25})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if decision.Action != models.ActionBuy {
		t.Errorf("action = %s", decision.Action)
	}
	if decision.RawText != "MA5>MA20, RSI 28" {
		t.Errorf("raw = %q", decision.RawText)
	}
	if len(decision.Reasons) != 1 || decision.Reasons[0] != models.ReasonAdvisor {
		t.Errorf("reasons = %v", decision.Reasons)
	}
}

func TestAdvisorHoldHasNoReasons(t *testing.T) {
	server := advisorServer(t, `{"decision": "HOLD", "reason": "рынок без тренда"}`)
	defer server.Close()

	candles, inds := advisorBars()
	decision, err := newTestAdvisor(t, server.URL).Decide(context.Background(), candles, inds, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	// Регистр нормализуется, hold остается без кодов причин
	if decision.Action != models.ActionHold {
		t.Errorf("action = %s", decision.Action)
	}
	if len(decision.Reasons) != 0 {
		t.Errorf("reasons = %v", decision.Reasons)
	}
}

func TestAdvisorMalformedReplyUnavailable(t *testing.T) {
	server := advisorServer(t, `не json`)
	defer server.Close()

	candles, inds := advisorBars()
	_, err := newTestAdvisor(t, server.URL).Decide(context.Background(), candles, inds, nil)
	if !errors.Is(err, ErrAdviceUnavailable) {
		t.Errorf("ожидался ErrAdviceUnavailable, получено %v", err)
	}
}

func TestAdvisorUnknownActionUnavailable(t *testing.T) {
	server := advisorServer(t, `{"decision": "panic", "reason": "?"}`)
	defer server.Close()

	candles, inds := advisorBars()
	_, err := newTestAdvisor(t, server.URL).Decide(context.Background(), candles, inds, nil)
	if !errors.Is(err, ErrAdviceUnavailable) {
		t.Errorf("ожидался ErrAdviceUnavailable, получено %v", err)
	}
}

func TestAdvisorRemoteFailureUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer server.Close()

	candles, inds := advisorBars()
	_, err := newTestAdvisor(t, server.URL).Decide(context.Background(), candles, inds, nil)
	if !errors.Is(err, ErrAdviceUnavailable) {
		t.Errorf("ожидался ErrAdviceUnavailable, получено %v", err)
	}
}
