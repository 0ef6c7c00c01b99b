package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/skalibog/btma/internal/config"
	"github.com/skalibog/btma/pkg/models"
)

// Client клиент индекса страха и жадности (alternative.me).
// Индекс опционален: при любой ошибке вызывающий трактует его
// как отсутствие сигнала, а не как ноль.
type Client struct {
	url  string
	http *http.Client
}

// NewClient создает клиент индекса настроений
func NewClient(cfg config.SentimentConfig) *Client {
	return &Client{
		url:  cfg.URL,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// fngResponse представляет ответ API alternative.me
type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

// Fetch получает текущее значение индекса (0-100)
func (c *Client) Fetch(ctx context.Context) (*models.SentimentIndex, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования запроса индекса: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса индекса страха и жадности: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("индекс страха и жадности: HTTP %d", resp.StatusCode)
	}

	var parsed fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа индекса: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("пустой ответ индекса страха и жадности")
	}

	value, err := strconv.Atoi(parsed.Data[0].Value)
	if err != nil {
		return nil, fmt.Errorf("некорректное значение индекса %q: %w", parsed.Data[0].Value, err)
	}
	if value < 0 || value > 100 {
		return nil, fmt.Errorf("значение индекса вне диапазона: %d", value)
	}

	return &models.SentimentIndex{Value: value, Timestamp: time.Now()}, nil
}
