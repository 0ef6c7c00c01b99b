package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/btma/internal/config"
	"github.com/skalibog/btma/pkg/models"
)

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище телеметрии
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandles сохраняет серию свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"market":   candle.Market,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.Timestamp,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// SaveDecision сохраняет решение стратегии с причинами
func (s *InfluxDBStorage) SaveDecision(ctx context.Context, market string, decision models.Decision, sentiment *models.SentimentIndex) error {
	fields := map[string]interface{}{
		"reasons": reasonsString(decision.Reasons),
	}
	if decision.RawText != "" {
		fields["raw_text"] = decision.RawText
	}
	if sentiment != nil {
		fields["sentiment"] = sentiment.Value
	}

	point := influxdb2.NewPoint(
		"decisions",
		map[string]string{
			"market": market,
			"action": string(decision.Action),
		},
		fields,
		time.Now(),
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// SaveOrder сохраняет результат исполненного ордера
func (s *InfluxDBStorage) SaveOrder(ctx context.Context, order *models.OrderResult) error {
	price, _ := order.FilledPrice.Float64()
	amount, _ := order.FilledAmount.Float64()
	fee, _ := order.Fee.Float64()

	point := influxdb2.NewPoint(
		"orders",
		map[string]string{
			"market": order.Market,
			"side":   string(order.Side),
		},
		map[string]interface{}{
			"order_id": order.OrderID,
			"price":    price,
			"amount":   amount,
			"fee":      fee,
		},
		order.CreatedAt,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// reasonsString склеивает коды причин для записи одним полем
func reasonsString(reasons []models.Reason) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += ","
		}
		out += string(r)
	}
	return out
}
