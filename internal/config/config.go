package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Bithumb   BithumbConfig   `yaml:"bithumb"`
	Trading   TradingConfig   `yaml:"trading"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Advisor   AdvisorConfig   `yaml:"advisor"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Storage   StorageConfig   `yaml:"storage"`
	UI        UIConfig        `yaml:"ui"`
}

// BithumbConfig содержит настройки подключения к Bithumb
type BithumbConfig struct {
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"` // v1 (JWT) или legacy (HMAC)
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Market          string  `yaml:"market"`            // например KRW-BTC
	Interval        string  `yaml:"interval"`          // minute1, hour1, day
	CandleCount     int     `yaml:"candle_count"`      // окно свечей для анализа
	FixedBuyKRW     float64 `yaml:"fixed_buy_krw"`     // фиксированная сумма покупки
	MinSellKRW      float64 `yaml:"min_sell_krw"`      // минимальная стоимость позиции для продажи
	MaxDailyTrades  int     `yaml:"max_daily_trades"`  // лимит покупок в сутки
	CycleSeconds    int     `yaml:"cycle_seconds"`     // пауза между циклами
	FeeRate         float64 `yaml:"fee_rate"`          // комиссия биржи, доля
}

// StrategyConfig содержит настройки движка решений
type StrategyConfig struct {
	Type                string `yaml:"type"`                 // rules | advisor
	HoldStreakEnabled   bool   `yaml:"hold_streak_enabled"`  // обертка принудительной покупки
	HoldStreakThreshold int    `yaml:"hold_streak_threshold"`
}

// AdvisorConfig настройки LLM-советника
type AdvisorConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"` // пустая строка — API по умолчанию
	Temperature float64 `yaml:"temperature"`
	Bars        int     `yaml:"bars"` // сколько последних баров отдавать советнику
}

// SentimentConfig настройки источника индекса страха и жадности
type SentimentConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// StorageConfig настройки телеметрии в InfluxDB
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки терминального интерфейса
type UIConfig struct {
	Enabled     bool `yaml:"enabled"`
	RefreshRate int  `yaml:"refresh_rate_ms"`
}

// Load загружает конфигурацию из файла и подставляет значения по умолчанию
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults подставляет значения по умолчанию из исходных скриптов
func (c *Config) applyDefaults() {
	if c.Bithumb.BaseURL == "" {
		c.Bithumb.BaseURL = "https://api.bithumb.com"
	}
	if c.Bithumb.APIVersion == "" {
		c.Bithumb.APIVersion = "v1"
	}
	if c.Trading.Market == "" {
		c.Trading.Market = "KRW-BTC"
	}
	if c.Trading.Interval == "" {
		c.Trading.Interval = "hour1"
	}
	if c.Trading.CandleCount <= 0 {
		c.Trading.CandleCount = 100
	}
	if c.Trading.FixedBuyKRW <= 0 {
		c.Trading.FixedBuyKRW = 10001
	}
	if c.Trading.MinSellKRW <= 0 {
		c.Trading.MinSellKRW = 10001
	}
	if c.Trading.MaxDailyTrades <= 0 {
		c.Trading.MaxDailyTrades = 5
	}
	if c.Trading.CycleSeconds <= 0 {
		c.Trading.CycleSeconds = 10
	}
	if c.Trading.FeeRate <= 0 {
		c.Trading.FeeRate = 0.0004
	}
	if c.Strategy.Type == "" {
		c.Strategy.Type = "rules"
	}
	if c.Strategy.HoldStreakThreshold <= 0 {
		c.Strategy.HoldStreakThreshold = 3
	}
	if c.Advisor.Model == "" {
		c.Advisor.Model = "gpt-4o-mini"
	}
	if c.Advisor.Temperature <= 0 {
		c.Advisor.Temperature = 0.2
	}
	if c.Advisor.Bars <= 0 {
		c.Advisor.Bars = 5
	}
	if c.Sentiment.URL == "" {
		c.Sentiment.URL = "https://api.alternative.me/fng/"
	}
	if c.Sentiment.TimeoutSeconds <= 0 {
		c.Sentiment.TimeoutSeconds = 10
	}
	if c.UI.RefreshRate <= 0 {
		c.UI.RefreshRate = 1000
	}
}

// CycleInterval возвращает паузу между циклами как time.Duration
func (c *TradingConfig) CycleInterval() time.Duration {
	return time.Duration(c.CycleSeconds) * time.Second
}
