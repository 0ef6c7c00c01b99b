package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/skalibog/btma/internal/config"
	"github.com/skalibog/btma/pkg/models"
)

// systemPrompt инструкция советнику: шесть критериев и принципы
// консервативной торговли из исходной стратегии
const systemPrompt = `Вы финансовый эксперт. Проанализируйте показатели и примите одно решение — buy, sell или hold — в формате JSON:
1. Кроссовер скользящих средних (MA5 против MA20)
2. Перепроданность/перекупленность по RSI
3. Отношение линии MACD к сигнальной линии
4. Положение цены внутри полос Боллинджера
5. Индекс страха и жадности (экстремальные значения)
6. Динамика объема торгов

Принципы:
- Минимизация убытков важнее прибыли.
- Покупка только при не менее чем трех положительных признаках.
- Продажа при двух и более отрицательных признаках.
- При перегретом рынке приоритет у продажи.

Пример ответа:
{"decision": "buy", "reason": "MA5>MA20, RSI 28, MACD растет"}`

// Advisor стратегия на внешней языковой модели.
// Любая ошибка вызова или разбора дает ErrAdviceUnavailable:
// цикл трактует это как hold и продолжает работу.
type Advisor struct {
	client      *openai.Client
	model       string
	temperature float32
	bars        int
}

// NewAdvisor создает стратегию-советника
func NewAdvisor(cfg config.AdvisorConfig) (*Advisor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("не задан ключ API советника")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Advisor{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		bars:        cfg.Bars,
	}, nil
}

// advisorReply представляет ожидаемую форму ответа модели
type advisorReply struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// Decide сериализует последние бары с индикаторами и запрашивает решение
func (a *Advisor) Decide(ctx context.Context, candles []*models.Candle, indicators []models.IndicatorSet, sentiment *models.SentimentIndex) (models.Decision, error) {
	if len(candles) == 0 || len(indicators) != len(candles) {
		return models.Decision{}, fmt.Errorf("нет данных для советника: %d свечей, %d наборов индикаторов", len(candles), len(indicators))
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: a.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: a.marketReport(candles, indicators, sentiment)},
		},
	})
	if err != nil {
		return models.Decision{}, errors.Join(ErrAdviceUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return models.Decision{}, fmt.Errorf("%w: пустой ответ модели", ErrAdviceUnavailable)
	}

	raw := resp.Choices[0].Message.Content
	var reply advisorReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return models.Decision{}, errors.Join(ErrAdviceUnavailable, fmt.Errorf("ошибка разбора ответа модели: %w", err))
	}

	action := models.Action(strings.ToLower(strings.TrimSpace(reply.Decision)))
	switch action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		return models.Decision{}, fmt.Errorf("%w: неизвестное действие %q", ErrAdviceUnavailable, reply.Decision)
	}

	decision := models.Decision{Action: action, RawText: reply.Reason}
	if action != models.ActionHold {
		decision.Reasons = []models.Reason{models.ReasonAdvisor}
	}
	return decision, nil
}

// marketReport формирует таблицу последних баров для модели
func (a *Advisor) marketReport(candles []*models.Candle, indicators []models.IndicatorSet, sentiment *models.SentimentIndex) string {
	start := len(candles) - a.bars
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Последние %d баров (%s):\n", len(candles)-start, candles[0].Interval)
	b.WriteString("| time | open | high | low | close | volume | MA5 | MA20 | RSI | MACD | MACD_Signal | Upper_BB | Lower_BB |\n")
	for i := start; i < len(candles); i++ {
		c, ind := candles[i], indicators[i]
		fmt.Fprintf(&b, "| %s | %.0f | %.0f | %.0f | %.0f | %.4f | %.0f | %.0f | %.2f | %.2f | %.2f | %.0f | %.0f |\n",
			c.Timestamp.Format("2006-01-02 15:04"),
			c.Open, c.High, c.Low, c.Close, c.Volume,
			ind.MA5, ind.MA20, ind.RSI, ind.MACD, ind.MACDSignal, ind.UpperBB, ind.LowerBB)
	}

	if sentiment != nil {
		fmt.Fprintf(&b, "Индекс страха и жадности: %d/100\n", sentiment.Value)
	} else {
		b.WriteString("Индекс страха и жадности: недоступен\n")
	}
	return b.String()
}
