package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/btma/internal/config"
	"github.com/skalibog/btma/internal/trader"
	"github.com/skalibog/btma/pkg/logger"
	"github.com/skalibog/btma/pkg/models"
	"go.uber.org/zap"
)

// Стили UI
var (
	primaryColor = lipgloss.Color("#0077cc")
	sellColor    = lipgloss.Color("#cc3300")
	buyColor     = lipgloss.Color("#33cc33")
	holdColor    = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(lipgloss.Color("#333333")).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333333")).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI представляет терминальный интерфейс торгового агента
type TermUI struct {
	config config.UIConfig

	statusMutex sync.RWMutex
	status      trader.Status
	hasStatus   bool

	logsMutex sync.RWMutex
	logs      []string

	program *tea.Program
}

// Сообщения для обновления UI
type refreshMsg struct{}
type tickMsg time.Time

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает терминальный интерфейс
func NewTermUI(cfg config.UIConfig) *TermUI {
	ui := &TermUI{
		config: cfg,
		logs:   []string{"BTMA запущен. Ожидание первого цикла..."},
	}

	if err := ui.loadLogsFromFile(); err != nil {
		ui.logs = append(ui.logs, fmt.Sprintf("Ошибка загрузки логов: %v", err))
	}

	return ui
}

// Start запускает UI в текущей горутине (блокирующий вызов)
func (ui *TermUI) Start() error {
	ui.program = tea.NewProgram(bubbleModel{ui: ui}, tea.WithAltScreen())
	_, err := ui.program.Run()
	return err
}

// Stop завершает программу UI
func (ui *TermUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
}

// UpdateStatus принимает снимок состояния от торгового цикла
func (ui *TermUI) UpdateStatus(status trader.Status) {
	ui.statusMutex.Lock()
	ui.status = status
	ui.hasStatus = true
	ui.statusMutex.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

func (m bubbleModel) Init() tea.Cmd {
	return m.tick()
}

func (m bubbleModel) tick() tea.Cmd {
	interval := time.Duration(m.ui.config.RefreshRate) * time.Millisecond
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		if err := m.ui.loadLogsFromFile(); err != nil {
			logger.Warn("Ошибка загрузки логов", zap.Error(err))
		}
		return m, m.tick()
	case refreshMsg:
		return m, nil
	}
	return m, nil
}

func (m bubbleModel) View() string {
	ui := m.ui

	ui.statusMutex.RLock()
	status := ui.status
	hasStatus := ui.hasStatus
	ui.statusMutex.RUnlock()

	ui.logsMutex.RLock()
	logs := make([]string, len(ui.logs))
	copy(logs, ui.logs)
	ui.logsMutex.RUnlock()

	title := titleStyle.Render(" BTMA — торговый агент Bithumb ")

	var sections []string
	sections = append(sections, title)
	sections = append(sections, renderStatusSection(status, hasStatus))
	sections = append(sections, renderLogsSection(logs))
	sections = append(sections, footerStyle.Render("q — выход"))

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// renderStatusSection отрисовывает панель сессии и последнего решения
func renderStatusSection(status trader.Status, hasStatus bool) string {
	header := sectionHeaderStyle.Render("СЕССИЯ")
	if !hasStatus {
		return lipgloss.JoinVertical(lipgloss.Left, header, sectionStyle.Render("Данных пока нет"))
	}

	action := string(status.LastDecision.Action)
	actionStyle := lipgloss.NewStyle().Bold(true)
	switch status.LastDecision.Action {
	case models.ActionBuy:
		actionStyle = actionStyle.Foreground(buyColor)
	case models.ActionSell:
		actionStyle = actionStyle.Foreground(sellColor)
	default:
		actionStyle = actionStyle.Foreground(holdColor)
	}

	reasons := make([]string, 0, len(status.LastDecision.Reasons))
	for _, r := range status.LastDecision.Reasons {
		reasons = append(reasons, string(r))
	}

	lines := []string{
		fmt.Sprintf("Рынок: %s  Цена: %.0f", status.Market, status.LastPrice),
		fmt.Sprintf("Баланс KRW: %s  Баланс базовой валюты: %s",
			status.QuoteBalance.StringFixed(2), status.BaseBalance.String()),
		fmt.Sprintf("Решение: %s  Причины: %s", actionStyle.Render(strings.ToUpper(action)), strings.Join(reasons, ", ")),
		fmt.Sprintf("Сделок сегодня: %d  Покупок в позиции: %d  Вложено: %s KRW",
			status.TradesToday, status.PositionSize, status.InvestedKRW.StringFixed(0)),
		fmt.Sprintf("Обновлено: %s", status.UpdatedAt.Format("15:04:05")),
	}
	if status.LastDecision.RawText != "" {
		lines = append(lines, "Советник: "+status.LastDecision.RawText)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, sectionStyle.Render(strings.Join(lines, "\n")))
}

// renderLogsSection отрисовывает хвост логов
func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")

	maxLogsToShow := 12
	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	content := strings.Builder{}
	for i := start; i < len(logs); i++ {
		log := logs[i]
		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(sellColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(holdColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(buyColor).Render(log)
		}
		content.WriteString(log)
		content.WriteString("\n")
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, sectionStyle.Render(strings.TrimRight(content.String(), "\n")))
}

// loadLogsFromFile читает JSON-логи zap и форматирует их для панели
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(logger.JSONLogPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Файл не существует, это не ошибка
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err != nil {
			logs = append(logs, line)
			continue
		}

		level, _ := zapLog["level"].(string)
		ts, _ := zapLog["ts"].(string)
		msg, _ := zapLog["msg"].(string)

		timestamp := ""
		if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
			timestamp = t.Format("15:04:05")
		}

		formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
		for k, v := range zapLog {
			if k != "level" && k != "ts" && k != "msg" && k != "caller" {
				formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
			}
		}
		logs = append(logs, formattedMsg)

		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMutex.Lock()
	defer ui.logsMutex.Unlock()

	if len(logs) > 0 {
		ui.logs = logs
	}
	return nil
}
