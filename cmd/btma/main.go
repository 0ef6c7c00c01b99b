package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skalibog/btma/internal/config"
	"github.com/skalibog/btma/internal/exchange"
	"github.com/skalibog/btma/internal/sentiment"
	"github.com/skalibog/btma/internal/storage"
	"github.com/skalibog/btma/internal/strategy"
	"github.com/skalibog/btma/internal/trader"
	"github.com/skalibog/btma/internal/ui"
	"github.com/skalibog/btma/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Файл конфигурации не найден: %s\n", *configPath)
		os.Exit(1)
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// При включенном UI консольный вывод логов отключается
	logger.Init(!cfg.UI.Enabled)
	defer logger.GetLogger().Sync()

	// Секреты из окружения имеют приоритет над файлом:
	// внутренние пакеты окружение не читают
	if v := os.Getenv("BITHUMB_ACCESS_KEY"); v != "" {
		cfg.Bithumb.AccessKey = v
	}
	if v := os.Getenv("BITHUMB_SECRET_KEY"); v != "" {
		cfg.Bithumb.SecretKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Advisor.APIKey = v
	}

	logger.Info("Загружена конфигурация",
		zap.String("path", *configPath),
		zap.String("market", cfg.Trading.Market),
		zap.String("strategy", cfg.Strategy.Type))

	// Создаем контекст с возможностью отмены через горутину
	ctx, cancel := context.WithCancel(context.Background())

	// Настраиваем обработку сигналов завершения.
	// Первый сигнал отменяет контекст: цикл возвращается сам, и
	// отложенные store.Close и Sync логгера успевают отработать.
	// Второй сигнал завершает процесс принудительно.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		<-sigCh
		os.Exit(1)
	}()

	// Инициализируем телеметрию
	var store storage.Storage = storage.Noop{}
	if cfg.Storage.Enabled {
		influx, err := storage.NewInfluxDBStorage(cfg.Storage)
		if err != nil {
			logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
		}
		store = influx
	}
	defer store.Close()

	// Инициализируем клиент биржи: ошибки ключей фатальны на старте
	client, err := exchange.NewBithumbClient(cfg.Bithumb, cfg.Trading.FeeRate)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Создаем стратегию
	strat, err := strategy.New(cfg.Strategy, cfg.Advisor)
	if err != nil {
		logger.Fatal("Ошибка инициализации стратегии", zap.Error(err))
	}

	// Собираем торговый цикл
	session := trader.NewSession(time.Now())
	loop := trader.NewLoop(cfg.Trading, client, sentiment.NewClient(cfg.Sentiment), strat, session, store)

	if !cfg.UI.Enabled {
		// Без UI цикл занимает основной поток
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Fatal("Торговый цикл завершился с ошибкой", zap.Error(err))
		}
		return
	}

	// Инициализируем UI и подписываем его на снимки состояния
	userInterface := ui.NewTermUI(cfg.UI)
	loop.OnStatus(userInterface.UpdateStatus)

	// Запускаем торговый цикл в горутине
	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Торговый цикл завершился с ошибкой", zap.Error(err))
		}
		userInterface.Stop()
	}()

	// Запускаем UI в основном потоке (блокирующий вызов)
	if err := userInterface.Start(); err != nil {
		logger.Error("Ошибка терминального интерфейса", zap.Error(err))
	}
	cancel()
}
