package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"gatekeeper-bot/internal/config"
	"gatekeeper-bot/internal/domain"
	"gatekeeper-bot/internal/mailing"
	"gatekeeper-bot/internal/reminder"
	"gatekeeper-bot/internal/scheduler"
	"gatekeeper-bot/internal/stats"
	"gatekeeper-bot/internal/store"
	"gatekeeper-bot/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server

	repo   store.Repo
	sched  *scheduler.Scheduler
	engine *mailing.Engine
	router *telegram.Router
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting gatekeeper-bot",
		zap.Int64("channelID", a.cfg.ChannelID),
		zap.String("http", a.cfg.HTTPAddr),
	)

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	tiers := domain.Tiers()
	client := telegram.NewClient(a.bot, a.log)
	a.sched = scheduler.New(a.log)
	reminders := reminder.New(repo, a.sched, client, tiers, a.log)
	a.engine = mailing.New(repo, client, a.cfg.MailingSendDelay, a.log)
	statsCollector := stats.New(repo, tiers, a.cfg.ExportDir, a.log)
	a.router = telegram.NewRouter(client, a.cfg, repo, reminders, a.engine, statsCollector, a.log)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query", "chat_join_request"}
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.shutdown()
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// shutdown tears the app down in dependency order: stop scheduling new work,
// let in-flight broadcasts drain, then release the store.
func (a *App) shutdown() {
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	a.sched.Stop()
	a.engine.Wait()

	if a.repo != nil {
		_ = a.repo.Close()
	}
}
