// Command gridalert runs the race-deadline notification service: it keeps the
// season calendar fresh, schedules qualification reminders and race
// notifications, and delivers them over Telegram.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"gridalert/config"
	"gridalert/handlers"
	"gridalert/internal/storage"
	"gridalert/services/backup"
	"gridalert/services/calendar"
	"gridalert/services/gpro"
	"gridalert/services/notifier"
	"gridalert/services/users"
	"gridalert/transport/telegram"
	"gridalert/utils"
)

const (
	calendarRefreshInterval = 6 * time.Hour
	shutdownTimeout         = 30 * time.Second
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}
	log.Printf("[main] starting gridalert")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := storage.New()

	upstream := gpro.NewClient(cfg.UpstreamToken, cfg.UpstreamLang)

	cal := calendar.New(store, cfg.CalendarFile(), upstream)
	cal.Load()
	cal.StartBackgroundRefresh(calendarRefreshInterval)
	if cal.Len() == 0 {
		cal.Refresh()
	}

	userStore := users.New(store, cfg.UsersFile())

	history := notifier.NewHistory(store, cfg.HistoryFile())
	sender := telegram.NewClient(cfg.BotToken)
	sched := notifier.New(cal, userStore, upstream, sender, history)
	admins := make([]int64, 0, len(cfg.AdminIDs))
	for id := range cfg.AdminIDs {
		admins = append(admins, id)
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i] < admins[j] })
	sched.SetAdmins(admins)
	sched.Start(ctx)

	backupSvc, err := backup.NewService(cfg.DataDir, cfg.BackupDir())
	if err != nil {
		log.Fatalf("[main] backup: %v", err)
	}

	router := utils.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(utils.RequireToken(cfg.APIToken))

	statusHandler := handlers.NewStatusHandler(cal, sched, userStore)
	api.HandleFunc("/status", statusHandler.GetStatus).Methods(http.MethodGet)

	calHandler := handlers.NewCalendarHandler(cal)
	api.HandleFunc("/calendar", calHandler.GetCalendar).Methods(http.MethodGet)
	api.HandleFunc("/calendar/refresh", calHandler.RefreshCalendar).Methods(http.MethodPost)

	backupHandler := handlers.NewBackupHandler(backupSvc)
	api.HandleFunc("/backup", backupHandler.CreateBackup).Methods(http.MethodPost)
	api.HandleFunc("/backups", backupHandler.ListBackups).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		log.Printf("[main] admin API listening on %s", cfg.APIAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[main] admin API: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[main] shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] admin API shutdown: %v", err)
	}
	sched.Stop(shutdownCtx)
	cal.Stop()
	log.Printf("[main] stopped")
}
