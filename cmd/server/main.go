// Package main is the entry point of the application
package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/awesomboard/gamesync/internal/auth"
	"github.com/awesomboard/gamesync/pkg/config"
	"github.com/awesomboard/gamesync/pkg/events"
	"github.com/awesomboard/gamesync/pkg/gamelog"
	"github.com/awesomboard/gamesync/pkg/repository"
	"github.com/awesomboard/gamesync/pkg/rules"
	"github.com/awesomboard/gamesync/pkg/server"
	"github.com/awesomboard/gamesync/pkg/session"
)

// application encapsulates global dependencies
type application struct {
	Auth      *auth.APIKeyAuth
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Hub       *server.Hub
	Server    *http.Server

	upgrader websocket.Upgrader

	StartTime time.Time
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "", "server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	if *debug {
		cfg.Debug = true
	}
	if *port != "" {
		cfg.Port = *port
	}

	// Initialize logger
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	// Initialize event publisher
	publisher := events.NewPublisher()

	// Initialize session repository
	repo := repository.NewInMemoryRepository(logger)

	// Initialize the event log: SQLite when a path is configured,
	// in-memory otherwise
	var log gamelog.Log
	if cfg.DatabasePath != "" {
		sqliteLog, err := gamelog.OpenSQLite(cfg.DatabasePath, logger.Named("gamelog"))
		if err != nil {
			logger.Fatal("failed to open event log", zap.Error(err))
		}
		defer sqliteLog.Close()
		log = sqliteLog
	} else {
		log = gamelog.NewMemoryLog()
	}

	// Initialize session manager with the chess rules adapter
	sm := session.NewManager(log, rules.NewChessEngine(), repo, publisher, logger)

	hub := server.NewHub(sm, publisher, logger)

	app := &application{
		Auth:      auth.NewAPIKeyAuth(cfg.APIKeys),
		Logger:    logger,
		Config:    cfg,
		Hub:       hub,
		Publisher: publisher,
		StartTime: time.Now(),
	}

	app.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,

		CheckOrigin: func(r *http.Request) bool {
			if cfg.FrontendOrigin == "" {
				return true
			}
			return cfg.FrontendOrigin == r.Header.Get("Origin")
		},
	}

	go app.Hub.Run()

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	if app.Hub != nil {
		app.Hub.Shutdown()
	}

	app.Logger.Info("all components shut down successfully")
}
