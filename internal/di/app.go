package di

import (
	"gorm.io/gorm"

	"gochat/internal/config"
	"gochat/internal/delivery"
	"gochat/internal/hub"
	"gochat/internal/message/handler"
	"gochat/internal/presence"
)

// App bundles everything the server binary needs.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Hub      *hub.Hub
	Registry *presence.Registry
	Router   *delivery.Router
	Handler  *handler.MessageHandler
}

// NewApp closes the hub/router cycle: the hub is the router's push sink, and
// the hub needs the router back for connection lifecycle events.
func NewApp(cfg *config.Config, db *gorm.DB, h *hub.Hub, reg *presence.Registry, router *delivery.Router, msgHandler *handler.MessageHandler) *App {
	h.AttachRouter(router)
	return &App{
		Config:   cfg,
		DB:       db,
		Hub:      h,
		Registry: reg,
		Router:   router,
		Handler:  msgHandler,
	}
}

func providePushConfig(cfg *config.Config) config.PushConfig {
	return cfg.Push
}

func provideSink(h *hub.Hub) delivery.Sink {
	return h
}
