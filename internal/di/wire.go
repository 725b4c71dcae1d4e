//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"gochat/internal/config"
	"gochat/internal/dbmysql"
	"gochat/internal/delivery"
	"gochat/internal/hub"
	"gochat/internal/message/handler"
	"gochat/internal/message/repository"
	"gochat/internal/message/service"
	"gochat/internal/presence"
)

// This is just a declaration — wire will generate the real body
func InitApp(cfg *config.Config) (*App, error) {
	wire.Build(
		dbmysql.NewMySQL,
		repository.NewMessageRepository,
		service.NewMessageService,
		presence.NewRegistry,
		providePushConfig,
		hub.NewHub,
		provideSink,
		delivery.NewRouter,
		handler.NewMessageHandler,
		NewApp,
	)
	return nil, nil // dummy for compilation
}
