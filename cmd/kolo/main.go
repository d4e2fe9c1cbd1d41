package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/kolohq/kolo/internal/billing"
	"github.com/kolohq/kolo/internal/clock"
	"github.com/kolohq/kolo/internal/config"
	"github.com/kolohq/kolo/internal/server"
	"github.com/kolohq/kolo/pkg/db"
	"github.com/kolohq/kolo/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		billing.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
