package main

import (
	"github.com/graftlab/graft/internal/server"
	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/logger"
	"github.com/graftlab/graft/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
