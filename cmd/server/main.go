package main

import (
	"github.com/Quantum-369/arxiv-scribe-view/internal/server"
	"github.com/Quantum-369/arxiv-scribe-view/internal/util"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	server.Init()
}
