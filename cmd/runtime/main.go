package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/clmm-engine/internal/adapters/blockchain"
	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/config"
	"github.com/hxuan190/clmm-engine/internal/http"
	"github.com/hxuan190/clmm-engine/internal/services/market"
	"github.com/hxuan190/clmm-engine/internal/services/router"
)

func main() {
	// load env; a missing .env is fine when the environment is set by the deployment
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded")
	}

	general := &config.GeneralConfig{}
	if err := general.Load(); err != nil {
		log.Error().Err(err).Msg("invalid general config")
		return
	}
	common.InitRuntime(general.LogLevel)

	// di container config
	conf := container.NewConf(
		general,
		&config.RPCConfig{},
		&config.EngineConfig{},
		&config.SnapshotConfig{},
	)

	// di container
	dic, err := container.New(
		// config
		conf,

		// services
		&blockchain.Service{},
		&market.Service{},
		&router.Router{},

		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	// waits for SIGINT/SIGTERM
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	// Run doesn't call Stop(), we must do it manually
	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
