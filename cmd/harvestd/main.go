// Command harvestd is the reference HTTP surface over the reply-thread
// harvester core. It wires a concrete configstore/credentials/browserpool/
// apifyclient implementation (via internal/appwiring) behind internal/httpapi
// and serves it with gin. It is a demonstration of the boundary, not part
// of the core's public contract: every package it imports under internal/
// is fully usable by a host application that never runs this binary.
//
// Grounded on cmd/server/main.go's cobra command + viper env binding + zap
// logger wiring, generalized from a fixed two-archive comparison into a
// long-running harvest server with a configurable persistence backend.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/x-reply-harvester/harvester/internal/appwiring"
	"github.com/x-reply-harvester/harvester/internal/httpapi"
	"github.com/x-reply-harvester/harvester/internal/pacing"
)

const (
	commandUse              = "harvestd"
	commandShortDescription = "Serve reply-thread harvest requests over HTTP"
	envPrefix               = "HARVESTD"

	flagHostName        = "host"
	flagHostDescription = "Host interface for the HTTP server"
	flagPortName        = "port"
	flagPortDescription = "Port for the HTTP server"
	defaultHost         = "127.0.0.1"
	defaultPort         = 8088

	flagDBPathName        = "db"
	flagDBPathDescription = "Path to the SQLite config store; empty uses an in-memory store"

	flagPacingPresetName        = "pacing-preset"
	flagPacingPresetDescription = "Initial pacing preset: ultraSlow, slow, normal, fast"
	defaultPacingPreset         = pacing.PresetNormal

	flagBudgetProfileName        = "budget-profile"
	flagBudgetProfileDescription = "Enumeration effort profile: dev or prod"
	defaultBudgetProfile         = "dev"

	flagApifyBaseURLName        = "apify-base-url"
	flagApifyBaseURLDescription = "Base URL for the fallback actor-run API"
	flagApifyActorName          = "apify-actor"
	flagApifyActorDescription   = "Actor id for the fallback actor-run API"

	flagChromeBinaryName        = "chrome-binary"
	flagChromeBinaryDescription = "Explicit Chrome/Chromium binary path"

	errMessageLoggerCreate   = "create logger"
	errMessageBuildGraph     = "build dependency graph"
	errMessageBuildRouter    = "build http router"
	errMessageListenAndServe = "listen and serve"

	logMessageStartingServer = "starting HTTP server"
	logMessageServerStopped  = "server stopped"
	logMessageListenError    = "server listen failure"
	logFieldAddress          = "address"
)

func main() {
	cobra.CheckErr(newHarvestdCommand().Execute())
}

func newHarvestdCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE:  runHarvestdCommand,
	}

	command.Flags().String(flagHostName, defaultHost, flagHostDescription)
	command.Flags().Int(flagPortName, defaultPort, flagPortDescription)
	command.Flags().String(flagDBPathName, "", flagDBPathDescription)
	command.Flags().String(flagPacingPresetName, defaultPacingPreset, flagPacingPresetDescription)
	command.Flags().String(flagBudgetProfileName, defaultBudgetProfile, flagBudgetProfileDescription)
	command.Flags().String(flagApifyBaseURLName, "", flagApifyBaseURLDescription)
	command.Flags().String(flagApifyActorName, "", flagApifyActorDescription)
	command.Flags().String(flagChromeBinaryName, "", flagChromeBinaryDescription)

	for _, flagName := range []string{
		flagHostName, flagPortName, flagDBPathName, flagPacingPresetName,
		flagBudgetProfileName, flagApifyBaseURLName, flagApifyActorName, flagChromeBinaryName,
	} {
		bindFlagToViper(command, flagName)
	}

	cobra.OnInitialize(configureEnvironment)

	return command
}

func bindFlagToViper(command *cobra.Command, flagName string) {
	cobra.CheckErr(viper.BindPFlag(flagName, command.Flags().Lookup(flagName)))
}

func configureEnvironment() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func runHarvestdCommand(*cobra.Command, []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	graph, err := appwiring.Build(appwiring.Options{
		DBPath:           viper.GetString(flagDBPathName),
		PacingPreset:     viper.GetString(flagPacingPresetName),
		ProdBudgets:      viper.GetString(flagBudgetProfileName) == "prod",
		ChromeBinaryPath: viper.GetString(flagChromeBinaryName),
		ApifyBaseURL:     viper.GetString(flagApifyBaseURLName),
		ApifyActor:       viper.GetString(flagApifyActorName),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageBuildGraph, err)
	}
	defer graph.CloseStore()

	router, err := httpapi.NewRouter(httpapi.RouterConfig{Service: graph.Service, Progress: graph.Progress, Logger: logger})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageBuildRouter, err)
	}

	address := fmt.Sprintf("%s:%d", viper.GetString(flagHostName), viper.GetInt(flagPortName))
	logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address))

	httpServer := &http.Server{Addr: address, Handler: router}
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(logMessageListenError, zap.Error(err))
		return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
	}

	logger.Info(logMessageServerStopped)
	return nil
}
