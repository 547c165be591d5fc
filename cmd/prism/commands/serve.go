package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prismrun/prism/internal/config"
	"github.com/prismrun/prism/internal/logging"
	"github.com/prismrun/prism/internal/provider"
	"github.com/prismrun/prism/internal/server"
	"github.com/prismrun/prism/internal/tool"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prism server",
	Long: `Start prism as a headless server exposing POST /chat and GET /chat
over HTTP, for integrating the review agent with other tools.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().Str("version", Version).Msg("Starting prism server")
	logging.Info().Str("directory", workDir).Msg("Working directory")

	paths := config.GetPaths()
	if err := paths.EnsureHome(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if model := GetGlobalModel(); model != "" {
		appConfig.Model = model
	}

	ctx := context.Background()
	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to initialize some providers")
	}

	toolReg := tool.DefaultRegistry(workDir)

	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort
	serverConfig.Directory = workDir
	if appConfig.MaxTurns > 0 {
		serverConfig.MaxTurns = appConfig.MaxTurns
	}

	srv := server.New(serverConfig, appConfig, providerReg, toolReg)

	if err := srv.InitializeMCP(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to initialize some MCP servers")
	}

	go func() {
		logging.Info().
			Str("hostname", serveHostname).
			Int("port", servePort).
			Str("url", fmt.Sprintf("http://%s:%d", serveHostname, servePort)).
			Msg("Server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("Shutting down server...")

	if err := srv.CloseMCP(); err != nil {
		logging.Warn().Err(err).Msg("Error closing MCP servers")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server shutdown error")
	}

	logging.Info().Msg("Server stopped")
	return nil
}
