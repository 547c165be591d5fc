// Package commands provides prism's CLI commands.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prismrun/prism/internal/config"
	"github.com/prismrun/prism/internal/logging"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	printLogs   bool
	logLevel    string
	logFile     bool
	showConfig  bool
	globalModel string
)

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "prism is a headless code review agent",
	Long: `prism drives an LLM-backed code review agent over a single HTTP
surface: POST /chat runs one turn, streaming tool calls and responses
back as Server-Sent Events.

Run 'prism serve' to start the server.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logFile,
		}
		if !printLogs && !logFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)

		if logFile {
			logging.Info().
				Str("version", Version).
				Str("logFile", logging.GetLogFilePath()).
				Msg("prism started with file logging")
		}

		if showConfig {
			dir, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
				os.Exit(1)
			}
			cfg, err := config.Load(dir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
				os.Exit(1)
			}
			jsonData, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling config: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(jsonData))
			os.Exit(0)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to /tmp/prism-YYYYMMDD-HHMMSS.log")
	rootCmd.PersistentFlags().BoolVar(&showConfig, "show-config", false, "Print merged configuration as JSON and exit")
	rootCmd.PersistentFlags().StringVarP(&globalModel, "model", "m", "", "Model to use (provider/model format)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("prism %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns dir, or the current working directory if dir is empty.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// GetGlobalModel returns the --model flag's value.
func GetGlobalModel() string {
	return globalModel
}
