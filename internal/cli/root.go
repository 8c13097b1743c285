package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"taskboard/internal/config"
	"taskboard/internal/database"
	"taskboard/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	gormlogger "gorm.io/gorm/logger"
)

var (
	configFile string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Taskboard - project and task tracking API",
	Long: `Taskboard serves the project and task tracking HTTP API.

Run 'taskboard serve' to start the server, 'taskboard migrate' to
create or update the schema.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
				return fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		}
		if configFile != "" {
			os.Setenv("CONFIG_FILE", configFile)
		}

		loaded, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}

		cfg = loaded
		logger = logging.New(cfg.Log)
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
}

func openDatabase() (*database.DatabasePool, error) {
	poolConfig := &database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        gormlogger.Warn,
		SlowThreshold:   database.DefaultPoolConfig().SlowThreshold,
		Logger:          logger.With("component", "gorm"),
	}
	if logging.ParseLevel(cfg.Log.Level) <= slog.LevelDebug {
		poolConfig.LogLevel = gormlogger.Info
	}

	pool, err := database.NewDatabasePool(poolConfig)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected", "driver", cfg.Database.Driver)
	return pool, nil
}
