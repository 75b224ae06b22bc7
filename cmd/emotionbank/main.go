package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/emotionbank/analyzer"
	"github.com/quailyquaily/emotionbank/api"
	"github.com/quailyquaily/emotionbank/companion"
	"github.com/quailyquaily/emotionbank/db"
	"github.com/quailyquaily/emotionbank/internal/clifmt"
	"github.com/quailyquaily/emotionbank/internal/pathutil"
	"github.com/quailyquaily/emotionbank/memory"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, clifmt.Warn(err.Error()))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:     "emotionbank",
		Short:   "Personal memory journal with emotion-aware retrieval",
		Version: version,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initConfig(cfgFile)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.emotionbank/config.yaml)")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(initCmd())
	return cmd
}

func initConfig(cfgFile string) error {
	viper.SetDefault("server.listen_addr", ":8000")
	viper.SetDefault("uploads.dir", "~/.emotionbank/uploads/images")
	viper.SetDefault("analyzer.endpoint", "http://127.0.0.1:8100")
	viper.SetDefault("analyzer.timeout", "60s")
	viper.SetDefault("vector.dir", "~/.emotionbank/vector_db")
	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", "~/.emotionbank/emotionbank.db")
	viper.SetDefault("db.automigrate", true)

	viper.SetEnvPrefix("EMOTIONBANK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if strings.TrimSpace(cfgFile) != "" {
		viper.SetConfigFile(pathutil.ExpandHomePath(cfgFile))
	} else {
		viper.AddConfigPath(pathutil.ExpandHomePath("~/.emotionbank"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the journal HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			gdb, err := db.Open(ctx, dbConfigFromViper())
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if viper.GetBool("db.automigrate") {
				if err := db.AutoMigrate(gdb); err != nil {
					return fmt.Errorf("migrate db: %w", err)
				}
			}

			index, err := vectorIndexFromViper()
			if err != nil {
				return err
			}

			client := analyzer.NewHTTPClient(
				viper.GetString("analyzer.endpoint"),
				viper.GetDuration("analyzer.timeout"),
			)

			pipeline, err := memory.NewPipeline(memory.NewGormStore(gdb), index, client, memory.PipelineOptions{
				UploadsDir: viper.GetString("uploads.dir"),
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			// Catch the vector index up with sqlite before serving, so a
			// wiped or ephemeral index does not lose similarity search.
			if n, err := pipeline.Reconcile(ctx); err != nil {
				logger.Warn("index reconciliation incomplete", "replayed", n, "error", err)
			}

			bank, err := promptBankFromViper()
			if err != nil {
				return err
			}
			responder, err := companion.NewResponder(client, pipeline, bank, companionRandFromViper(), logger)
			if err != nil {
				return err
			}

			srv := api.NewServer(pipeline, responder, logger)
			addr := viper.GetString("server.listen_addr")
			logger.Info("starting emotionbank server",
				"addr", addr,
				"db", viper.GetString("db.dsn"),
				"analyzer", viper.GetString("analyzer.endpoint"))
			return http.ListenAndServe(addr, srv.Router())
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(_ *cobra.Command, _ []string) error {
			dir, err := pathutil.EnsureDir("~/.emotionbank")
			if err != nil {
				return err
			}
			path := dir + "/config.yaml"
			if _, err := os.Stat(path); err == nil {
				fmt.Println(clifmt.Warn("config already exists: " + path))
				return nil
			}
			if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Println(clifmt.Success("wrote " + path))
			fmt.Println(clifmt.Dim("edit analyzer.endpoint to point at your inference service"))
			return nil
		},
	}
}

func companionRandFromViper() *rand.Rand {
	if viper.IsSet("companion.seed") {
		return rand.New(rand.NewSource(viper.GetInt64("companion.seed")))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

const starterConfig = `server:
  listen_addr: ":8000"

db:
  driver: sqlite
  dsn: ~/.emotionbank/emotionbank.db
  automigrate: true

vector:
  dir: ~/.emotionbank/vector_db

uploads:
  dir: ~/.emotionbank/uploads/images

analyzer:
  endpoint: http://127.0.0.1:8100
  timeout: 60s

companion:
  # prompts_file: ~/.emotionbank/prompts.yaml
  # seed: 42
`
