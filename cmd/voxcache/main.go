package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/voxcache/ai/observability/logging"
	"github.com/hrygo/voxcache/internal/profile"
	"github.com/hrygo/voxcache/internal/version"
	"github.com/hrygo/voxcache/server"
	apiv1 "github.com/hrygo/voxcache/server/router/api/v1"
)

var (
	rootCmd = &cobra.Command{
		Use:   "voxcache",
		Short: `A semantic cache for voice assistant commands. Recognizes paraphrases of commands it has already resolved.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Systemd units provide the environment themselves.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			return nil
		},
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile, logger, err := loadProfile()
			if err != nil {
				panic(err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			comps, err := newComponents(ctx, instanceProfile, logger)
			if err != nil {
				cancel()
				printStorageError(err, instanceProfile)
				logger.Error("failed to start", "error", err)
				return
			}
			defer comps.Close()

			if err := comps.cache.Startup(ctx); err != nil {
				cancel()
				logger.Error("failed to start cache", "error", err)
				return
			}

			api := apiv1.NewAPIV1Service(instanceProfile, comps.cache, logger)
			api.Metrics = comps.exporter.Handler()
			s := server.NewServer(instanceProfile, api, logger)

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			signal.Notify(c, terminationSignals...)

			go func() {
				if err := s.Start(ctx); err != nil {
					logger.Error("failed to start server", "error", err)
					cancel()
				}
			}()

			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(context.Background())
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics from persisted state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd.Context(), func(ctx context.Context, comps *components) error {
				comps.cache.Load(ctx)
				return printJSON(comps.cache.Stats())
			})
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove all learned entries and anchors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd.Context(), func(ctx context.Context, comps *components) error {
				if err := comps.cache.Clear(ctx); err != nil {
					return err
				}
				fmt.Println("Cache cleared.")
				return nil
			})
		},
	}

	lookupCmd = &cobra.Command{
		Use:   "lookup <text>",
		Short: "Look up a command against the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withCache(cmd.Context(), func(ctx context.Context, comps *components) error {
				if err := comps.cache.Startup(ctx); err != nil {
					return err
				}
				waitCtx, cancel := context.WithTimeout(ctx, viper.GetDuration("wait"))
				defer cancel()
				if err := comps.cache.WaitReady(waitCtx); err != nil {
					return fmt.Errorf("anchors not ready: %w", err)
				}
				result, hit := comps.cache.Lookup(ctx, text)
				return printJSON(apiv1.LookupResponse{Hit: hit, Result: result})
			})
		},
	}

	bootstrapCmd = &cobra.Command{
		Use:   "bootstrap",
		Short: "Regenerate anchors from the home topology",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd.Context(), func(ctx context.Context, comps *components) error {
				start := time.Now()
				n, err := comps.cache.Bootstrap(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Generated %d anchors in %s.\n", n, time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "file")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", ".", "data directory")
	rootCmd.PersistentFlags().String("driver", "file", "storage driver (file, sqlite, postgres, redis, gcs)")
	rootCmd.PersistentFlags().String("dsn", "", "storage source name (aka. DSN)")
	rootCmd.PersistentFlags().String("bucket", "", "GCS bucket for the gcs driver")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text, console)")
	lookupCmd.Flags().Duration("wait", 2*time.Minute, "how long to wait for anchors")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "bucket", "log-level", "log-format"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	if err := viper.BindPFlag("wait", lookupCmd.Flags().Lookup("wait")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("voxcache")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(statsCmd, clearCmd, lookupCmd, bootstrapCmd)
}

// loadProfile merges flags, VOXCACHE_* environment and validates the result.
func loadProfile() (*profile.Profile, *slog.Logger, error) {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Bucket:  viper.GetString("bucket"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if v := viper.GetString("log-level"); v != "" {
		instanceProfile.LogLevel = v
	}
	if v := viper.GetString("log-format"); v != "" {
		instanceProfile.LogFormat = v
	}

	logger := logging.New(logging.Options{
		Level:  instanceProfile.LogLevel,
		Format: instanceProfile.LogFormat,
	})
	slog.SetDefault(logger)

	if err := instanceProfile.Validate(); err != nil {
		return nil, nil, err
	}
	return instanceProfile, logger, nil
}

// withCache runs fn against a freshly built cache and closes it after.
func withCache(ctx context.Context, fn func(context.Context, *components) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	instanceProfile, logger, err := loadProfile()
	if err != nil {
		return err
	}
	comps, err := newComponents(ctx, instanceProfile, logger)
	if err != nil {
		printStorageError(err, instanceProfile)
		return err
	}
	defer comps.Close()
	return fn(ctx, comps)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("voxcache %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Storage driver: %s\n", profile.Driver)
	fmt.Printf("Embedding model: %s (%s)\n", profile.EmbeddingModel, profile.EmbeddingProvider)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printStorageError adds a hint for the common storage misconfigurations.
func printStorageError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nFailed to start voxcache")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintf(os.Stderr, "\n  The %s backend is not reachable. Check VOXCACHE_DSN.\n", profile.Driver)
		fmt.Fprintf(os.Stderr, "  Or use local files: VOXCACHE_DRIVER=file\n")
	case strings.Contains(errMsg, "sslmode"):
		fmt.Fprintf(os.Stderr, "\n  Add ?sslmode=disable to your DSN.\n")
	case strings.Contains(errMsg, "embedding"):
		fmt.Fprintf(os.Stderr, "\n  Check VOXCACHE_EMBEDDING_PROVIDER and VOXCACHE_EMBEDDING_MODEL.\n")
	default:
		fmt.Fprintln(os.Stderr, "\n  Error:", errMsg)
	}

	if _, statErr := os.Stat(".env"); statErr != nil {
		fmt.Fprintf(os.Stderr, "\n  Tip: create a .env file for local configuration\n")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
