package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mbd888/fraudgate/internal/config"
	"github.com/mbd888/fraudgate/internal/features"
	"github.com/mbd888/fraudgate/internal/logging"
	"github.com/mbd888/fraudgate/internal/model"
	"github.com/mbd888/fraudgate/internal/scoring"
	"github.com/mbd888/fraudgate/internal/server"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fraudgate",
		Short: "Fraud scoring gateway for mobile-money transactions",
		Long: `fraudgate serves a pre-trained fraud classifier over HTTP.
Run without a subcommand to start the gateway.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway (default)",
		RunE:  runServe,
	}

	var describeModel string
	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the model's type and input schema as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := offlineService(describeModel)
			if err != nil {
				return err
			}
			info, err := svc.Describe()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
	describeCmd.Flags().StringVar(&describeModel, "model", model.DefaultPath, "path to the model artifact")

	var scoreModel string
	scoreCmd := &cobra.Command{
		Use:   "score [FILE|-]",
		Short: "Score one transaction JSON offline",
		Long: `Score one transaction read from FILE, or from stdin when FILE is "-" or
omitted. The body has the same shape as POST /predict. The sequence
counter starts fresh, so the transaction is scored as step 1.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := offlineService(scoreModel)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var req scoring.PredictRequest
			if err := json.NewDecoder(in).Decode(&req); err != nil {
				return fmt.Errorf("%w: malformed transaction: %v", scoring.ErrValidation, err)
			}
			if err := req.Validate(); err != nil {
				return err
			}

			result, err := svc.Predict(cmd.Context(), req.Transaction())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	scoreCmd.Flags().StringVar(&scoreModel, "model", model.DefaultPath, "path to the model artifact")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fraudgate %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}

	rootCmd.AddCommand(serveCmd, describeCmd, scoreCmd, versionCmd)
	return rootCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting fraudgate",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"model_path", cfg.ModelPath,
		"rate_limit_rpm", cfg.RateLimitRPM,
	)

	server.Version = Version
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

// offlineService loads a model for one-shot CLI use. Unlike the server, a
// missing model is an error here.
func offlineService(path string) (*scoring.Service, error) {
	c, err := model.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := features.CheckSchema(c.FeatureNames()); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return scoring.NewService(c, nil), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
