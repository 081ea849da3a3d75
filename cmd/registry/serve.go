package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aerugo/aerugo/configuration"
	"github.com/aerugo/aerugo/internal/dcontext"
	registryhandlers "github.com/aerugo/aerugo/registry/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve <config>",
	Short: "run the registry server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := resolveConfiguration(args)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		return serve(cmd.Context(), config)
	},
}

func serve(ctx context.Context, config *configuration.Configuration) error {
	logger, err := configureLogging(config)
	if err != nil {
		return err
	}
	ctx = dcontext.WithLogger(ctx, logger)

	app, err := registryhandlers.NewApp(ctx, config)
	if err != nil {
		return err
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", app)

	server := &http.Server{
		Addr:    config.HTTP.Addr,
		Handler: handlers.CombinedLoggingHandler(os.Stdout, mux),
	}

	errC := make(chan error, 1)
	go func() {
		logger.Infof("listening on %v", config.HTTP.Addr)
		errC <- server.ListenAndServe()
	}()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errC:
		return err
	case sig := <-sigC:
		logger.Infof("received %v, draining connections", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, draining connections")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), config.HTTP.DrainTimeout)
	defer cancel()

	if err := server.Shutdown(drainCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func configureLogging(config *configuration.Configuration) (dcontext.Logger, error) {
	level, err := logrus.ParseLevel(config.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", config.Log.Level, err)
	}

	l := logrus.New()
	l.SetLevel(level)

	switch config.Log.Formatter {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	fields := logrus.Fields{}
	for k, v := range config.Log.Fields {
		fields[k] = v
	}

	return l.WithFields(fields), nil
}

func resolveConfiguration(args []string) (*configuration.Configuration, error) {
	var configurationPath string

	if len(args) > 0 {
		configurationPath = args[0]
	} else if os.Getenv("AERUGO_CONFIGURATION_PATH") != "" {
		configurationPath = os.Getenv("AERUGO_CONFIGURATION_PATH")
	}

	if configurationPath == "" {
		// Run with built-in defaults when no configuration is given; useful
		// for local smoke testing against inmemory storage.
		return configuration.Default(), nil
	}

	fp, err := os.Open(configurationPath)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	config, err := configuration.Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", configurationPath, err)
	}

	return config, nil
}
