package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlasacademy/appwatch/internal/cfg"
	"github.com/atlasacademy/appwatch/internal/checker/store"
	"github.com/atlasacademy/appwatch/internal/logfields"
	"github.com/atlasacademy/appwatch/internal/notify"
	"github.com/atlasacademy/appwatch/internal/publish"
	"github.com/atlasacademy/appwatch/internal/runner"
	"github.com/atlasacademy/appwatch/internal/trigger"
)

const appName = "appwatch"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught, terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startHTTPSServer(listenAddr string, certFile, keyFile string, mux *http.ServeMux) {
	httpsServer := http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating https server",
			logfields.Event("https_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpsServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down https server failed",
				logfields.Event("https_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"https server started",
			logfields.Event("https_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpsServer.ListenAndServeTLS(certFile, keyFile)
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("https server terminated", logfields.Event("https_server_terminated"))
			return
		}

		logger.Fatal(
			"https server terminated unexpectedly",
			logfields.Event("https_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

func startHTTPServer(listenAddr string, mux *http.ServeMux) {
	httpServer := http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating http server",
			logfields.Event("http_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down http server failed",
				logfields.Event("http_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	Once        *bool
	ShowVersion *bool
}

var args arguments

const defConfigFile = "/etc/appwatch/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the appwatch configuration file",
		),
		Once: pflag.Bool(
			"once",
			false,
			"run a single update check and exit",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nWatch app stores for updates, announce and commit them.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration file", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	if config.RepositoryDir == "" {
		fmt.Fprintf(os.Stderr, "repository_dir must be defined in the config file\n")
		os.Exit(2)
	}

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func mustBuildSources(config *cfg.Config) []store.Source {
	if len(config.Stores) == 0 {
		fmt.Fprintf(os.Stderr, "ERROR: config file %s does not define any stores, nothing to do\n", *args.ConfigFile)
		os.Exit(1)
	}

	sources := make([]store.Source, 0, len(config.Stores))

	for _, storeCfg := range config.Stores {
		typ, err := store.ParseType(storeCfg.Type)
		exitOnErr(fmt.Sprintf("could not parse store from configuration file: %s", *args.ConfigFile), err)

		sources = append(sources, store.New(typ, storeCfg.URL, storeCfg.AvatarURL))
	}

	return sources
}

func buildChecker(config *cfg.Config) *store.Checker {
	var opts []store.CheckerOption

	if config.NotifyWebhookURL == "" {
		logger.Warn(
			"notify_webhook_url is not configured, updates are not announced",
			logfields.Event("webhook_notifications_disabled"),
		)
	} else {
		opts = append(opts, store.WithNotifier(notify.NewWebhook(config.NotifyWebhookURL)))
	}

	return store.NewChecker(
		mustBuildSources(config),
		filepath.Join(config.RepositoryDir, config.StateFile),
		filepath.Join(config.RepositoryDir, config.CommitMsgFile),
		opts...,
	)
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("github_webhook_endpoint", config.GithubWebhookEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebhookSecret)),
		zap.String("notify_webhook_url", hide(config.NotifyWebhookURL)),
		zap.String("git_push_token", hide(config.GitPushToken)),
		zap.String("repository_dir", config.RepositoryDir),
		zap.String("check_interval", config.CheckInterval),
		zap.String("release_filter_query", config.ReleaseFilterQuery),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.Int("stores", len(config.Stores)),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	publisher := publish.NewGitRepository(
		config.RepositoryDir,
		publish.WithRemote(config.GitRemote),
		publish.WithPushToken(config.GitPushToken),
		publish.WithAuthor(config.GitAuthorName, config.GitAuthorEmail),
	)

	run := runner.New(
		buildChecker(config),
		publisher,
		filepath.Join(config.RepositoryDir, config.CommitMsgFile),
		runner.WithRunDeferFunc(panicHandler),
	)

	if *args.Once {
		ev := trigger.NewEvent(trigger.KindManualDispatch)

		if err := run.RunOnce(context.Background(), ev); err != nil {
			logger.Error(
				"update run failed",
				logfields.Event("run_failed"),
				zap.Error(err),
			)

			goodbye.Exit(context.Background(), 1)
		}

		goodbye.Exit(context.Background(), 0)
		return
	}

	go run.Start()

	interval := trigger.NewInterval(config.Interval(), run.C())
	interval.Start()

	goodbye.Register(func(context.Context, os.Signal) {
		logger.Debug("stopping trigger sources and runner", logfields.Event("runner_stopping"))
		interval.Stop()
		run.Stop()
	})

	if config.HTTPListenAddr == "" && config.HTTPSListenAddr == "" {
		logger.Info(
			"no http server configured, release-published triggers and metrics are disabled",
			logfields.Event("http_servers_disabled"),
		)

		select {} // TODO: refactor this, allow clean shutdown
	}

	gh, err := trigger.NewGithubProvider(
		run.C(),
		config.ReleaseFilterQuery,
		trigger.WithPayloadSecret(config.GithubWebhookSecret),
	)
	exitOnErr(fmt.Sprintf("could not parse release filter query from configuration file: %s", *args.ConfigFile), err)

	mux := http.NewServeMux()
	mux.HandleFunc(config.GithubWebhookEndpoint, gh.HTTPHandler)
	mux.Handle(config.MetricsEndpoint, promhttp.Handler())

	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.GithubWebhookEndpoint),
	)

	if config.HTTPListenAddr != "" {
		startHTTPServer(config.HTTPListenAddr, mux)
	}

	if config.HTTPSListenAddr != "" {
		startHTTPSServer(
			config.HTTPSListenAddr,
			config.HTTPSCertFile,
			config.HTTPSKeyFile,
			mux,
		)
	}

	select {} // TODO: refactor this, allow clean shutdown
}
