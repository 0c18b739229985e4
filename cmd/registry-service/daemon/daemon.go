// Package daemon provides the registry service daemon for cogs.red.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orels1/api.v3.cogs.red/internal/cli"
	"github.com/orels1/api.v3.cogs.red/internal/constants"
	"github.com/orels1/api.v3.cogs.red/internal/metrics"
	"github.com/orels1/api.v3.cogs.red/internal/registry/config"
	"github.com/orels1/api.v3.cogs.red/internal/registry/github"
	"github.com/orels1/api.v3.cogs.red/internal/registry/hooks"
	"github.com/orels1/api.v3.cogs.red/internal/registry/notify"
	"github.com/orels1/api.v3.cogs.red/internal/registry/panel"
	"github.com/orels1/api.v3.cogs.red/internal/registry/pipeline"
	"github.com/orels1/api.v3.cogs.red/internal/registry/store"
	"github.com/orels1/api.v3.cogs.red/internal/registry/syncer"
	"github.com/orels1/api.v3.cogs.red/internal/registry/validate"
	"github.com/orels1/api.v3.cogs.red/internal/service"
	"github.com/orels1/api.v3.cogs.red/internal/webservice"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *service.Service

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Daemon        webservice.StaticConfig
	MetricsConfig metrics.Config
	DBconfig      store.Config

	GithubToken    string
	GithubAPIRoot  string
	HookSecret     string
	NotifyURL      string
	NotifyUsername string

	ConfigPath    string
	MigrationsDir string
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.ServiceCmdName,
		Short:         "cogs.red registry service",
		Long:          "cogs.red registry service ingests cog repositories from GitHub, validates their manifests and keeps the registry records in sync.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.ServiceCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installMigrateCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := webservice.StaticConfig{
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    30 * time.Second,
		RequestTimeout:  25 * time.Second,
		MaxHeaderBytes:  1 << 13, // 8 KB
		MaxPayloadBytes: 1 << 20, // 1 MB

		ListenPort: constants.DefaultListenPort,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Daemon flags
	cmd.Flags().StringVarP(&app.config.ConfigPath, "daemon-config", "c", "", "path to the reserved names configuration file")

	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", defaultConf.RequestTimeout, "request timeout for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxPayloadBytes, "max-payload-bytes", defaultConf.MaxPayloadBytes, "maximum event payload bytes for HTTP server")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")

	// Source host flags
	cmd.Flags().StringVar(&app.config.GithubToken, "github-token", "", "GitHub API token used for tree queries")
	cmd.Flags().StringVar(&app.config.GithubAPIRoot, "github-api-root", constants.GitHubAPIRoot, "GitHub API root URL")
	cmd.Flags().StringVar(&app.config.HookSecret, "hook-secret", "", "shared secret for webhook signatures")

	// Notification flags
	cmd.Flags().StringVar(&app.config.NotifyURL, "notify-url", "", "Discord webhook URL for registry notifications (empty disables them)")
	cmd.Flags().StringVar(&app.config.NotifyUsername, "notify-username", "cogs.red", "username notifications are posted under")

	// Metrics server flags
	cmd.Flags().DurationVar(&app.config.MetricsConfig.ReadTimeout, "metrics-read-timeout", 5*time.Second, "read timeout for the metrics HTTP server")
	cmd.Flags().DurationVar(&app.config.MetricsConfig.WriteTimeout, "metrics-write-timeout", 10*time.Second, "write timeout for the metrics HTTP server")
	cmd.Flags().StringVar(&app.config.MetricsConfig.Host, "metrics-host", "", "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.MetricsConfig.Port, "metrics-port", constants.DefaultMetricsPort, "port for the metrics endpoint")

	addDBFlags(cmd, &app.config.DBconfig)

	if err := cmd.MarkFlagFilename("daemon-config"); err != nil {
		panic(fmt.Sprintf("failed to mark daemon-config flag as filename: %v", err))
	}
}

func addDBFlags(cmd *cobra.Command, config *store.Config) {
	cmd.Flags().StringVar(&config.Host, "db-host", "", "database host")
	cmd.Flags().IntVarP(&config.Port, "db-port", "p", 5432, "database port")
	cmd.Flags().StringVarP(&config.User, "db-user", "u", "", "database user")
	cmd.Flags().StringVarP(&config.Password, "db-password", "P", "", "database password")
	cmd.Flags().StringVarP(&config.DBName, "db-name", "n", "", "database name")
	cmd.Flags().StringVarP(&config.SSLMode, "db-sslmode", "s", "", "database SSL mode")
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	if a.config.ConfigPath != "" {
		a.config.ConfigPath, err = filepath.Abs(a.config.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for config file: %v", err)
		}
	}
	cm := config.New(a.config.ConfigPath)

	ctx := context.Background()
	st, err := store.Connect(ctx, a.config.DBconfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	registry := prometheus.NewRegistry()

	fetcher := github.New(a.config.GithubToken, github.WithAPIRoot(a.config.GithubAPIRoot))
	engine, err := syncer.New(st, registry)
	if err != nil {
		return fmt.Errorf("failed to create sync engine: %v", err)
	}
	pl := pipeline.New(fetcher, validate.New(cm), engine)

	notifier := notify.New(a.config.NotifyURL, a.config.NotifyUsername)
	reconciler, err := hooks.New(pl, st, notifier, a.config.HookSecret, registry)
	if err != nil {
		return fmt.Errorf("failed to create event reconciler: %v", err)
	}

	web, err := webservice.New(ctx, cm, webservice.Deps{
		Reconciler: reconciler,
		Pipeline:   pl,
		Panel:      panel.New(st),
	}, a.config.Daemon)
	if err != nil {
		return fmt.Errorf("failed to create web server: %v", err)
	}

	metricsServer := metrics.New(a.config.MetricsConfig, registry)

	a.daemon = service.New(ctx, web, metricsServer)
	close(a.ready)

	defer st.Close()
	return a.daemon.Run()
}
