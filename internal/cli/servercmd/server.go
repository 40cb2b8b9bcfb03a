package servercmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/cuihairu/govmsg/internal/audit"
	auditchain "github.com/cuihairu/govmsg/internal/audit/chain"
	"github.com/cuihairu/govmsg/internal/auth/rbac"
	"github.com/cuihairu/govmsg/internal/auth/token"
	"github.com/cuihairu/govmsg/internal/cli/common"
	"github.com/cuihairu/govmsg/internal/db"
	"github.com/cuihairu/govmsg/internal/events"
	"github.com/cuihairu/govmsg/internal/hotreload"
	"github.com/cuihairu/govmsg/internal/repo/gorm/uow"
	httpserver "github.com/cuihairu/govmsg/internal/server/http"
	auditsvc "github.com/cuihairu/govmsg/internal/service/audit"
	"github.com/cuihairu/govmsg/internal/service/messages"
	"github.com/cuihairu/govmsg/internal/service/users"
	"github.com/cuihairu/govmsg/internal/telemetry"
)

// Flags registers the keys shared by the server and admin commands.
func Flags(cmd *cobra.Command) {
	cmd.Flags().String("db.dsn", "", "database DSN (postgres://, mysql://, sqlserver://, sqlite://, sqlite-pure://)")
	cmd.Flags().Int("db.max_open_conns", 20, "max open database connections")
	cmd.Flags().Int("db.max_idle_conns", 5, "max idle database connections")
	cmd.Flags().String("log.level", "info", "log level: debug|info|warn|error")
	cmd.Flags().String("log.format", "console", "log format: console|json")
	cmd.Flags().String("log.file", "", "rotate logs into this file instead of stderr")
}

// Load builds the effective configuration of cmd.
func Load(cmd *cobra.Command, cfgFile, profile string, includes []string) (*viper.Viper, error) {
	v := common.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := common.LoadInto(v, cfgFile, includes, "server", profile); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	common.SetupLogger(common.LogConfigFrom(v))
	if cfgFile != "" {
		slog.Info("config loaded", "file", cfgFile, "profile", profile)
	}
	return v, nil
}

// OpenDB opens the configured database.
func OpenDB(v *viper.Viper) (*gorm.DB, error) {
	return db.Open(v.GetString("db.dsn"), db.Options{
		MaxOpenConns:    v.GetInt("db.max_open_conns"),
		MaxIdleConns:    v.GetInt("db.max_idle_conns"),
		ConnMaxLifetime: 30 * time.Minute,
	})
}

// New returns the `govmsg server` command.
func New() *cobra.Command {
	var cfgFile, profile string
	var includes []string
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the messaging HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := Load(cmd, cfgFile, profile, includes)
			if err != nil {
				return err
			}
			if err := common.ValidateServerConfig(v, v.GetBool("strict")); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, v, cfgFile)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml), supports top-level 'server:' section")
	cmd.Flags().StringVar(&profile, "profile", "", "overlay server.profiles.<name>")
	cmd.Flags().StringSliceVar(&includes, "include", nil, "extra config files merged in order")
	cmd.Flags().String("http_addr", ":8080", "http api listen address")
	cmd.Flags().String("jwt_secret", "dev-secret", "jwt hs256 secret")
	cmd.Flags().Duration("jwt_ttl", 7*24*time.Hour, "token lifetime")
	cmd.Flags().Bool("admin_approval_required", false, "require an admin approval after the manager")
	cmd.Flags().Bool("db.auto_migrate", true, "migrate the schema at startup")
	cmd.Flags().Bool("strict", false, "strict config validation")
	cmd.Flags().String("audit.chain_file", "", "hash-chained JSONL mirror of the audit log (empty disables)")
	cmd.Flags().String("events.driver", "noop", "lifecycle event bus: noop|redis|kafka")
	cmd.Flags().String("events.redis_url", "redis://localhost:6379/0", "redis url")
	cmd.Flags().String("events.redis_stream", "govmsg:messages", "redis stream name")
	cmd.Flags().StringSlice("events.kafka_brokers", nil, "kafka brokers")
	cmd.Flags().String("events.kafka_topic", "govmsg.messages", "kafka topic")
	cmd.Flags().Bool("telemetry.enabled", false, "export OpenTelemetry traces and metrics")
	cmd.Flags().String("telemetry.collector_url", "http://localhost:4318", "OTLP HTTP collector")
	cmd.Flags().String("telemetry.service_name", "govmsg-server", "OpenTelemetry service name")
	cmd.Flags().StringSlice("cors.allow_origins", nil, "allowed CORS origins (empty allows all)")
	cmd.Flags().Bool("cors.allow_credentials", false, "send Access-Control-Allow-Credentials")
	Flags(cmd)
	return cmd
}

func run(ctx context.Context, v *viper.Viper, cfgFile string) error {
	gdb, err := OpenDB(v)
	if err != nil {
		return err
	}
	if v.GetBool("db.auto_migrate") {
		if err := uow.AutoMigrate(gdb); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	work := uow.New(gdb)

	var tracer *telemetry.LifecycleTracer
	if v.GetBool("telemetry.enabled") {
		tc := telemetry.LoadConfigFromEnv()
		tc.ServiceName = v.GetString("telemetry.service_name")
		tc.CollectorURL = v.GetString("telemetry.collector_url")
		tc.EnableTracing, tc.EnableMetrics = true, true
		prov, err := telemetry.NewProvider(ctx, tc)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := prov.Shutdown(sctx); err != nil {
				slog.Warn("telemetry shutdown", "error", err)
			}
		}()
		tracer = prov.Lifecycle
	}

	pub, err := events.New(events.Config{
		Driver:       v.GetString("events.driver"),
		RedisURL:     v.GetString("events.redis_url"),
		RedisStream:  v.GetString("events.redis_stream"),
		KafkaBrokers: v.GetStringSlice("events.kafka_brokers"),
		KafkaTopic:   v.GetString("events.kafka_topic"),
	})
	if err != nil {
		return err
	}
	defer pub.Close()

	var mirrors audit.Multi
	if p := v.GetString("audit.chain_file"); p != "" {
		cw, err := auditchain.NewWriter(p)
		if err != nil {
			return fmt.Errorf("audit chain: %w", err)
		}
		defer cw.Close()
		mirrors = append(mirrors, cw)
	}

	adminFlag := hotreload.NewFlag(v.GetBool("admin_approval_required"))
	slog.Info("admin approval", "required", adminFlag.Get())
	if cfgFile != "" && !common.ApprovalFlagPinned() {
		w, err := hotreload.New(cfgFile, 0, slog.Default())
		if err != nil {
			return err
		}
		w.OnChange(hotreload.BoolSetting("server", "admin_approval_required", adminFlag))
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	tokens := token.NewManager(v.GetString("jwt_secret"), v.GetDuration("jwt_ttl"))
	policy, err := rbac.NewCasbinPolicy(nil)
	if err != nil {
		return err
	}
	srv, err := httpserver.NewServer(httpserver.Deps{
		Messages: messages.NewService(work, messages.Options{
			AdminApprovalRequired: adminFlag.Get,
			Publisher:             pub,
			Mirror:                mirrors,
			Tracer:                tracer,
		}),
		Users:        users.NewService(work, tokens),
		Audit:        auditsvc.NewService(work.Stores().Audit),
		Tokens:       tokens,
		UoW:          work,
		Policy:       policy,
		Metrics:      telemetry.NewHTTPMetrics(),
		RequestAudit: audit.BestEffort{Inner: append(audit.Multi{work.Stores().Audit}, mirrors...)},
		CORS: httpserver.CORSConfig{
			AllowOrigins:     v.GetStringSlice("cors.allow_origins"),
			AllowCredentials: v.GetBool("cors.allow_credentials"),
		},
		LogCounters: common.GetLogCounters,
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(v.GetString("http_addr")) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
