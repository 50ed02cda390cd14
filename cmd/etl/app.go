package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/database"
	dbgorm "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/gorm"
	_ "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/gorm/mysql"
	_ "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/gorm/sqlite"
	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage"
	_ "github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage/gcs"
	_ "github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage/local"
	"github.com/tigerroll/surfin-etl/pkg/etl/component/reader"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/application/command"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/application/usecase"
	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/exceptions"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/lineage"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/notification"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/workflow"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/schema"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/transform"
	"github.com/tigerroll/surfin-etl/pkg/etl/infrastructure/identity"
	"github.com/tigerroll/surfin-etl/pkg/etl/infrastructure/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/infrastructure/migration"
	"github.com/tigerroll/surfin-etl/pkg/etl/infrastructure/repository/inmemory"
	"github.com/tigerroll/surfin-etl/pkg/etl/infrastructure/repository/sql"
	"github.com/tigerroll/surfin-etl/pkg/etl/listener"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configFile  string
	envFile     string
	store       string
	user        string
	stopTimeout time.Duration
}

// services is what a command can use once the application has started.
type services struct {
	fx.In
	Config     *config.Config
	Ingestor   usecase.JobIngestor
	Launcher   usecase.JobLauncher
	Operator   usecase.JobOperator
	Explorer   usecase.JobExplorer
	Workflow   *workflow.Engine
	Lineage    *lineage.Tracker
	Exceptions *exceptions.Reporter
	Detector   *schema.Detector
	Readers    *reader.Registry
}

func (o *globalOptions) rawConfig() (config.RawConfig, error) {
	if o.configFile == "" {
		return config.RawConfig(embeddedConfig), nil
	}
	raw, err := os.ReadFile(o.configFile)
	if err != nil {
		return nil, exception.NewEtlErrorf("cli", exception.KindValidation, "failed to read config file %s", o.configFile, err)
	}
	return config.RawConfig(raw), nil
}

// storeModule selects the repository backend.
func (o *globalOptions) storeModule() fx.Option {
	if o.store == "memory" {
		return inmemory.Module
	}
	return fx.Options(dbgorm.Module, sql.Module)
}

// configureLogging applies the log section, including the optional JSON log file.
func configureLogging(lc fx.Lifecycle, cfg *config.Config) {
	closeFile := logger.Configure(logger.Options{Level: cfg.ETL.Log.Level, File: cfg.ETL.Log.File})
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return closeFile() }})
}

func (o *globalOptions) appOptions(raw config.RawConfig, extra ...fx.Option) []fx.Option {
	opts := []fx.Option{
		fx.Supply(
			raw,
			fx.Annotated{Name: "envFilePath", Target: o.envFile},
		),
		logger.Module,
		config.Module,
		fx.Invoke(configureLogging),
		metrics.Module,
		o.storeModule(),
		storage.Module,
		identity.Module,
		notification.Module,
		command.Module,
		exceptions.Module,
		lineage.Module,
		schema.Module,
		transform.Module,
		reader.Module,
		usecase.Module,
		workflow.Module,
		listener.Module,
	}
	return append(opts, extra...)
}

// withApp starts the application, hands its services to fn and stops it afterwards.
func (o *globalOptions) withApp(ctx context.Context, fn func(ctx context.Context, s services) error) error {
	raw, err := o.rawConfig()
	if err != nil {
		return err
	}
	var holder *serviceHolder
	app := fx.New(o.appOptions(raw,
		fx.Provide(newServiceHolder),
		fx.Populate(&holder),
	)...)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx, holder.services)

	stopCtx, cancel := context.WithTimeout(context.Background(), o.stopTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Shutdown did not complete cleanly: %v", err)
	}
	return runErr
}

type serviceHolder struct {
	services services
}

func newServiceHolder(s services) *serviceHolder {
	return &serviceHolder{services: s}
}

// migrate applies (or rolls back) the schema migrations. It only needs the database connection.
func (o *globalOptions) migrate(ctx context.Context, down bool) error {
	raw, err := o.rawConfig()
	if err != nil {
		return err
	}
	var conn database.DBConnection
	app := fx.New(
		fx.Supply(raw, fx.Annotated{Name: "envFilePath", Target: o.envFile}),
		logger.Module,
		config.Module,
		dbgorm.Module,
		fx.Populate(&conn),
	)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), o.stopTimeout)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			logger.Warnf("Shutdown did not complete cleanly: %v", err)
		}
	}()

	m := migration.NewMigrator(conn)
	if down {
		return m.Down(ctx)
	}
	return m.Up(ctx)
}
