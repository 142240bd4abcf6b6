package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"lake-wap/internal/api"
	"lake-wap/internal/config"
	internaldb "lake-wap/internal/db"
	"lake-wap/internal/db/repository"
	"lake-wap/internal/domain"
	"lake-wap/internal/engine"
	"lake-wap/internal/service/dataops"
	"lake-wap/internal/service/ingestion"
	"lake-wap/internal/service/pipeline"
	"lake-wap/internal/source/drive"
	"lake-wap/internal/storage"
)

// CatalogOps groups the catalog operations the commands call directly.
type CatalogOps struct {
	Branches  domain.BranchManager
	Tables    domain.TableEnsurer
	Publisher domain.BranchPublisher
	Options   dataops.Options
}

// Runtime hands commands the components they need, constructing them on first
// use so that a command only requires the configuration it touches.
type Runtime interface {
	Config() *config.Config
	Logger() *slog.Logger
	Catalog(ctx context.Context) (*CatalogOps, error)
	Pipeline(ctx context.Context) (*pipeline.Service, error)
	Ledger(ctx context.Context) (*repository.RunRepo, error)
	HealthChecks() map[string]api.HealthCheck
	Close() error
}

// RuntimeFactory builds a Runtime from loaded configuration.
type RuntimeFactory func(cfg *config.Config, logger *slog.Logger) Runtime

// liveRuntime wires the production implementations.
type liveRuntime struct {
	cfg    *config.Config
	logger *slog.Logger

	mu       sync.Mutex
	catalog  *CatalogOps
	catalogD *sql.DB
	ledger   *sql.DB
	pipeline *pipeline.Service
	closers  []func() error
}

func newLiveRuntime(cfg *config.Config, logger *slog.Logger) Runtime {
	return &liveRuntime{cfg: cfg, logger: logger}
}

func (r *liveRuntime) Config() *config.Config { return r.cfg }
func (r *liveRuntime) Logger() *slog.Logger   { return r.logger }

func (r *liveRuntime) Catalog(ctx context.Context) (*CatalogOps, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.catalogLocked(ctx)
}

func (r *liveRuntime) catalogLocked(ctx context.Context) (*CatalogOps, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}
	c := r.cfg.Catalog

	mode, err := dataops.ParseTableMode(c.TableMode)
	if err != nil {
		return nil, err
	}
	db, err := engine.OpenCatalog(ctx, c.Driver, c.DSN, c.MaxConns)
	if err != nil {
		return nil, err
	}
	r.catalogD = db
	r.closers = append(r.closers, db.Close)

	gw := engine.NewGateway(db,
		engine.WithStatementTimeout(c.StatementTimeout),
		engine.WithLogger(r.logger),
	)
	opts := dataops.Options{
		Catalog:   c.Name,
		Source:    c.Source,
		MainRef:   c.MainRef,
		TableMode: mode,
	}
	r.catalog = &CatalogOps{
		Branches:  dataops.NewBranchController(gw, opts, r.logger),
		Tables:    dataops.NewTableRegistrar(gw, opts, r.logger),
		Publisher: dataops.NewPublisher(gw, opts, r.logger),
		Options:   opts,
	}
	return r.catalog, nil
}

func (r *liveRuntime) ledgerLocked() (*sql.DB, error) {
	if r.ledger != nil {
		return r.ledger, nil
	}
	db, err := internaldb.OpenLedger(r.cfg.MetaDBPath)
	if err != nil {
		return nil, err
	}
	r.ledger = db
	r.closers = append(r.closers, db.Close)
	return db, nil
}

func (r *liveRuntime) Ledger(_ context.Context) (*repository.RunRepo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	db, err := r.ledgerLocked()
	if err != nil {
		return nil, err
	}
	return repository.NewRunRepo(db), nil
}

func (r *liveRuntime) Pipeline(ctx context.Context) (*pipeline.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pipeline != nil {
		return r.pipeline, nil
	}

	datasets, warnings, err := config.LoadDatasets(r.cfg.Pipeline.DatasetsFile)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		r.logger.Warn(w)
	}

	ops, err := r.catalogLocked(ctx)
	if err != nil {
		return nil, err
	}
	ingester, scheme, err := r.ingesterLocked(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := r.ledgerLocked()
	if err != nil {
		return nil, err
	}

	p := r.cfg.Pipeline
	r.pipeline = pipeline.NewService(
		repository.NewRunRepo(ledger),
		ops.Branches, ops.Tables, ops.Publisher,
		ingester,
		datasets,
		pipeline.Options{
			BranchPrefix:         p.BranchPrefix,
			TargetRef:            r.cfg.Catalog.MainRef,
			MaxParallel:          p.MaxParallel,
			RetryCount:           p.RetryCount,
			RetryDelay:           p.RetryDelay,
			DropBranchAfterMerge: p.DropBranchAfterMerge,
			StorageScheme:        scheme,
		},
		r.logger,
	)
	return r.pipeline, nil
}

func (r *liveRuntime) ingesterLocked(ctx context.Context) (domain.DatasetIngester, string, error) {
	s := r.cfg.Storage
	if s.LandingURI == "" || s.BronzeURI == "" {
		return nil, "", errors.New("BUCKET_LANDING and BUCKET_BRONZE are required to run the pipeline")
	}
	creds := storage.Credentials{
		GCSKeyFile:       s.GCSKeyFile,
		S3Endpoint:       s.S3Endpoint,
		S3Region:         s.S3Region,
		S3KeyID:          s.S3KeyID,
		S3Secret:         s.S3Secret,
		S3URLStyle:       s.S3URLStyle,
		AzureAccountName: s.AzureAccountName,
		AzureAccountKey:  s.AzureAccountKey,
	}
	landing, err := storage.Open(ctx, s.LandingURI, creds)
	if err != nil {
		return nil, "", fmt.Errorf("landing bucket: %w", err)
	}
	r.addCloser(landing)
	bronze, err := storage.Open(ctx, s.BronzeURI, creds)
	if err != nil {
		return nil, "", fmt.Errorf("bronze bucket: %w", err)
	}
	r.addCloser(bronze)

	in := r.cfg.Ingest
	source, err := drive.New(ctx, in.DriveKeyFile, drive.WithRateLimit(in.DriveRPS, drive.DefaultBurst))
	if err != nil {
		return nil, "", err
	}

	duck, err := engine.OpenDuckDB()
	if err != nil {
		return nil, "", err
	}
	r.closers = append(r.closers, duck.Close)
	converter, err := engine.NewDuckDBConverter(duck, in.ParquetCodec, in.AllVarchar)
	if err != nil {
		return nil, "", err
	}

	return ingestion.NewService(source, landing, bronze, converter, in.TempDir, r.logger), bronze.Scheme(), nil
}

func (r *liveRuntime) addCloser(v any) {
	if c, ok := v.(interface{ Close() error }); ok {
		r.closers = append(r.closers, c.Close)
	}
}

func (r *liveRuntime) HealthChecks() map[string]api.HealthCheck {
	r.mu.Lock()
	defer r.mu.Unlock()
	checks := map[string]api.HealthCheck{}
	if r.ledger != nil {
		checks["ledger"] = r.ledger.PingContext
	}
	if r.catalogD != nil {
		checks["catalog"] = r.catalogD.PingContext
	}
	return checks
}

func (r *liveRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
