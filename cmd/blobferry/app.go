package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/auth"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/client"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/config"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/docstore"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/internal/tkv"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/ledger"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/source"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/storage"
	charmlog "github.com/charmbracelet/log"
)

const dryRunBucket = "dry-run"

// app holds everything a subcommand needs. close releases it in reverse
// order of construction.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	kinds   *record.Registry
	store   tkv.TKV
	ledger  *ledger.Ledger
	src     source.Reader
	closers []func() error
}

type overrides struct {
	dryRun   bool
	delayMS  int
	logLevel string
}

func newApp(configPath string, o overrides) (*app, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, err
	}
	if o.dryRun {
		cfg.Migration.DryRun = true
	}
	if o.delayMS > 0 {
		cfg.Migration.Delay = time.Duration(o.delayMS) * time.Millisecond
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := cfg.Level()
	logger := newLogger(level)

	store, err := tkv.New(tkv.Config{Logger: logger, Directory: cfg.LedgerDir})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger at %s: %w", cfg.LedgerDir, err)
	}
	l, err := ledger.New(store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		kinds:  record.DefaultRegistry(),
		store:  store,
		ledger: l,
	}
	a.closers = append(a.closers, store.Close)
	return a, nil
}

// newLogger installs charmbracelet/log as the slog handler.
func newLogger(level slog.Level) *slog.Logger {
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Level:           charmlog.Level(level),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func (a *app) kind(name string) (*record.Kind, error) {
	if name == "" {
		return nil, fmt.Errorf("--kind is required (one of %v)", a.kinds.Names())
	}
	return a.kinds.Lookup(name)
}

func (a *app) source() (source.Reader, error) {
	if a.src != nil {
		return a.src, nil
	}
	src, err := a.openSource()
	if err != nil {
		return nil, err
	}
	a.src = src
	return src, nil
}

func (a *app) openSource() (source.Reader, error) {
	if a.cfg.Source.SQLitePath != "" {
		s, err := source.OpenSQLite(a.cfg.Source.SQLitePath, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}

	token, err := a.cfg.SourceToken()
	if err != nil {
		return nil, err
	}
	cc := &client.Config{
		BaseURL: a.cfg.Source.BaseURL,
		Timeout: a.cfg.Migration.Timeout,
		Logger:  a.logger.WithGroup("source"),
	}
	if token != "" {
		cc.Tokens = auth.Static(token)
	}
	c, err := client.NewClient(cc)
	if err != nil {
		return nil, err
	}
	return source.NewHTTP(c, a.logger)
}

// sinks returns the blob uploader and the document writer. Dry-run keeps
// both in process: blobs in memory, documents in the ledger store.
func (a *app) sinks() (storage.Uploader, docstore.Writer, string, error) {
	cfg := a.cfg
	if cfg.Migration.DryRun {
		local, err := docstore.NewLocal(a.store, cfg.Migration.Budget, a.logger)
		if err != nil {
			return nil, nil, "", err
		}
		bucket := cfg.GCP.Bucket
		if bucket == "" {
			bucket = dryRunBucket
		}
		a.logger.Info("dry run: blobs kept in memory, documents written to the local store")
		return storage.NewMemory(), local, bucket, nil
	}

	sa, err := auth.LoadServiceAccount(cfg.GCP.KeyFile, nil)
	if err != nil {
		return nil, nil, "", err
	}
	tokens, err := auth.NewCache(sa, auth.CacheConfig{Logger: a.logger})
	if err != nil {
		return nil, nil, "", err
	}
	a.closers = append(a.closers, func() error {
		tokens.Close()
		return nil
	})

	project := cfg.GCP.ProjectID
	if project == "" {
		project = sa.ProjectID()
	}
	if project == "" {
		return nil, nil, "", fmt.Errorf("gcp.projectID is not set and the key file carries none")
	}

	storageClient, err := client.NewClient(&client.Config{
		BaseURL:           cfg.GCP.StorageAPI,
		Tokens:            tokens,
		Scope:             auth.ScopeStorage,
		Timeout:           cfg.Migration.Timeout,
		RequestsPerSecond: cfg.Migration.RequestsPerSecond,
		Logger:            a.logger.WithGroup("storage"),
	})
	if err != nil {
		return nil, nil, "", err
	}
	uploader, err := storage.NewGCS(storage.GCSConfig{
		Client:        storageClient,
		PublicBaseURL: cfg.GCP.PublicBaseURL,
		MakePublic:    cfg.GCP.MakePublic,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, nil, "", err
	}

	docsClient, err := client.NewClient(&client.Config{
		BaseURL:           docstore.DocumentsURL(cfg.GCP.FirestoreAPI, project, cfg.GCP.Database),
		Tokens:            tokens,
		Scope:             auth.ScopeDatastore,
		Timeout:           cfg.Migration.Timeout,
		RequestsPerSecond: cfg.Migration.RequestsPerSecond,
		Logger:            a.logger.WithGroup("firestore"),
	})
	if err != nil {
		return nil, nil, "", err
	}
	writer, err := docstore.NewFirestore(docstore.FirestoreConfig{
		Client: docsClient,
		Budget: cfg.Migration.Budget,
		Logger: a.logger,
	})
	if err != nil {
		return nil, nil, "", err
	}

	a.logger.Info("writing to firestore", "project", project, "database", cfg.GCP.Database, "bucket", cfg.GCP.Bucket, "service_account", sa.Email())
	return uploader, writer, cfg.GCP.Bucket, nil
}
