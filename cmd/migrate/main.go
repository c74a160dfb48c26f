// Command migrate drives a CSV-based load or dump against an in-memory demo
// org (internal/memclient), seeded from a JSON schema file. It exercises the
// full facade -- describe, mapping resolution, upload/dump fixpoints, run
// tracking, id-map and audit persistence -- without a live Salesforce org.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/stomita/salesforce-migration-automatic/internal/audit"
	"github.com/stomita/salesforce-migration-automatic/internal/config"
	"github.com/stomita/salesforce-migration-automatic/internal/core"
	"github.com/stomita/salesforce-migration-automatic/internal/errs"
	"github.com/stomita/salesforce-migration-automatic/internal/idmapstore"
	"github.com/stomita/salesforce-migration-automatic/internal/logging"
	"github.com/stomita/salesforce-migration-automatic/internal/memclient"
	"github.com/stomita/salesforce-migration-automatic/internal/statusserver"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := logging.NewRunID()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.FromContext(ctx)

	app, err := bootstrap(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var runErr error
	switch cmd := os.Args[1]; cmd {
	case "load":
		runErr = runLoad(ctx, app, cfg, runID, os.Args[2:])
	case "dump":
		runErr = runDump(ctx, app, cfg, runID, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		msg := errs.Describe(runErr)
		log.Error("run failed", "error", runErr, "code", msg.Code, "action", msg.Action)
		os.Exit(1)
	}
	log.Info("run complete", "run_id", runID)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  migrate load --csv-dir DIR --schema FILE [--mapping FILE] [--id-map FILE]
  migrate dump --out-dir DIR --schema FILE --queries FILE`)
}

// app bundles the long-lived collaborators a run may need: the demo client,
// an optional Postgres pool, and an optional control server. Close releases
// the Postgres pool; the control server shuts down when ctx is cancelled.
type app struct {
	clients      core.Clients
	pool         *pgxpool.Pool
	auditEnabled bool
	tracker      *statusserver.Tracker
	server       *statusserver.Server
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func bootstrap(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{clients: core.Clients{}}

	if cfg.Database.URL != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("parse database url: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Database.MaxConns)
		poolCfg.MinConns = int32(cfg.Database.MinConns)
		poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		a.pool = pool

		if err := idmapstore.New(pool).EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure idmap schema: %w", err)
		}
		if cfg.Audit.Enabled {
			if err := audit.New(pool).EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure audit schema: %w", err)
			}
			a.auditEnabled = true
		}
	}

	if cfg.Control.Enabled {
		a.tracker = statusserver.NewTracker()
		a.server = statusserver.NewServer(a.tracker, cfg.Control)
		go func() {
			if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("control server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
			defer cancel()
			_ = a.server.Shutdown(shutdownCtx)
		}()
	}

	return a, nil
}

func runLoad(ctx context.Context, a *app, cfg *config.Config, runID string, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	csvDir := fs.String("csv-dir", "", "directory of <Object>.csv files to load")
	schemaFile := fs.String("schema", "", "JSON file describing object schemas (demo org)")
	mappingFile := fs.String("mapping", "", "JSON file of mapping policies")
	idMapFile := fs.String("id-map", "", "JSON file seeding the source->target id map")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *csvDir == "" || *schemaFile == "" {
		return errors.New("load requires --csv-dir and --schema")
	}

	client, err := demoClient(*schemaFile)
	if err != nil {
		return err
	}
	a.clients = core.Clients{Schema: client, Data: client}

	datasets, err := readDatasets(*csvDir)
	if err != nil {
		return err
	}
	policies, err := readMappingPolicies(*mappingFile)
	if err != nil {
		return err
	}
	idMap, err := readIDMap(*idMapFile)
	if err != nil {
		return err
	}

	objects := make([]string, len(datasets))
	for i, ds := range datasets {
		objects[i] = string(ds.Object)
	}
	if a.tracker != nil {
		a.tracker.Start(runID, "load", objects)
	}

	opts := core.UploadOptions{
		DefaultNamespace:     cfg.Engine.DefaultNamespace,
		IdMap:                idMap,
		MaxBatchSize:         cfg.Engine.MaxBatchSize,
		MaxConcurrentObjects: cfg.Engine.MaxConcurrentObjects,
		OnProgress: func(p core.UploadProgress) {
			logging.FromContext(ctx).Info("load progress",
				"total", p.TotalCount, "success", p.SuccessCount, "failure", p.FailureCount)
			if a.tracker != nil {
				a.tracker.UpdateLoad(runID, p)
			}
		},
	}

	status, err := core.Load(ctx, a.clients, datasets, policies, opts)
	if a.tracker != nil {
		a.tracker.Finish(runID, err)
	}
	if err != nil {
		recordAudit(ctx, a, audit.KindLoad, runID, objects, status, err)
		return err
	}

	if a.pool != nil {
		if saveErr := idmapstore.New(a.pool).SaveSuccesses(ctx, runID, status.Successes); saveErr != nil {
			logging.FromContext(ctx).Warn("failed to persist id map", "error", saveErr)
		}
	}
	recordAudit(ctx, a, audit.KindLoad, runID, objects, status, nil)

	logging.FromContext(ctx).Info("load finished",
		"total", status.TotalCount,
		"succeeded", len(status.Successes),
		"failed", len(status.Failures),
		"blocked", len(status.Blocked),
		"not_loadable", len(status.NotLoadable),
	)
	return nil
}

func runDump(ctx context.Context, a *app, cfg *config.Config, runID string, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	outDir := fs.String("out-dir", "", "directory to write dumped CSV files to")
	schemaFile := fs.String("schema", "", "JSON file describing object schemas (demo org)")
	queriesFile := fs.String("queries", "", "JSON file of dump queries")
	idMapFile := fs.String("id-map", "", "JSON file reverse-applied to id/reference columns")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outDir == "" || *schemaFile == "" || *queriesFile == "" {
		return errors.New("dump requires --out-dir, --schema and --queries")
	}

	client, err := demoClient(*schemaFile)
	if err != nil {
		return err
	}
	a.clients = core.Clients{Schema: client, Data: client}

	queries, err := readQueries(*queriesFile)
	if err != nil {
		return err
	}
	idMap, err := readIDMap(*idMapFile)
	if err != nil {
		return err
	}

	objects := make([]string, 0, len(queries))
	seen := map[string]struct{}{}
	for _, q := range queries {
		if _, ok := seen[string(q.Object)]; !ok {
			seen[string(q.Object)] = struct{}{}
			objects = append(objects, string(q.Object))
		}
	}
	if a.tracker != nil {
		a.tracker.Start(runID, "dump", objects)
	}

	opts := core.DumpOptions{
		DefaultNamespace:     cfg.Engine.DefaultNamespace,
		MaxFetchSize:         cfg.Engine.MaxFetchSize,
		IdMap:                idMap,
		MaxConcurrentQueries: cfg.Engine.MaxConcurrentQueries,
		OnProgress: func(p core.DumpProgress) {
			logging.FromContext(ctx).Info("dump progress", "fetched", p.FetchedCount)
			if a.tracker != nil {
				a.tracker.UpdateDump(runID, p)
			}
		},
	}

	csvFiles, err := core.Dump(ctx, a.clients, queries, opts)
	if a.tracker != nil {
		a.tracker.Finish(runID, err)
	}
	if err != nil {
		recordAudit(ctx, a, audit.KindDump, runID, objects, core.UploadStatus{}, err)
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for i, text := range csvFiles {
		name := fmt.Sprintf("%02d_%s.csv", i, sanitizeFilename(string(queries[i].Object)))
		if err := os.WriteFile(filepath.Join(*outDir, name), []byte(text), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	recordAudit(ctx, a, audit.KindDump, runID, objects, core.UploadStatus{TotalCount: len(csvFiles)}, nil)

	logging.FromContext(ctx).Info("dump finished", "files_written", len(csvFiles), "out_dir", *outDir)
	return nil
}

func recordAudit(ctx context.Context, a *app, kind audit.Kind, runID string, objects []string, status core.UploadStatus, runErr error) {
	if a.pool == nil || !a.auditEnabled {
		return
	}
	reason := ""
	if runErr != nil {
		reason = runErr.Error()
	}
	entry := audit.Entry{
		RunID:        runID,
		Kind:         kind,
		Objects:      objects,
		TotalCount:   status.TotalCount,
		SuccessCount: len(status.Successes),
		FailureCount: len(status.Failures),
		Reason:       reason,
	}
	if err := audit.New(a.pool).Record(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("failed to record audit entry", "error", err)
	}
}

// demoClient builds an in-memory SchemaClient/DataClient from a JSON schema
// file: a top-level array of core.ObjectDescription.
func demoClient(schemaFile string) (*memclient.Client, error) {
	raw, err := os.ReadFile(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var descriptions []core.ObjectDescription
	if err := json.Unmarshal(raw, &descriptions); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	client := memclient.New("001")
	for _, desc := range descriptions {
		client.RegisterSchema(desc)
	}
	return client, nil
}

func readDatasets(dir string) ([]core.LoadDataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read csv dir: %w", err)
	}
	var datasets []core.LoadDataset
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		object := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		ds, err := core.ReadCSVDataset(core.ObjectName(object), data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func readMappingPolicies(file string) ([]core.MappingPolicy, error) {
	if file == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	var policies []core.MappingPolicy
	if err := json.Unmarshal(raw, &policies); err != nil {
		return nil, fmt.Errorf("parse mapping file: %w", err)
	}
	return policies, nil
}

func readQueries(file string) ([]core.DumpQuery, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read queries file: %w", err)
	}
	var queries []core.DumpQuery
	if err := json.Unmarshal(raw, &queries); err != nil {
		return nil, fmt.Errorf("parse queries file: %w", err)
	}
	return queries, nil
}

func readIDMap(file string) (map[string]string, error) {
	if file == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read id-map file: %w", err)
	}
	var idMap map[string]string
	if err := json.Unmarshal(raw, &idMap); err != nil {
		return nil, fmt.Errorf("parse id-map file: %w", err)
	}
	return idMap, nil
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
