package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/console-reconciler/internal/config"
	"github.com/dvloznov/console-reconciler/internal/logger"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// target is the dataset migrations are applied to.
type target struct {
	ProjectID string
	DatasetID string
}

func (t target) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.DatasetID, name)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	projectID := flag.String("project", cfg.ProjectID, "GCP project ID (default: $GCP_PROJECT_ID)")
	datasetID := flag.String("dataset", cfg.LedgerDataset, "BigQuery ledger dataset ID")
	appliedBy := flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir := flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
	dryRun := flag.Bool("dry-run", false, "List pending migrations without applying them")
	flag.Parse()

	if *projectID == "" {
		log.Fatal().Msg("Error: -project flag or GCP_PROJECT_ID is required")
	}
	tgt := target{ProjectID: *projectID, DatasetID: *datasetID}

	ctx := logger.WithContext(context.Background(), log)

	client, err := bigquery.NewClient(ctx, tgt.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", tgt.ProjectID).Str("dataset", tgt.DatasetID).Msg("connected to BigQuery")

	if err := ensureSchemaMigrationsTable(ctx, client, tgt); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema_migrations table")
	}

	dir, err := locateMigrations(*migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to locate migrations")
	}
	migrations, err := readMigrations(ctx, dir, tgt)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("migration files found")

	appliedMigrations, err := getAppliedMigrations(ctx, client, tgt)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get applied migrations")
	}
	log.Info().Int("count", len(appliedMigrations)).Msg("migrations already applied")

	pending := pendingMigrations(log, migrations, appliedMigrations)
	if *dryRun {
		for _, m := range pending {
			fmt.Printf("pending %04d_%s\n", m.Version, m.Name)
		}
		return
	}

	for _, m := range pending {
		mlog := log.With().Int("version", m.Version).Str("name", m.Name).Logger()
		mlog.Info().Msg("applying migration")

		if err := runStatement(ctx, client.Query(m.SQL)); err != nil {
			mlog.Fatal().Err(err).Msg("failed to execute migration")
		}
		if err := recordMigration(ctx, client, tgt, m, *appliedBy); err != nil {
			mlog.Fatal().Err(err).Msg("failed to record migration")
		}
	}

	if len(pending) == 0 {
		log.Info().Msg("no new migrations to apply, dataset is up to date")
	} else {
		log.Info().Int("applied", len(pending)).Msg("migrations applied")
	}
}

// locateMigrations resolves dir from the repo root or from cmd/migrate.
func locateMigrations(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	alt := filepath.Join("..", "..", dir)
	if _, err := os.Stat(alt); err == nil {
		return alt, nil
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureSchemaMigrationsTable(ctx context.Context, client *bigquery.Client, tgt target) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, tgt.table("schema_migrations"))

	return runStatement(ctx, client.Query(sql))
}

// readMigrations reads all migration files in dir, sorted by version.
func readMigrations(ctx context.Context, dir string, tgt target) ([]Migration, error) {
	log := logger.FromContext(ctx)

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(file.Name())
		if matches == nil {
			log.Warn().Str("file", file.Name()).Msg("skipping file with invalid name")
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			log.Warn().Str("file", file.Name()).Msg("skipping file with invalid version")
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: file.Name(),
			SQL:      renderSQL(string(content), tgt),
			// Checksum covers the template, so the same migration matches across datasets.
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func renderSQL(sql string, tgt target) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", tgt.ProjectID)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", tgt.DatasetID)
}

// pendingMigrations returns the migrations not yet applied. An applied
// migration whose file changed since is reported and left alone.
func pendingMigrations(log zerolog.Logger, all []Migration, applied []AppliedMigration) []Migration {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	var pending []Migration
	for _, m := range all {
		am, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			log.Warn().Int("version", m.Version).Str("name", m.Name).Msg("applied migration changed on disk")
			continue
		}
		log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("already applied")
	}
	return pending
}

// getAppliedMigrations retrieves the list of already applied migrations
func getAppliedMigrations(ctx context.Context, client *bigquery.Client, tgt target) ([]AppliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, tgt.table("schema_migrations"))

	it, err := client.Query(sql).Read(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func recordMigration(ctx context.Context, client *bigquery.Client, tgt target, m Migration, appliedBy string) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, tgt.table("schema_migrations")))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	return runStatement(ctx, q)
}

func runStatement(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
