// Package migrations exposes the embedded ledger schema per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	payments "github.com/goliatone/go-payments"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-payments"

	embeddedRoot = "data/sql/migrations"
)

// dialectDirs maps each dialect to its directory below the migrations root.
var dialectDirs = map[string]string{
	DialectPostgres: ".",
	DialectSQLite:   "sqlite",
}

// Source is the migration set for one dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
	Files   []string
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Sources     []Source
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*config)

type config struct {
	label    string
	dialects []string
	root     fs.FS
}

func WithSourceLabel(label string) Option {
	return func(c *config) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			c.label = trimmed
		}
	}
}

// WithDialects limits registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(c *config) {
		var next []string
		for _, dialect := range dialects {
			if normalized := normalizeDialect(dialect); normalized != "" && !contains(next, normalized) {
				next = append(next, normalized)
			}
		}
		if len(next) > 0 {
			c.dialects = next
		}
	}
}

// WithRoot swaps the embedded schema for another filesystem laid out the
// same way, either rooted at data/sql/migrations or at the postgres files.
func WithRoot(root fs.FS) Option {
	return func(c *config) {
		if root != nil {
			c.root = root
		}
	}
}

// Sources resolves one Source per known dialect and checks that every up
// migration has a matching down migration.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = payments.GetMigrationsFS()
	}
	base, basePath, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	dialects := make([]string, 0, len(dialectDirs))
	for dialect := range dialectDirs {
		dialects = append(dialects, dialect)
	}
	sort.Strings(dialects)

	sources := make([]Source, 0, len(dialects))
	for _, dialect := range dialects {
		dir := dialectDirs[dialect]
		sub := base
		if dir != "." {
			if sub, err = fs.Sub(base, dir); err != nil {
				return nil, fmt.Errorf("migrations: open %s directory: %w", dialect, err)
			}
		}
		files, err := pairedFiles(sub)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s: %w", dialect, err)
		}
		sources = append(sources, Source{
			Dialect: dialect,
			Path:    path.Join(basePath, dir),
			FS:      sub,
			Files:   files,
		})
	}
	return sources, nil
}

// Register hands every selected dialect's migrations to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	cfg := config{
		label:    DefaultSourceLabel,
		dialects: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	reg := Registration{SourceLabel: cfg.label, Dialects: cfg.dialects}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	for _, dialect := range cfg.dialects {
		if _, ok := dialectDirs[dialect]; !ok {
			return reg, fmt.Errorf("migrations: unsupported dialect %q", dialect)
		}
	}

	sources, err := Sources(cfg.root)
	if err != nil {
		return reg, err
	}
	for _, source := range sources {
		if !contains(cfg.dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, reg.SourceLabel, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
		reg.Sources = append(reg.Sources, source)
	}
	return reg, nil
}

// RegisterDialect is the common single-dialect case, e.g.
//
//	migrations.RegisterDialect(ctx, migrations.DialectPostgres, func(fsys fs.FS) {
//		client.RegisterSQLMigrations(fsys)
//	})
func RegisterDialect(ctx context.Context, dialect string, register func(fs.FS), opts ...Option) (Registration, error) {
	if register == nil {
		return Registration{}, fmt.Errorf("migrations: register function is required")
	}
	opts = append(opts, WithDialects(dialect))
	return Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		register(fsys)
		return nil
	}, opts...)
}

func resolveRoot(root fs.FS) (fs.FS, string, error) {
	if sub, err := fs.Sub(root, embeddedRoot); err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, embeddedRoot, nil
		}
	}
	matches, err := fs.Glob(root, "*.up.sql")
	if err == nil && len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", embeddedRoot)
}

func pairedFiles(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	files := make([]string, 0, len(ups)*2)
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(fsys, down); err != nil {
			return nil, fmt.Errorf("%s has no matching %s", up, down)
		}
		files = append(files, up, down)
	}
	sort.Strings(files)
	return files, nil
}

func normalizeDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres
	case "sqlite", "sqlite3":
		return DialectSQLite
	default:
		return strings.ToLower(strings.TrimSpace(dialect))
	}
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
