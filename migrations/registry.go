// Package migrations exposes the embedded SQL migration filesystems per
// dialect and a registration helper that validates them before handing
// them to a persistence client.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	integrations "github.com/goliatone/go-integrations"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// migrationsDir is where the embedded schema files live relative to the
// module root; the sqlite variants sit in a subdirectory of it.
const migrationsDir = "data/sql/migrations"

const defaultSourceLabel = "go-integrations"

// FilesystemSpec is one dialect's migration filesystem rooted at the
// directory containing its *.up.sql/*.down.sql pairs.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration captures what Register resolved and which dialects it handed
// to the register function.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect's filesystem, typically forwarding it to
// persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets limits registration to the given dialects. Unknown
// dialect names are simply never matched.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// WithFilesystems overrides the embedded filesystems, e.g. to layer
// deployment-specific seed data on top of the core schema.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		kept := filesystems[:0:0]
		for _, spec := range filesystems {
			spec.Dialect = strings.TrimSpace(strings.ToLower(spec.Dialect))
			if spec.Dialect == "" || spec.FS == nil {
				continue
			}
			kept = append(kept, spec)
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems resolves the per-dialect migration filesystems, asserting each
// one actually contains *.up.sql files. A caller-supplied source overrides
// the embedded one.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := fs.FS(integrations.GetCoreMigrationsFS())
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	postgres, err := fs.Sub(root, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", migrationsDir, err)
	}
	sqlite, err := fs.Sub(postgres, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: migrationsDir, FS: postgres},
		{Dialect: DialectSQLite, Path: path.Join(migrationsDir, "sqlite"), FS: sqlite},
	}
	for _, spec := range filesystems {
		if err := assertHasMigrations(spec); err != nil {
			return nil, err
		}
	}
	return filesystems, nil
}

// Register resolves the embedded filesystems, applies the options, and
// invokes registerFn once per dialect named in the validation targets.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       defaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if reg.SourceLabel = strings.TrimSpace(reg.SourceLabel); reg.SourceLabel == "" {
		return reg, fmt.Errorf("migrations: source label is required")
	}
	targets := normalizeDialects(reg.ValidationTargets)
	if len(targets) == 0 {
		return reg, fmt.Errorf("migrations: validation targets are required")
	}

	wanted := make(map[string]bool, len(targets))
	for _, target := range targets {
		wanted[target] = true
	}
	for _, spec := range reg.Filesystems {
		if !wanted[spec.Dialect] {
			continue
		}
		if spec.FS == nil {
			return reg, fmt.Errorf("migrations: filesystem for %s is nil", spec.Dialect)
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func assertHasMigrations(spec FilesystemSpec) error {
	matches, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	return nil
}

func normalizeDialects(values []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(strings.ToLower(value))
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}
