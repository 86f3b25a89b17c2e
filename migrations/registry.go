// Package migrations exposes the embedded vault schema per dialect and hands
// it to a persistence client's migration runner. The postgres tree is the
// source of truth; the sqlite subtree mirrors it for single-node deployments
// and tests.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	sessionvault "github.com/goliatone/go-sessionvault"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const migrationsDir = "data/sql/migrations"

// dialectSubdirs maps each supported dialect to its directory inside the
// migration tree, in registration order.
var dialectSubdirs = []struct {
	dialect string
	subdir  string
}{
	{dialect: DialectPostgres, subdir: "."},
	{dialect: DialectSQLite, subdir: "sqlite"},
}

// FilesystemSpec is one dialect's migration tree.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc receives one dialect tree; implementations typically forward
// it to persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Registration records what was offered and which dialects were registered.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets restricts registration to the named dialects. The
// default registers every dialect the tree ships.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		next := normalizeDialects(targets)
		if len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

// Filesystems resolves the embedded migration tree into one spec per dialect.
// A caller-provided root overrides the embedded one.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := sessionvault.GetCoreMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, err := fs.Sub(root, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not found: %w", migrationsDir, err)
	}

	specs := make([]FilesystemSpec, 0, len(dialectSubdirs))
	for _, entry := range dialectSubdirs {
		fsys := base
		path := migrationsDir
		if entry.subdir != "." {
			sub, subErr := fs.Sub(base, entry.subdir)
			if subErr != nil {
				return nil, fmt.Errorf("migrations: resolve %s tree: %w", entry.dialect, subErr)
			}
			fsys = sub
			path = migrationsDir + "/" + entry.subdir
		}
		matches, globErr := fs.Glob(fsys, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", entry.dialect, path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s tree %q has no *.up.sql files", entry.dialect, path)
		}
		specs = append(specs, FilesystemSpec{
			Dialect: entry.dialect,
			Path:    path,
			FS:      fsys,
		})
	}
	return specs, nil
}

// Register offers each targeted dialect tree to registerFn. Dialects outside
// the validation targets are resolved and checked but not registered.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       "go-sessionvault",
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

	targeted := make(map[string]struct{}, len(reg.ValidationTargets))
	for _, target := range reg.ValidationTargets {
		targeted[target] = struct{}{}
	}

	for _, spec := range reg.Filesystems {
		if _, ok := targeted[spec.Dialect]; !ok {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func normalizeDialects(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
