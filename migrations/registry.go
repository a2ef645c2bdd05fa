// Package migrations registers the embedded payments schema with a
// persistence client, one filesystem per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"

	payments "github.com/goliatone/go-payments"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// RequiredTables must be created by every dialect's up migrations.
var RequiredTables = []string{"reservations", "payments", "refund_policies", "catalog_services"}

var createTablePattern = regexp.MustCompile(`(?i)create\s+table\s+(?:if\s+not\s+exists\s+)?"?([a-z_][a-z0-9_]*)"?`)

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
	// Versions lists migration prefixes such as 00001_payments_schema.
	Versions []string
	Tables   []string
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if next := normalizeDialects(targets); len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

// WithFilesystems replaces the embedded schema, typically in tests.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		copied := make([]FilesystemSpec, 0, len(filesystems))
		for _, spec := range filesystems {
			dialect := strings.TrimSpace(strings.ToLower(spec.Dialect))
			if dialect == "" || spec.FS == nil {
				continue
			}
			spec.Dialect = dialect
			copied = append(copied, spec)
		}
		if len(copied) > 0 {
			r.Filesystems = copied
		}
	}
}

// Filesystems resolves the postgres and sqlite migration trees and checks
// that both ship the same up/down versions and the payments tables.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := payments.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: path.Join(basePath, "sqlite"), FS: sqliteFS},
	}
	for i := range filesystems {
		if err := inspect(&filesystems[i]); err != nil {
			return nil, err
		}
	}
	if err := checkParity(filesystems); err != nil {
		return nil, err
	}
	return filesystems, nil
}

func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       "go-payments",
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

	switch {
	case len(reg.ValidationTargets) == 0:
		return reg, fmt.Errorf("migrations: validation targets are required")
	case strings.TrimSpace(reg.SourceLabel) == "":
		return reg, fmt.Errorf("migrations: source label is required")
	case len(reg.Filesystems) == 0:
		return reg, fmt.Errorf("migrations: filesystems are required")
	case registerFn == nil:
		return reg, fmt.Errorf("migrations: register function is required")
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

// inspect fills Versions and Tables. Every up file needs a down file.
func inspect(spec *FilesystemSpec) error {
	ups, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, err)
	}
	if len(ups) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	sort.Strings(ups)

	tables := map[string]struct{}{}
	spec.Versions = spec.Versions[:0]
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(spec.FS, version+".down.sql"); err != nil {
			return fmt.Errorf("migrations: %s migration %s has no down file", spec.Dialect, version)
		}
		content, err := fs.ReadFile(spec.FS, up)
		if err != nil {
			return fmt.Errorf("migrations: read %s %s: %w", spec.Dialect, up, err)
		}
		for _, match := range createTablePattern.FindAllStringSubmatch(string(content), -1) {
			tables[strings.ToLower(match[1])] = struct{}{}
		}
		spec.Versions = append(spec.Versions, version)
	}

	spec.Tables = make([]string, 0, len(tables))
	for table := range tables {
		spec.Tables = append(spec.Tables, table)
	}
	sort.Strings(spec.Tables)
	for _, required := range RequiredTables {
		if _, ok := tables[required]; !ok {
			return fmt.Errorf("migrations: %s schema does not create table %q", spec.Dialect, required)
		}
	}
	return nil
}

func checkParity(filesystems []FilesystemSpec) error {
	if len(filesystems) < 2 {
		return nil
	}
	reference := filesystems[0]
	for _, spec := range filesystems[1:] {
		if !slices.Equal(reference.Versions, spec.Versions) {
			return fmt.Errorf("migrations: %s versions %v differ from %s versions %v",
				spec.Dialect, spec.Versions, reference.Dialect, reference.Versions)
		}
	}
	return nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	sub, err := fs.Sub(root, "data/sql/migrations")
	if err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, "data/sql/migrations", nil
		}
	}
	if matches, globErr := fs.Glob(root, "*.sql"); globErr == nil && len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: data/sql/migrations not found")
}

func normalizeDialects(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
