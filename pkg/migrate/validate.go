package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

const (
	annotationUp    = "-- +goose Up"
	annotationDown  = "-- +goose Down"
	annotationBegin = "-- +goose StatementBegin"
	annotationEnd   = "-- +goose StatementEnd"
)

// File is a goose SQL migration found on disk.
type File struct {
	Version int64
	Name    string
	Path    string
}

// ValidateDir checks every migration in dir and reports all problems together.
func ValidateDir(dir string) error {
	_, err := ListFiles(dir)
	return err
}

// ListFiles returns the migrations in dir ordered by version. Files that fail
// validation are left out and their problems are combined in the error.
func ListFiles(dir string) ([]File, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var (
		files []File
		errs  error
		seen  = map[int64]string{}
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		file, err := inspectFile(dir, e.Name())
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if prev, ok := seen[file.Version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %d in %q and %q", file.Version, prev, e.Name()))
			continue
		}
		seen[file.Version] = e.Name()
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, errs
}

func inspectFile(dir, name string) (File, error) {
	m := migrationFileRe.FindStringSubmatch(name)
	if m == nil {
		return File{}, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
	}
	version, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return File{}, fmt.Errorf("migration %q: bad version: %w", name, err)
	}

	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read file %q: %w", path, err)
	}
	if err := checkAnnotations(string(data)); err != nil {
		return File{}, fmt.Errorf("migration %q: %w", name, err)
	}
	return File{Version: version, Name: m[2], Path: path}, nil
}

// checkAnnotations requires one Up section followed by one Down section, with
// every StatementBegin closed before the next section starts.
func checkAnnotations(sql string) error {
	var (
		ups, downs int
		openAt     int
		errs       error
	)
	for i, raw := range strings.Split(sql, "\n") {
		lineNo := i + 1
		switch strings.TrimSpace(raw) {
		case annotationUp, annotationDown:
			if openAt > 0 {
				errs = multierr.Append(errs, fmt.Errorf("line %d: section starts inside the statement opened at line %d", lineNo, openAt))
				openAt = 0
			}
			if strings.TrimSpace(raw) == annotationUp {
				ups++
				if downs > 0 {
					errs = multierr.Append(errs, fmt.Errorf("line %d: Up section after Down", lineNo))
				}
			} else {
				downs++
			}
		case annotationBegin:
			if openAt > 0 {
				errs = multierr.Append(errs, fmt.Errorf("line %d: StatementBegin inside the statement opened at line %d", lineNo, openAt))
			}
			openAt = lineNo
		case annotationEnd:
			if openAt == 0 {
				errs = multierr.Append(errs, fmt.Errorf("line %d: StatementEnd without StatementBegin", lineNo))
			}
			openAt = 0
		}
	}

	if openAt > 0 {
		errs = multierr.Append(errs, fmt.Errorf("statement opened at line %d is never closed", openAt))
	}
	if ups != 1 {
		errs = multierr.Append(errs, fmt.Errorf("expected one %q, found %d", annotationUp, ups))
	}
	if downs != 1 {
		errs = multierr.Append(errs, fmt.Errorf("expected one %q, found %d", annotationDown, downs))
	}
	return errs
}
