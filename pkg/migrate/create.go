package migrate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"
)

var (
	nameSanitizeRe  = regexp.MustCompile(`[^a-z0-9_]+`)
	createTableName = regexp.MustCompile(`^create_([a-z0-9_]+)_table$`)
)

var migrationTemplate = template.Must(template.New("migration").Parse(`-- +goose Up
-- +goose StatementBegin
{{- if .Table}}
CREATE TABLE IF NOT EXISTS {{.Table}} (
  id TEXT PRIMARY KEY,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
{{- else}}
-- {{.Name}}
{{- end}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
{{- if .Table}}
DROP TABLE IF EXISTS {{.Table}};
{{- else}}
-- revert {{.Name}}
{{- end}}
-- +goose StatementEnd
`))

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql. A name of the
// form create_<table>_table gets a table skeleton, anything else an empty body.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createAt(dir, name, time.Now().UTC())
}

func createAt(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe, err := migrationName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := now.Format("20060102150405")
	existing, err := ListFiles(dir)
	if err != nil {
		return "", fmt.Errorf("existing migrations are invalid: %w", err)
	}
	if n := len(existing); n > 0 && fmt.Sprint(existing[n-1].Version) >= version {
		return "", fmt.Errorf("version %s is not newer than %d_%s", version, existing[n-1].Version, existing[n-1].Name)
	}

	var body bytes.Buffer
	data := struct{ Name, Table string }{Name: safe}
	if m := createTableName.FindStringSubmatch(safe); m != nil {
		data.Table = m[1]
	}
	if err := migrationTemplate.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render migration: %w", err)
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, safe))
	if err := os.WriteFile(fullpath, body.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func migrationName(raw string) (string, error) {
	safe := strings.ToLower(strings.TrimSpace(raw))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", raw)
	}
	return safe, nil
}
