package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverPgx    = "pgx"
	DriverPq     = "pq"
	DriverSQLite = "sqlite3"
)

// ErrorDump flattens an error for structured logs.
type ErrorDump struct {
	TopMessage string     `json:"top_message"`
	Code       Code       `json:"code,omitempty"`
	Chain      []string   `json:"chain,omitempty"`
	DB         *DBFailure `json:"db,omitempty"`
}

// DBFailure is what the database driver reported, whichever driver it was.
type DBFailure struct {
	Driver     string `json:"driver"`
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error(), DB: DatabaseFailure(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields renders the dump as log fields; db_* keys appear only for
// database failures.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.DB != nil {
		fields["db_driver"] = d.DB.Driver
		fields["db_code"] = d.DB.Code
		fields["db_constraint"] = d.DB.Constraint
		fields["db_table"] = d.DB.Table
		fields["db_column"] = d.DB.Column
		fields["db_detail"] = d.DB.Detail
		fields["db_message"] = d.DB.Message
	}
	return fields
}

// DatabaseFailure extracts driver details from err, or nil when no database
// driver error is in the chain.
func DatabaseFailure(err error) *DBFailure {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DBFailure{
			Driver:     DriverPgx,
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DBFailure{
			Driver:     DriverPq,
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		failure := &DBFailure{
			Driver:  DriverSQLite,
			Code:    strconv.Itoa(int(liteErr.Code)),
			Message: liteErr.Error(),
		}
		if liteErr.ExtendedCode != 0 {
			failure.Code = strconv.Itoa(int(liteErr.ExtendedCode))
		}
		if liteErr.Code == sqlite3.ErrConstraint {
			failure.Constraint, failure.Table, failure.Column = sqliteConstraint(failure.Message)
		}
		return failure
	}
	return nil
}

// sqliteConstraint splits "UNIQUE constraint failed: t.a, t.b" into
// ("UNIQUE", "t", "a, b").
func sqliteConstraint(msg string) (kind, table, columns string) {
	head, targets, ok := strings.Cut(msg, " constraint failed: ")
	if !ok {
		return "", "", ""
	}
	kind = head
	var cols []string
	for _, target := range strings.Split(targets, ",") {
		tbl, col, found := strings.Cut(strings.TrimSpace(target), ".")
		if !found {
			cols = append(cols, tbl)
			continue
		}
		table = tbl
		cols = append(cols, col)
	}
	return kind, table, strings.Join(cols, ", ")
}
