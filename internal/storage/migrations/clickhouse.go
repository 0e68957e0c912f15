package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ClickhouseExecer is satisfied by the clickhouse driver connection.
type ClickhouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ApplyClickhouse runs every embedded ClickHouse migration statement by
// statement. The driver rejects multi-statement Exec.
func ApplyClickhouse(ctx context.Context, conn ClickhouseExecer, log logrus.FieldLogger) error {
	files, err := Clickhouse()
	if err != nil {
		return err
	}

	for _, m := range files {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			return fmt.Errorf("validate migration %s: %w", m.Name, err)
		}
		for _, stmt := range splitStatements(m.SQL) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
		log.WithField("migration", m.Name).Debug("applied clickhouse migration")
	}
	return nil
}

// splitStatements splits SQL content into statements by semicolon after
// dropping blank and -- comment lines.
//
// The splitter does not understand semicolons inside string literals,
// block comments or dollar quotes. validateNoSemicolonInStrings rejects
// the first case; migrations must avoid the others.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings fails when a semicolon appears inside a
// single-quoted literal.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}
	return nil
}
