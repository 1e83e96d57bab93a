package sqlrun

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/querychat/querychat/internal/observability"
)

// ExecError carries the offending statement alongside the driver error.
type ExecError struct {
	Statement string
	Err       error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("execute %q: %v", e.Statement, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

type Verb string

const (
	VerbCreate  Verb = "create"
	VerbDrop    Verb = "drop"
	VerbUpdate  Verb = "update"
	VerbInsert  Verb = "insert"
	VerbAlter   Verb = "alter"
	VerbSelect  Verb = "select"
	VerbGeneric Verb = "generic"
)

// Classification is substring-based and ordered: a statement matching several
// verbs takes the first-listed rule. This ambiguity is a compatibility policy,
// not an accident.
var classifierRules = []struct {
	verb    Verb
	needles []string
}{
	{VerbCreate, []string{"create"}},
	{VerbDrop, []string{"drop"}},
	{VerbUpdate, []string{"update"}},
	{VerbInsert, []string{"insert"}},
	{VerbAlter, []string{"alter"}},
	{VerbSelect, []string{"select", "show"}},
}

func Classify(statement string) Verb {
	lowered := strings.ToLower(statement)
	for _, rule := range classifierRules {
		for _, needle := range rule.needles {
			if strings.Contains(lowered, needle) {
				return rule.verb
			}
		}
	}
	return VerbGeneric
}

const noRowsMessage = "no rows returned"

// Executor runs model-produced SQL against the student database and renders a
// one-line human-readable result per statement. Each statement runs on its
// own pooled connection, released on every path; statements autocommit, so a
// later failure in a batch does not roll back earlier statements.
type Executor struct {
	db *sql.DB
}

func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

func (e *Executor) Execute(ctx context.Context, statement string) (string, error) {
	verb := Classify(statement)
	observability.IncrementSQLStatement(string(verb))

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return "", &ExecError{Statement: statement, Err: err}
	}
	defer func() { _ = conn.Close() }()

	switch verb {
	case VerbSelect:
		return e.query(ctx, conn, statement)
	case VerbUpdate, VerbInsert:
		result, err := conn.ExecContext(ctx, statement)
		if err != nil {
			observability.IncrementSQLStatementFailure()
			return "", &ExecError{Statement: statement, Err: err}
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return "", &ExecError{Statement: statement, Err: err}
		}
		if verb == VerbUpdate {
			return fmt.Sprintf("successfully updated %d row(s)", affected), nil
		}
		return fmt.Sprintf("successfully inserted %d row(s)", affected), nil
	case VerbCreate, VerbDrop, VerbAlter:
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			observability.IncrementSQLStatementFailure()
			return "", &ExecError{Statement: statement, Err: err}
		}
		return fmt.Sprintf("%s operation successful!", verb), nil
	default:
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			observability.IncrementSQLStatementFailure()
			return "", &ExecError{Statement: statement, Err: err}
		}
		return "operation successful!", nil
	}
}

func (e *Executor) query(ctx context.Context, conn *sql.Conn, statement string) (string, error) {
	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		observability.IncrementSQLStatementFailure()
		return "", &ExecError{Statement: statement, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return "", &ExecError{Statement: statement, Err: err}
	}

	lines := make([]string, 0, 8)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return "", &ExecError{Statement: statement, Err: err}
		}
		lines = append(lines, formatRow(values))
	}
	if err := rows.Err(); err != nil {
		return "", &ExecError{Statement: statement, Err: err}
	}

	// An empty result set has no rows to read column values from; answer
	// with an explicit message instead of a bare header.
	if len(lines) == 0 {
		return noRowsMessage, nil
	}
	return strings.Join(columns, " ") + "\n" + strings.Join(lines, "\n"), nil
}

func formatRow(values []any) string {
	rendered := make([]string, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case nil:
			rendered[i] = "NULL"
		case []byte:
			rendered[i] = string(typed)
		default:
			rendered[i] = fmt.Sprintf("%v", typed)
		}
	}
	return strings.Join(rendered, " ")
}
