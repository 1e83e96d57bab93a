package sqlrun

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestClassifyOrderedRules(t *testing.T) {
	cases := []struct {
		statement string
		want      Verb
	}{
		{"CREATE TABLE t (id int)", VerbCreate},
		{"DROP TABLE t", VerbDrop},
		{"UPDATE student SET name = 'x'", VerbUpdate},
		{"INSERT INTO student VALUES (1)", VerbInsert},
		{"ALTER TABLE student ADD COLUMN division text", VerbAlter},
		{"SELECT * FROM student", VerbSelect},
		{"SHOW search_path", VerbSelect},
		{"TRUNCATE student", VerbGeneric},
		// First-listed rule wins when several verbs appear in one statement.
		{"CREATE TABLE t AS SELECT * FROM student", VerbCreate},
		{"INSERT INTO t SELECT * FROM student", VerbInsert},
		{"select * from updates", VerbUpdate},
	}
	for _, tc := range cases {
		if got := Classify(tc.statement); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.statement, got, tc.want)
		}
	}
}

func TestExecuteSelectFormatsHeaderAndRows(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM student")).
		WillReturnRows(sqlmock.NewRows([]string{"roll_no", "s_name"}).
			AddRow(1, "Alice").
			AddRow(2, "Bob"))

	got, err := executor.Execute(context.Background(), "SELECT * FROM student")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := "roll_no s_name\n1 Alice\n2 Bob"
	if got != want {
		t.Fatalf("Execute() = %q, want %q", got, want)
	}
	assertSQLMock(t, mock)
}

func TestExecuteSelectWithZeroRows(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM student WHERE roll_no = 99")).
		WillReturnRows(sqlmock.NewRows([]string{"roll_no", "s_name"}))

	got, err := executor.Execute(context.Background(), "SELECT * FROM student WHERE roll_no = 99")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != noRowsMessage {
		t.Fatalf("Execute() = %q, want %q", got, noRowsMessage)
	}
	assertSQLMock(t, mock)
}

func TestExecuteSelectRendersNullAndBytes(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT address FROM student")).
		WillReturnRows(sqlmock.NewRows([]string{"address"}).
			AddRow([]byte("12 Main St")).
			AddRow(nil))

	got, err := executor.Execute(context.Background(), "SELECT address FROM student")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := "address\n12 Main St\nNULL"
	if got != want {
		t.Fatalf("Execute() = %q, want %q", got, want)
	}
	assertSQLMock(t, mock)
}

func TestExecuteInsertReportsRowCount(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student VALUES (1, 'Alice')")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := executor.Execute(context.Background(), "INSERT INTO student VALUES (1, 'Alice')")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "successfully inserted 1 row(s)" {
		t.Fatalf("Execute() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestExecuteUpdateReportsRowCount(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE student SET s_name = 'Bob'")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	got, err := executor.Execute(context.Background(), "UPDATE student SET s_name = 'Bob'")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "successfully updated 3 row(s)" {
		t.Fatalf("Execute() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestExecuteCreateNamesOperation(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE division (id int)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	got, err := executor.Execute(context.Background(), "CREATE TABLE division (id int)")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "create operation successful!" {
		t.Fatalf("Execute() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestExecuteCreateSelectAmbiguityTakesCreateBranch(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	// Exec, not Query: the create rule is listed before select.
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE copy AS SELECT * FROM student")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	got, err := executor.Execute(context.Background(), "CREATE TABLE copy AS SELECT * FROM student")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "create operation successful!" {
		t.Fatalf("Execute() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestExecuteGenericStatement(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	mock.ExpectExec(regexp.QuoteMeta("TRUNCATE student")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	got, err := executor.Execute(context.Background(), "TRUNCATE student")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "operation successful!" {
		t.Fatalf("Execute() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestExecuteWrapsDriverError(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	driverErr := errors.New(`relation "studnet" does not exist`)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM studnet")).
		WillReturnError(driverErr)

	_, err := executor.Execute(context.Background(), "SELECT * FROM studnet")
	if err == nil {
		t.Fatal("expected execution error")
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %T, want *ExecError", err)
	}
	if execErr.Statement != "SELECT * FROM studnet" {
		t.Fatalf("Statement = %q", execErr.Statement)
	}
	if !errors.Is(err, driverErr) {
		t.Fatalf("unwrap = %v, want driver error", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
