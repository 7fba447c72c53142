package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"docsync/internal/common/errs"
	"docsync/pkg/fixer"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	"go.mongodb.org/mongo-driver/bson/primitive"
	_ "modernc.org/sqlite"
)

// Dialect selects driver, placeholder style and identifier quoting.
type Dialect string

const (
	DialectSQLServer Dialect = "sqlserver"
	DialectPostgres  Dialect = "postgres"
	DialectSQLite    Dialect = "sqlite"
)

func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectSQLServer:
		return "sqlserver", nil
	case DialectPostgres:
		return "postgres", nil
	case DialectSQLite:
		return "sqlite", nil
	}
	return "", errs.New(errs.Invalid, "unsupported SQL dialect %q", d)
}

func (d Dialect) placeholder(n int) string {
	switch d {
	case DialectSQLServer:
		return fmt.Sprintf("@p%d", n)
	case DialectPostgres:
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quote validates and quotes an identifier. Schema-qualified names
// ("dbo.PPG_Artikel") are quoted part by part.
func (d Dialect) quote(ident string) (string, error) {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if !identPattern.MatchString(p) {
			return "", errs.New(errs.Invalid, "invalid SQL identifier %q", ident)
		}
		if d == DialectSQLServer {
			parts[i] = "[" + p + "]"
		} else {
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, "."), nil
}

// SQLTableClient writes documents as rows of an external table, Kardex style.
// Writes are applied synchronously inside a transaction, so every returned
// handle is already terminal.
type SQLTableClient struct {
	DB      *sql.DB
	Dialect Dialect
	Timeout time.Duration

	log *outcomeLog
}

// OpenSQLTable opens the database without connecting; the first call dials.
func OpenSQLTable(dialect Dialect, dsn string, timeout time.Duration) (*SQLTableClient, error) {
	driver, err := dialect.driverName()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.RemoteUnavailable, err, "open %s", dialect)
	}
	return NewSQLTableClient(db, dialect, timeout), nil
}

func NewSQLTableClient(db *sql.DB, dialect Dialect, timeout time.Duration) *SQLTableClient {
	return &SQLTableClient{DB: db, Dialect: dialect, Timeout: timeout, log: newOutcomeLog()}
}

func (c *SQLTableClient) Kind() Kind { return KindSQLTable }

func (c *SQLTableClient) Close() error {
	return c.DB.Close()
}

func (c *SQLTableClient) SubmitBatch(ctx context.Context, coll Collection, op Operation, docs []fixer.Document) (*Handle, error) {
	if op != OpAddOrUpdate {
		return nil, errs.New(errs.Invalid, "submit does not support operation %q", op)
	}
	table, pk, err := c.names(coll)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, c.unavailable(err, "begin transaction on %s", coll.Name)
	}
	defer tx.Rollback()

	inserted, updated := 0, 0
	for _, doc := range docs {
		id, ok := doc[coll.PrimaryKey]
		if !ok {
			return nil, errs.New(errs.IncompleteDocument, "document without %s", coll.PrimaryKey)
		}

		var one int
		exists := true
		q := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s", table, pk, c.Dialect.placeholder(1))
		if err := tx.QueryRowContext(ctx, q, sqlValue(id)).Scan(&one); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, c.classify(err, "look up %v in %s", id, coll.Name)
			}
			exists = false
		}

		if exists {
			err = c.update(ctx, tx, table, pk, coll.PrimaryKey, doc)
			updated++
		} else {
			err = c.insert(ctx, tx, table, doc)
			inserted++
		}
		if err != nil {
			return nil, c.classify(err, "write %v to %s", id, coll.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, c.classify(err, "commit %s", coll.Name)
	}

	return c.log.record(StatusSucceeded, fmt.Sprintf("%d inserted, %d updated", inserted, updated)), nil
}

func (c *SQLTableClient) insert(ctx context.Context, tx *sql.Tx, table string, doc fixer.Document) error {
	cols := sortedKeys(doc)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		q, err := c.Dialect.quote(col)
		if err != nil {
			return err
		}
		quoted[i] = q
		marks[i] = c.Dialect.placeholder(i + 1)
		args[i] = sqlValue(doc[col])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (c *SQLTableClient) update(ctx context.Context, tx *sql.Tx, table, pk, pkField string, doc fixer.Document) error {
	var sets []string
	var args []any
	for _, col := range sortedKeys(doc) {
		if col == pkField {
			continue
		}
		q, err := c.Dialect.quote(col)
		if err != nil {
			return err
		}
		args = append(args, sqlValue(doc[col]))
		sets = append(sets, fmt.Sprintf("%s = %s", q, c.Dialect.placeholder(len(args))))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, sqlValue(doc[pkField]))
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", table, strings.Join(sets, ", "), pk, c.Dialect.placeholder(len(args)))
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (c *SQLTableClient) DeleteBatch(ctx context.Context, coll Collection, ids []int64) (*Handle, error) {
	table, pk, err := c.names(coll)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return c.log.record(StatusSucceeded, "0 deleted"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	in, args := c.inList(ids)
	res, err := c.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", table, pk, in), args...)
	if err != nil {
		return nil, c.classify(err, "delete from %s", coll.Name)
	}
	n, _ := res.RowsAffected()
	return c.log.record(StatusSucceeded, fmt.Sprintf("%d deleted", n)), nil
}

func (c *SQLTableClient) FetchByIDs(ctx context.Context, coll Collection, ids []int64) (map[int64]fixer.Document, error) {
	found := make(map[int64]fixer.Document, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	table, pk, err := c.names(coll)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	in, args := c.inList(ids)
	rows, err := c.DB.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)", table, pk, in), args...)
	if err != nil {
		return nil, c.classify(err, "fetch from %s", coll.Name)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, c.classify(err, "read rows of %s", coll.Name)
	}
	for _, doc := range docs {
		if id, ok := DocumentID(doc, coll.PrimaryKey); ok {
			found[id] = doc
		}
	}
	return found, nil
}

func (c *SQLTableClient) GetOperationStatus(_ context.Context, uid int64) (Status, string, error) {
	return c.log.lookup(uid)
}

// SelectOne runs query with args bound as parameters and returns the first row.
func (c *SQLTableClient) SelectOne(ctx context.Context, query string, args ...any) (fixer.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.classify(err, "select")
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, c.classify(err, "select")
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// ReadRows returns up to limit rows ordered by primary key.
func (c *SQLTableClient) ReadRows(ctx context.Context, coll Collection, limit int) ([]fixer.Document, error) {
	table, pk, err := c.names(coll)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 20
	}

	var query string
	if c.Dialect == DialectSQLServer {
		query = fmt.Sprintf("SELECT TOP %d * FROM %s ORDER BY %s", limit, table, pk)
	} else {
		query = fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %d", table, pk, limit)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	rows, err := c.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, c.classify(err, "read %s", coll.Name)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, c.classify(err, "read %s", coll.Name)
	}
	return docs, nil
}

func (c *SQLTableClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	if err := c.DB.PingContext(ctx); err != nil {
		return c.unavailable(err, "ping %s", c.Dialect)
	}
	return nil
}

func (c *SQLTableClient) names(coll Collection) (table, pk string, err error) {
	if table, err = c.Dialect.quote(coll.Name); err != nil {
		return "", "", err
	}
	if pk, err = c.Dialect.quote(coll.PrimaryKey); err != nil {
		return "", "", err
	}
	return table, pk, nil
}

func (c *SQLTableClient) inList(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = c.Dialect.placeholder(i + 1)
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}

func (c *SQLTableClient) unavailable(err error, format string, args ...any) error {
	return errs.Wrap(errs.RemoteUnavailable, err, format, args...)
}

// classify separates connectivity problems from statements the database refused.
func (c *SQLTableClient) classify(err error, format string, args ...any) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	if IsTimeout(err) || errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrConnDone) {
		return c.unavailable(err, format, args...)
	}
	rejected := errs.Rejected(0, err.Error())
	rejected.Message = fmt.Sprintf(format, args...)
	rejected.Err = err
	return rejected
}

func scanDocuments(rows *sql.Rows) ([]fixer.Document, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var docs []fixer.Document
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		doc := make(fixer.Document, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				doc[col] = string(b)
			} else {
				doc[col] = values[i]
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// sqlValue converts values decoded from the local store into driver values.
func sqlValue(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.ObjectID:
		return x.Hex()
	case int32:
		return int64(x)
	case map[string]any, []any, primitive.M, primitive.A, primitive.D:
		b, _ := json.Marshal(x)
		return string(b)
	}
	return v
}

func sortedKeys(doc fixer.Document) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
