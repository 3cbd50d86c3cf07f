// Package ledger remembers which item was exported to which vault file at
// which version.
package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/op/go-logging"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var ErrNotFound = errors.NewPlain("no ledger entry")

type Entry struct {
	Library  string    `json:"library"`
	ItemKey  string    `json:"itemKey"`
	NoteKeys []string  `json:"noteKeys"`
	// Version is the highest version of the item and its exported notes
	Version  int64     `json:"version"`
	Path     string    `json:"path"`
	Exported time.Time `json:"exported"`
}

type Ledger struct {
	db     *sql.DB
	driver string
	logger *logging.Logger
}

// Open connects to the ledger database. For sqlite the dsn is a file path.
func Open(driver, dsn string, logger *logging.Logger) (*Ledger, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Wrapf(err, "cannot create folder %s", dir)
			}
		}
	case DriverPostgres, DriverMySQL:
	default:
		return nil, errors.Errorf("unknown ledger driver %s", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s database", driver)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return &Ledger{db: db, driver: driver, logger: logger}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// rebind converts ? placeholders to $n for postgres
func (l *Ledger) rebind(query string) string {
	if l.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (l *Ledger) Init(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS exports (
  library VARCHAR(64) NOT NULL,
  itemkey VARCHAR(16) NOT NULL,
  notekeys VARCHAR(1024) NOT NULL,
  version BIGINT NOT NULL,
  path VARCHAR(1024) NOT NULL,
  exported BIGINT NOT NULL,
  PRIMARY KEY (library, itemkey)
)`
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "cannot create exports table")
	}
	return nil
}

// Record replaces the entry of the item.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.Exported.IsZero() {
		e.Exported = time.Now()
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "cannot start transaction")
	}
	if _, err := tx.ExecContext(ctx,
		l.rebind("DELETE FROM exports WHERE library=? AND itemkey=?"),
		e.Library, e.ItemKey); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "cannot delete entry %s/%s", e.Library, e.ItemKey)
	}
	if _, err := tx.ExecContext(ctx,
		l.rebind("INSERT INTO exports (library, itemkey, notekeys, version, path, exported) VALUES (?, ?, ?, ?, ?, ?)"),
		e.Library, e.ItemKey, strings.Join(e.NoteKeys, ","), e.Version, e.Path, e.Exported.Unix()); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "cannot insert entry %s/%s", e.Library, e.ItemKey)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "cannot commit transaction")
	}
	l.logger.Debugf("ledger: %s/%s version %v -> %s", e.Library, e.ItemKey, e.Version, e.Path)
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var noteKeys string
	var exported int64
	if err := row.Scan(&e.Library, &e.ItemKey, &noteKeys, &e.Version, &e.Path, &exported); err != nil {
		return nil, err
	}
	e.NoteKeys = []string{}
	if noteKeys != "" {
		e.NoteKeys = strings.Split(noteKeys, ",")
	}
	e.Exported = time.Unix(exported, 0)
	return &e, nil
}

const selectEntry = "SELECT library, itemkey, notekeys, version, path, exported FROM exports"

func (l *Ledger) Get(ctx context.Context, library, itemKey string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx,
		l.rebind(selectEntry+" WHERE library=? AND itemkey=?"),
		library, itemKey)
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(ErrNotFound, "%s/%s", library, itemKey)
		}
		return nil, errors.Wrapf(err, "cannot read entry %s/%s", library, itemKey)
	}
	return e, nil
}

// List returns the entries of a library, newest first. An empty library lists all.
func (l *Ledger) List(ctx context.Context, library string) ([]Entry, error) {
	query := selectEntry
	params := []interface{}{}
	if library != "" {
		query += " WHERE library=?"
		params = append(params, library)
	}
	query += " ORDER BY exported DESC, itemkey"
	rows, err := l.db.QueryContext(ctx, l.rebind(query), params...)
	if err != nil {
		return nil, errors.Wrap(err, "cannot query exports")
	}
	defer rows.Close()
	result := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "cannot scan entry")
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "cannot read exports")
	}
	return result, nil
}
