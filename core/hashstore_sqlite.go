package core

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/airdcpp-web/dcppcore/share"
)

// SqliteHashStore is the alternative, no-cgo relational backing store for
// the hash-store contract, selected instead of LevelHashStore when
// Config.HashStoreBackend is "sqlite". One table, keyed by the
// lowercased real path.
type SqliteHashStore struct {
	db *sql.DB
}

// OpenSqliteHashStore opens (creating if necessary) a SQLite database at
// path and ensures its schema exists.
func OpenSqliteHashStore(path string) (*SqliteHashStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	const schema = `CREATE TABLE IF NOT EXISTS hashes (
		path_lower TEXT PRIMARY KEY,
		tth        BLOB NOT NULL,
		mtime_ns   INTEGER NOT NULL,
		size       INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteHashStore{db: db}, nil
}

func (s *SqliteHashStore) Close() error { return s.db.Close() }

// Lookup implements refresh.HashStore.
func (s *SqliteHashStore) Lookup(pathLower string, mtime time.Time, size int64) (share.TTH, bool) {
	var tth []byte
	var mtimeNs, storedSize int64
	row := s.db.QueryRow(`SELECT tth, mtime_ns, size FROM hashes WHERE path_lower = ?`, pathLower)
	if err := row.Scan(&tth, &mtimeNs, &storedSize); err != nil {
		return share.TTH{}, false
	}
	if mtimeNs != mtime.UnixNano() || storedSize != size || len(tth) != 24 {
		return share.TTH{}, false
	}
	var out share.TTH
	copy(out[:], tth)
	return out, true
}

// Enqueue implements refresh.HashStore; see LevelHashStore.Enqueue.
func (s *SqliteHashStore) Enqueue(realPath string, size int64) {}

// Store persists a freshly computed TTH.
func (s *SqliteHashStore) Store(realPath string, mtime time.Time, size int64, tth share.TTH) error {
	_, err := s.db.Exec(
		`INSERT INTO hashes (path_lower, tth, mtime_ns, size) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path_lower) DO UPDATE SET tth = excluded.tth, mtime_ns = excluded.mtime_ns, size = excluded.size`,
		strings.ToLower(realPath), tth[:], mtime.UnixNano(), size,
	)
	return err
}
