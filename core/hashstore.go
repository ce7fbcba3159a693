package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/airdcpp-web/dcppcore/share"
)

// LevelHashStore is the default embedded backing store for the opaque
// hash-store contract spec's persistent-state section describes
// (hasTree/getTree/checkTTH/addFile): one goleveldb database keyed by the
// lowercased real path, storing the cached TTH alongside the mtime/size
// pair it was computed against so a stale cache entry is detected on
// lookup rather than trusted blindly. Plays the same role Perkeep's
// LevelDB-backed blob index plays for blob metadata.
type LevelHashStore struct {
	db *leveldb.DB
}

// OpenLevelHashStore opens (creating if necessary) a goleveldb database
// rooted at dir.
func OpenLevelHashStore(dir string) (*LevelHashStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &LevelHashStore{db: db}, nil
}

func (s *LevelHashStore) Close() error { return s.db.Close() }

const hashRecordLen = 24 + 8 + 8

func encodeHashRecord(tth share.TTH, mtime time.Time, size int64) []byte {
	rec := make([]byte, hashRecordLen)
	copy(rec[:24], tth[:])
	binary.BigEndian.PutUint64(rec[24:32], uint64(mtime.UnixNano()))
	binary.BigEndian.PutUint64(rec[32:40], uint64(size))
	return rec
}

func decodeHashRecord(rec []byte, mtime time.Time, size int64) (share.TTH, bool) {
	if len(rec) != hashRecordLen {
		return share.TTH{}, false
	}
	storedMtime := int64(binary.BigEndian.Uint64(rec[24:32]))
	storedSize := int64(binary.BigEndian.Uint64(rec[32:40]))
	if storedMtime != mtime.UnixNano() || storedSize != size {
		return share.TTH{}, false
	}
	var tth share.TTH
	copy(tth[:], rec[:24])
	return tth, true
}

// Lookup implements refresh.HashStore.
func (s *LevelHashStore) Lookup(pathLower string, mtime time.Time, size int64) (share.TTH, bool) {
	val, err := s.db.Get([]byte(pathLower), nil)
	if err != nil {
		return share.TTH{}, false
	}
	return decodeHashRecord(val, mtime, size)
}

// Enqueue implements refresh.HashStore. The actual hash-and-persist work
// happens in fileHasher.Hash, called by the refresh worker once it walks
// the pending file; Enqueue here is just the builder's "cache missed"
// signal, which this backing store has no separate queue for.
func (s *LevelHashStore) Enqueue(realPath string, size int64) {}

// Store persists a freshly computed TTH, keyed by the lowercased real
// path it was computed from.
func (s *LevelHashStore) Store(realPath string, mtime time.Time, size int64, tth share.TTH) error {
	return s.db.Put([]byte(strings.ToLower(realPath)), encodeHashRecord(tth, mtime, size), nil)
}
