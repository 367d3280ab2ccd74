package database

import (
	"github.com/VictoriaMetrics/fastcache"
	"github.com/rcrowley/go-metrics"
	"github.com/syndtr/goleveldb/leveldb"
	goerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/cauchynet/cauchy/log"
)

// OpenFileLimit is the reference storage layer's open-file knob. It is not
// read by NewLevelDBStore: the open-file bound there comes from its
// numHandles argument.
var OpenFileLimit = 64

type levelDBStore struct {
	fn string
	db *leveldb.DB

	// readCache fronts Get with a fixed-size in-memory cache, avoiding a
	// disk read for hot actor state keys.
	readCache *fastcache.Cache

	getMeter metrics.Meter
	putMeter metrics.Meter
	missMeter metrics.Meter

	log log.Logger
}

func ldbOptions(cacheMB, numHandles int) *opt.Options {
	if cacheMB < 16 {
		cacheMB = 16
	}
	if numHandles < 16 {
		numHandles = 16
	}
	return &opt.Options{
		OpenFilesCacheCapacity: numHandles,
		BlockCacheCapacity:     cacheMB / 2 * opt.MiB,
		WriteBuffer:            cacheMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

// NewLevelDBStore opens (or creates) a LevelDB database at dir, recovering
// from corruption the way the reference storage layer does, and fronts it
// with an in-process read cache sized cacheMB/4 (in megabytes).
func NewLevelDBStore(dir string, cacheMB, numHandles int) (Store, error) {
	logger := log.NewModuleLogger(log.ModuleStorage).With("path", dir)

	db, err := leveldb.OpenFile(dir, ldbOptions(cacheMB, numHandles))
	if _, corrupted := err.(*goerrors.ErrCorrupted); corrupted {
		logger.Warn("recovering corrupted database")
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}

	readCacheBytes := cacheMB / 4 * 1024 * 1024
	if readCacheBytes < 1024*1024 {
		readCacheBytes = 1024 * 1024
	}

	return &levelDBStore{
		fn:        dir,
		db:        db,
		readCache: fastcache.New(readCacheBytes),
		getMeter:  metrics.NewRegisteredMeter("cauchy/db/get", nil),
		putMeter:  metrics.NewRegisteredMeter("cauchy/db/put", nil),
		missMeter: metrics.NewRegisteredMeter("cauchy/db/miss", nil),
		log:       logger,
	}, nil
}

func (s *levelDBStore) Get(table Table, key []byte) ([]byte, bool, error) {
	s.getMeter.Mark(1)
	pk := prefixedKey(table, key)

	if cached, found := s.readCache.HasGet(nil, pk); found {
		return cached, true, nil
	}

	v, err := s.db.Get(pk, nil)
	if err == leveldb.ErrNotFound {
		s.missMeter.Mark(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.readCache.Set(pk, v)
	return v, true, nil
}

func (s *levelDBStore) Put(table Table, key, value []byte) error {
	s.putMeter.Mark(1)
	pk := prefixedKey(table, key)
	if err := s.db.Put(pk, value, nil); err != nil {
		return err
	}
	s.readCache.Set(pk, value)
	return nil
}

func (s *levelDBStore) Close() error {
	s.log.Info("closing database")
	return s.db.Close()
}
