package embed

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerCache is a Cache persisted in Badger. Keys are a namespace prefix
// plus the SHA-256 of the text, so vectors from different models or
// collections never mix.
type BadgerCache struct {
	db        *badger.DB
	namespace string
}

// badgerLogger routes Badger's own logging through slog.
type badgerLogger struct{ logger *slog.Logger }

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

// Namespace scopes cached vectors to a collection and the providers that
// produce them. Provider names carry the local endpoint or the hosted model,
// so a model change starts a fresh namespace.
func Namespace(collection string, providers []Provider) string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	return collection + "|" + strings.Join(names, ",")
}

// OpenBadgerCache opens (creating if needed) a cache at dir. With inMemory
// set, dir is ignored and nothing touches disk.
func OpenBadgerCache(dir string, inMemory bool, namespace string, logger *slog.Logger) (*BadgerCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("embed: cache dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = badgerLogger{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("embed: open cache: %w", err)
	}
	return &BadgerCache{db: db, namespace: namespace}, nil
}

// Close closes the underlying database.
func (c *BadgerCache) Close() error { return c.db.Close() }

func (c *BadgerCache) key(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	k := make([]byte, 0, len(c.namespace)+1+len(sum))
	k = append(k, c.namespace...)
	k = append(k, '/')
	return append(k, sum[:]...)
}

// Get implements Cache.
func (c *BadgerCache) Get(text string) ([]float32, bool, error) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(text))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := decodeVector(val)
			vec = v
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("embed: cache get: %w", err)
	}
	return vec, true, nil
}

// Put implements Cache.
func (c *BadgerCache) Put(text string, vec []float32) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.key(text), encodeVector(vec))
	})
	if err != nil {
		return fmt.Errorf("embed: cache put: %w", err)
	}
	return nil
}

// encodeVector writes each float32 as 4 little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 || len(b) == 0 {
		return nil, fmt.Errorf("embed: corrupt cached vector of %d bytes", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}
