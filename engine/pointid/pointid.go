// Package pointid maps record keys to identifiers the vector index accepts:
// a non-negative integer or a canonical UUID string.
package pointid

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
)

// Namespace is the fixed namespace for name-based ids. Changing it changes
// every derived id and breaks idempotent re-ingestion.
var Namespace = uuid.NameSpaceURL

// ID is an index point identifier. Exactly one of the two forms is set.
type ID struct {
	num   uint64
	uuid  string
	isNum bool
}

// Num returns a numeric ID.
func Num(n uint64) ID { return ID{num: n, isNum: true} }

// UUID returns a UUID ID in canonical lower-case form.
func UUID(u uuid.UUID) ID { return ID{uuid: u.String()} }

// IsNum reports whether the id is numeric.
func (id ID) IsNum() bool { return id.isNum }

// Uint64 returns the numeric form; valid only when IsNum.
func (id ID) Uint64() uint64 { return id.num }

// IsZero reports whether id was never assigned.
func (id ID) IsZero() bool { return !id.isNum && id.uuid == "" }

func (id ID) String() string {
	if id.isNum {
		return strconv.FormatUint(id.num, 10)
	}
	return id.uuid
}

// MarshalJSON writes numeric ids as JSON numbers and UUIDs as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isNum {
		return []byte(strconv.FormatUint(id.num, 10)), nil
	}
	return json.Marshal(id.uuid)
}

// UnmarshalJSON accepts the forms MarshalJSON writes.
func (id *ID) UnmarshalJSON(b []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return fmt.Errorf("pointid: %w: %s", domain.ErrIdentifierMalformed, v)
		}
		*id = Num(n)
	case string:
		u, ok := canonical(v)
		if !ok {
			return fmt.Errorf("pointid: %w: %q", domain.ErrIdentifierMalformed, v)
		}
		*id = UUID(u)
	default:
		return fmt.Errorf("pointid: %w: %s", domain.ErrIdentifierMalformed, b)
	}
	return nil
}

// Resolver resolves keys and counts how often the random last resort fired.
type Resolver struct {
	logger    *slog.Logger
	fallbacks atomic.Int64
	newRandom func() uuid.UUID
}

// NewResolver creates a Resolver; a nil logger means slog.Default().
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger, newRandom: uuid.New}
}

// Resolve maps key to an ID. Integers and all-digit strings become numeric
// ids, canonical UUID strings pass through, and every other key is hashed
// into a name-based UUID. Keys that cannot be derived at all (empty, nil or
// unsupported types) get a random UUID, logged and counted, since such ids
// are not stable across runs.
func (r *Resolver) Resolve(key any) ID {
	id, err := resolve(key)
	if err == nil {
		return id
	}
	r.fallbacks.Add(1)
	u := r.newRandom()
	r.logger.Warn("pointid.random_fallback", "key", fmt.Sprintf("%v", key), "id", u.String(), "error", err)
	return UUID(u)
}

// Fallbacks returns how many keys needed a random id.
func (r *Resolver) Fallbacks() int64 { return r.fallbacks.Load() }

var defaultResolver = NewResolver(nil)

// Resolve maps key with a resolver logging to slog.Default().
func Resolve(key any) ID { return defaultResolver.Resolve(key) }

func resolve(key any) (ID, error) {
	switch k := key.(type) {
	case int:
		return fromInt(int64(k))
	case int32:
		return fromInt(int64(k))
	case int64:
		return fromInt(k)
	case uint:
		return Num(uint64(k)), nil
	case uint32:
		return Num(uint64(k)), nil
	case uint64:
		return Num(k), nil
	case json.Number:
		return fromString(k.String())
	case string:
		return fromString(k)
	case ID:
		if k.IsZero() {
			return ID{}, domain.ErrIdentifierMalformed
		}
		return k, nil
	default:
		return ID{}, fmt.Errorf("%w: unsupported key type %T", domain.ErrIdentifierMalformed, key)
	}
}

// fromInt keeps non-negative integers numeric. Negative ones are not valid
// index ids, so they are derived from their decimal form.
func fromInt(n int64) (ID, error) {
	if n >= 0 {
		return Num(uint64(n)), nil
	}
	return fromString(strconv.FormatInt(n, 10))
}

func fromString(s string) (ID, error) {
	if s == "" {
		return ID{}, fmt.Errorf("%w: empty key", domain.ErrIdentifierMalformed)
	}
	if allDigits(s) {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return Num(n), nil
		}
	}
	if u, ok := canonical(s); ok {
		return UUID(u), nil
	}
	return UUID(Derive(s)), nil
}

// Derive returns the name-based UUID for key.
func Derive(key string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(key))
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// canonical accepts only the 36-character hyphenated form. uuid.Parse also
// takes braced and urn-prefixed spellings, which would reach the index as a
// different string than the key.
func canonical(s string) (uuid.UUID, bool) {
	if len(s) != 36 {
		return uuid.UUID{}, false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, false
	}
	return u, true
}
