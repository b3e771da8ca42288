// Package session implements the Session Holder (spec §4.H): a
// cookie-keyed user session, lazily loaded from the database on first
// access and persisted only when modified. Grounded on
// original_source/src/sys/session.rs, translated from its async
// tokio::sync-free Session struct (the original has no internal
// locking — one Session belongs to exactly one in-flight request)
// directly; the only behavioral deviation is documented in DESIGN.md's
// Open Question decisions (Get does not mark the session dirty here,
// where the original's get() does — spec §3's "Mutated: ... by
// set/take/remove/clear" explicitly excludes get from that list).
package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/pool"
)

// Session is per-request user session state (spec §3). The zero value
// is not meaningful; construct with New, WithKey, or Load.
type Session struct {
	ID     int64
	LangID uint64
	UserID int64
	RoleID int64
	Key    string

	values map[int64]data.Data
	change bool
}

// New creates a fresh session with a freshly generated key, for a
// request that supplied no session cookie at all.
func New(langID uint64, salt, ip, agent, host string) Session {
	return Session{
		LangID: langID,
		Key:    generateKey(salt, ip, agent, host),
		values: make(map[int64]data.Data),
	}
}

// WithKey creates a fresh, empty session carrying a caller-supplied
// key — used when the cookie's key was well-formed but no database row
// backed it (spec §4.H "absent/invalid cookie yields a fresh session").
func WithKey(langID uint64, key string) Session {
	return Session{LangID: langID, Key: key, values: make(map[int64]data.Data)}
}

// generateKey builds SHA3-512(salt‖ip‖agent‖host‖timestamp) rendered
// as lowercase hex (spec §4.H), matching original_source's
// generate_session: the timestamp format there carries nanosecond and
// zone-offset precision, which time.Now().Format with a nanosecond
// layout plus zone reproduces.
func generateKey(salt, ip, agent, host string) string {
	ts := time.Now().Format("2006.01.02 15:04:05.000000000 -07:00")
	h := sha3.New512()
	fmt.Fprintf(h, "%s%s%s%s%s", salt, ip, agent, host, ts)
	return hex.EncodeToString(h.Sum(nil))
}

// Load fetches the session row for key from p, or returns a fresh
// empty session carrying that key if no row exists, the pool is nil,
// or the query fails. The stored data blob is decoded via
// data.Data's sonic-backed JSON codec (see data/codec.go).
func Load(ctx context.Context, p *pool.Pool, key string, langID uint64) Session {
	if p == nil {
		return WithKey(langID, key)
	}

	rows, err := p.Query(ctx, func(c pool.Conn) ([]pool.Row, error) {
		return c.Query(ctx, "SELECT id, user_id, role_id, data, lang_id FROM session WHERE key = $1", key)
	})
	if err != nil || len(rows) == 0 {
		return WithKey(langID, key)
	}

	row := rows[0]
	id, _ := row["id"].(int64)
	userID, _ := row["user_id"].(int64)
	roleID, _ := row["role_id"].(int64)
	storedLangID, _ := row["lang_id"].(int64)

	values := make(map[int64]data.Data)
	if blob, ok := row["data"].([]byte); ok && len(blob) > 0 {
		decoded, err := decodeValues(blob)
		if err != nil {
			return WithKey(langID, key)
		}
		values = decoded
	}

	return Session{
		ID:     id,
		LangID: uint64(storedLangID),
		UserID: userID,
		RoleID: roleID,
		Key:    key,
		values: values,
	}
}

// Save persists s if it was modified (spec §4.H "on request end, if
// change == true, persist via insert (id==0) or update (id>0)"). A nil
// pool is a no-op, matching original_source's "db.in_use()" guard.
func Save(ctx context.Context, p *pool.Pool, s *Session, ip, agent string) error {
	if p == nil || !s.change {
		return nil
	}
	blob, err := encodeValues(s.values)
	if err != nil {
		return err
	}

	if s.ID > 0 {
		_, err = p.Query(ctx, func(c pool.Conn) ([]pool.Row, error) {
			return c.Query(ctx, "UPDATE session SET user_id=$1, lang_id=$2, data=$3, ip=$4, agent=$5 WHERE id=$6",
				s.UserID, s.LangID, blob, ip, agent, s.ID)
		})
		return err
	}
	_, err = p.Query(ctx, func(c pool.Conn) ([]pool.Row, error) {
		return c.Query(ctx, "INSERT INTO session (user_id, lang_id, key, data, ip, agent) VALUES ($1,$2,$3,$4,$5,$6)",
			s.UserID, s.LangID, s.Key, blob, ip, agent)
	})
	return err
}

// SetLangID overrides the session's language, marking the session
// dirty only if the value actually changes (spec §4.H).
func (s *Session) SetLangID(langID uint64) {
	if s.LangID != langID {
		s.LangID = langID
		s.change = true
	}
}

// nameKey hashes name the same way data.Route hashes module/class/action
// names, but reinterpreted as int64 since Data's Map variant (and the
// wire form in codec.go) keys on int64 to match original_source's i64
// session keys.
func nameKey(name string) int64 { return int64(data.FNV1a64(name)) }

// Set stores value under the FNV-1a-64 hash of name, marking the
// session dirty.
func (s *Session) Set(name string, value data.Data) {
	s.change = true
	s.values[nameKey(name)] = value
}

// Get reads the value stored under name. Per spec §3, reading alone
// does not mark the session dirty.
func (s *Session) Get(name string) (data.Data, bool) {
	v, ok := s.values[nameKey(name)]
	return v, ok
}

// Take removes and returns the value stored under name, marking the
// session dirty.
func (s *Session) Take(name string) (data.Data, bool) {
	s.change = true
	key := nameKey(name)
	v, ok := s.values[key]
	delete(s.values, key)
	return v, ok
}

// Remove deletes the value stored under name, marking the session
// dirty.
func (s *Session) Remove(name string) {
	s.change = true
	delete(s.values, nameKey(name))
}

// Clear empties every stored value, marking the session dirty.
func (s *Session) Clear() {
	s.change = true
	s.values = make(map[int64]data.Data)
}

// Changed reports whether the session has been modified since load.
func (s *Session) Changed() bool { return s.change }

// encodeValues serializes the session's data map via Data's sonic-backed
// JSON codec (data/codec.go), wrapping it in a KindMap Data first so the
// whole map round-trips through a single Marshal call.
func encodeValues(values map[int64]data.Data) ([]byte, error) {
	return data.NewMap(values).MarshalJSON()
}

// decodeValues is encodeValues' inverse.
func decodeValues(blob []byte) (map[int64]data.Data, error) {
	var d data.Data
	if err := d.UnmarshalJSON(blob); err != nil {
		return nil, err
	}
	m, ok := d.Map()
	if !ok {
		return make(map[int64]data.Data), nil
	}
	return m, nil
}
