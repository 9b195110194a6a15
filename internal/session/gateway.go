package session

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pileworks/bom-service/internal/extract"
	"github.com/pileworks/bom-service/internal/kvstore"
)

// persistedMeta is the session config entry in the store.
type persistedMeta struct {
	FileName    string `json:"fileName"`
	SheetName   string `json:"sheetName"`
	TrackerType string `json:"trackerType,omitempty"`
	SavedAt     int64  `json:"savedAt"`
}

// Restored is what Load recovers from the cache. Result is nil and Complete
// is false when any column entry was absent or corrupt; the caller then
// re-extracts from the original file.
type Restored struct {
	Session  Session
	Result   *extract.Result
	Complete bool
}

// Gateway persists sessions to a key-value store. All writes are
// best-effort and independent per key: a partial failure leaves the keys
// that succeeded intact and is reported as overall failure, which callers
// surface as a non-fatal warning.
type Gateway struct {
	store  kvstore.Store
	logger zerolog.Logger
}

// NewGateway creates a persistence gateway over the given store.
func NewGateway(store kvstore.Store, logger zerolog.Logger) *Gateway {
	return &Gateway{store: store, logger: logger}
}

// Save caches a session and its extraction result. Returns true only if
// every write in the batch succeeded.
func (g *Gateway) Save(ctx context.Context, sess *Session, res *extract.Result) bool {
	ok := true
	put := func(key string, value []byte) {
		if !g.store.Set(ctx, key, string(value)) {
			g.logger.Warn().Str("key", key).Msg("session cache write dropped")
			ok = false
		}
	}
	marshal := func(key string, v any) {
		b, err := json.Marshal(v)
		if err != nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("session cache encode failed")
			ok = false
			return
		}
		put(key, b)
	}

	marshal(metaKey(sess.ID), persistedMeta{
		FileName:    sess.FileName,
		SheetName:   sess.SheetName,
		TrackerType: sess.TrackerType,
		SavedAt:     time.Now().Unix(),
	})
	marshal(lettersKey(sess.ID), sess.Letters)
	put(offsetKey(sess.ID), []byte(strconv.Itoa(sess.StartOffset)))

	marshal(columnKey(sess.ID, "pole"), res.Pole)
	marshal(columnKey(sess.ID, "x"), res.X)
	marshal(columnKey(sess.ID, "y"), res.Y)
	marshal(columnKey(sess.ID, "z"), res.Z)
	if res.Frame != nil {
		marshal(columnKey(sess.ID, "frame"), res.Frame)
	} else if err := g.store.Delete(ctx, columnKey(sess.ID, "frame")); err != nil {
		// A frame entry left behind by an earlier mapping would be
		// re-attached on Load as if it belonged to this result.
		g.logger.Warn().Err(err).Str("session", sess.ID).Msg("stale frame column not cleared")
		ok = false
	}

	return ok
}

// Load restores a session from the cache. The second return value is false
// when no session meta exists for the id at all. Absent or corrupt entries
// degrade the restore (Complete=false), never fail it.
func (g *Gateway) Load(ctx context.Context, id string) (*Restored, bool) {
	raw, found := g.store.Get(ctx, metaKey(id))
	if !found {
		return nil, false
	}

	var meta persistedMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		g.logger.Warn().Err(err).Str("session", id).Msg("session meta corrupt, ignoring cache")
		return nil, false
	}

	restored := &Restored{
		Session: Session{
			ID:          id,
			FileName:    meta.FileName,
			SheetName:   meta.SheetName,
			TrackerType: meta.TrackerType,
			StartOffset: -1,
			SavedAt:     time.Unix(meta.SavedAt, 0),
		},
	}

	if raw, ok := g.store.Get(ctx, lettersKey(id)); ok {
		_ = json.Unmarshal([]byte(raw), &restored.Session.Letters)
	}

	offsetOK := false
	if raw, ok := g.store.Get(ctx, offsetKey(id)); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			restored.Session.StartOffset = n
			offsetOK = true
		}
	}

	res := &extract.Result{
		SheetName:   meta.SheetName,
		StartOffset: restored.Session.StartOffset,
	}
	columnsOK := g.loadColumn(ctx, id, "pole", &res.Pole) &&
		g.loadColumn(ctx, id, "x", &res.X) &&
		g.loadColumn(ctx, id, "y", &res.Y) &&
		g.loadColumn(ctx, id, "z", &res.Z)

	if raw, ok := g.store.Get(ctx, columnKey(id, "frame")); ok {
		if err := json.Unmarshal([]byte(raw), &res.Frame); err != nil {
			columnsOK = false
		}
	}

	if columnsOK && !aligned(res) {
		columnsOK = false
	}

	if columnsOK {
		restored.Result = res
	}
	restored.Complete = columnsOK && offsetOK
	return restored, true
}

func (g *Gateway) loadColumn(ctx context.Context, id, slot string, dst any) bool {
	raw, ok := g.store.Get(ctx, columnKey(id, slot))
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		g.logger.Warn().Err(err).Str("session", id).Str("column", slot).Msg("cached column corrupt")
		return false
	}
	return true
}

// Delete removes every cache entry for a session.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	keys, err := g.store.List(ctx, Prefix(id))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := g.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func aligned(res *extract.Result) bool {
	n := len(res.Pole)
	if len(res.X) != n || len(res.Y) != n || len(res.Z) != n {
		return false
	}
	if res.Frame != nil && len(res.Frame) != n {
		return false
	}
	return true
}
