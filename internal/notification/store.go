// Package notification maintains the per-user notification feed the
// storefront bell icon reads. Entries are produced from order events,
// so the feed survives page loads and works across devices.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dapurkita/ordersync/internal/order/infrastructure/localstore"
)

const (
	notifsKeyPrefix = "notifs:"
	// feedLimit caps the feed; older entries fall off the end.
	feedLimit = 50
)

type Note struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Emoji   string `json:"emoji,omitempty"`
	At      int64  `json:"at"`
	IsRead  bool   `json:"isRead"`
}

type Store struct {
	log *slog.Logger
	kv  localstore.KV
}

func NewStore(log *slog.Logger, kv localstore.KV) *Store {
	return &Store{log: log, kv: kv}
}

func notifsKey(userID string) string { return notifsKeyPrefix + userID }

// Push prepends a note to the user's feed.
func (s *Store) Push(ctx context.Context, userID string, n Note) error {
	notes, err := s.List(ctx, userID)
	if err != nil {
		return err
	}
	notes = append([]Note{n}, notes...)
	if len(notes) > feedLimit {
		notes = notes[:feedLimit]
	}
	raw, err := json.Marshal(notes)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, notifsKey(userID), string(raw))
}

func (s *Store) List(ctx context.Context, userID string) ([]Note, error) {
	raw, err := s.kv.Get(ctx, notifsKey(userID))
	if errors.Is(err, localstore.ErrNotFound) {
		return []Note{}, nil
	}
	if err != nil {
		return nil, err
	}
	var notes []Note
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		s.log.Warn("discarding unparsable notification feed", "user_id", userID, "err", err)
		return []Note{}, nil
	}
	return notes, nil
}
