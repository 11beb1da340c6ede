// Package localstore keeps each user's order list in a partitioned
// key-value bucket, mirroring the per-device storage the storefront
// renders from. It is display-layer storage, not the system of record:
// corrupt data degrades to an empty list instead of failing the page.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/dapurkita/ordersync/internal/order/domain"
)

const (
	ordersKeyPrefix = "orders:"
	// legacyOrdersKey is the unpartitioned bucket used before order lists
	// were keyed per user. It is drained into the partitioned key on first
	// read and then removed.
	legacyOrdersKey = "orders"
)

var ErrNotFound = errors.New("key not found")

// ErrCorruptState is logged (never returned) when a bucket holds
// unparsable data; the bucket is treated as empty.
var ErrCorruptState = errors.New("corrupt local state")

// KV is the minimal contract the store needs from its backing storage.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

type Store struct {
	log *slog.Logger
	kv  KV
}

func NewStore(log *slog.Logger, kv KV) *Store {
	return &Store{log: log, kv: kv}
}

func ordersKey(userID string) string { return ordersKeyPrefix + userID }

// LoadOrders returns the user's order list. An empty partition triggers a
// one-time migration from the legacy unpartitioned bucket.
func (s *Store) LoadOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := s.readList(ctx, ordersKey(userID))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		migrated, err := s.migrateLegacy(ctx, userID, orders)
		if err != nil {
			return nil, err
		}
		orders = migrated
	}
	return orders, nil
}

// SaveOrders overwrites the user's partition with the full list in one
// write.
func (s *Store) SaveOrders(ctx context.Context, userID string, orders []domain.Order) error {
	if orders == nil {
		orders = []domain.Order{}
	}
	return s.writeList(ctx, ordersKey(userID), orders)
}

func (s *Store) writeList(ctx context.Context, key string, orders []domain.Order) error {
	raw, err := json.Marshal(orders)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, string(raw))
}

// UserIDs enumerates the user partitions that hold orders. Used by the
// admin aggregation view only.
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, ordersKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, ordersKeyPrefix))
	}
	return ids, nil
}

func (s *Store) readList(ctx context.Context, key string) ([]domain.Order, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var orders []domain.Order
	if err := json.Unmarshal([]byte(raw), &orders); err != nil {
		s.log.Warn("discarding unparsable order bucket", "key", key, "err", errors.Join(ErrCorruptState, err))
		return nil, nil
	}

	valid := orders[:0]
	for _, o := range orders {
		if o.ID != "" {
			valid = append(valid, o)
		}
	}
	return valid, nil
}

func (s *Store) migrateLegacy(ctx context.Context, userID string, orders []domain.Order) ([]domain.Order, error) {
	legacy, err := s.readList(ctx, legacyOrdersKey)
	if err != nil {
		return orders, err
	}
	if len(legacy) == 0 {
		return orders, nil
	}

	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		seen[o.ID] = true
	}
	// The legacy bucket is shared, so only claim entries that belong to
	// this user (or predate ownership); the rest stay behind for their
	// owner's first read.
	var claimed int
	remaining := make([]domain.Order, 0, len(legacy))
	for _, o := range legacy {
		if seen[o.ID] {
			continue
		}
		if o.OwnerID != "" && o.OwnerID != userID {
			remaining = append(remaining, o)
			continue
		}
		seen[o.ID] = true
		o.OwnerID = userID
		orders = append(orders, o)
		claimed++
	}
	if claimed == 0 {
		return orders, nil
	}

	if err := s.SaveOrders(ctx, userID, orders); err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		if err := s.kv.Del(ctx, legacyOrdersKey); err != nil {
			s.log.Warn("legacy order bucket cleanup failed", "err", err)
		}
	} else if err := s.writeList(ctx, legacyOrdersKey, remaining); err != nil {
		s.log.Warn("legacy order bucket rewrite failed", "err", err)
	}
	s.log.Info("migrated legacy order bucket", "user_id", userID, "orders", claimed)
	return orders, nil
}
