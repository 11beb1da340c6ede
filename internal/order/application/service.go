package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dapurkita/ordersync/internal/auth"
	"github.com/dapurkita/ordersync/internal/order/domain"
)

// defaultAuthWait bounds the session check so a slow auth backend delays
// an order-list view by a few hundred milliseconds at most; after that
// the view proceeds with local data only.
const defaultAuthWait = 300 * time.Millisecond

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// Service is the sync orchestrator: it coordinates the session check,
// the remote fetch, the merge, and the local write-back for every
// order-viewing surface, and owns the checkout, cancel, and admin
// status flows.
type Service struct {
	log      *slog.Logger
	local    LocalStore
	remote   RemoteGateway
	sessions Sessions
	authWait time.Duration
}

func NewService(log *slog.Logger, local LocalStore, remote RemoteGateway, sessions Sessions) *Service {
	return &Service{
		log:      log,
		local:    local,
		remote:   remote,
		sessions: sessions,
		authWait: defaultAuthWait,
	}
}

// Orders returns the authoritative order list for the user. A missing
// session or an unreachable remote degrades to the local list; neither
// is an error to the caller. No automatic retries: the next page view
// re-runs the whole sequence.
func (s *Service) Orders(ctx context.Context, userID, token string) ([]domain.Order, error) {
	local, err := s.local.LoadOrders(ctx, userID)
	if err != nil {
		return nil, err
	}

	ident, err := s.currentSession(ctx, token)
	if err != nil {
		s.log.Info("skipping remote order sync", "user_id", userID, "reason", err)
		return local, nil
	}

	remote, err := s.remote.FetchOrders(ctx, ident.ID)
	if err != nil {
		s.log.Warn("remote order fetch failed, serving local list", "user_id", userID, "err", err)
		return local, nil
	}

	merged := domain.Merge(local, remote)
	if err := s.local.SaveOrders(ctx, userID, merged); err != nil {
		// Display-layer storage: the merged list is still correct for
		// this view even if the write-back failed.
		s.log.Warn("merged order write-back failed", "user_id", userID, "err", err)
	}
	return merged, nil
}

// Order returns one order from the user's synced list.
func (s *Service) Order(ctx context.Context, userID, token, orderID string) (domain.Order, error) {
	orders, err := s.Orders(ctx, userID, token)
	if err != nil {
		return domain.Order{}, err
	}
	for _, o := range orders {
		if o.ID == orderID {
			return o, nil
		}
	}
	return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
}

// Checkout creates the order locally and mirrors it to the remote store
// best-effort. A failed mirror is logged; the order stands either way
// and a later admin-side sync will not duplicate it thanks to the
// client-generated id.
func (s *Service) Checkout(ctx context.Context, userID string, d domain.Draft) (domain.Order, error) {
	o, err := domain.NewOrder(userID, d)
	if err != nil {
		return domain.Order{}, err
	}

	orders, err := s.local.LoadOrders(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.local.SaveOrders(ctx, userID, append([]domain.Order{o}, orders...)); err != nil {
		return domain.Order{}, err
	}

	payload, err := json.Marshal(domain.OrderCreated{
		OrderID: o.ID,
		OwnerID: o.OwnerID,
		Total:   o.Total,
		IsGift:  o.IsGift,
		Items:   o.Items,
	})
	if err != nil {
		return domain.Order{}, err
	}
	remoteID, err := s.remote.CreateOrder(ctx, o, EventOrderCreated, payload)
	if err != nil {
		s.log.Warn("order mirror failed, keeping local copy only", "order_id", o.ID, "err", err)
		return o, nil
	}

	o.RemoteID = remoteID
	if err := s.replaceLocal(ctx, userID, o); err != nil {
		s.log.Warn("recording remote id failed", "order_id", o.ID, "err", err)
	}
	return o, nil
}

// Cancel moves a non-terminal order to cancelled. It is an explicit user
// action, so the local transition stands even when the remote push
// fails; the merge engine protects it from being rolled back by a later
// stale read.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (domain.Order, error) {
	orders, err := s.local.LoadOrders(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	idx := indexByID(orders, orderID)
	if idx < 0 {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if domain.IsTerminal(orders[idx].Status) {
		return domain.Order{}, fmt.Errorf("%w: %s is %s", ErrOrderFinal, orderID, orders[idx].Status)
	}

	o := orders[idx]
	o.Status = domain.StatusCancelled
	orders[idx] = o
	if err := s.local.SaveOrders(ctx, userID, orders); err != nil {
		return domain.Order{}, err
	}

	if err := s.pushStatus(ctx, o); err != nil {
		s.log.Warn("cancel push failed, cancellation kept locally", "order_id", orderID, "err", err)
	}
	return o, nil
}

// SetStatus is the admin console action: confirm payment, progress
// fulfillment, deliver, reject. The remote store must acknowledge the
// change, so a failed push rolls the tentative local mutation back.
func (s *Service) SetStatus(ctx context.Context, userID, orderID string, status domain.Status, payment domain.PaymentStatus) (domain.Order, error) {
	orders, err := s.local.LoadOrders(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	idx := indexByID(orders, orderID)
	if idx < 0 {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	prev := orders[idx]
	o := prev
	if status != "" {
		o.Status = status
	}
	if payment != "" {
		o.PaymentStatus = payment
	}
	orders[idx] = o
	if err := s.local.SaveOrders(ctx, userID, orders); err != nil {
		return domain.Order{}, err
	}

	if err := s.pushStatus(ctx, o); err != nil {
		orders[idx] = prev
		if rbErr := s.local.SaveOrders(ctx, userID, orders); rbErr != nil {
			s.log.Error("status rollback failed", "order_id", orderID, "err", rbErr)
		}
		return domain.Order{}, err
	}
	return o, nil
}

// AllOrders aggregates every user partition for the admin console,
// newest first.
func (s *Service) AllOrders(ctx context.Context) ([]domain.Order, error) {
	userIDs, err := s.local.UserIDs(ctx)
	if err != nil {
		return nil, err
	}
	var all []domain.Order
	for _, uid := range userIDs {
		orders, err := s.local.LoadOrders(ctx, uid)
		if err != nil {
			s.log.Warn("skipping unreadable order partition", "user_id", uid, "err", err)
			continue
		}
		all = append(all, orders...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt != all[j].CreatedAt {
			return all[i].CreatedAt > all[j].CreatedAt
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

// currentSession checks the session under a bounded wait. A backend that
// is still restoring sessions gets authWait to answer; after that the
// orchestrator proceeds with whatever auth state it has.
func (s *Service) currentSession(ctx context.Context, token string) (auth.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.authWait)
	defer cancel()
	return s.sessions.Current(ctx, token)
}

func (s *Service) pushStatus(ctx context.Context, o domain.Order) error {
	payload, err := json.Marshal(domain.OrderStatusChanged{
		OrderID:       o.ID,
		OwnerID:       o.OwnerID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
	})
	if err != nil {
		return err
	}
	return s.remote.PushStatus(ctx, o, EventOrderStatusChanged, payload)
}

func indexByID(orders []domain.Order, id string) int {
	for i, o := range orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) replaceLocal(ctx context.Context, userID string, o domain.Order) error {
	orders, err := s.local.LoadOrders(ctx, userID)
	if err != nil {
		return err
	}
	if idx := indexByID(orders, o.ID); idx >= 0 {
		orders[idx] = o
		return s.local.SaveOrders(ctx, userID, orders)
	}
	return nil
}
