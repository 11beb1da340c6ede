package application

import (
	"context"
	"errors"

	"github.com/dapurkita/ordersync/internal/auth"
	"github.com/dapurkita/ordersync/internal/order/domain"
)

var (
	ErrRemoteUnavailable = errors.New("remote order store unavailable")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderFinal        = errors.New("order already in a terminal status")
)

// LocalStore is the per-user order bucket the storefront renders from.
type LocalStore interface {
	LoadOrders(ctx context.Context, userID string) ([]domain.Order, error)
	SaveOrders(ctx context.Context, userID string, orders []domain.Order) error
	UserIDs(ctx context.Context) ([]string, error)
}

// RemoteGateway is the system of record. Writes carry the outbox event
// that announces them.
type RemoteGateway interface {
	FetchOrders(ctx context.Context, userID string) ([]domain.Order, error)
	CreateOrder(ctx context.Context, o domain.Order, eventType string, payload []byte) (remoteID string, err error)
	PushStatus(ctx context.Context, o domain.Order, eventType string, payload []byte) error
}

// Sessions resolves a bearer token to an identity. Must be cheap enough
// to call on every request.
type Sessions interface {
	Current(ctx context.Context, token string) (auth.Identity, error)
}
