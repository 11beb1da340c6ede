// Package postgres talks to the remote system of record: the orders and
// order_items tables an admin progresses orders in. Every failure is
// wrapped as application.ErrRemoteUnavailable so callers can fall back
// to local state instead of handling driver errors.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dapurkita/ordersync/internal/order/application"
	"github.com/dapurkita/ordersync/internal/order/domain"
	"github.com/dapurkita/ordersync/pkg/tracing"
)

type Gateway struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewGateway(log *slog.Logger, pool *pgxpool.Pool) *Gateway {
	return &Gateway{log: log, pool: pool}
}

func remoteErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", application.ErrRemoteUnavailable, op, err)
}

// FetchOrders reads every order row for the user together with its line
// items, newest first, mapped into the local order shape.
func (g *Gateway) FetchOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, client_order_id, status, payment_status, total, shipping_fee,
		       scheduled_at, created_at, is_gift, gift_message, gift_from_name,
		       gift_reveal_mode, gift_theme, notes, recipient_name, recipient_phone,
		       delivery_method
		FROM orders
		WHERE user_id=$1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, remoteErr("fetch orders", err)
	}
	defer rows.Close()

	var orders []domain.Order
	byRemoteID := make(map[string]int)
	for rows.Next() {
		var (
			remoteID, status, payStatus             string
			clientID, notes, recipient, phone       *string
			giftMsg, giftFrom, giftReveal, giftTh   *string
			deliveryMethod                          *string
			total, shippingFee                      int64
			scheduledAt                             *time.Time
			createdAt                               time.Time
			isGift                                  bool
		)
		if err := rows.Scan(&remoteID, &clientID, &status, &payStatus, &total, &shippingFee,
			&scheduledAt, &createdAt, &isGift, &giftMsg, &giftFrom, &giftReveal, &giftTh,
			&notes, &recipient, &phone, &deliveryMethod); err != nil {
			return nil, remoteErr("scan order", err)
		}

		o := domain.Order{
			ID:            domain.ServerIDPrefix + remoteID,
			RemoteID:      remoteID,
			OwnerID:       userID,
			CreatedAt:     createdAt.UnixMilli(),
			Status:        domain.Status(status),
			PaymentStatus: domain.PaymentStatus(payStatus),
			Total:         total,
			ShippingFee:   shippingFee,
			IsGift:        isGift,
		}
		if clientID != nil && *clientID != "" {
			o.ID = *clientID
		}
		if o.Status == "" {
			o.Status = domain.StatusActive
		}
		if o.PaymentStatus == "" {
			o.PaymentStatus = domain.PaymentPending
		}
		if scheduledAt != nil {
			o.ScheduledAt = scheduledAt.UnixMilli()
		}
		if isGift {
			o.Gift = &domain.Gift{
				Message:    deref(giftMsg),
				FromName:   deref(giftFrom),
				RevealMode: deref(giftReveal),
				Theme:      deref(giftTh),
			}
			if o.Gift.RevealMode == "" {
				o.Gift.RevealMode = "reveal"
			}
		}
		o.Meta = domain.Meta{
			Notes:          deref(notes),
			Recipient:      deref(recipient),
			RecipientPhone: deref(phone),
			DeliveryMethod: deref(deliveryMethod),
		}
		byRemoteID[remoteID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, remoteErr("fetch orders", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	remoteIDs := make([]string, 0, len(orders))
	for id := range byRemoteID {
		remoteIDs = append(remoteIDs, id)
	}
	itemRows, err := g.pool.Query(ctx, `
		SELECT order_id, product_id, title, qty, unit_price, subtotal, image_url, addons_json
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY id`, remoteIDs)
	if err != nil {
		return nil, remoteErr("fetch order items", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID, title      string
			productID, imageURL *string
			qty                 int
			unitPrice, subtotal int64
			addonsJSON          []byte
		)
		if err := itemRows.Scan(&orderID, &productID, &title, &qty, &unitPrice, &subtotal, &imageURL, &addonsJSON); err != nil {
			return nil, remoteErr("scan order item", err)
		}
		idx, ok := byRemoteID[orderID]
		if !ok {
			continue
		}
		item := domain.OrderItem{
			ProductID: deref(productID),
			Title:     title,
			Qty:       qty,
			UnitPrice: unitPrice,
			Subtotal:  subtotal,
			Image:     deref(imageURL),
		}
		if len(addonsJSON) > 0 {
			if err := json.Unmarshal(addonsJSON, &item.Addons); err != nil {
				g.log.Warn("unreadable addons payload", "order_id", orderID, "err", err)
			}
		}
		orders[idx].Items = append(orders[idx].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, remoteErr("fetch order items", err)
	}
	return orders, nil
}

// CreateOrder mirrors a freshly checked-out order: the order row, its
// line items, and the outbox event land in one transaction. The caller
// treats failure as best-effort; the local order stands regardless.
func (g *Gateway) CreateOrder(ctx context.Context, o domain.Order, eventType string, payload []byte) (string, error) {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", remoteErr("begin", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	remoteID := uuid.NewString()
	var scheduledAt *time.Time
	if o.ScheduledAt > 0 {
		t := time.UnixMilli(o.ScheduledAt).UTC()
		scheduledAt = &t
	}
	gift := domain.Gift{}
	if o.Gift != nil {
		gift = *o.Gift
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, client_order_id, status, payment_status, total,
		                    shipping_fee, scheduled_at, created_at, is_gift, gift_message,
		                    gift_from_name, gift_reveal_mode, gift_theme, notes,
		                    recipient_name, recipient_phone, delivery_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		remoteID, o.OwnerID, o.ID, string(o.Status), string(o.PaymentStatus), o.Total,
		o.ShippingFee, scheduledAt, time.UnixMilli(o.CreatedAt).UTC(), o.IsGift, gift.Message,
		gift.FromName, gift.RevealMode, gift.Theme, o.Meta.Notes,
		o.Meta.Recipient, o.Meta.RecipientPhone, o.Meta.DeliveryMethod)
	if err != nil {
		return "", remoteErr("insert order", err)
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		addons, err := json.Marshal(item.Addons)
		if err != nil {
			return "", remoteErr("encode addons", err)
		}
		batch.Queue(`
			INSERT INTO order_items (order_id, product_id, title, qty, unit_price, subtotal, image_url, addons_json)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			remoteID, item.ProductID, item.Title, item.Qty, item.UnitPrice, item.Subtotal, item.Image, string(addons))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return "", remoteErr("insert order items", err)
	}

	if err := insertOutbox(ctx, tx, o.ID, eventType, payload); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", remoteErr("commit", err)
	}
	return remoteID, nil
}

// PushStatus updates status and payment status on the matching remote
// row. The row is matched by client order id first; server-origin local
// ids fall back to the row's own id. It never inserts.
func (g *Gateway) PushStatus(ctx context.Context, o domain.Order, eventType string, payload []byte) error {
	matchCol := "client_order_id"
	matchVal := o.ID
	switch {
	case o.RemoteID != "":
		matchCol, matchVal = "id", o.RemoteID
	case o.ServerOrigin():
		matchCol, matchVal = "id", strings.TrimPrefix(o.ID, domain.ServerIDPrefix)
	}

	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return remoteErr("begin", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var scheduledAt *time.Time
	if o.ScheduledAt > 0 {
		t := time.UnixMilli(o.ScheduledAt).UTC()
		scheduledAt = &t
	}
	ct, err := tx.Exec(ctx,
		`UPDATE orders SET status=$1, payment_status=$2, shipping_fee=$3, scheduled_at=$4 WHERE `+matchCol+`=$5`,
		string(o.Status), string(o.PaymentStatus), o.ShippingFee, scheduledAt, matchVal)
	if err != nil {
		return remoteErr("update order", err)
	}
	if ct.RowsAffected() == 0 {
		// Order was never mirrored; nothing to update and nothing to create.
		g.log.Warn("status push matched no remote row", "order_id", o.ID, "match", matchCol)
	}

	if err := insertOutbox(ctx, tx, o.ID, eventType, payload); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return remoteErr("commit", err)
	}
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, orderID, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status) VALUES ($1,$2,$3,$4,$5,'pending')`,
		"order", orderID, eventType, string(payload), tracing.Traceparent(ctx))
	if err != nil {
		return remoteErr("insert outbox event", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
