package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusActive         Status = "active"
	StatusScheduled      Status = "scheduled"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusRejected       Status = "rejected"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRejected PaymentStatus = "rejected"
)

// ServerIDPrefix marks local-facing ids derived from a remote row id, for
// rows that never recorded a client-generated id.
const ServerIDPrefix = "DB-"

var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrInvalidOrder = errors.New("invalid order")
)

type Addon struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Price int64  `json:"price"`
}

type OrderItem struct {
	ProductID string  `json:"id,omitempty"`
	Title     string  `json:"title"`
	Qty       int     `json:"qty"`
	UnitPrice int64   `json:"unitPrice"`
	Subtotal  int64   `json:"subtotal"`
	Addons    []Addon `json:"addons,omitempty"`
	Image     string  `json:"image,omitempty"`
}

type Gift struct {
	Message    string `json:"message"`
	FromName   string `json:"fromName"`
	RevealMode string `json:"revealMode"`
	Theme      string `json:"theme,omitempty"`
}

// Meta carries free-form checkout fields. The merge engine treats it as
// opaque remote-refreshable data.
type Meta struct {
	Notes          string `json:"notes,omitempty"`
	Recipient      string `json:"recipient,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
	DeliveryMethod string `json:"deliveryMethod,omitempty"`
}

type Order struct {
	ID            string        `json:"id"`
	RemoteID      string        `json:"remoteId,omitempty"`
	OwnerID       string        `json:"ownerId"`
	CreatedAt     int64         `json:"createdAt"`
	ScheduledAt   int64         `json:"scheduledAt,omitempty"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Total         int64         `json:"total"`
	ShippingFee   int64         `json:"shippingFee"`
	Items         []OrderItem   `json:"items"`
	IsGift        bool          `json:"isGift"`
	Gift          *Gift         `json:"gift,omitempty"`
	Meta          Meta          `json:"meta"`
}

// Draft holds everything checkout collects before an Order exists.
type Draft struct {
	Items       []OrderItem
	ShippingFee int64
	ScheduledAt int64
	Gift        *Gift
	Meta        Meta
}

// NewOrder builds a validated order from a checkout draft. The id is
// client-generated and is the merge key for every later sync.
func NewOrder(ownerID string, d Draft) (Order, error) {
	if len(d.Items) == 0 {
		return Order{}, ErrEmptyCart
	}
	if ownerID == "" {
		return Order{}, fmt.Errorf("%w: missing owner", ErrInvalidOrder)
	}
	if d.ShippingFee < 0 {
		return Order{}, fmt.Errorf("%w: negative shipping fee", ErrInvalidOrder)
	}

	now := time.Now().UnixMilli()
	items := make([]OrderItem, len(d.Items))
	var total int64
	for i, it := range d.Items {
		if it.Qty < 1 {
			return Order{}, fmt.Errorf("%w: item %q qty %d", ErrInvalidOrder, it.Title, it.Qty)
		}
		if it.UnitPrice < 0 {
			return Order{}, fmt.Errorf("%w: item %q negative unit price", ErrInvalidOrder, it.Title)
		}
		if it.Subtotal == 0 {
			it.Subtotal = ItemSubtotal(it)
		}
		total += it.Subtotal
		items[i] = it
	}

	status := StatusActive
	if d.ScheduledAt > now {
		status = StatusScheduled
	}

	o := Order{
		ID:            fmt.Sprintf("ORD-%d", now),
		OwnerID:       ownerID,
		CreatedAt:     now,
		ScheduledAt:   d.ScheduledAt,
		Status:        status,
		PaymentStatus: PaymentPending,
		Total:         total + d.ShippingFee,
		ShippingFee:   d.ShippingFee,
		Items:         items,
		IsGift:        d.Gift != nil,
		Gift:          d.Gift,
		Meta:          d.Meta,
	}
	if o.IsGift && o.Gift.RevealMode == "" {
		o.Gift.RevealMode = "reveal"
	}
	return o, nil
}

// ItemSubtotal prices one line: unit price plus per-unit addon prices,
// scaled by quantity.
func ItemSubtotal(it OrderItem) int64 {
	var addons int64
	for _, a := range it.Addons {
		addons += a.Price
	}
	return (it.UnitPrice + addons) * int64(it.Qty)
}

// IsTerminal reports whether automated sync must never move the order out
// of this status. Only an explicit admin or user action may.
func IsTerminal(s Status) bool {
	switch s {
	case StatusDelivered, StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// ServerOrigin reports whether the local-facing id was derived from a
// remote row id rather than generated at checkout.
func (o Order) ServerOrigin() bool {
	return strings.HasPrefix(o.ID, ServerIDPrefix)
}
