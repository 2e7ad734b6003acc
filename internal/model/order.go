package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DuplicateOrderWindow is how far back CreateOrder looks for an identical unpaid order.
const DuplicateOrderWindow = 5 * time.Minute

// BuyerType distinguishes individual and corporate buyers.
type BuyerType string

const (
	BuyerIndividual BuyerType = "individual"
	BuyerCompany    BuyerType = "company"
)

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPlanted   OrderStatus = "planted"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// AdoptionType tells whether an item is adopted for the buyer or gifted.
type AdoptionType string

const (
	AdoptionSelf AdoptionType = "self"
	AdoptionGift AdoptionType = "gift"
)

// Buyer identifies the purchaser of an order.
type Buyer struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Type  BuyerType `json:"type"`
}

// GiftInfo carries recipient metadata for gifted orders.
type GiftInfo struct {
	IsGift         bool   `json:"isGift"`
	RecipientName  string `json:"recipientName,omitempty"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	Message        string `json:"message,omitempty"`
	Occasion       string `json:"occasion,omitempty"`
}

// OrderItem is a snapshot of one catalogue tree at purchase time.
// Items are immutable once the order exists.
type OrderItem struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrderID        uuid.UUID       `json:"-" db:"order_id"`
	Position       int             `json:"position" db:"position"`
	TreeID         string          `json:"treeId" db:"tree_id"`
	Name           string          `json:"name" db:"name"`
	ImageURL       string          `json:"imageUrl" db:"image_url"`
	Quantity       int             `json:"quantity" db:"quantity"`
	Price          decimal.Decimal `json:"price" db:"price"`
	OxygenYield    decimal.Decimal `json:"oxygenYield" db:"oxygen_yield"`
	AdoptionType   AdoptionType    `json:"adoptionType" db:"adoption_type"`
	RecipientName  string          `json:"recipientName,omitempty" db:"recipient_name"`
	RecipientEmail string          `json:"recipientEmail,omitempty" db:"recipient_email"`
}

// LineTotal returns price × quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order represents one purchase and its embedded field tasks.
type Order struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	Code               string          `json:"code" db:"code"`
	Buyer              Buyer           `json:"buyer"`
	Items              []OrderItem     `json:"items"`
	TotalAmount        decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Gift               GiftInfo        `json:"gift"`
	PaymentStatus      PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	PaymentRef         *string         `json:"paymentRef,omitempty" db:"payment_ref"`
	Status             OrderStatus     `json:"status" db:"order_status"`
	AssignedWellwisher *uuid.UUID      `json:"assignedWellwisher,omitempty" db:"assigned_wellwisher"`
	Tasks              []Task          `json:"tasks"`
	AdminNotes         string          `json:"adminNotes,omitempty" db:"admin_notes"`
	ItemFingerprint    string          `json:"-" db:"item_fingerprint"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time       `json:"updatedAt" db:"updated_at"`
}

// SumItems returns Σ price × quantity over items.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ItemFingerprint returns an order-independent key for an item set,
// e.g. "oak:2|teak:1". Used by the duplicate-submission guard.
func ItemFingerprint(items []OrderItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s:%d", item.TreeID, item.Quantity)
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// NewOrderCode returns a short human-readable order code.
func NewOrderCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TA-" + strings.ToUpper(id[:8])
}

// OrderRequest represents the request payload for creating an order.
type OrderRequest struct {
	BuyerType BuyerType          `json:"buyerType"`
	BuyerName string             `json:"buyerName"`
	Email     string             `json:"email"`
	Items     []OrderItemRequest `json:"items"`
	Gift      *GiftInfo          `json:"gift,omitempty"`
}

// OrderItemRequest represents a single item in an order request.
type OrderItemRequest struct {
	TreeID         string       `json:"treeId"`
	Quantity       int          `json:"quantity"`
	AdoptionType   AdoptionType `json:"adoptionType,omitempty"`
	RecipientName  string       `json:"recipientName,omitempty"`
	RecipientEmail string       `json:"recipientEmail,omitempty"`
}

// PaymentEvent is the trusted "order paid" event from the payment gateway.
type PaymentEvent struct {
	OrderID    uuid.UUID `json:"orderId"`
	PaymentRef string    `json:"paymentRef"`
}

// NotesRequest updates admin notes on an order.
type NotesRequest struct {
	Notes string `json:"notes"`
}
