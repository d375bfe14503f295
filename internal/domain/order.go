package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Order is the business entity an OrderWorkflow instance drives forward.
// State only ever advances through the states below; the row itself is
// never deleted.
type Order struct {
	ID          string         `gorm:"column:id;type:text;primaryKey" json:"id"`
	State       string         `gorm:"column:state;type:text;not null" json:"state"`
	AddressJSON datatypes.JSON `gorm:"column:address_json;type:jsonb" json:"address_json,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

const (
	OrderStateReceived       = "received"
	OrderStateValidated      = "validated"
	OrderStatePaymentCharged = "payment_charged"
	OrderStateShipping       = "shipping"
	OrderStateShipped        = "shipped"
)

// Event is an append-only audit row. Never mutated once written.
type Event struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID     string         `gorm:"column:order_id;type:text;not null;index" json:"order_id"`
	Type        string         `gorm:"column:type;type:text;not null" json:"type"`
	PayloadJSON datatypes.JSON `gorm:"column:payload_json;type:jsonb" json:"payload_json,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Event) TableName() string { return "events" }

const (
	EventOrderReceived    = "order_received"
	EventOrderValidated   = "order_validated"
	EventPaymentCharged   = "payment_charged"
	EventPaymentIdempotent = "payment_idempotent"
	EventPackagePrepared  = "package_prepared"
	EventCarrierDispatched = "carrier_dispatched"
	EventOrderShipped     = "order_shipped"
	EventAddressUpdated   = "address_updated"
)

// Payment is the idempotency record for a charge. At most one row per
// payment_id; once charged the amount is authoritative and immutable.
type Payment struct {
	PaymentID string          `gorm:"column:payment_id;type:text;primaryKey" json:"payment_id"`
	OrderID   string          `gorm:"column:order_id;type:text;not null;index" json:"order_id"`
	Status    string          `gorm:"column:status;type:text;not null" json:"status"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(20,4);not null" json:"amount"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

const PaymentStatusCharged = "charged"

// Shipment is an append-only progress row; multiple rows per order are
// expected (one per stage, possibly repeated on retry).
type Shipment struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID     string         `gorm:"column:order_id;type:text;not null;index" json:"order_id"`
	Status      string         `gorm:"column:status;type:text;not null" json:"status"`
	PayloadJSON datatypes.JSON `gorm:"column:payload_json;type:jsonb" json:"payload_json,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Shipment) TableName() string { return "shipments" }

const (
	ShipmentStatusPrepared   = "prepared"
	ShipmentStatusDispatched = "dispatched"
)
