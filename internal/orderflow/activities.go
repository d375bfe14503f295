package orderflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kvelez/orderflow/internal/data/repos"
	"github.com/kvelez/orderflow/internal/pkg/dbctx"
	pkgerrors "github.com/kvelez/orderflow/internal/pkg/errors"
	"github.com/kvelez/orderflow/internal/platform/logger"
)

// Item is one line item on an order. A missing Qty defaults to 1, matching
// the reference implementation's "missing qty defaults to 1" rule.
type Item struct {
	SKU string `json:"sku"`
	Qty *int   `json:"qty,omitempty"`
}

func (i Item) quantity() int {
	if i.Qty == nil {
		return 1
	}
	return *i.Qty
}

// OrderObject is the order-shaped payload passed between the orchestrator
// and its activities. Its UnmarshalJSON accepts either "order_id" or "id" as
// the identifier key, mirroring the original's `_order_id_from` helper which
// tolerated both spellings across call sites.
type OrderObject struct {
	OrderID string          `json:"order_id"`
	Address json.RawMessage `json:"address,omitempty"`
	Items   []Item          `json:"items,omitempty"`
}

func (o *OrderObject) UnmarshalJSON(data []byte) error {
	type alias OrderObject
	aux := &struct {
		ID string `json:"id"`
		*alias
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if o.OrderID == "" {
		o.OrderID = aux.ID
	}
	return nil
}

// ReceiveOrderInput is the start payload, address/items optional.
type ReceiveOrderInput struct {
	OrderID string          `json:"order_id"`
	Address json.RawMessage `json:"address,omitempty"`
	Items   []Item          `json:"items,omitempty"`
}

var defaultItems = []Item{{SKU: "ABC", Qty: intPtr(1)}}

func intPtr(v int) *int { return &v }

// ChargePaymentInput bundles the validated order with the caller-supplied
// idempotency key.
type ChargePaymentInput struct {
	Order     OrderObject `json:"order"`
	PaymentID string      `json:"payment_id"`
}

type ChargePaymentOutput struct {
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

type MarkShippedInput struct {
	OrderID string `json:"order_id"`
}

type PersistAddressInput struct {
	OrderID string          `json:"order_id"`
	Address json.RawMessage `json:"address"`
}

// Activities wires the C2 handlers to the C1 persistence gateway. Every
// handler re-executes safely: persistence is idempotent (upserts, the
// payment lock, append-only inserts) so replay after a prior success either
// converges or no-ops.
type Activities struct {
	Log             *logger.Logger
	Orders          repos.OrderRepo
	FaultInjection  bool
}

func (a *Activities) flaky() error {
	return repos.FlakyCall(a.FaultInjection)
}

func (a *Activities) ReceiveOrder(ctx context.Context, in ReceiveOrderInput) (OrderObject, error) {
	if err := a.flaky(); err != nil {
		return OrderObject{}, err
	}
	items := in.Items
	if len(items) == 0 {
		items = defaultItems
	}

	dbc := dbctx.Context{Ctx: ctx}
	if _, err := a.Orders.UpsertOrderState(dbc, in.OrderID, "received", in.Address); err != nil {
		return OrderObject{}, fmt.Errorf("receive_order: upsert: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{"address": rawOrNull(in.Address), "items": items})
	if err := a.Orders.InsertEvent(dbc, in.OrderID, "order_received", payload); err != nil {
		return OrderObject{}, fmt.Errorf("receive_order: event: %w", err)
	}

	return OrderObject{OrderID: in.OrderID, Address: in.Address, Items: items}, nil
}

func (a *Activities) ValidateOrder(ctx context.Context, order OrderObject) (bool, error) {
	if err := a.flaky(); err != nil {
		return false, err
	}
	if len(order.Items) == 0 {
		return false, fmt.Errorf("invalid_order: items is empty or absent: %w", pkgerrors.ErrInvalidArgument)
	}

	dbc := dbctx.Context{Ctx: ctx}
	if _, err := a.Orders.UpsertOrderState(dbc, order.OrderID, "validated", nil); err != nil {
		return false, fmt.Errorf("validate_order: upsert: %w", err)
	}
	if err := a.Orders.InsertEvent(dbc, order.OrderID, "order_validated", nil); err != nil {
		return false, fmt.Errorf("validate_order: event: %w", err)
	}
	return true, nil
}

func (a *Activities) ChargePayment(ctx context.Context, in ChargePaymentInput) (ChargePaymentOutput, error) {
	if err := a.flaky(); err != nil {
		return ChargePaymentOutput{}, err
	}

	amount := decimal.Zero
	for _, it := range in.Order.Items {
		amount = amount.Add(decimal.NewFromInt(int64(it.quantity())))
	}

	dbc := dbctx.Context{Ctx: ctx}
	res, err := a.Orders.ChargePaymentIdempotent(dbc, in.PaymentID, in.Order.OrderID, amount)
	if err != nil {
		return ChargePaymentOutput{}, fmt.Errorf("charge_payment: idempotent charge: %w", err)
	}

	if _, err := a.Orders.UpsertOrderState(dbc, in.Order.OrderID, "payment_charged", nil); err != nil {
		return ChargePaymentOutput{}, fmt.Errorf("charge_payment: upsert: %w", err)
	}

	eventType := "payment_charged"
	if !res.WasNew {
		eventType = "payment_idempotent"
	}
	payload, _ := json.Marshal(map[string]interface{}{"payment_id": in.PaymentID, "amount": res.Amount})
	if err := a.Orders.InsertEvent(dbc, in.Order.OrderID, eventType, payload); err != nil {
		return ChargePaymentOutput{}, fmt.Errorf("charge_payment: event: %w", err)
	}

	return ChargePaymentOutput{Status: res.Status, Amount: res.Amount}, nil
}

func (a *Activities) PreparePackage(ctx context.Context, order OrderObject) (string, error) {
	if err := a.flaky(); err != nil {
		return "", err
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := a.Orders.InsertShipment(dbc, order.OrderID, "prepared", nil); err != nil {
		return "", fmt.Errorf("prepare_package: shipment: %w", err)
	}
	if err := a.Orders.InsertEvent(dbc, order.OrderID, "package_prepared", nil); err != nil {
		return "", fmt.Errorf("prepare_package: event: %w", err)
	}
	return "Package ready", nil
}

func (a *Activities) DispatchCarrier(ctx context.Context, order OrderObject) (string, error) {
	if err := a.flaky(); err != nil {
		return "", err
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := a.Orders.InsertShipment(dbc, order.OrderID, "dispatched", nil); err != nil {
		return "", fmt.Errorf("dispatch_carrier: shipment: %w", err)
	}
	if _, err := a.Orders.UpsertOrderState(dbc, order.OrderID, "shipping", nil); err != nil {
		return "", fmt.Errorf("dispatch_carrier: upsert: %w", err)
	}
	if err := a.Orders.InsertEvent(dbc, order.OrderID, "carrier_dispatched", nil); err != nil {
		return "", fmt.Errorf("dispatch_carrier: event: %w", err)
	}
	return "Dispatched", nil
}

func (a *Activities) MarkShipped(ctx context.Context, in MarkShippedInput) (string, error) {
	if err := a.flaky(); err != nil {
		return "", err
	}
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := a.Orders.UpsertOrderState(dbc, in.OrderID, "shipped", nil); err != nil {
		return "", fmt.Errorf("mark_shipped: upsert: %w", err)
	}
	if err := a.Orders.InsertEvent(dbc, in.OrderID, "order_shipped", nil); err != nil {
		return "", fmt.Errorf("mark_shipped: event: %w", err)
	}
	return "Shipped", nil
}

func (a *Activities) PersistAddress(ctx context.Context, in PersistAddressInput) (string, error) {
	if err := a.flaky(); err != nil {
		return "", err
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := a.Orders.UpdateAddress(dbc, in.OrderID, in.Address); err != nil {
		return "", fmt.Errorf("persist_address: update: %w", err)
	}
	if err := a.Orders.InsertEvent(dbc, in.OrderID, "address_updated", in.Address); err != nil {
		return "", fmt.Errorf("persist_address: event: %w", err)
	}
	return "address_updated", nil
}

func rawOrNull(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}
