package orderflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kvelez/orderflow/internal/data/repos"
	"github.com/kvelez/orderflow/internal/pkg/dbctx"
	types "github.com/kvelez/orderflow/internal/domain"
)

// fakeOrderRepo is a hand-rolled in-memory stand-in for repos.OrderRepo,
// enough to exercise the activity handlers without a database.
type fakeOrderRepo struct {
	orders   map[string]*types.Order
	events   []types.Event
	payments map[string]repos.ChargeResult
	shipments []types.Shipment
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:   map[string]*types.Order{},
		payments: map[string]repos.ChargeResult{},
	}
}

func (f *fakeOrderRepo) UpsertOrderState(_ dbctx.Context, orderID, state string, address json.RawMessage) (*types.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		o = &types.Order{ID: orderID}
		f.orders[orderID] = o
	}
	o.State = state
	if len(address) > 0 {
		o.AddressJSON = address
	}
	return o, nil
}

func (f *fakeOrderRepo) InsertEvent(_ dbctx.Context, orderID, eventType string, payload json.RawMessage) error {
	f.events = append(f.events, types.Event{OrderID: orderID, Type: eventType, PayloadJSON: payload})
	return nil
}

func (f *fakeOrderRepo) UpdateAddress(_ dbctx.Context, orderID string, address json.RawMessage) error {
	o, ok := f.orders[orderID]
	if !ok {
		o = &types.Order{ID: orderID}
		f.orders[orderID] = o
	}
	o.AddressJSON = address
	return nil
}

func (f *fakeOrderRepo) ChargePaymentIdempotent(_ dbctx.Context, paymentID, orderID string, amount decimal.Decimal) (repos.ChargeResult, error) {
	if existing, ok := f.payments[paymentID]; ok {
		existing.WasNew = false
		return existing, nil
	}
	res := repos.ChargeResult{Status: "charged", Amount: amount, WasNew: true}
	f.payments[paymentID] = res
	return res, nil
}

func (f *fakeOrderRepo) InsertShipment(_ dbctx.Context, orderID, status string, payload json.RawMessage) error {
	f.shipments = append(f.shipments, types.Shipment{OrderID: orderID, Status: status, PayloadJSON: payload})
	return nil
}

func (f *fakeOrderRepo) GetOrder(_ dbctx.Context, orderID string) (*types.Order, error) {
	return f.orders[orderID], nil
}

func TestReceiveOrder_DefaultsItems(t *testing.T) {
	repo := newFakeOrderRepo()
	acts := &Activities{Orders: repo}

	out, err := acts.ReceiveOrder(context.Background(), ReceiveOrderInput{OrderID: "o-1"})
	if err != nil {
		t.Fatalf("ReceiveOrder: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].SKU != "ABC" || out.Items[0].quantity() != 1 {
		t.Fatalf("want default item {ABC,1}, got %+v", out.Items)
	}
	if repo.orders["o-1"].State != "received" {
		t.Fatalf("want state=received, got %s", repo.orders["o-1"].State)
	}
}

func TestValidateOrder_EmptyItemsFails(t *testing.T) {
	acts := &Activities{Orders: newFakeOrderRepo()}

	if _, err := acts.ValidateOrder(context.Background(), OrderObject{OrderID: "o-2"}); err == nil {
		t.Fatalf("want invalid_order error for empty items, got nil")
	}
}

func TestValidateOrder_WithItemsSucceeds(t *testing.T) {
	repo := newFakeOrderRepo()
	acts := &Activities{Orders: repo}

	ok, err := acts.ValidateOrder(context.Background(), OrderObject{OrderID: "o-3", Items: []Item{{SKU: "ABC", Qty: intPtr(2)}}})
	if err != nil || !ok {
		t.Fatalf("want validated ok, got ok=%v err=%v", ok, err)
	}
	if repo.orders["o-3"].State != "validated" {
		t.Fatalf("want state=validated, got %s", repo.orders["o-3"].State)
	}
}

func TestChargePayment_SumsQuantities(t *testing.T) {
	repo := newFakeOrderRepo()
	acts := &Activities{Orders: repo}

	order := OrderObject{OrderID: "o-4", Items: []Item{{SKU: "ABC", Qty: intPtr(2)}, {SKU: "DEF"}}}
	out, err := acts.ChargePayment(context.Background(), ChargePaymentInput{Order: order, PaymentID: "pay-4"})
	if err != nil {
		t.Fatalf("ChargePayment: %v", err)
	}
	want := decimal.NewFromInt(3) // 2 + default 1
	if !out.Amount.Equal(want) {
		t.Fatalf("want amount=%s got=%s", want, out.Amount)
	}

	// Repeat charge with the same payment_id must not change the amount.
	out2, err := acts.ChargePayment(context.Background(), ChargePaymentInput{
		Order:     OrderObject{OrderID: "o-4", Items: []Item{{SKU: "ABC", Qty: intPtr(99)}}},
		PaymentID: "pay-4",
	})
	if err != nil {
		t.Fatalf("ChargePayment (repeat): %v", err)
	}
	if !out2.Amount.Equal(want) {
		t.Fatalf("repeat charge: want amount unchanged at %s, got %s", want, out2.Amount)
	}
}

func TestOrderObject_UnmarshalJSON_AcceptsIDOrOrderID(t *testing.T) {
	var a OrderObject
	if err := json.Unmarshal([]byte(`{"order_id":"o-5"}`), &a); err != nil {
		t.Fatalf("unmarshal order_id: %v", err)
	}
	if a.OrderID != "o-5" {
		t.Fatalf("want order_id=o-5, got %s", a.OrderID)
	}

	var b OrderObject
	if err := json.Unmarshal([]byte(`{"id":"o-6"}`), &b); err != nil {
		t.Fatalf("unmarshal id: %v", err)
	}
	if b.OrderID != "o-6" {
		t.Fatalf("want order_id=o-6 (from id), got %s", b.OrderID)
	}
}

func TestPreparePackageAndDispatchCarrier(t *testing.T) {
	repo := newFakeOrderRepo()
	acts := &Activities{Orders: repo}
	order := OrderObject{OrderID: "o-7"}

	if _, err := acts.PreparePackage(context.Background(), order); err != nil {
		t.Fatalf("PreparePackage: %v", err)
	}
	if _, err := acts.DispatchCarrier(context.Background(), order); err != nil {
		t.Fatalf("DispatchCarrier: %v", err)
	}
	if len(repo.shipments) != 2 {
		t.Fatalf("want 2 shipment rows, got %d", len(repo.shipments))
	}
	if repo.orders["o-7"].State != "shipping" {
		t.Fatalf("want state=shipping after dispatch, got %s", repo.orders["o-7"].State)
	}
}

func TestMarkShippedAndPersistAddress(t *testing.T) {
	repo := newFakeOrderRepo()
	acts := &Activities{Orders: repo}

	if _, err := acts.MarkShipped(context.Background(), MarkShippedInput{OrderID: "o-8"}); err != nil {
		t.Fatalf("MarkShipped: %v", err)
	}
	if repo.orders["o-8"].State != "shipped" {
		t.Fatalf("want state=shipped, got %s", repo.orders["o-8"].State)
	}

	addr := json.RawMessage(`{"line1":"1 Infinite Loop"}`)
	if _, err := acts.PersistAddress(context.Background(), PersistAddressInput{OrderID: "o-8", Address: addr}); err != nil {
		t.Fatalf("PersistAddress: %v", err)
	}
	if string(repo.orders["o-8"].AddressJSON) != string(addr) {
		t.Fatalf("want address=%s got=%s", addr, repo.orders["o-8"].AddressJSON)
	}
	if repo.orders["o-8"].State != "shipped" {
		t.Fatalf("want state left at shipped after persist_address, got %s", repo.orders["o-8"].State)
	}
}
