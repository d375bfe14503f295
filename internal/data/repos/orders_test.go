package repos

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kvelez/orderflow/internal/data/repos/testutil"
	"github.com/kvelez/orderflow/internal/pkg/dbctx"
)

// jsonEqual compares two JSON documents by value: address_json is a jsonb
// column, so Postgres hands it back in its own canonical formatting.
func jsonEqual(a, b []byte) bool {
	var x, y interface{}
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	return reflect.DeepEqual(x, y)
}

func TestOrderRepo_UpsertOrderState_AddressCoalesce(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewOrderRepo(gdb, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	orderID := "o-coalesce-1"

	addr1 := json.RawMessage(`{"line1":"123 Main"}`)
	if _, err := repo.UpsertOrderState(dbc, orderID, "received", addr1); err != nil {
		t.Fatalf("UpsertOrderState #1: %v", err)
	}

	// A nil address on the second call must not clear the first.
	got, err := repo.UpsertOrderState(dbc, orderID, "validated", nil)
	if err != nil {
		t.Fatalf("UpsertOrderState #2: %v", err)
	}
	if got.State != "validated" {
		t.Fatalf("UpsertOrderState #2: want state=validated got=%s", got.State)
	}
	if !jsonEqual(got.AddressJSON, addr1) {
		t.Fatalf("UpsertOrderState #2: want address=%s got=%s", addr1, got.AddressJSON)
	}

	addr2 := json.RawMessage(`{"line1":"456 Elm"}`)
	got, err = repo.UpsertOrderState(dbc, orderID, "payment_charged", addr2)
	if err != nil {
		t.Fatalf("UpsertOrderState #3: %v", err)
	}
	if !jsonEqual(got.AddressJSON, addr2) {
		t.Fatalf("UpsertOrderState #3: want address=%s got=%s", addr2, got.AddressJSON)
	}
}

func TestOrderRepo_ChargePaymentIdempotent(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewOrderRepo(gdb, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	if _, err := repo.UpsertOrderState(dbc, "o-pay-1", "validated", nil); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	amount := decimal.NewFromInt(2)

	first, err := repo.ChargePaymentIdempotent(dbc, "pay-o-pay-1", "o-pay-1", amount)
	if err != nil {
		t.Fatalf("ChargePaymentIdempotent #1: %v", err)
	}
	if !first.WasNew || !first.Amount.Equal(amount) || first.Status != "charged" {
		t.Fatalf("ChargePaymentIdempotent #1: want new charge of %s, got %+v", amount, first)
	}

	second, err := repo.ChargePaymentIdempotent(dbc, "pay-o-pay-1", "o-pay-1", decimal.NewFromInt(999))
	if err != nil {
		t.Fatalf("ChargePaymentIdempotent #2: %v", err)
	}
	if second.WasNew {
		t.Fatalf("ChargePaymentIdempotent #2: want was_new=false, got true")
	}
	if !second.Amount.Equal(amount) {
		t.Fatalf("ChargePaymentIdempotent #2: want amount=%s (unchanged), got %s", amount, second.Amount)
	}
}

func TestOrderRepo_UpdateAddress_LeavesStateAlone(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewOrderRepo(gdb, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	if _, err := repo.UpsertOrderState(dbc, "o-addr-1", "validated", nil); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	addr := json.RawMessage(`{"line1":"789 Oak"}`)
	if err := repo.UpdateAddress(dbc, "o-addr-1", addr); err != nil {
		t.Fatalf("UpdateAddress: %v", err)
	}

	got, err := repo.GetOrder(dbc, "o-addr-1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.State != "validated" {
		t.Fatalf("UpdateAddress: want state unchanged at validated, got %s", got.State)
	}
	if !jsonEqual(got.AddressJSON, addr) {
		t.Fatalf("UpdateAddress: want address=%s got=%s", addr, got.AddressJSON)
	}
}

func TestOrderRepo_InsertEventAndShipment(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewOrderRepo(gdb, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	if _, err := repo.UpsertOrderState(dbc, "o-evt-1", "received", nil); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	if err := repo.InsertEvent(dbc, "o-evt-1", "order_received", json.RawMessage(`{"items":1}`)); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if err := repo.InsertShipment(dbc, "o-evt-1", "prepared", nil); err != nil {
		t.Fatalf("InsertShipment: %v", err)
	}
	if err := repo.InsertShipment(dbc, "o-evt-1", "dispatched", nil); err != nil {
		t.Fatalf("InsertShipment (second row for same order): %v", err)
	}
}
