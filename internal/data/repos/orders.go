package repos

import (
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/kvelez/orderflow/internal/domain"
	"github.com/kvelez/orderflow/internal/pkg/dbctx"
	"github.com/kvelez/orderflow/internal/platform/logger"
)

// ChargeResult is the outcome of an idempotent payment charge.
type ChargeResult struct {
	Status string
	Amount decimal.Decimal
	WasNew bool
}

type OrderRepo interface {
	UpsertOrderState(dbc dbctx.Context, orderID, state string, address json.RawMessage) (*types.Order, error)
	InsertEvent(dbc dbctx.Context, orderID, eventType string, payload json.RawMessage) error
	UpdateAddress(dbc dbctx.Context, orderID string, address json.RawMessage) error
	ChargePaymentIdempotent(dbc dbctx.Context, paymentID, orderID string, amount decimal.Decimal) (ChargeResult, error)
	InsertShipment(dbc dbctx.Context, orderID, status string, payload json.RawMessage) error
	GetOrder(dbc dbctx.Context, orderID string) (*types.Order, error)
}

type orderRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrderRepo(db *gorm.DB, baseLog *logger.Logger) OrderRepo {
	return &orderRepo{
		db:  db,
		log: baseLog.With("repo", "OrderRepo"),
	}
}

func (r *orderRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func datatypesJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	return datatypes.JSON(raw)
}

// UpsertOrderState inserts a new order or advances its state; address_json is
// only ever replaced by a non-nil incoming value (COALESCE semantics) so an
// explicit nil never clears a previously stored address.
func (r *orderRepo) UpsertOrderState(dbc dbctx.Context, orderID, state string, address json.RawMessage) (*types.Order, error) {
	transaction := r.tx(dbc)

	err := transaction.WithContext(dbc.Ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"state":        state,
			"address_json": clause.Expr{SQL: "COALESCE(EXCLUDED.address_json, orders.address_json)"},
			"updated_at":   time.Now().UTC(),
		}),
	}).Create(&types.Order{
		ID:          orderID,
		State:       state,
		AddressJSON: datatypesJSON(address),
	}).Error
	if err != nil {
		return nil, err
	}

	var out types.Order
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", orderID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *orderRepo) InsertEvent(dbc dbctx.Context, orderID, eventType string, payload json.RawMessage) error {
	transaction := r.tx(dbc)
	row := &types.Event{
		OrderID:     orderID,
		Type:        eventType,
		PayloadJSON: datatypesJSON(payload),
	}
	return transaction.WithContext(dbc.Ctx).Create(row).Error
}

// UpdateAddress replaces address_json only; it never touches state, and is
// safe to run concurrently with state-updating activities because it is a
// single row-scoped UPDATE.
func (r *orderRepo) UpdateAddress(dbc dbctx.Context, orderID string, address json.RawMessage) error {
	transaction := r.tx(dbc)
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"address_json": datatypesJSON(address),
			"updated_at":   time.Now().UTC(),
		}).Error
}

// ChargePaymentIdempotent locks the payments row for payment_id (if any) for
// update inside a single transaction. Two concurrent retries with the same
// payment_id serialize on this lock; the loser observes status=charged and
// the amount from the winner, never double-charging.
func (r *orderRepo) ChargePaymentIdempotent(dbc dbctx.Context, paymentID, orderID string, amount decimal.Decimal) (ChargeResult, error) {
	transaction := r.tx(dbc)
	var result ChargeResult

	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var existing types.Payment
		findErr := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("payment_id = ?", paymentID).
			First(&existing).Error

		if findErr == nil {
			if existing.Status == types.PaymentStatusCharged {
				result = ChargeResult{Status: existing.Status, Amount: existing.Amount, WasNew: false}
				return nil
			}
			existing.Status = types.PaymentStatusCharged
			existing.Amount = amount
			existing.UpdatedAt = time.Now().UTC()
			if err := txx.Save(&existing).Error; err != nil {
				return err
			}
			result = ChargeResult{Status: types.PaymentStatusCharged, Amount: amount, WasNew: true}
			return nil
		}

		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		row := &types.Payment{
			PaymentID: paymentID,
			OrderID:   orderID,
			Status:    types.PaymentStatusCharged,
			Amount:    amount,
		}
		// The insert runs under a savepoint so a failed insert leaves the outer
		// transaction usable for the re-read below.
		if err := txx.Transaction(func(ins *gorm.DB) error { return ins.Create(row).Error }); err != nil {
			// Another retry may have won the race between our lookup and insert;
			// fall back to re-reading under lock rather than surfacing a
			// constraint violation for what is really a successful idempotent hit.
			var raced types.Payment
			if lookErr := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("payment_id = ?", paymentID).
				First(&raced).Error; lookErr == nil {
				result = ChargeResult{Status: raced.Status, Amount: raced.Amount, WasNew: false}
				return nil
			}
			return err
		}
		result = ChargeResult{Status: types.PaymentStatusCharged, Amount: amount, WasNew: true}
		return nil
	})
	if err != nil {
		return ChargeResult{}, err
	}
	return result, nil
}

func (r *orderRepo) InsertShipment(dbc dbctx.Context, orderID, status string, payload json.RawMessage) error {
	transaction := r.tx(dbc)
	row := &types.Shipment{
		OrderID:     orderID,
		Status:      status,
		PayloadJSON: datatypesJSON(payload),
	}
	return transaction.WithContext(dbc.Ctx).Create(row).Error
}

func (r *orderRepo) GetOrder(dbc dbctx.Context, orderID string) (*types.Order, error) {
	transaction := r.tx(dbc)
	var out types.Order
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", orderID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FlakyCall reproduces the reference implementation's fault-injection test
// harness: roughly a third of calls fail, a third sleep long enough to force
// a timeout, and the rest succeed. Gated behind ORDER_FAULT_INJECTION so the
// activity retry policy in internal/orderflow has something to chew on in
// development without being mandatory in every deployment.
func FlakyCall(enabled bool) error {
	if !enabled {
		return nil
	}
	switch rand.Intn(3) {
	case 0:
		return errors.New("injected failure")
	case 1:
		time.Sleep(300 * time.Second)
		return nil
	default:
		return nil
	}
}
