package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/kvelez/orderflow/internal/httpapi/response"
	"github.com/kvelez/orderflow/internal/orderflow"
	pkgerrors "github.com/kvelez/orderflow/internal/pkg/errors"
	"github.com/kvelez/orderflow/internal/platform/logger"
	"github.com/kvelez/orderflow/internal/temporalx"
)

// OrderHandler is the admission interface (C5): it starts OrderWorkflow,
// forwards the approve/cancel/address signals, and proxies the status
// query. It never touches persistence directly.
type OrderHandler struct {
	Log    *logger.Logger
	Client temporalsdkclient.Client
}

func NewOrderHandler(log *logger.Logger, tc temporalsdkclient.Client) *OrderHandler {
	return &OrderHandler{Log: log, Client: tc}
}

type startOrderRequest struct {
	PaymentID string               `json:"payment_id"`
	Address   json.RawMessage      `json:"address,omitempty"`
	Items     []orderflow.Item     `json:"items,omitempty"`
}

type startOrderResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

func (h *OrderHandler) Start(c *gin.Context) {
	orderID := c.Param("id")
	var req startOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	cfg := temporalx.LoadConfig()
	input := orderflow.OrderStartInput{
		OrderID:           orderID,
		PaymentID:         req.PaymentID,
		Address:           req.Address,
		Items:             req.Items,
		ShippingTaskQueue: cfg.ShippingTaskQueue,
	}

	run, err := h.Client.ExecuteWorkflow(c.Request.Context(), temporalsdkclient.StartWorkflowOptions{
		ID:                 orderflow.OrderWorkflowID(orderID),
		TaskQueue:          cfg.OrdersTaskQueue,
		WorkflowRunTimeout: orderflow.WorkflowRunTimeout,
	}, orderflow.OrderWorkflowName, input)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "workflow_start_failed", err)
		return
	}

	response.RespondOK(c, startOrderResponse{WorkflowID: run.GetID(), RunID: run.GetRunID()})
}

func (h *OrderHandler) SignalApprove(c *gin.Context) {
	orderID := c.Param("id")
	if err := h.Client.SignalWorkflow(c.Request.Context(), orderflow.OrderWorkflowID(orderID), "", orderflow.SignalApprove, nil); err != nil {
		h.respondSignalError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *OrderHandler) SignalCancel(c *gin.Context) {
	orderID := c.Param("id")
	var req cancelOrderRequest
	// Body is optional: an empty/absent body means "no reason given".
	_ = c.ShouldBindJSON(&req)

	if err := h.Client.SignalWorkflow(c.Request.Context(), orderflow.OrderWorkflowID(orderID), "", orderflow.SignalCancelOrder, req.Reason); err != nil {
		h.respondSignalError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

type updateAddressRequest struct {
	Address json.RawMessage `json:"address"`
}

func (h *OrderHandler) SignalAddress(c *gin.Context) {
	orderID := c.Param("id")
	var req updateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	if err := h.Client.SignalWorkflow(c.Request.Context(), orderflow.OrderWorkflowID(orderID), "", orderflow.SignalUpdateAddress, req.Address); err != nil {
		h.respondSignalError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func (h *OrderHandler) Status(c *gin.Context) {
	orderID := c.Param("id")
	val, err := h.Client.QueryWorkflow(c.Request.Context(), orderflow.OrderWorkflowID(orderID), "", orderflow.QueryStatus)
	if err != nil {
		h.respondSignalError(c, err)
		return
	}

	var status orderflow.StatusResult
	if err := val.Get(&status); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "status_decode_failed", err)
		return
	}
	response.RespondOK(c, status)
}

func (h *OrderHandler) respondSignalError(c *gin.Context, err error) {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		response.RespondError(c, http.StatusNotFound, "order_not_found", pkgerrors.ErrNotFound)
		return
	}
	response.RespondError(c, http.StatusInternalServerError, "workflow_call_failed", err)
}
