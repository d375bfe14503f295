package ordersworker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kvelez/orderflow/internal/config"
	"github.com/kvelez/orderflow/internal/data/repos"
	"github.com/kvelez/orderflow/internal/orderflow"
	"github.com/kvelez/orderflow/internal/platform/logger"
	"github.com/kvelez/orderflow/internal/temporalx"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// Runner hosts OrderWorkflow and the orders-side activities (receive_order,
// validate_order, charge_payment, persist_address, mark_shipped) on the
// orders task queue (C4 + the orders half of C2, C6).
type Runner struct {
	log *logger.Logger

	tc     temporalsdkclient.Client
	db     *gorm.DB
	orders repos.OrderRepo
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, db *gorm.DB, orders repos.OrderRepo) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if db == nil || orders == nil {
		return nil, fmt.Errorf("orders worker missing deps")
	}
	return &Runner{log: log, tc: tc, db: db, orders: orders}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("orders worker not initialized")
	}

	cfg := temporalx.LoadConfig()
	if r.log != nil {
		r.log.Info("Starting orders Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.OrdersTaskQueue)
	}

	if envTrue("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
		baseCtx := ctx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		if err := temporalx.EnsureNamespace(baseCtx, r.tc, cfg.Namespace, r.log); err != nil && r.log != nil {
			r.log.Warn("Temporal namespace ensure failed; worker will retry on start", "namespace", cfg.Namespace, "error", err)
		}
	}

	maxWait := durationSecondsFromEnv("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60)
	backoff := durationMillisFromEnv("TEMPORAL_WORKER_START_BACKOFF_MS", 250)
	backoffMax := durationMillisFromEnv("TEMPORAL_WORKER_START_BACKOFF_MAX_MS", 5000)

	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		w, err := r.newWorker(cfg)
		if err != nil {
			return err
		}
		startErr := w.Start()
		if startErr == nil {
			if ctx != nil {
				go func() {
					<-ctx.Done()
					w.Stop()
				}()
			}
			if r.log != nil {
				r.log.Info("Orders Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.OrdersTaskQueue, "attempts", attempt)
			}
			return nil
		}

		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && envTrue("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
			baseCtx := ctx
			if baseCtx == nil {
				baseCtx = context.Background()
			}
			_ = temporalx.EnsureNamespace(baseCtx, r.tc, cfg.Namespace, r.log)
		}

		if maxWait <= 0 || time.Now().After(deadline) {
			var nfe2 *serviceerror.NamespaceNotFound
			if errors.As(startErr, &nfe2) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}

		if r.log != nil {
			r.log.Warn("Orders Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "task_queue", cfg.OrdersTaskQueue, "attempt", attempt, "error", startErr)
		}

		sleep := clampBackoff(backoff, backoffMax, attempt)
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func (r *Runner) newWorker(cfg temporalx.Config) (worker.Worker, error) {
	concurrency := config.GetEnvAsInt("WORKER_CONCURRENCY", 50, r.log)
	if concurrency < 1 {
		concurrency = 1
	}
	workflowConcurrency := config.GetEnvAsInt("WORKER_WORKFLOW_CONCURRENCY", 20, r.log)
	if workflowConcurrency < 1 {
		workflowConcurrency = 1
	}

	w := worker.New(r.tc, cfg.OrdersTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: workflowConcurrency,
	})

	acts := &orderflow.Activities{
		Log:            r.log,
		Orders:         r.orders,
		FaultInjection: envTrue("ORDER_FAULT_INJECTION", false),
	}

	w.RegisterWorkflowWithOptions(orderflow.OrderWorkflow, workflow.RegisterOptions{Name: orderflow.OrderWorkflowName})
	w.RegisterActivityWithOptions(acts.ReceiveOrder, activity.RegisterOptions{Name: orderflow.ActivityReceiveOrder})
	w.RegisterActivityWithOptions(acts.ValidateOrder, activity.RegisterOptions{Name: orderflow.ActivityValidateOrder})
	w.RegisterActivityWithOptions(acts.ChargePayment, activity.RegisterOptions{Name: orderflow.ActivityChargePayment})
	w.RegisterActivityWithOptions(acts.PersistAddress, activity.RegisterOptions{Name: orderflow.ActivityPersistAddress})
	w.RegisterActivityWithOptions(acts.MarkShipped, activity.RegisterOptions{Name: orderflow.ActivityMarkShipped})
	return w, nil
}

func envTrue(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func durationSecondsFromEnv(key string, defSeconds int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defSeconds) * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(defSeconds) * time.Second
	}
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Second
}

func durationMillisFromEnv(key string, defMillis int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defMillis) * time.Millisecond
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(defMillis) * time.Millisecond
	}
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Millisecond
}

func clampBackoff(base time.Duration, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}
