package temporalx

import (
	"os"
	"strings"
)

type Config struct {
	Address   string
	Namespace string

	// OrdersTaskQueue carries OrderWorkflow + the orders-side activities.
	OrdersTaskQueue string
	// ShippingTaskQueue carries ShippingWorkflow + the shipping-side activities.
	ShippingTaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string
}

func LoadConfig() Config {
	return Config{
		Address:   strings.TrimSpace(os.Getenv("TEMPORAL_ADDRESS")),
		Namespace: stringsOr(strings.TrimSpace(os.Getenv("TEMPORAL_NAMESPACE")), "default"),

		OrdersTaskQueue:   stringsOr(strings.TrimSpace(os.Getenv("ORDERS_TASK_QUEUE")), "orders-tq"),
		ShippingTaskQueue: stringsOr(strings.TrimSpace(os.Getenv("SHIPPING_TASK_QUEUE")), "shipping-tq"),

		ClientCertPath: strings.TrimSpace(os.Getenv("TEMPORAL_CLIENT_CERT_PATH")),
		ClientKeyPath:  strings.TrimSpace(os.Getenv("TEMPORAL_CLIENT_KEY_PATH")),
		ClientCAPath:   strings.TrimSpace(os.Getenv("TEMPORAL_CLIENT_CA_PATH")),
	}
}

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
