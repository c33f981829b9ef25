package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/followup/pkg/eventbus"
	"github.com/dukex/followup/pkg/gateway"
)

// GatewayConfig selects and configures the tagging gateway.
type GatewayConfig struct {
	// Type is webhook, event or log.
	Type    string
	URL     string
	Token   string
	Timeout time.Duration
}

// NewGateway builds the gateway named by config.Type. An empty type picks
// webhook when a URL is set and the log dry run otherwise.
func NewGateway(config GatewayConfig, bus eventbus.EventPublisher, logger *slog.Logger) (gateway.Gateway, error) {
	kind := config.Type
	if kind == "" {
		kind = "log"
		if config.URL != "" {
			kind = "webhook"
		}
	}

	switch kind {
	case "webhook":
		if config.URL == "" {
			return nil, errors.New("webhook gateway requires a gateway URL")
		}

		return gateway.NewWebhookGateway(config.URL, config.Token, config.Timeout, logger), nil
	case "event":
		if bus == nil {
			return nil, errors.New("event gateway requires an event bus")
		}

		return gateway.NewEventGateway(bus), nil
	case "log":
		return gateway.NewLogGateway(logger), nil
	default:
		return nil, fmt.Errorf("unsupported gateway type: %s", kind)
	}
}
