package tools

import (
	"fmt"
	"strings"

	"github.com/aurelisajuan/CourtVision/domain/chat"
	"github.com/aurelisajuan/CourtVision/domain/tools"
)

// PaymentLinkSchema describes the natively advertised payment-link tool.
func PaymentLinkSchema() chat.ToolSchema {
	return chat.ToolSchema{
		Name:        "get_payment_link",
		Description: "Get a payment link for an order",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"order_id": map[string]any{"type": "string"},
			},
			"required": []any{"order_id"},
		},
	}
}

// NewPaymentLinkHandler builds the payment-link URL for an order. A missing
// or non-string order_id falls back to "unknown" rather than failing the call.
func NewPaymentLinkHandler(baseURL string) tools.Handler {
	base := strings.TrimRight(baseURL, "/")
	return tools.HandlerFunc(func(args map[string]any) (any, error) {
		orderID := "unknown"
		if v, ok := args["order_id"].(string); ok && v != "" {
			orderID = v
		}
		return map[string]string{"url": fmt.Sprintf("%s/%s", base, orderID)}, nil
	})
}

// NewProcessOrderHandler acknowledges an order. Only reachable through the
// custom-tool endpoint; never advertised to the model.
func NewProcessOrderHandler() tools.Handler {
	return tools.HandlerFunc(func(args map[string]any) (any, error) {
		return "Order processed successfully!", nil
	})
}

// NewDefaultRegistry wires the natively supported tools.
func NewDefaultRegistry(paymentBaseURL string, cacheSize int) (*Registry, error) {
	registry, err := NewRegistry(cacheSize)
	if err != nil {
		return nil, err
	}
	registry.Register(PaymentLinkSchema(), NewPaymentLinkHandler(paymentBaseURL))
	registry.RegisterLocal("processOrder", NewProcessOrderHandler())
	return registry, nil
}
