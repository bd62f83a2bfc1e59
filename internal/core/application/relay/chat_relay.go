package relay

import (
	"log/slog"
	"strings"
	"time"

	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/ports"
	"dispatch/internal/pkg/errs"
)

// ChatRelay forwards chat messages between the customer and the assigned
// agent while the order is live. Delivery is best-effort with no persistence
// or receipts; a message to an offline party is silently dropped by the
// notifier.
type ChatRelay struct {
	orders   OrderDirectory
	notifier ports.Notifier
	logger   *slog.Logger
}

// NewChatRelay creates a chat relay.
func NewChatRelay(orders OrderDirectory, notifier ports.Notifier, logger *slog.Logger) *ChatRelay {
	return &ChatRelay{
		orders:   orders,
		notifier: notifier,
		logger:   logger.With("component", "chat-relay"),
	}
}

// MessageToAgent forwards a customer message to the order's assigned agent.
func (r *ChatRelay) MessageToAgent(customerID, orderID kernel.UUID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errs.NewValueIsRequiredError("text")
	}

	info, err := r.orders.Snapshot(orderID)
	if err != nil {
		return err
	}
	if !info.CustomerID.IsEqual(customerID) {
		return errs.NewValueIsInvalidError("customerID")
	}
	if !info.Status.IsLive() || info.AgentID == nil {
		return nil
	}

	r.notifier.NotifyAgentMessage(*info.AgentID, orderID, text, time.Now())
	return nil
}

// MessageToUser forwards an agent message to the order's customer. Only the
// assigned agent can message the customer.
func (r *ChatRelay) MessageToUser(agentID, orderID kernel.UUID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errs.NewValueIsRequiredError("text")
	}

	info, err := r.orders.Snapshot(orderID)
	if err != nil {
		return err
	}
	if !info.Status.IsLive() || info.AgentID == nil || !info.AgentID.IsEqual(agentID) {
		return nil
	}

	r.notifier.NotifyUserMessage(info.CustomerID, orderID, text, time.Now())
	return nil
}
