package ws

import "time"

// Inbound event types, agent side.
const (
	typeAgentOnline         = "agentOnline"
	typeAcceptOrder         = "acceptOrder"
	typeRejectOrder         = "rejectOrder"
	typeCancelOrder         = "cancelOrder"
	typeAgentLocationUpdate = "agentLocationUpdate"
	typeRouteUpdate         = "routeUpdate"
	typeMessageUser         = "messageUser"
)

// Inbound event types, customer side.
const (
	typeUserOnline         = "userOnline"
	typeUserLocationUpdate = "userLocationUpdate"
	typeMessageAgent       = "messageAgent"
)

// trackOrder is accepted from either side; the requester receives the
// counterpart's last-known position.
const typeTrackOrder = "trackOrder"

// Outbound event types.
const (
	typeNewOrderOffer         = "newOrderOffer"
	typeOfferWithdrawn        = "offerWithdrawn"
	typeOrderCancelled        = "orderCancelled"
	typeAgentMessage          = "agentMessage"
	typeOrderStatusChanged    = "orderStatusChanged"
	typeOrderCancelledByAgent = "orderCancelledByAgent"
	typePaymentStatusChanged  = "paymentStatusChanged"
	typeLiveLocationUpdate    = "liveLocationUpdate"
	typeUserMessage           = "userMessage"
	typeNoAgentAvailable      = "noAgentAvailable"
	typeAcceptResult          = "acceptResult"
	typeRequestError          = "requestError"
)

// inboundEvent is the union of every inbound payload. Fields irrelevant to an
// event type are left at their zero value by the decoder.
type inboundEvent struct {
	Type       string  `json:"type"`
	OrderID    string  `json:"orderId,omitempty"`
	Generation uint64  `json:"generation,omitempty"`
	Latitude   float64 `json:"lat,omitempty"`
	Longitude  float64 `json:"lng,omitempty"`
	Route      *string `json:"route"`
	Text       string  `json:"text,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

type geoPointPayload struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

type agentPayload struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type newOrderOfferEvent struct {
	Type             string          `json:"type"`
	OrderID          string          `json:"orderId"`
	CustomerID       string          `json:"customerId"`
	ShippingLocation geoPointPayload `json:"shippingLocation"`
	Zone             string          `json:"zone"`
	Generation       uint64          `json:"generation"`
	ExpiresAt        time.Time       `json:"expiresAt"`
}

type orderRefEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

type locationEvent struct {
	Type      string  `json:"type"`
	OrderID   string  `json:"orderId"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

type chatEvent struct {
	Type    string    `json:"type"`
	OrderID string    `json:"orderId"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sentAt"`
}

type orderStatusChangedEvent struct {
	Type    string        `json:"type"`
	OrderID string        `json:"orderId"`
	Status  string        `json:"status"`
	Agent   *agentPayload `json:"agent,omitempty"`
}

type orderCancelledByAgentEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

type paymentStatusChangedEvent struct {
	Type          string `json:"type"`
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
}

type routeUpdateEvent struct {
	Type    string  `json:"type"`
	OrderID string  `json:"orderId"`
	Route   *string `json:"route"`
}

// Accept outcomes reported back to the claiming agent. Every accept resolves
// synchronously to exactly one of these.
const (
	outcomeWon      = "won"
	outcomeTooLate  = "tooLate"
	outcomeInvalid  = "invalid"
	outcomeNotFound = "notFound"
)

type acceptResultEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
	Outcome string `json:"outcome"`
}

type requestErrorEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
