package model

import "encoding/json"

type MessageType string

const (
	MessageTypeHello     MessageType = "agent_hello"
	MessageTypePing      MessageType = "ping"
	MessageTypePong      MessageType = "pong"
	MessageTypeNewOrder  MessageType = "print_order"
	MessageTypePrintDone MessageType = "print_done"
)

// CapabilityPrint is the only capability this agent declares.
const CapabilityPrint = "print"

// --- WebSocket Messages ---

// Inbound is any message received from the upstream order service.
type Inbound struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Order     json.RawMessage `json:"order,omitempty"` // Keep raw to parse leniently
}

// UnmarshalJSON accepts requestId as a string or a number.
func (m *Inbound) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      MessageType     `json:"type"`
		RequestID json.RawMessage `json:"requestId"`
		Order     json.RawMessage `json:"order"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Inbound{Type: raw.Type, RequestID: lenientString(raw.RequestID), Order: raw.Order}
	return nil
}

type Hello struct {
	Type         MessageType `json:"type"`
	RestaurantID string      `json:"restaurantId"`
	AgentName    string      `json:"agentName"`
	Capabilities []string    `json:"capabilities"`
}

// PrintDone acknowledges one print_order, correlated by RequestID.
// Simulated is only sent on success, Error only on failure.
type PrintDone struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId"`
	OrderID   string      `json:"orderId"`
	Success   bool        `json:"success"`
	Simulated *bool       `json:"simulated,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

func NewHello(restaurantID, agentName string) Hello {
	return Hello{
		Type:         MessageTypeHello,
		RestaurantID: restaurantID,
		AgentName:    agentName,
		Capabilities: []string{CapabilityPrint},
	}
}

// NewPrintDone builds the acknowledgement for a finished job.
func NewPrintDone(requestID, orderID string, result PrintResult, err error) PrintDone {
	ack := PrintDone{
		Type:      MessageTypePrintDone,
		RequestID: requestID,
		OrderID:   orderID,
	}
	if err != nil {
		ack.Error = err.Error()
		return ack
	}
	simulated := result.Simulated
	ack.Success = true
	ack.Simulated = &simulated
	return ack
}
