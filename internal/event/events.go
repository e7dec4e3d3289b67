package event

import "time"

// Type defines the type of event.
type Type uint16

const (
	EvPaymentGenerated Type = iota + 1
	EvGenerateRejected
)

func (t Type) String() string {
	switch t {
	case EvPaymentGenerated:
		return "GENERATED"
	case EvGenerateRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Event is the interface for all history events.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"` // Unix Micro
}

func (e BaseEvent) GetSeq() uint64 { return e.Seq }
func (e BaseEvent) GetTs() int64   { return e.Ts }

// Time returns Ts as a time.Time.
func (e BaseEvent) Time() time.Time { return time.UnixMicro(e.Ts) }

// PaymentGeneratedEvent records one successful generate action.
type PaymentGeneratedEvent struct {
	BaseEvent
	Address    string `json:"address"`
	FiatAmount string `json:"fiat_amount"`
	Currency   string `json:"currency"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	Rate       string `json:"rate"`
	Provenance string `json:"provenance"`
	URI        string `json:"uri"`
}

func (e PaymentGeneratedEvent) GetType() Type { return EvPaymentGenerated }

// GenerateRejectedEvent records a generate action that produced no URI.
type GenerateRejectedEvent struct {
	BaseEvent
	Reason   string `json:"reason"` // invalid_address, invalid_amount, unsupported_pair
	Currency string `json:"currency,omitempty"`
	Asset    string `json:"asset,omitempty"`
	Detail   string `json:"detail"`
}

func (e GenerateRejectedEvent) GetType() Type { return EvGenerateRejected }
