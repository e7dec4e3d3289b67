package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"xrpl_qr/internal/event"
)

// KeyLastAddress remembers the most recent destination address of the CLI.
const KeyLastAddress = "last_address"

// AddressKey is the remembered-address key of one browser session.
func AddressKey(sessionID string) string {
	return KeyLastAddress + ":" + sessionID
}

// PreferenceStore persists small user preferences.
type PreferenceStore interface {
	// Get returns ok=false when key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// HistoryLog is the append-only log of generate actions.
type HistoryLog interface {
	Append(ctx context.Context, ev event.Event) error
	LastSeq(ctx context.Context) (uint64, error)
	// Load returns events with seq >= fromSeq in ascending order; limit <= 0 means all.
	Load(ctx context.Context, fromSeq uint64, limit int) ([]event.Event, error)
}

// Store is what the application opens at startup.
type Store interface {
	PreferenceStore
	HistoryLog
	Close() error
}

// Open opens the store for driver ("sqlite" or "bolt") at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(path)
	case "bolt":
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func decodeEvent(evType event.Type, payload []byte) (event.Event, error) {
	switch evType {
	case event.EvPaymentGenerated:
		var ev event.PaymentGeneratedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case event.EvGenerateRejected:
		var ev event.GenerateRejectedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %d", evType)
	}
}
