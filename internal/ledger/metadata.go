package ledger

import (
	"encoding/json"

	"github.com/google/uuid"

	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
)

// Metadata kinds. Every ledger entry's metadata column holds an
// envelope {"kind": ..., "data": {...}} so consumers can decode without
// guessing at shapes.
const (
	MetadataKindPurchase   = "purchase"
	MetadataKindAdjustment = "adjustment"
	MetadataKindGateway    = "gateway_purchase"
)

// PurchaseMetadata annotates a balance-funded ticket purchase.
type PurchaseMetadata struct {
	RaffleID uuid.UUID `json:"raffle_id"`
	Quantity int       `json:"quantity"`
}

// AdjustmentMetadata annotates an operator or system balance change.
type AdjustmentMetadata struct {
	Note    string     `json:"note,omitempty"`
	ActorID *uuid.UUID `json:"actor_id,omitempty"`
}

// GatewayMetadata annotates a purchase funded through an external
// payment provider. Quantity is carried here because allocation only
// happens once the provider confirms.
type GatewayMetadata struct {
	Provider  string    `json:"provider"`
	Reference string    `json:"reference"`
	RaffleID  uuid.UUID `json:"raffle_id"`
	Quantity  int       `json:"quantity"`
}

type metadataEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeMetadata wraps a typed metadata value in its tagged envelope.
func EncodeMetadata(value any) (json.RawMessage, error) {
	var kind string
	switch value.(type) {
	case PurchaseMetadata, *PurchaseMetadata:
		kind = MetadataKindPurchase
	case AdjustmentMetadata, *AdjustmentMetadata:
		kind = MetadataKindAdjustment
	case GatewayMetadata, *GatewayMetadata:
		kind = MetadataKindGateway
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unsupported metadata type")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal metadata")
	}
	raw, err := json.Marshal(metadataEnvelope{Kind: kind, Data: data})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal metadata envelope")
	}
	return raw, nil
}

// DecodeMetadata unwraps a metadata envelope into its typed value.
// Returns nil for empty metadata.
func DecodeMetadata(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env metadataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unmarshal metadata envelope")
	}
	switch env.Kind {
	case MetadataKindPurchase:
		var m PurchaseMetadata
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unmarshal purchase metadata")
		}
		return m, nil
	case MetadataKindAdjustment:
		var m AdjustmentMetadata
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unmarshal adjustment metadata")
		}
		return m, nil
	case MetadataKindGateway:
		var m GatewayMetadata
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unmarshal gateway metadata")
		}
		return m, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unknown metadata kind").
			WithDetails(map[string]any{"kind": env.Kind})
	}
}
