package reconciler

import (
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/common"
)

const smartContractEvent = "SmartContractEvent"

type chainhookPayload struct {
	Apply    []chainhookBlock `json:"apply"`
	Rollback []chainhookBlock `json:"rollback"`
}

type chainhookBlock struct {
	BlockIdentifier struct {
		Index uint64 `json:"index"`
		Hash  string `json:"hash"`
	} `json:"block_identifier"`
	Transactions []chainhookTx `json:"transactions"`
}

type chainhookTx struct {
	TransactionIdentifier struct {
		Hash string `json:"hash"`
	} `json:"transaction_identifier"`
	Metadata struct {
		Position struct {
			Index uint32 `json:"index"`
		} `json:"position"`
		Receipt struct {
			Events []chainhookEvent `json:"events"`
		} `json:"receipt"`
	} `json:"metadata"`
}

type chainhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ContractIdentifier string          `json:"contract_identifier"`
		Topic              string          `json:"topic"`
		Value              json.RawMessage `json:"value"`
	} `json:"data"`
}

type eventValue struct {
	Event string `json:"event"`
}

// Rejected is a stackflow event whose value could not be decoded. It keeps
// the raw value so it can be dead-lettered.
type Rejected struct {
	Kind     Kind
	Seq      common.EventSeq
	Contract string
	TxID     string
	Raw      json.RawMessage
	Reason   string
}

// Delivery is one decoded chainhook payload.
type Delivery struct {
	Events    []*Event
	Rejected  []*Rejected
	Rollbacks int
}

// Only keeps the events and rejected events of one kind.
func (d *Delivery) Only(kind Kind) {
	events := d.Events[:0]
	for _, ev := range d.Events {
		if ev.Kind == kind {
			events = append(events, ev)
		}
	}
	d.Events = events

	rejected := d.Rejected[:0]
	for _, r := range d.Rejected {
		if r.Kind == kind {
			rejected = append(rejected, r)
		}
	}
	d.Rejected = rejected
}

// DecodeChainhook extracts stackflow events from a chainhook delivery in
// chain order. Print events that are not stackflow events are skipped, and a
// stackflow event that does not decode is returned in Rejected instead of
// failing the delivery. Rollback blocks are only counted.
func DecodeChainhook(body []byte) (*Delivery, error) {
	var payload chainhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, xerrors.Errorf("invalid payload structure: %w", err)
	}
	if payload.Apply == nil && payload.Rollback == nil {
		return nil, xerrors.New("invalid payload structure: no apply or rollback")
	}

	d := &Delivery{Rollbacks: len(payload.Rollback)}
	for _, block := range payload.Apply {
		for _, tx := range block.Transactions {
			for i, e := range tx.Metadata.Receipt.Events {
				if e.Type != smartContractEvent || len(e.Data.Value) == 0 {
					continue
				}

				var head eventValue
				if err := json.Unmarshal(e.Data.Value, &head); err != nil {
					continue
				}
				kind, err := ParseKind(head.Event)
				if err != nil {
					continue
				}

				seq := common.EventSeq{
					Block: block.BlockIdentifier.Index,
					Tx:    tx.Metadata.Position.Index,
					Event: uint32(i),
				}

				var ev Event
				if err := json.Unmarshal(e.Data.Value, &ev); err != nil {
					d.Rejected = append(d.Rejected, &Rejected{
						Kind:     kind,
						Seq:      seq,
						Contract: cleanPrincipal(e.Data.ContractIdentifier),
						TxID:     tx.TransactionIdentifier.Hash,
						Raw:      e.Data.Value,
						Reason:   xerrors.Errorf("decode %s: %w", kind, err).Error(),
					})
					continue
				}
				ev.Kind = kind
				ev.Seq = seq
				ev.Contract = e.Data.ContractIdentifier
				ev.TxID = tx.TransactionIdentifier.Hash
				ev.normalize()
				d.Events = append(d.Events, &ev)
			}
		}
	}
	return d, nil
}
