package common

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/xerrors"
)

type State string

const (
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateClosed  State = "closed"
	// StateDisputed is the dispute-pending sub-state entered on a force-close
	// or force-cancel. It is closed for off-chain transitions.
	StateDisputed State = "disputed"
)

// Action values match the stackflow contract constants.
type Action uint8

const (
	ActionClose    Action = 0
	ActionTransfer Action = 1
	ActionDeposit  Action = 2
	ActionWithdraw Action = 3
)

func (a Action) String() string {
	switch a {
	case ActionClose:
		return "close"
	case ActionTransfer:
		return "transfer"
	case ActionDeposit:
		return "deposit"
	case ActionWithdraw:
		return "withdraw"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

func ParseAction(s string) (Action, error) {
	for _, a := range []Action{ActionClose, ActionTransfer, ActionDeposit, ActionWithdraw} {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, xerrors.Errorf("unknown action %q", s)
}

// Slot is the position a principal occupies in a channel record.
type Slot int

const (
	SlotNone Slot = iota
	SlotFirst
	SlotSecond
)

func (s Slot) String() string {
	switch s {
	case SlotFirst:
		return "first"
	case SlotSecond:
		return "second"
	}
	return "none"
}

func (s Slot) Other() Slot {
	switch s {
	case SlotFirst:
		return SlotSecond
	case SlotSecond:
		return SlotFirst
	}
	return SlotNone
}

// Asset is a token contract principal. The empty value is the native asset.
type Asset string

const NativeAsset Asset = ""

func (a Asset) IsNative() bool {
	return a == NativeAsset
}

func (a Asset) KeyPart() string {
	if a.IsNative() {
		return "null"
	}
	return string(a)
}

func (a Asset) MarshalJSON() ([]byte, error) {
	if a.IsNative() {
		return []byte("null"), nil
	}
	return json.Marshal(string(a))
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = NativeAsset
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "null" {
		s = ""
	}
	*a = Asset(s)
	return nil
}

// EventSeq orders on-chain events: block height, then transaction index
// within the block, then event index within the transaction.
type EventSeq struct {
	Block uint64 `json:"block"`
	Tx    uint32 `json:"tx"`
	Event uint32 `json:"event"`
}

func (s EventSeq) After(o EventSeq) bool {
	if s.Block != o.Block {
		return s.Block > o.Block
	}
	if s.Tx != o.Tx {
		return s.Tx > o.Tx
	}
	return s.Event > o.Event
}

func (s EventSeq) IsZero() bool {
	return s == EventSeq{}
}

func (s EventSeq) String() string {
	return fmt.Sprintf("%d/%d/%d", s.Block, s.Tx, s.Event)
}

type Channel struct {
	ID         string   `json:"id"`
	Principal1 string   `json:"principal_1"`
	Principal2 string   `json:"principal_2"`
	Token      Asset    `json:"token"`
	Balance1   Uint128  `json:"balance_1"`
	Balance2   Uint128  `json:"balance_2"`
	Nonce      Uint128  `json:"nonce"`
	ExpiresAt  Uint128  `json:"expires_at"`
	State      State    `json:"state"`
	EventSeq   EventSeq `json:"event_seq"`
	UpdatedAt  int64    `json:"updated_at,omitempty"` // unix milliseconds
}

func (ch *Channel) Clone() *Channel {
	c := *ch
	return &c
}

func (ch *Channel) SlotOf(principal string) Slot {
	switch principal {
	case ch.Principal1:
		return SlotFirst
	case ch.Principal2:
		return SlotSecond
	}
	return SlotNone
}

func (ch *Channel) PrincipalAt(s Slot) string {
	if s == SlotSecond {
		return ch.Principal2
	}
	return ch.Principal1
}

func (ch *Channel) BalanceAt(s Slot) Uint128 {
	if s == SlotSecond {
		return ch.Balance2
	}
	return ch.Balance1
}

// Total reports false when the sum leaves the uint128 range.
func (ch *Channel) Total() (Uint128, bool) {
	return ch.Balance1.Add(ch.Balance2)
}

// SignatureRecord is a mutually signed state kept for audit and disputes.
type SignatureRecord struct {
	Channel        string  `json:"channel"`
	Balance1       Uint128 `json:"balance_1"`
	Balance2       Uint128 `json:"balance_2"`
	Nonce          Uint128 `json:"nonce"`
	Action         Action  `json:"action"`
	Actor          string  `json:"actor,omitempty"`
	HashedSecret   string  `json:"hashed_secret,omitempty"`
	Secret         string  `json:"secret,omitempty"`
	OwnerSignature string  `json:"owner_signature"`
	OtherSignature string  `json:"other_signature"`
	// DependsOn names the other leg of a secret-locked transfer.
	DependsOn string `json:"depends_on_channel,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

func (r *SignatureRecord) BalanceAt(s Slot) Uint128 {
	if s == SlotSecond {
		return r.Balance2
	}
	return r.Balance1
}
