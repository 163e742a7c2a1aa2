package hub

import "github.com/rqzrqh/stackflow_hub/common"

// Leg is one channel's proposed state and the counterparty's signature.
type Leg struct {
	Principal1 string         `json:"principal-1"`
	Principal2 string         `json:"principal-2"`
	Balance1   common.Uint128 `json:"balance-1"`
	Balance2   common.Uint128 `json:"balance-2"`
	Nonce      common.Uint128 `json:"nonce"`
	Signature  string         `json:"signature"`
}

type StateUpdate struct {
	Token common.Asset `json:"token"`
	Leg
}

type DepositRequest struct {
	StateUpdate
	Amount common.Uint128 `json:"amount"`
}

type WithdrawRequest struct {
	StateUpdate
	Amount common.Uint128 `json:"amount"`
}

// TransferRequest moves Amount from the counterparty of the first leg to
// the owner. With Recipient set the owner forwards Amount to the recipient
// in a second channel, locked behind HashedSecret.
type TransferRequest struct {
	StateUpdate
	Amount       common.Uint128 `json:"amount"`
	HashedSecret string         `json:"hashed-secret,omitempty"`
	Recipient    *Leg           `json:"recipient,omitempty"`
}

type CloseRequest struct {
	StateUpdate
}

type RevealRequest struct {
	Token      common.Asset `json:"token"`
	Principal1 string       `json:"principal-1"`
	Principal2 string       `json:"principal-2"`
	Secret     string       `json:"secret"`
}

type Result struct {
	Signature          string       `json:"signature"`
	RecipientSignature string       `json:"recipient-signature,omitempty"`
	State              common.State `json:"state,omitempty"`
}
