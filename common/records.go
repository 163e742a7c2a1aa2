package common

import "time"

// DeadLetter is an on-chain event the reconciler could not apply.
type DeadLetter struct {
	ID        string
	Kind      string
	Payload   []byte
	Reason    string
	Attempts  int
	CreatedAt time.Time
}

// DisputeRequest carries what the dispute-closure contract call needs. It is
// handed to an external submitter; the hub never broadcasts transactions.
type DisputeRequest struct {
	Channel        string
	Token          Asset
	Sender         string
	Balance1       Uint128
	Balance2       Uint128
	Nonce          Uint128
	Action         Action
	Actor          string
	HashedSecret   string
	Secret         string
	OwnerSignature string
	OtherSignature string
	// EventTx is the force-close/force-cancel transaction being disputed.
	EventTx   string
	EventKind string
	CreatedAt time.Time
}
