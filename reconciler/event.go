package reconciler

import (
	"strings"

	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/common"
)

type Kind string

const (
	KindFundChannel    Kind = "fund-channel"
	KindCloseChannel   Kind = "close-channel"
	KindForceCancel    Kind = "force-cancel"
	KindForceClose     Kind = "force-close"
	KindFinalize       Kind = "finalize"
	KindDeposit        Kind = "deposit"
	KindWithdraw       Kind = "withdraw"
	KindDisputeClosure Kind = "dispute-closure"
)

var kinds = map[Kind]bool{
	KindFundChannel:    true,
	KindCloseChannel:   true,
	KindForceCancel:    true,
	KindForceClose:     true,
	KindFinalize:       true,
	KindDeposit:        true,
	KindWithdraw:       true,
	KindDisputeClosure: true,
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !kinds[k] {
		return "", xerrors.Errorf("unknown event %q", s)
	}
	return k, nil
}

func (k Kind) isForce() bool {
	return k == KindForceCancel || k == KindForceClose
}

// state is where the channel ends up after the event.
func (k Kind) state() common.State {
	switch k {
	case KindCloseChannel:
		return common.StateClosing
	case KindFinalize, KindDisputeClosure:
		return common.StateClosed
	case KindForceCancel, KindForceClose:
		return common.StateDisputed
	}
	return common.StateOpen
}

type ChannelKey struct {
	Principal1 string       `json:"principal-1"`
	Principal2 string       `json:"principal-2"`
	Token      common.Asset `json:"token"`
}

type ChannelState struct {
	Balance1  common.Uint128 `json:"balance-1"`
	Balance2  common.Uint128 `json:"balance-2"`
	Nonce     common.Uint128 `json:"nonce"`
	ExpiresAt common.Uint128 `json:"expires-at"`
}

// Event is a stackflow contract print event with its position on chain.
type Event struct {
	Kind           Kind            `json:"event"`
	Seq            common.EventSeq `json:"seq"`
	Contract       string          `json:"contract,omitempty"`
	TxID           string          `json:"txid,omitempty"`
	ChannelKey     ChannelKey      `json:"channel-key"`
	Channel        ChannelState    `json:"channel"`
	Sender         string          `json:"sender,omitempty"`
	MySignature    string          `json:"my-signature,omitempty"`
	TheirSignature string          `json:"their-signature,omitempty"`
}

func cleanPrincipal(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "'")
}

func (ev *Event) normalize() {
	ev.ChannelKey.Principal1 = cleanPrincipal(ev.ChannelKey.Principal1)
	ev.ChannelKey.Principal2 = cleanPrincipal(ev.ChannelKey.Principal2)
	tok := cleanPrincipal(string(ev.ChannelKey.Token))
	if tok == "none" {
		tok = ""
	}
	ev.ChannelKey.Token = common.Asset(tok)
	ev.Sender = cleanPrincipal(ev.Sender)
	ev.Contract = cleanPrincipal(ev.Contract)
}
