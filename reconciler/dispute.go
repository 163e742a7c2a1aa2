package reconciler

import (
	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/dao"
)

// checkDispute decides whether a force-close or force-cancel by the
// counterparty used a state older than one the owner holds signatures for,
// and in which the owner was better off.
func (r *Reconciler) checkDispute(tx dao.Txn, ch *common.Channel, ev *Event, state *ChannelState) (*common.DisputeRequest, error) {
	if ev.Sender == r.cfg.Owner {
		return nil, nil
	}
	owner := ch.SlotOf(r.cfg.Owner)
	if owner == common.SlotNone {
		return nil, nil
	}

	rec, err := tx.Signature(ch.ID)
	if err != nil || rec == nil {
		return nil, err
	}

	onChain := state.Balance1
	if owner == common.SlotSecond {
		onChain = state.Balance2
	}
	if rec.Nonce.Cmp(state.Nonce) <= 0 || rec.BalanceAt(owner).Cmp(onChain) <= 0 {
		return nil, nil
	}

	eventTx := ev.TxID
	if eventTx == "" {
		eventTx = ev.Seq.String()
	}
	return &common.DisputeRequest{
		Channel:        ch.ID,
		Token:          ch.Token,
		Sender:         ev.Sender,
		Balance1:       rec.Balance1,
		Balance2:       rec.Balance2,
		Nonce:          rec.Nonce,
		Action:         rec.Action,
		Actor:          rec.Actor,
		HashedSecret:   rec.HashedSecret,
		Secret:         rec.Secret,
		OwnerSignature: rec.OwnerSignature,
		OtherSignature: rec.OtherSignature,
		EventTx:        eventTx,
		EventKind:      string(ev.Kind),
		CreatedAt:      r.now(),
	}, nil
}
