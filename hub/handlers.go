package hub

import (
	"bytes"
	"context"
	"crypto/sha256"

	"github.com/rqzrqh/stackflow_hub/channel"
	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/dao"
	"github.com/rqzrqh/stackflow_hub/signature"
)

// Deposit countersigns the counterparty adding Amount to its own balance.
func (h *Hub) Deposit(ctx context.Context, req *DepositRequest) (*Result, error) {
	l, err := h.parseLeg(req.Token, &req.Leg)
	if err != nil {
		return nil, err
	}
	actor := l.slotOf(l.counterparty)

	res, err := h.execute(ctx, []*step{{
		leg:    l,
		action: common.ActionDeposit,
		actor:  l.counterparty,
		validate: func(ch *common.Channel, p *channel.Proposal) error {
			return channel.ValidateDeposit(ch, p, actor, req.Amount)
		},
	}})
	if err != nil {
		return nil, err
	}

	log.Infow("deposit accepted", "channel", l.key, "amount", req.Amount.String(), "nonce", l.proposal.Nonce.String())
	return &Result{Signature: res[0].record.OwnerSignature}, nil
}

// Withdraw countersigns the counterparty removing Amount from its balance.
func (h *Hub) Withdraw(ctx context.Context, req *WithdrawRequest) (*Result, error) {
	l, err := h.parseLeg(req.Token, &req.Leg)
	if err != nil {
		return nil, err
	}
	actor := l.slotOf(l.counterparty)

	res, err := h.execute(ctx, []*step{{
		leg:    l,
		action: common.ActionWithdraw,
		actor:  l.counterparty,
		validate: func(ch *common.Channel, p *channel.Proposal) error {
			return channel.ValidateWithdraw(ch, p, actor, req.Amount)
		},
	}})
	if err != nil {
		return nil, err
	}

	log.Infow("withdraw accepted", "channel", l.key, "amount", req.Amount.String(), "nonce", l.proposal.Nonce.String())
	return &Result{Signature: res[0].record.OwnerSignature}, nil
}

// Transfer countersigns a payment from the counterparty to the owner, and
// optionally the owner forwarding it to a recipient in a second channel.
func (h *Hub) Transfer(ctx context.Context, req *TransferRequest) (*Result, error) {
	sender, err := h.parseLeg(req.Token, &req.Leg)
	if err != nil {
		return nil, err
	}

	var hashedSecret []byte
	if req.HashedSecret != "" {
		hashedSecret, err = signature.DecodeHex(req.HashedSecret)
		if err != nil || len(hashedSecret) != signature.HashedSecretSize {
			return nil, badRequest("hashed-secret", "must be %d hex encoded bytes", signature.HashedSecretSize)
		}
	}

	from := sender.slotOf(sender.counterparty)
	first := &step{
		leg:          sender,
		action:       common.ActionTransfer,
		actor:        sender.counterparty,
		hashedSecret: hashedSecret,
		validate: func(ch *common.Channel, p *channel.Proposal) error {
			return channel.ValidateTransfer(ch, p, from, req.Amount)
		},
	}

	if req.Recipient == nil {
		if hashedSecret != nil {
			return nil, badRequest("hashed-secret", "cannot require a secret without a recipient")
		}
		res, err := h.execute(ctx, []*step{first})
		if err != nil {
			return nil, err
		}
		log.Infow("transfer accepted", "channel", sender.key, "amount", req.Amount.String(), "nonce", sender.proposal.Nonce.String())
		return &Result{Signature: res[0].record.OwnerSignature}, nil
	}

	if hashedSecret == nil {
		return nil, badRequest("hashed-secret", "required when forwarding to a recipient")
	}
	recipient, err := h.parseLeg(req.Token, req.Recipient)
	if err != nil {
		return nil, err
	}
	if recipient.key == sender.key {
		return nil, badRequest("recipient", "recipient channel is the sender channel")
	}

	owner := recipient.slotOf(h.cfg.Owner)
	second := &step{
		leg:          recipient,
		action:       common.ActionTransfer,
		actor:        h.cfg.Owner,
		hashedSecret: hashedSecret,
		pending:      true,
		dependsOn:    sender.key,
		validate: func(ch *common.Channel, p *channel.Proposal) error {
			return channel.ValidateTransfer(ch, p, owner, req.Amount)
		},
	}
	first.pending = true
	first.dependsOn = recipient.key

	res, err := h.execute(ctx, []*step{first, second})
	if err != nil {
		return nil, err
	}

	log.Infow("forwarded transfer accepted", "from", sender.key, "to", recipient.key, "amount", req.Amount.String())
	return &Result{
		Signature:          res[0].record.OwnerSignature,
		RecipientSignature: res[1].record.OwnerSignature,
	}, nil
}

// Close countersigns a cooperative close at the balances on record.
func (h *Hub) Close(ctx context.Context, req *CloseRequest) (*Result, error) {
	l, err := h.parseLeg(req.Token, &req.Leg)
	if err != nil {
		return nil, err
	}

	res, err := h.execute(ctx, []*step{{
		leg:    l,
		action: common.ActionClose,
		validate: func(ch *common.Channel, p *channel.Proposal) error {
			return channel.ValidateClose(ch, p)
		},
	}})
	if err != nil {
		return nil, err
	}

	log.Infow("close accepted", "channel", l.key, "nonce", l.proposal.Nonce.String())
	return &Result{Signature: res[0].record.OwnerSignature, State: res[0].channel.State}, nil
}

// Reveal settles a secret-locked transfer: once the preimage is known the
// pending records of both legs become the channels' signature records.
func (h *Hub) Reveal(ctx context.Context, req *RevealRequest) error {
	if err := h.parseToken(req.Token); err != nil {
		return err
	}
	secret, err := signature.DecodeHex(req.Secret)
	if err != nil || len(secret) == 0 {
		return badRequest("secret", "must be hex encoded")
	}
	hashed := sha256.Sum256(secret)

	key := h.store.Key(req.Principal1, req.Principal2, req.Token)
	pending, err := h.store.Pending(ctx, key)
	if err != nil {
		return err
	}
	if pending == nil {
		return ErrNoPending
	}

	keys := []string{key}
	if pending.DependsOn != "" {
		keys = append(keys, pending.DependsOn)
	}

	type revealed struct {
		channel *common.Channel
		record  *common.SignatureRecord
	}
	var out []revealed

	for attempt := 0; ; attempt++ {
		out = out[:0]
		err = h.store.Update(ctx, keys, func(tx dao.Txn) error {
			for i, k := range keys {
				rec, err := tx.Pending(k)
				if err != nil {
					return err
				}
				if rec == nil || (i > 0 && rec.DependsOn != key) {
					if i == 0 {
						return ErrNoPending
					}
					continue
				}
				want, err := signature.DecodeHex(rec.HashedSecret)
				if err != nil || !bytes.Equal(want, hashed[:]) {
					return ErrSecretMismatch
				}

				ch, err := tx.Get(k)
				if err != nil {
					return err
				}
				if err := tx.DeletePending(k); err != nil {
					return err
				}

				// a state signed after the transfer already includes it
				latest, err := tx.Signature(k)
				if err != nil {
					return err
				}
				if latest != nil && rec.Nonce.Cmp(latest.Nonce) <= 0 {
					log.Infow("pending transfer superseded", "channel", k, "pending", rec.Nonce.String(), "latest", latest.Nonce.String())
					continue
				}

				rec.Secret = signature.EncodeHex(secret)
				if err := tx.PutSignature(rec); err != nil {
					return err
				}
				out = append(out, revealed{channel: ch, record: rec})
			}
			return nil
		})
		if err == dao.ErrTxConflict && attempt < h.maxRetries {
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	for _, r := range out {
		if r.channel != nil {
			h.recordAudit(ctx, r.channel, r.record, false)
		}
	}
	log.Infow("secret revealed", "channel", key, "legs", len(out))
	return nil
}
