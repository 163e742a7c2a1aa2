package hub

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/channel"
	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/dao"
	"github.com/rqzrqh/stackflow_hub/signature"
	"github.com/rqzrqh/stackflow_hub/stacks"
)

var log = logging.Logger("hub")

const defaultMaxRetries = 8

// AuditLog receives every countersigned state after it is committed.
type AuditLog interface {
	RecordSignature(ctx context.Context, ch *common.Channel, rec *common.SignatureRecord, pending bool) error
}

type Hub struct {
	cfg        *common.Config
	codec      *signature.Codec
	store      dao.ChannelStore
	audit      AuditLog
	now        func() time.Time
	maxRetries int
}

func NewHub(cfg *common.Config, codec *signature.Codec, store dao.ChannelStore, audit AuditLog) *Hub {
	return &Hub{
		cfg:        cfg,
		codec:      codec,
		store:      store,
		audit:      audit,
		now:        time.Now,
		maxRetries: defaultMaxRetries,
	}
}

// leg is a request leg resolved against the channel key space: principals
// in channel order and the balances swapped along with them.
type leg struct {
	key          string
	token        common.Asset
	principal1   string
	principal2   string
	proposal     channel.Proposal
	signature    []byte
	counterparty string
}

func (l *leg) slotOf(principal string) common.Slot {
	switch principal {
	case l.principal1:
		return common.SlotFirst
	case l.principal2:
		return common.SlotSecond
	}
	return common.SlotNone
}

func (h *Hub) parseToken(token common.Asset) error {
	if token.IsNative() {
		return nil
	}
	p, err := stacks.ParsePrincipal(string(token))
	if err != nil {
		return badRequest("token", "%v", err)
	}
	if !p.IsContract() {
		return badRequest("token", "%s is not a contract principal", token)
	}
	return nil
}

func (h *Hub) parseLeg(token common.Asset, l *Leg) (*leg, error) {
	if err := h.parseToken(token); err != nil {
		return nil, err
	}
	for field, p := range map[string]string{"principal-1": l.Principal1, "principal-2": l.Principal2} {
		pr, err := stacks.ParsePrincipal(p)
		if err != nil {
			return nil, badRequest(field, "%v", err)
		}
		if pr.IsContract() {
			return nil, badRequest(field, "contract principals cannot sign")
		}
	}

	p1, p2, swapped := stacks.SortPair(l.Principal1, l.Principal2)
	b1, b2 := l.Balance1, l.Balance2
	if swapped {
		b1, b2 = b2, b1
	}

	var counterparty string
	switch h.cfg.Owner {
	case p1:
		counterparty = p2
	case p2:
		counterparty = p1
	default:
		return nil, ErrUnsupportedPrincipal
	}
	if counterparty == h.cfg.Owner {
		return nil, ErrUnsupportedPrincipal
	}

	// undecodable signatures fail verification like any other bad signature
	sig, _ := signature.DecodeHex(l.Signature)

	return &leg{
		key:          h.store.Key(p1, p2, token),
		token:        token,
		principal1:   p1,
		principal2:   p2,
		proposal:     channel.Proposal{Balance1: b1, Balance2: b2, Nonce: l.Nonce},
		signature:    sig,
		counterparty: counterparty,
	}, nil
}

// step is one channel transition inside an operation.
type step struct {
	leg          *leg
	action       common.Action
	actor        string
	hashedSecret []byte
	pending      bool
	dependsOn    string
	validate     func(ch *common.Channel, p *channel.Proposal) error
}

func (s *step) message() *signature.Message {
	return &signature.Message{
		Asset:        s.leg.token,
		Principal1:   s.leg.principal1,
		Principal2:   s.leg.principal2,
		Balance1:     s.leg.proposal.Balance1,
		Balance2:     s.leg.proposal.Balance2,
		Nonce:        s.leg.proposal.Nonce,
		Action:       s.action,
		Actor:        s.actor,
		HashedSecret: s.hashedSecret,
	}
}

type committed struct {
	channel *common.Channel
	record  *common.SignatureRecord
	pending bool
}

// execute validates every step, then verifies every counterparty signature,
// then countersigns and commits all steps in one store transaction. A
// transaction conflict re-runs the whole sequence on fresh records.
func (h *Hub) execute(ctx context.Context, steps []*step) ([]*committed, error) {
	keys := make([]string, 0, len(steps))
	for _, s := range steps {
		keys = append(keys, s.leg.key)
	}

	var out []*committed
	for attempt := 0; ; attempt++ {
		out = out[:0]
		err := h.store.Update(ctx, keys, func(tx dao.Txn) error {
			current := make([]*common.Channel, len(steps))
			for i, s := range steps {
				ch, err := tx.Get(s.leg.key)
				if err != nil {
					return err
				}
				if ch == nil {
					return ErrChannelNotFound
				}
				if err := s.validate(ch, &s.leg.proposal); err != nil {
					return err
				}
				// one secret-locked transfer per channel until it is revealed
				if s.pending {
					p, err := tx.Pending(s.leg.key)
					if err != nil {
						return err
					}
					if p != nil {
						return ErrPendingTransfer
					}
				}
				current[i] = ch
			}

			for _, s := range steps {
				if !h.codec.Verify(s.leg.signature, s.leg.counterparty, s.message()) {
					log.Warnw("rejected signature", "security", "invalid-signature",
						"channel", s.leg.key, "signer", s.leg.counterparty,
						"action", s.action.String(), "nonce", s.leg.proposal.Nonce.String())
					return ErrInvalidSignature
				}
			}

			now := h.now().UnixMilli()
			for i, s := range steps {
				ownerSig, err := h.codec.Sign(h.cfg.PrivateKey, s.message())
				if err != nil {
					return xerrors.Errorf("countersign %s: %w", s.leg.key, err)
				}

				next := channel.Apply(current[i], &s.leg.proposal, s.action, now)
				if err := tx.Put(next); err != nil {
					return err
				}

				rec := &common.SignatureRecord{
					Channel:        s.leg.key,
					Balance1:       next.Balance1,
					Balance2:       next.Balance2,
					Nonce:          next.Nonce,
					Action:         s.action,
					Actor:          s.actor,
					OwnerSignature: signature.EncodeHex(ownerSig),
					OtherSignature: signature.EncodeHex(s.leg.signature),
					DependsOn:      s.dependsOn,
					CreatedAt:      now,
				}
				if s.hashedSecret != nil {
					rec.HashedSecret = signature.EncodeHex(s.hashedSecret)
				}
				if s.pending {
					err = tx.PutPending(rec)
				} else {
					err = tx.PutSignature(rec)
				}
				if err != nil {
					return err
				}
				out = append(out, &committed{channel: next, record: rec, pending: s.pending})
			}
			return nil
		})

		if err == dao.ErrTxConflict && attempt < h.maxRetries {
			log.Debugw("retrying after store conflict", "keys", keys, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	for _, c := range out {
		h.recordAudit(ctx, c.channel, c.record, c.pending)
	}
	return out, nil
}

func (h *Hub) recordAudit(ctx context.Context, ch *common.Channel, rec *common.SignatureRecord, pending bool) {
	if h.audit == nil {
		return
	}
	if err := h.audit.RecordSignature(ctx, ch, rec, pending); err != nil {
		log.Errorw("audit log write failed", "channel", rec.Channel, "nonce", rec.Nonce.String(), "err", err)
	}
}
