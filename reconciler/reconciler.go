package reconciler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/atomic"
	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/dao"
	"github.com/rqzrqh/stackflow_hub/metrics"
	"github.com/rqzrqh/stackflow_hub/stacks"
)

var log = logging.Logger("reconciler")

const maxConflictRetries = 64

type DeadLetters interface {
	PutDeadLetter(ctx context.Context, dl *common.DeadLetter) error
	PendingDeadLetters(ctx context.Context, limit int) ([]*common.DeadLetter, error)
	ResolveDeadLetter(ctx context.Context, id string) error
	FailDeadLetter(ctx context.Context, id string, reason string) error
}

// Disputer queues dispute-closure calls. Submitting the same (channel,
// transaction) twice must be harmless.
type Disputer interface {
	SubmitDispute(ctx context.Context, req *common.DisputeRequest) error
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type Report struct {
	Applied      int `json:"applied"`
	Duplicates   int `json:"duplicates"`
	Ignored      int `json:"ignored"`
	DeadLettered int `json:"deadLettered"`
	Rollbacks    int `json:"rollbacks"`
}

type Reconciler struct {
	cfg      *common.Config
	store    dao.ChannelStore
	letters  DeadLetters
	disputer Disputer
	now      func() time.Time

	applied      *atomic.Uint64
	deadLettered *atomic.Uint64
}

func NewReconciler(cfg *common.Config, store dao.ChannelStore, letters DeadLetters, disputer Disputer) *Reconciler {
	return &Reconciler{
		cfg:          cfg,
		store:        store,
		letters:      letters,
		disputer:     disputer,
		now:          time.Now,
		applied:      atomic.NewUint64(0),
		deadLettered: atomic.NewUint64(0),
	}
}

func (r *Reconciler) Stats() (applied uint64, deadLettered uint64) {
	return r.applied.Load(), r.deadLettered.Load()
}

func (r *Reconciler) involvesOwner(ev *Event) bool {
	return ev.ChannelKey.Principal1 == r.cfg.Owner || ev.ChannelKey.Principal2 == r.cfg.Owner
}

// Ingest applies events in order. An event that cannot be applied goes to
// the dead letter queue; only a failure to queue it is returned.
func (r *Reconciler) Ingest(ctx context.Context, events []*Event) (*Report, error) {
	rep := &Report{}
	for _, ev := range events {
		outcome, err := r.Apply(ctx, ev)
		if err != nil {
			log.Errorw("event failed", "event", ev.Kind, "seq", ev.Seq.String(), "tx", ev.TxID, "err", err)
			if err := r.deadLetterEvent(ctx, ev, err); err != nil {
				return rep, err
			}
			rep.DeadLettered++
			continue
		}

		switch outcome {
		case OutcomeApplied:
			rep.Applied++
		case OutcomeDuplicate:
			rep.Duplicates++
		case OutcomeIgnored:
			rep.Ignored++
		}
	}
	return rep, nil
}

// IngestDelivery dead-letters the undecodable events of a delivery and
// applies the rest.
func (r *Reconciler) IngestDelivery(ctx context.Context, d *Delivery) (*Report, error) {
	rejected := 0
	for _, rj := range d.Rejected {
		if r.cfg.Contract != "" && rj.Contract != r.cfg.Contract {
			continue
		}
		log.Errorw("undecodable event", "event", rj.Kind, "seq", rj.Seq.String(), "tx", rj.TxID, "reason", rj.Reason)
		if err := r.deadLetter(ctx, rj.Kind, rj.Seq, rj.Raw, rj.Reason); err != nil {
			return &Report{DeadLettered: rejected, Rollbacks: d.Rollbacks}, err
		}
		rejected++
	}

	rep, err := r.Ingest(ctx, d.Events)
	rep.DeadLettered += rejected
	rep.Rollbacks = d.Rollbacks
	return rep, err
}

func (r *Reconciler) deadLetterEvent(ctx context.Context, ev *Event, cause error) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.deadLetter(ctx, ev.Kind, ev.Seq, payload, cause.Error())
}

func (r *Reconciler) deadLetter(ctx context.Context, kind Kind, seq common.EventSeq, payload []byte, reason string) error {
	dl := &common.DeadLetter{
		ID:        uuid.New().String(),
		Kind:      string(kind),
		Payload:   payload,
		Reason:    reason,
		CreatedAt: r.now(),
	}
	if err := r.letters.PutDeadLetter(ctx, dl); err != nil {
		return xerrors.Errorf("dead letter %s at %s: %w", kind, seq, err)
	}
	r.deadLettered.Inc()
	metrics.RecordDeadLetter(ctx, string(kind))
	return nil
}

// Apply folds one event into the channel store. The chain is authoritative:
// the write is retried on store conflicts until it lands.
func (r *Reconciler) Apply(ctx context.Context, ev *Event) (Outcome, error) {
	outcome, err := r.apply(ctx, ev)
	result := string(outcome)
	if err != nil {
		result = "error"
	}
	metrics.RecordEvent(ctx, string(ev.Kind), result)
	return outcome, err
}

func (r *Reconciler) apply(ctx context.Context, ev *Event) (Outcome, error) {
	if _, err := ParseKind(string(ev.Kind)); err != nil {
		return "", err
	}
	if r.cfg.Contract != "" && ev.Contract != r.cfg.Contract {
		log.Debugw("ignoring event from other contract", "contract", ev.Contract)
		return OutcomeIgnored, nil
	}
	if !r.involvesOwner(ev) {
		log.Debugw("ignoring event not involving owner", "event", ev.Kind, "seq", ev.Seq.String())
		return OutcomeIgnored, nil
	}
	for _, p := range []string{ev.ChannelKey.Principal1, ev.ChannelKey.Principal2} {
		if _, err := stacks.ParsePrincipal(p); err != nil {
			return "", xerrors.Errorf("channel-key: %w", err)
		}
	}

	p1, p2, swapped := stacks.SortPair(ev.ChannelKey.Principal1, ev.ChannelKey.Principal2)
	state := ev.Channel
	if swapped {
		state.Balance1, state.Balance2 = state.Balance2, state.Balance1
	}
	key := r.store.Key(p1, p2, ev.ChannelKey.Token)

	var (
		outcome Outcome
		dispute *common.DisputeRequest
	)
	for attempt := 0; ; attempt++ {
		outcome, dispute = "", nil
		err := r.store.Update(ctx, []string{key}, func(tx dao.Txn) error {
			ch, err := tx.Get(key)
			if err != nil {
				return err
			}

			if ch != nil && !ev.Seq.After(ch.EventSeq) {
				outcome = OutcomeDuplicate
				if ev.Kind.isForce() {
					dispute, err = r.checkDispute(tx, ch, ev, &state)
				}
				return err
			}

			next := r.fold(ch, ev, key, p1, p2, &state)
			if err := tx.Put(next); err != nil {
				return err
			}
			if err := r.storeEventSignatures(tx, ch, next, ev); err != nil {
				return err
			}
			if ev.Kind.isForce() {
				if dispute, err = r.checkDispute(tx, next, ev, &state); err != nil {
					return err
				}
			}
			outcome = OutcomeApplied
			return nil
		})

		if err == dao.ErrTxConflict && attempt < maxConflictRetries {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if err != nil {
			return "", err
		}
		break
	}

	if dispute != nil {
		if err := r.disputer.SubmitDispute(ctx, dispute); err != nil {
			return "", xerrors.Errorf("submit dispute for %s: %w", key, err)
		}
		log.Warnw("dispute queued", "channel", key, "event", ev.Kind, "tx", ev.TxID, "nonce", dispute.Nonce.String())
	}

	if outcome == OutcomeApplied {
		r.applied.Inc()
		log.Infow("event applied", "event", ev.Kind, "channel", key, "seq", ev.Seq.String(), "nonce", state.Nonce.String())
	}
	return outcome, nil
}

// fold returns the record after ev. A missing record is created in the
// state the event implies.
func (r *Reconciler) fold(ch *common.Channel, ev *Event, key, p1, p2 string, state *ChannelState) *common.Channel {
	if ch == nil {
		return &common.Channel{
			ID:         key,
			Principal1: p1,
			Principal2: p2,
			Token:      ev.ChannelKey.Token,
			Balance1:   state.Balance1,
			Balance2:   state.Balance2,
			Nonce:      state.Nonce,
			ExpiresAt:  state.ExpiresAt,
			State:      ev.Kind.state(),
			EventSeq:   ev.Seq,
		}
	}

	next := ch.Clone()
	next.EventSeq = ev.Seq
	next.ExpiresAt = state.ExpiresAt
	next.State = ev.Kind.state()

	switch ev.Kind {
	case KindDeposit, KindWithdraw:
		// the deposit or withdraw is already superseded off-chain
		if state.Nonce.Cmp(ch.Nonce) < 0 {
			next.State = ch.State
			log.Warnw("stale balance event", "event", ev.Kind, "channel", key, "event_nonce", state.Nonce.String(), "nonce", ch.Nonce.String())
			return next
		}
		if ch.State != common.StateOpen {
			next.State = ch.State
		}
	}

	next.Balance1 = state.Balance1
	next.Balance2 = state.Balance2
	next.Nonce = common.Max(ch.Nonce, state.Nonce)
	return next
}

// storeEventSignatures keeps the pair carried by a deposit or withdraw event
// as the channel's signature record unless a newer one is held.
func (r *Reconciler) storeEventSignatures(tx dao.Txn, prev *common.Channel, next *common.Channel, ev *Event) error {
	if ev.Kind != KindDeposit && ev.Kind != KindWithdraw {
		return nil
	}
	if ev.MySignature == "" || ev.TheirSignature == "" {
		return nil
	}
	if prev != nil && ev.Channel.Nonce.Cmp(prev.Nonce) < 0 {
		return nil
	}

	cur, err := tx.Signature(next.ID)
	if err != nil {
		return err
	}
	if cur != nil && cur.Nonce.Cmp(ev.Channel.Nonce) > 0 {
		return nil
	}

	owner, other := ev.TheirSignature, ev.MySignature
	if ev.Sender == r.cfg.Owner {
		owner, other = ev.MySignature, ev.TheirSignature
	}
	action := common.ActionDeposit
	if ev.Kind == KindWithdraw {
		action = common.ActionWithdraw
	}

	return tx.PutSignature(&common.SignatureRecord{
		Channel:        next.ID,
		Balance1:       next.Balance1,
		Balance2:       next.Balance2,
		Nonce:          ev.Channel.Nonce,
		Action:         action,
		Actor:          ev.Sender,
		OwnerSignature: trimHex(owner),
		OtherSignature: trimHex(other),
		CreatedAt:      r.now().UnixMilli(),
	})
}

func trimHex(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
