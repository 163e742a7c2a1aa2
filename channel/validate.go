// Package channel implements the off-chain transition rules of a payment
// channel. Validation never touches storage and never signs anything.
package channel

import (
	"fmt"

	"github.com/rqzrqh/stackflow_hub/common"
)

type Reason string

const (
	ReasonNonceConflict  Reason = "nonce-conflict"
	ReasonInvalidBalance Reason = "invalid-balance"
	ReasonInvalidState   Reason = "invalid-state"
)

// Proposal is the state a client asks the hub to countersign.
type Proposal struct {
	Balance1 common.Uint128
	Balance2 common.Uint128
	Nonce    common.Uint128
}

func (p *Proposal) BalanceAt(s common.Slot) common.Uint128 {
	if s == common.SlotSecond {
		return p.Balance2
	}
	return p.Balance1
}

// Values carries the fields relevant to a failed check.
type Values struct {
	Balance1 *common.Uint128 `json:"balance-1,omitempty"`
	Balance2 *common.Uint128 `json:"balance-2,omitempty"`
	Nonce    *common.Uint128 `json:"nonce,omitempty"`
	State    common.State    `json:"state,omitempty"`
}

type ValidationError struct {
	Reason   Reason
	Message  string
	Expected Values
	Received Values
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func u(v common.Uint128) *common.Uint128 {
	return &v
}

func checkState(ch *common.Channel, allowed ...common.State) error {
	for _, s := range allowed {
		if ch.State == s {
			return nil
		}
	}
	return &ValidationError{
		Reason:   ReasonInvalidState,
		Message:  fmt.Sprintf("channel is %s", ch.State),
		Expected: Values{State: allowed[0]},
		Received: Values{State: ch.State},
	}
}

func checkNonce(ch *common.Channel, p *Proposal) error {
	if p.Nonce.Cmp(ch.Nonce) > 0 {
		return nil
	}
	next, ok := ch.Nonce.Add(common.NewUint128(1))
	if !ok {
		next = ch.Nonce
	}
	return &ValidationError{
		Reason:   ReasonNonceConflict,
		Message:  fmt.Sprintf("nonce %s is not above %s", p.Nonce, ch.Nonce),
		Expected: Values{Nonce: u(next)},
		Received: Values{Nonce: u(p.Nonce)},
	}
}

func balanceMismatch(msg string, b1, b2 common.Uint128, p *Proposal) error {
	return &ValidationError{
		Reason:   ReasonInvalidBalance,
		Message:  msg,
		Expected: Values{Balance1: u(b1), Balance2: u(b2)},
		Received: Values{Balance1: u(p.Balance1), Balance2: u(p.Balance2)},
	}
}

func checkAmount(amount common.Uint128) error {
	if amount.IsZero() {
		return &ValidationError{Reason: ReasonInvalidBalance, Message: "amount must be positive"}
	}
	return nil
}

func expectBalances(ch *common.Channel, s common.Slot, balance common.Uint128, p *Proposal, msg string) error {
	b1, b2 := ch.Balance1, ch.Balance2
	if s == common.SlotSecond {
		b2 = balance
	} else {
		b1 = balance
	}
	if !p.Balance1.Eq(b1) || !p.Balance2.Eq(b2) {
		return balanceMismatch(msg, b1, b2, p)
	}
	return nil
}

// ValidateDeposit checks that actor's balance grows by exactly amount and
// the other balance is unchanged.
func ValidateDeposit(ch *common.Channel, p *Proposal, actor common.Slot, amount common.Uint128) error {
	if err := checkNonce(ch, p); err != nil {
		return err
	}
	if err := checkState(ch, common.StateOpen); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	after, ok := ch.BalanceAt(actor).Add(amount)
	if ok {
		_, ok = after.Add(ch.BalanceAt(actor.Other()))
	}
	if !ok {
		return &ValidationError{Reason: ReasonInvalidBalance, Message: "deposit overflows uint128"}
	}
	return expectBalances(ch, actor, after, p, fmt.Sprintf("deposit of %s by %s principal", amount, actor))
}

// ValidateWithdraw checks that actor's balance shrinks by exactly amount and
// the other balance is unchanged.
func ValidateWithdraw(ch *common.Channel, p *Proposal, actor common.Slot, amount common.Uint128) error {
	if err := checkNonce(ch, p); err != nil {
		return err
	}
	if err := checkState(ch, common.StateOpen); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	after, ok := ch.BalanceAt(actor).Sub(amount)
	if !ok {
		return &ValidationError{
			Reason:   ReasonInvalidBalance,
			Message:  fmt.Sprintf("withdraw of %s exceeds balance %s", amount, ch.BalanceAt(actor)),
			Expected: Values{Balance1: u(ch.Balance1), Balance2: u(ch.Balance2)},
			Received: Values{Balance1: u(p.Balance1), Balance2: u(p.Balance2)},
		}
	}
	return expectBalances(ch, actor, after, p, fmt.Sprintf("withdraw of %s by %s principal", amount, actor))
}

// ValidateTransfer checks one leg of a transfer: from pays amount to the
// other party of the same channel and the total is conserved.
func ValidateTransfer(ch *common.Channel, p *Proposal, from common.Slot, amount common.Uint128) error {
	if err := checkNonce(ch, p); err != nil {
		return err
	}
	if err := checkState(ch, common.StateOpen); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	debited, ok := ch.BalanceAt(from).Sub(amount)
	if !ok {
		return &ValidationError{
			Reason:   ReasonInvalidBalance,
			Message:  fmt.Sprintf("transfer of %s exceeds balance %s", amount, ch.BalanceAt(from)),
			Expected: Values{Balance1: u(ch.Balance1), Balance2: u(ch.Balance2)},
			Received: Values{Balance1: u(p.Balance1), Balance2: u(p.Balance2)},
		}
	}
	credited, ok := ch.BalanceAt(from.Other()).Add(amount)
	if !ok {
		return &ValidationError{Reason: ReasonInvalidBalance, Message: "transfer overflows uint128"}
	}

	b1, b2 := debited, credited
	if from == common.SlotSecond {
		b1, b2 = credited, debited
	}
	if !p.Balance1.Eq(b1) || !p.Balance2.Eq(b2) {
		return balanceMismatch(fmt.Sprintf("transfer of %s from %s principal", amount, from), b1, b2, p)
	}
	return nil
}

// ValidateClose checks that the proposal attests to the balances on record.
func ValidateClose(ch *common.Channel, p *Proposal) error {
	if err := checkNonce(ch, p); err != nil {
		return err
	}
	if err := checkState(ch, common.StateOpen, common.StateClosing); err != nil {
		return err
	}
	if !p.Balance1.Eq(ch.Balance1) || !p.Balance2.Eq(ch.Balance2) {
		return balanceMismatch("close must keep the balances on record", ch.Balance1, ch.Balance2, p)
	}
	return nil
}

// Apply returns the record that results from an accepted proposal. The
// input channel is left untouched.
func Apply(ch *common.Channel, p *Proposal, action common.Action, now int64) *common.Channel {
	next := ch.Clone()
	next.Balance1 = p.Balance1
	next.Balance2 = p.Balance2
	next.Nonce = p.Nonce
	next.UpdatedAt = now
	if action == common.ActionClose {
		next.State = common.StateClosing
	}
	return next
}
