// Package staking runs the value-moving user actions: it validates against
// fresh guard snapshots and contract configuration, approves the stable
// token when needed, submits exactly one transaction and reports every step.
package staking

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/internal/chain"
	"github.com/stakedeck/stakedeck/internal/guard"
	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// ErrActionInFlight is returned when an action is started while another one
// is still running.
var ErrActionInFlight = errors.New("another action is in flight")

// Action names a value-moving user action.
type Action string

const (
	ActionRegister        Action = "register"
	ActionStake           Action = "stake"
	ActionClaim           Action = "claim"
	ActionClaimAndRestake Action = "claim_and_restake"
	ActionWithdraw        Action = "withdraw"
)

// State is a step of the action state machine.
type State string

const (
	StateIdle              State = "idle"
	StateValidating        State = "validating"
	StateApprovingIfNeeded State = "approving_if_needed"
	StateSubmitting        State = "submitting"
	StateConfirmed         State = "confirmed"
	StateFailed            State = "failed"
)

// FailureKind classifies why an action failed.
type FailureKind int

const (
	FailureValidation FailureKind = iota + 1
	FailureApproval
	FailureTransaction
)

func (k FailureKind) String() string {
	switch k {
	case FailureValidation:
		return "validation failed"
	case FailureApproval:
		return "approval failed"
	case FailureTransaction:
		return "action failed"
	default:
		return "unknown failure"
	}
}

// Failure is the user-facing outcome of a failed action.
type Failure struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

func invalid(format string, args ...any) *Failure {
	return &Failure{Kind: FailureValidation, Reason: fmt.Sprintf(format, args...)}
}

// Step is one state transition of an action.
type Step struct {
	Action Action    `json:"action"`
	State  State     `json:"state"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// StepFunc observes state transitions as they happen.
type StepFunc func(Step)

// Result is the outcome of an action. Err is nil on success; otherwise it
// is a *Failure or ErrActionInFlight.
type Result struct {
	Action   Action          `json:"action"`
	Steps    []Step          `json:"steps"`
	Approval *ledger.Receipt `json:"approval,omitempty"`
	Receipt  *ledger.Receipt `json:"receipt,omitempty"`
	UserID   types.UserID    `json:"user_id"`
	Err      error           `json:"-"`
}

// OK reports whether the action was confirmed.
func (r *Result) OK() bool {
	return r.Err == nil && r.Receipt != nil
}

// Failure returns the action failure, or nil.
func (r *Result) Failure() *Failure {
	var f *Failure
	if errors.As(r.Err, &f) {
		return f
	}
	return nil
}

// State returns the last state reached.
func (r *Result) State() State {
	if len(r.Steps) == 0 {
		return StateIdle
	}
	return r.Steps[len(r.Steps)-1].State
}

// Reads is the read surface the orchestrator validates against.
// *ledger.Gateway implements it.
type Reads interface {
	ContractConfig(ctx context.Context) (*types.ContractConfig, error)
	Dashboard(ctx context.Context, id types.UserID) (*types.RawDashboard, error)
	ResolveUserID(ctx context.Context, addr common.Address) (types.UserID, error)
	ResolveAddress(ctx context.Context, id types.UserID) (common.Address, error)
	StakePayout(ctx context.Context, id types.UserID, index uint64) (*big.Int, error)
}

// ActionObserver receives the outcome of every finished action.
type ActionObserver interface {
	ObserveAction(action string, outcome string, duration time.Duration)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStepFunc reports every transition to fn.
func WithStepFunc(fn StepFunc) Option {
	return func(o *Orchestrator) { o.onStep = fn }
}

// WithOnConfirmed registers the callback run after a confirmed action,
// once the guards have been refreshed. It is where dashboards get
// invalidated.
func WithOnConfirmed(fn func(ctx context.Context, action Action, id types.UserID)) Option {
	return func(o *Orchestrator) { o.onConfirmed = fn }
}

// WithActionObserver reports action outcomes, e.g. to metrics.
func WithActionObserver(obs ActionObserver) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithClock overrides the time used for maturity checks and step stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs actions for the wallet in its chain context. At most
// one action runs at a time.
type Orchestrator struct {
	cc        chain.Context
	reads     Reads
	tx        ledger.Transactor
	allowance *guard.Allowance
	balances  *guard.Balances

	onStep      StepFunc
	onConfirmed func(ctx context.Context, action Action, id types.UserID)
	observer    ActionObserver
	now         func() time.Time

	inFlight atomic.Bool
}

// NewOrchestrator wires an orchestrator for cc.Owner.
func NewOrchestrator(cc chain.Context, reads Reads, tx ledger.Transactor, allowance *guard.Allowance, balances *guard.Balances, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cc:        cc,
		reads:     reads,
		tx:        tx,
		allowance: allowance,
		balances:  balances,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether an action is in flight.
func (o *Orchestrator) Busy() bool {
	return o.inFlight.Load()
}

// plan is a validated action ready to submit.
type plan struct {
	user types.UserID
	// walletAmount is pulled from the wallet by the transaction and must
	// be covered by the allowance. Nil or zero skips approval.
	walletAmount *big.Int
	submit       func(ctx context.Context) (*ledger.Receipt, error)
	detail       string
}

type validateFunc func(ctx context.Context, v *validation) (*plan, *Failure)

// run drives one action through the state machine.
func (o *Orchestrator) run(ctx context.Context, action Action, validate validateFunc) *Result {
	res := &Result{Action: action}
	if !o.inFlight.CompareAndSwap(false, true) {
		res.Err = ErrActionInFlight
		return res
	}
	defer o.inFlight.Store(false)

	started := o.now()
	log := logging.With(logging.Action(string(action)), logging.Wallet(o.cc.Owner.Hex()))

	fail := func(f *Failure) *Result {
		o.step(res, StateFailed, f.Reason)
		res.Err = f
		log.Warn("action failed", "kind", f.Kind.String(), "reason", f.Reason, logging.Err(f.Err))
		o.audit(action, res, "failure", f.Error())
		o.observe(action, f.Kind.String(), started)
		return res
	}

	o.step(res, StateValidating, "")
	if !o.cc.Connected() {
		return fail(invalid("no wallet connected"))
	}
	v, f := o.prepare(ctx)
	if f != nil {
		return fail(f)
	}
	p, f := validate(ctx, v)
	if f != nil {
		return fail(f)
	}
	res.UserID = p.user

	if p.walletAmount != nil && p.walletAmount.Sign() > 0 {
		o.step(res, StateApprovingIfNeeded, p.walletAmount.String())
		if o.allowance.NeedsApproval(p.walletAmount) {
			approval, ok := o.allowance.ApproveReceipt(ctx, p.walletAmount)
			res.Approval = approval
			if !ok {
				return fail(&Failure{Kind: FailureApproval, Reason: "token approval was not confirmed"})
			}
			log.Info("allowance approved", "amount", p.walletAmount.String())
		}
	}

	o.step(res, StateSubmitting, p.detail)
	receipt, err := p.submit(ctx)
	if err != nil {
		return fail(&Failure{Kind: FailureTransaction, Reason: "transaction was not confirmed", Err: err})
	}
	res.Receipt = receipt

	o.step(res, StateConfirmed, receipt.TxHash.Hex())
	log.Info("action confirmed", logging.TxHash(receipt.TxHash.Hex()), "block", receipt.BlockNumber)
	o.observe(action, "confirmed", started)

	o.afterConfirm(ctx, action, res)
	o.audit(action, res, "success", p.detail)
	return res
}

// afterConfirm refreshes the guards and hands off to OnConfirmed. The
// ledger stays the only source of truth; nothing is patched locally.
func (o *Orchestrator) afterConfirm(ctx context.Context, action Action, res *Result) {
	if err := o.allowance.Refresh(ctx); err != nil {
		logging.Warn("allowance refresh after confirmation failed", logging.Err(err))
	}
	if err := o.balances.Refresh(ctx); err != nil {
		logging.Warn("balance refresh after confirmation failed", logging.Err(err))
	}

	if res.UserID.IsZero() {
		if id, err := o.reads.ResolveUserID(ctx, o.cc.Owner); err == nil {
			res.UserID = id
		}
	}
	if o.onConfirmed != nil {
		o.onConfirmed(ctx, action, res.UserID)
	}
}

func (o *Orchestrator) step(res *Result, state State, detail string) {
	s := Step{Action: res.Action, State: state, Detail: detail, At: o.now()}
	res.Steps = append(res.Steps, s)
	if o.onStep != nil {
		o.onStep(s)
	}
}

func (o *Orchestrator) audit(action Action, res *Result, result, details string) {
	target := res.UserID.String()
	if target == "" {
		target = o.cc.Owner.Hex()
	}
	logging.Audit(logging.AuditEvent{
		Operation: string(action),
		Actor:     o.cc.Owner.Hex(),
		Target:    target,
		Result:    result,
		Details:   details,
	})
}

func (o *Orchestrator) observe(action Action, outcome string, started time.Time) {
	if o.observer != nil {
		o.observer.ObserveAction(string(action), outcome, o.now().Sub(started))
	}
}
