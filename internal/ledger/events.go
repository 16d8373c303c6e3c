package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/stakedeck/stakedeck/internal/chain"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/util"
	"github.com/stakedeck/stakedeck/pkg/types"
)

const (
	eventBackfillBlocks = 100
	eventReconnectBase  = 2 * time.Second
	eventReconnectMax   = 60 * time.Second
	eventLogBuffer      = 16

	// DefaultPollInterval is used when no websocket endpoint is available.
	DefaultPollInterval = 15 * time.Second
)

// Platform event names.
const (
	EventRegistered   = "Registered"
	EventStaked       = "Staked"
	EventStakeClaimed = "StakeClaimed"
	EventWithdrawn    = "Withdrawn"
)

// Event is a decoded platform event. Fields not carried by Kind stay zero.
type Event struct {
	Kind          string         `json:"kind"`
	UserID        types.UserID   `json:"user_id"`
	Wallet        common.Address `json:"wallet,omitempty"`
	Referrer      types.UserID   `json:"referrer,omitempty"`
	StakeIndex    uint64         `json:"stake_index"`
	Amount        *big.Int       `json:"amount,omitempty"`
	Restaked      *big.Int       `json:"restaked,omitempty"`
	DurationIndex uint8          `json:"duration_index"`
	BlockNumber   uint64         `json:"block_number"`
	TxHash        common.Hash    `json:"tx_hash"`
}

// LogSource is the chain surface the watcher reads logs from.
type LogSource interface {
	ethereum.LogFilterer
	BlockNumber(ctx context.Context) (uint64, error)
}

// EventWatcher follows platform events and hands each decoded event to a
// handler, typically to invalidate cached views of the affected user.
// It subscribes over websocket when possible, backfilling after each
// reconnect, and polls logs otherwise.
type EventWatcher struct {
	source       LogSource
	address      common.Address
	abi          abi.ABI
	handler      func(Event)
	pollInterval time.Duration

	lastBlock atomic.Uint64
	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewEventWatcher creates a watcher for the platform contract at address.
func NewEventWatcher(source LogSource, address common.Address, handler func(Event), pollInterval time.Duration) (*EventWatcher, error) {
	if source == nil {
		return nil, errors.New("event watcher requires a log source")
	}
	if handler == nil {
		return nil, errors.New("event watcher requires a handler")
	}
	parsed, err := abi.JSON(strings.NewReader(StakingPlatformABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse platform ABI: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &EventWatcher{
		source:       source,
		address:      address,
		abi:          parsed,
		handler:      handler,
		pollInterval: pollInterval,
	}, nil
}

// Start launches the watch loop. Calling Start on a running watcher is a no-op.
func (w *EventWatcher) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return nil
	}

	if block, err := w.source.BlockNumber(ctx); err == nil {
		w.lastBlock.Store(block)
	} else {
		logging.Warn("event watcher: could not read head block", logging.Err(err))
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	util.SafeGoWithName("event-watcher", func() {
		defer w.wg.Done()
		w.run(ctx)
	})

	logging.Info("event watcher started",
		logging.Component("events"),
		"contract", w.address.Hex(),
		"block", w.lastBlock.Load())
	return nil
}

// Stop cancels the watch loop and waits for it to exit.
func (w *EventWatcher) Stop() {
	if !w.running.Load() {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.running.Store(false)
	logging.Info("event watcher stopped", logging.Component("events"))
}

// LastBlock returns the highest block whose logs have been handled.
func (w *EventWatcher) LastBlock() uint64 {
	return w.lastBlock.Load()
}

func (w *EventWatcher) query() ethereum.FilterQuery {
	topics := make([]common.Hash, 0, 4)
	for _, name := range []string{EventRegistered, EventStaked, EventStakeClaimed, EventWithdrawn} {
		topics = append(topics, w.abi.Events[name].ID)
	}
	return ethereum.FilterQuery{
		Addresses: []common.Address{w.address},
		Topics:    [][]common.Hash{topics},
	}
}

func (w *EventWatcher) run(ctx context.Context) {
	query := w.query()
	delay := eventReconnectBase

	for {
		if ctx.Err() != nil {
			return
		}

		w.backfill(ctx, query)

		logs := make(chan ethtypes.Log, eventLogBuffer)
		sub, err := w.source.SubscribeFilterLogs(ctx, query, logs)
		if errors.Is(err, chain.ErrNoSubscriptions) {
			logging.Info("event watcher: no websocket endpoint, polling logs",
				"interval", w.pollInterval)
			w.poll(ctx, query)
			return
		}
		if err != nil {
			logging.Warn("event watcher: subscribe failed", logging.Err(err))
			if !sleepOrDone(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		delay = eventReconnectBase
		logging.Info("event watcher: subscribed", logging.Component("events"))

		done := w.process(ctx, sub, logs)
		sub.Unsubscribe()
		if done {
			return
		}
	}
}

// process handles subscription logs until the context ends (true) or the
// subscription fails (false).
func (w *EventWatcher) process(ctx context.Context, sub ethereum.Subscription, logs <-chan ethtypes.Log) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case err := <-sub.Err():
			if err != nil {
				logging.Warn("event watcher: subscription error", logging.Err(err))
			}
			return false
		case log := <-logs:
			w.handle(log)
		}
	}
}

// backfill replays logs missed since the last handled block.
func (w *EventWatcher) backfill(ctx context.Context, query ethereum.FilterQuery) {
	last := w.lastBlock.Load()
	if last == 0 {
		return
	}
	from := uint64(0)
	if last > eventBackfillBlocks {
		from = last - eventBackfillBlocks
	}

	q := query
	q.FromBlock = new(big.Int).SetUint64(from)
	logs, err := w.source.FilterLogs(ctx, q)
	if err != nil {
		logging.Warn("event watcher: backfill failed", logging.Err(err))
		return
	}

	replayed := 0
	for _, log := range logs {
		if log.BlockNumber > last {
			w.handle(log)
			replayed++
		}
	}
	if replayed > 0 {
		logging.Info("event watcher: backfilled events", "count", replayed, "from_block", from)
	}
}

// poll filters new logs every interval until ctx ends.
func (w *EventWatcher) poll(ctx context.Context, query ethereum.FilterQuery) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := w.source.BlockNumber(ctx)
		if err != nil {
			logging.Warn("event watcher: head block read failed", logging.Err(err))
			continue
		}
		last := w.lastBlock.Load()
		if head <= last {
			continue
		}

		q := query
		q.FromBlock = new(big.Int).SetUint64(last + 1)
		q.ToBlock = new(big.Int).SetUint64(head)
		logs, err := w.source.FilterLogs(ctx, q)
		if err != nil {
			logging.Warn("event watcher: log poll failed", logging.Err(err))
			continue
		}
		for _, log := range logs {
			w.handle(log)
		}
		if head > w.lastBlock.Load() {
			w.lastBlock.Store(head)
		}
	}
}

func (w *EventWatcher) handle(log ethtypes.Log) {
	if log.Removed {
		return
	}
	if log.BlockNumber > w.lastBlock.Load() {
		w.lastBlock.Store(log.BlockNumber)
	}

	ev, err := w.Decode(log)
	if err != nil {
		logging.Debug("event watcher: undecodable log", logging.TxHash(log.TxHash.Hex()), logging.Err(err))
		return
	}
	logging.Debug("platform event",
		"kind", ev.Kind,
		logging.UserID(ev.UserID.String()),
		logging.TxHash(ev.TxHash.Hex()))
	w.handler(*ev)
}

// Decode parses a platform log into an Event.
func (w *EventWatcher) Decode(log ethtypes.Log) (*Event, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("log has %d topics", len(log.Topics))
	}
	event, err := w.abi.EventByID(log.Topics[0])
	if err != nil {
		return nil, err
	}

	values, err := w.abi.Unpack(event.Name, log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", event.Name, err)
	}

	ev := &Event{
		Kind:        event.Name,
		UserID:      topicUserID(log.Topics[1]),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}

	switch event.Name {
	case EventRegistered:
		if len(log.Topics) < 3 || len(values) < 2 {
			return nil, errors.New("malformed Registered log")
		}
		ev.Wallet = common.BytesToAddress(log.Topics[2].Bytes())
		ref, _ := values[0].([5]byte)
		ev.Referrer = types.UserID(ref)
		ev.Amount = bigOf(values[1])
	case EventStaked:
		if len(values) < 3 {
			return nil, errors.New("malformed Staked log")
		}
		ev.StakeIndex = toUint64(bigOf(values[0]))
		ev.Amount = bigOf(values[1])
		ev.DurationIndex, _ = values[2].(uint8)
	case EventStakeClaimed:
		if len(values) < 3 {
			return nil, errors.New("malformed StakeClaimed log")
		}
		ev.StakeIndex = toUint64(bigOf(values[0]))
		ev.Amount = bigOf(values[1])
		ev.Restaked = bigOf(values[2])
	case EventWithdrawn:
		if len(values) < 1 {
			return nil, errors.New("malformed Withdrawn log")
		}
		ev.Amount = bigOf(values[0])
	}
	return ev, nil
}

// topicUserID reads an indexed bytes5, which is left-aligned in the topic.
func topicUserID(topic common.Hash) types.UserID {
	var id types.UserID
	copy(id[:], topic[:types.UserIDLength])
	return id
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > eventReconnectMax {
		next = eventReconnectMax
	}
	return next
}
