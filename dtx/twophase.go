// Package dtx implements the Distributed Transaction Coordinator: a
// two-phase-commit protocol for atomic writes spanning multiple shards,
// plus a compensating Saga as an eventual-consistency alternative, per
// §4.14. Participants are addressed by shard name only; the coordinator
// never performs a cross-shard read for correctness, and it explicitly
// does not attempt cluster-grade crash recovery -- a participant that
// dies between Prepare and Commit leaves its transaction open until the
// adapter's own connection timeout reclaims it.
package dtx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"eve.evalgo.org/multidb/adapter"
	"eve.evalgo.org/multidb/common"
	"eve.evalgo.org/multidb/multidberr"
)

// State is one phase of the 2PC state machine.
type State string

const (
	Preparing State = "preparing"
	Prepared  State = "prepared"
	Committing State = "committing"
	Committed State = "committed"
	Aborting  State = "aborting"
	Aborted   State = "aborted"
)

// Body runs one participant's operations against its already-open,
// shard-pinned transaction. The coordinator holds tx open across Phase 1
// and only commits or rolls it back in Phase 2 -- Body must not call
// Commit/Rollback itself.
type Body func(ctx context.Context, tx adapter.Tx) error

// Participant is one shard's role in a distributed transaction.
type Participant struct {
	Shard     string
	Adapter   *adapter.Adapter
	Isolation adapter.Isolation
	Run       Body
}

// Options configures a 2PC run.
type Options struct {
	CheckoutTimeout time.Duration
}

type openParticipant struct {
	shard   string
	conn    adapter.Conn
	release func()
	tx      adapter.Tx
}

// Coordinator runs 2PC transactions and logs phase transitions.
type Coordinator struct {
	logger *common.ContextLogger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{logger: common.ComponentLogger("dtx")}
}

// Run executes a 2PC transaction across participants. Phase 1 opens a
// transaction per participant and runs its Body, holding every
// transaction open without committing. If any participant's Body fails,
// every already-opened participant is rolled back and the original
// error is returned wrapped with the failing shard's name (a
// ShardFailure for a Body error) -- the transaction never reaches Phase 2. Phase 2
// commits every participant in parallel; each participant whose commit
// fails gets a best-effort rollback, while peers that already committed
// cannot be undone (the well-known blocking/failure pathology 2PC does
// not solve), and Run returns PartialCommitError describing each
// participant's actual outcome.
func (c *Coordinator) Run(ctx context.Context, participants []Participant, opts Options) error {
	txID := uuid.NewString()
	c.logEvent(txID, Preparing, "")

	opened, err := c.preparePhase(ctx, txID, participants, opts)
	if err != nil {
		return err
	}

	c.logEvent(txID, Prepared, "")
	return c.commitPhase(ctx, txID, opened)
}

func (c *Coordinator) preparePhase(ctx context.Context, txID string, participants []Participant, opts Options) ([]*openParticipant, error) {
	opened := make([]*openParticipant, 0, len(participants))

	abortOpened := func() {
		c.logEvent(txID, Aborting, "")
		for _, op := range opened {
			_ = op.tx.Rollback(ctx)
			op.release()
		}
		c.logEvent(txID, Aborted, "")
	}

	for _, p := range participants {
		conn, release, err := p.Adapter.Checkout(ctx, opts.CheckoutTimeout)
		if err != nil {
			abortOpened()
			return nil, fmt.Errorf("dtx: checkout for shard %s: %w", p.Shard, err)
		}

		tx, err := conn.BeginTx(ctx, p.Isolation, false)
		if err != nil {
			release()
			abortOpened()
			return nil, fmt.Errorf("dtx: begin on shard %s: %w", p.Shard, err)
		}

		op := &openParticipant{shard: p.Shard, conn: conn, release: release, tx: tx}
		opened = append(opened, op)

		if err := p.Run(ctx, tx); err != nil {
			abortOpened()
			return nil, &multidberr.ShardFailure{Shard: p.Shard, Cause: err}
		}
	}

	return opened, nil
}

func (c *Coordinator) commitPhase(ctx context.Context, txID string, opened []*openParticipant) error {
	c.logEvent(txID, Committing, "")

	outcomes := make(map[string]multidberr.CommitOutcome, len(opened))
	var mu sync.Mutex
	var wg sync.WaitGroup
	anyFailed := false

	for _, op := range opened {
		wg.Add(1)
		go func(op *openParticipant) {
			defer wg.Done()
			err := op.tx.Commit(ctx)
			if err != nil {
				_ = op.tx.Rollback(ctx)
			}
			op.release()

			mu.Lock()
			outcomes[op.shard] = multidberr.CommitOutcome{Committed: err == nil, Err: err}
			if err != nil {
				anyFailed = true
			}
			mu.Unlock()
		}(op)
	}
	wg.Wait()

	if !anyFailed {
		c.logEvent(txID, Committed, "")
		return nil
	}

	c.logEvent(txID, Aborting, "best-effort rollback after partial commit failure")
	c.logEvent(txID, Aborted, "")
	return &multidberr.PartialCommitError{TxID: txID, PerShard: outcomes}
}

func (c *Coordinator) logEvent(txID string, state State, note string) {
	fields := map[string]interface{}{"tx_id": txID, "state": string(state)}
	if note != "" {
		fields["note"] = note
	}
	c.logger.WithFields(fields).Info("2pc state transition")
}
