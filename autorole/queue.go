package autorole

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/ishyv/tx-discord-bot-sub004/metrics"
	"github.com/sirupsen/logrus"
)

//RoleOpKind is the direction of a role mutation
type RoleOpKind string

const (
	RoleOpGrant  RoleOpKind = "grant"
	RoleOpRevoke RoleOpKind = "revoke"
)

type roleOp struct {
	id       string
	kind     RoleOpKind
	guildID  string
	memberID string
	roleID   string
	reason   string
	done     chan struct{}
}

//RoleQueue serializes external role mutations per guild. Operations on one guild are applied
//strictly in submission order by a single drain goroutine that exits once the guild's lane is
//empty; different guilds drain in parallel.
type RoleQueue struct {
	platform Platform

	mu    sync.Mutex
	lanes map[string][]*roleOp
	wg    sync.WaitGroup
}

//NewRoleQueue creates a queue applying mutations through platform
func NewRoleQueue(platform Platform) *RoleQueue {
	return &RoleQueue{
		platform: platform,
		lanes:    map[string][]*roleOp{},
	}
}

//EnqueueGrant queues adding roleID to memberID. The returned channel is closed once the
//attempt finished, whether it succeeded or not.
func (q *RoleQueue) EnqueueGrant(guildID, memberID, roleID, reason string) <-chan struct{} {
	return q.enqueue(RoleOpGrant, guildID, memberID, roleID, reason)
}

//EnqueueRevoke queues removing roleID from memberID. The returned channel is closed once the
//attempt finished, whether it succeeded or not.
func (q *RoleQueue) EnqueueRevoke(guildID, memberID, roleID, reason string) <-chan struct{} {
	return q.enqueue(RoleOpRevoke, guildID, memberID, roleID, reason)
}

func (q *RoleQueue) enqueue(kind RoleOpKind, guildID, memberID, roleID, reason string) <-chan struct{} {
	op := &roleOp{
		id:       uuid.NewString(),
		kind:     kind,
		guildID:  guildID,
		memberID: memberID,
		roleID:   roleID,
		reason:   reason,
		done:     make(chan struct{}),
	}

	q.mu.Lock()
	pending, draining := q.lanes[guildID]
	q.lanes[guildID] = append(pending, op)
	if !draining {
		q.wg.Add(1)
		go q.drain(guildID)
	}
	q.mu.Unlock()
	return op.done
}

func (q *RoleQueue) drain(guildID string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		pending := q.lanes[guildID]
		if len(pending) == 0 {
			delete(q.lanes, guildID)
			q.mu.Unlock()
			return
		}
		op := pending[0]
		pending[0] = nil
		q.lanes[guildID] = pending[1:]
		q.mu.Unlock()

		q.apply(op)
		close(op.done)
	}
}

func (q *RoleQueue) apply(op *roleOp) {
	log := logrus.WithFields(logrus.Fields{
		"op_id":  op.id,
		"op":     op.kind,
		"guild":  op.guildID,
		"member": op.memberID,
		"role":   op.roleID,
	})
	for _, id := range []string{op.guildID, op.memberID, op.roleID} {
		if !guildmodels.IsSnowflake(id) {
			log.Warnf("Refusing role %v with malformed id %q", op.kind, id)
			metrics.RoleOperations.WithLabelValues(string(op.kind), "invalid").Inc()
			return
		}
	}

	result := "failed"
	BestEffort(context.Background(), "role_"+string(op.kind), func(ctx context.Context) error {
		var err error
		switch op.kind {
		case RoleOpGrant:
			err = q.platform.AddRole(ctx, op.guildID, op.memberID, op.roleID, op.reason)
		case RoleOpRevoke:
			err = q.platform.RemoveRole(ctx, op.guildID, op.memberID, op.roleID, op.reason)
		default:
			err = fmt.Errorf("unknown role operation %q", op.kind)
		}
		if err != nil {
			return fmt.Errorf("role %v of %v for %v in %v: %w", op.kind, op.roleID, op.memberID, op.guildID, err)
		}
		result = "ok"
		return nil
	})
	metrics.RoleOperations.WithLabelValues(string(op.kind), result).Inc()
	if result == "ok" {
		log.Debugf("Applied role %v (%v)", op.kind, op.reason)
	}
}

//Pending returns the number of queued operations for a guild, excluding one being applied
func (q *RoleQueue) Pending(guildID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[guildID])
}

//Wait blocks until every queued operation has been attempted
func (q *RoleQueue) Wait() {
	q.wg.Wait()
}
