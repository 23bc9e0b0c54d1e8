package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/ishyv/tx-discord-bot-sub004/metrics"
	"github.com/sirupsen/logrus"
)

const timedGrantsName = "timed_grants"

//TimedGrants periodically revokes TIMED grants whose expiry has passed
type TimedGrants struct {
	interval time.Duration
	grants   ExpiredGrantSource
	rules    RuleLookup
	revoker  GrantRevoker
	now      func() time.Time

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

//NewTimedGrants creates a timed-grant scheduler ticking every interval
func NewTimedGrants(interval time.Duration, grants ExpiredGrantSource, rules RuleLookup, revoker GrantRevoker) *TimedGrants {
	return &TimedGrants{
		interval: interval,
		grants:   grants,
		rules:    rules,
		revoker:  revoker,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

//Start launches the tick loop
func (t *TimedGrants) Start(ctx context.Context) error {
	if t.interval <= 0 {
		return fmt.Errorf("timed grant interval must be positive, got %v", t.interval)
	}
	logrus.Infof("Starting timed grant sweeps every %v", t.interval)
	t.wg.Add(1)
	go t.loop(ctx)
	return nil
}

//Stop prevents future ticks and waits for an in-flight sweep to finish
func (t *TimedGrants) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

func (t *TimedGrants) loop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.Sweep(context.WithoutCancel(ctx))
			}()
		}
	}
}

//Sweep revokes every expired grant once. It returns false without doing anything when a
//previous sweep is still running.
func (t *TimedGrants) Sweep(ctx context.Context) bool {
	if !t.running.CompareAndSwap(false, true) {
		metrics.SweepsSkipped.WithLabelValues(timedGrantsName).Inc()
		logrus.Debugf("Skipping timed grant sweep, previous sweep still running")
		return false
	}
	defer t.running.Store(false)

	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues(timedGrantsName).Observe(time.Since(start).Seconds())
	}()
	autorole.BestEffort(ctx, timedGrantsName, t.sweep)
	return true
}

func (t *TimedGrants) sweep(ctx context.Context) error {
	log := logrus.WithField("sweep_id", uuid.NewString())
	now := t.now()
	expired, err := t.grants.ListExpiredGrants(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list expired grants: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}
	log.Infof("Revoking %d expired grant(s)", len(expired))

	enabled := map[string]bool{}
	revoked := 0
	for _, g := range expired {
		on, seen := enabled[g.GuildID]
		if !seen {
			on, err = t.revoker.FeatureEnabled(ctx, g.GuildID)
			if err != nil {
				log.Warnf("Failed to read feature flag of guild %v due to error %v", g.GuildID, err)
				on = false
			}
			enabled[g.GuildID] = on
		}
		if !on {
			metrics.SweepItems.WithLabelValues(timedGrantsName, "skipped").Inc()
			continue
		}

		if err := t.expire(ctx, g); err != nil {
			metrics.SweepItems.WithLabelValues(timedGrantsName, "failed").Inc()
			log.WithFields(logrus.Fields{
				"guild":  g.GuildID,
				"member": g.MemberID,
				"rule":   g.RuleName,
			}).Warnf("Failed to expire grant due to error %v", err)
			continue
		}
		metrics.SweepItems.WithLabelValues(timedGrantsName, "revoked").Inc()
		revoked++
	}
	log.Infof("Timed grant sweep finished, %d of %d revoked", revoked, len(expired))
	return nil
}

func (t *TimedGrants) expire(ctx context.Context, g guildmodels.Grant) error {
	rule, err := t.rules.GetRule(ctx, g.GuildID, g.RuleName)
	if err != nil {
		return err
	}
	if rule == nil {
		//rule was deleted after the grant was made
		rule = &guildmodels.Rule{
			GuildID: g.GuildID,
			Name:    g.RuleName,
			RoleID:  g.RoleID,
			Enabled: false,
		}
	}
	r := *rule
	r.RoleID = g.RoleID
	reason := fmt.Sprintf("autorole: grant from rule %v expired", g.RuleName)
	if g.ExpiresAt != nil {
		reason += " at " + g.ExpiresAt.Format(time.RFC3339)
	}
	return t.revoker.RevokeByRule(ctx, r, g.MemberID, reason, guildmodels.GrantTimed)
}
