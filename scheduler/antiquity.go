package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/ishyv/tx-discord-bot-sub004/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const antiquityName = "antiquity"

//ErrSweepRunning is returned when a sweep is requested while another one is in flight
var ErrSweepRunning = errors.New("an antiquity sweep is already running")

//AntiquityConfig tunes the antiquity sweep
type AntiquityConfig struct {
	Interval  time.Duration
	BootDelay time.Duration
	//PageSize is the number of members requested per listing call, at most 1000
	PageSize int
	//MaxPages caps listing calls per guild and sweep
	MaxPages int
	//PageDelay is the minimum spacing between listing calls
	PageDelay time.Duration
}

//DefaultAntiquityConfig returns the configuration used when nothing is set
func DefaultAntiquityConfig() AntiquityConfig {
	return AntiquityConfig{
		Interval:  12 * time.Hour,
		BootDelay: 2 * time.Minute,
		PageSize:  1000,
		MaxPages:  100,
		PageDelay: 500 * time.Millisecond,
	}
}

//Antiquity periodically re-evaluates membership age rules against every member of the guilds
//that have them
type Antiquity struct {
	cfg     AntiquityConfig
	rules   RuleLookup
	members MemberLister
	syncer  AntiquitySyncer
	limiter *rate.Limiter

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

//NewAntiquity creates an antiquity scheduler
func NewAntiquity(cfg AntiquityConfig, rules RuleLookup, members MemberLister, syncer AntiquitySyncer) *Antiquity {
	if cfg.PageSize <= 0 || cfg.PageSize > 1000 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultAntiquityConfig().MaxPages
	}
	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}
	return &Antiquity{
		cfg:     cfg,
		rules:   rules,
		members: members,
		syncer:  syncer,
		limiter: rate.NewLimiter(limit, 1),
		stopCh:  make(chan struct{}),
	}
}

//Start launches the boot one-shot and the interval loop
func (a *Antiquity) Start(ctx context.Context) error {
	if a.cfg.Interval <= 0 {
		return fmt.Errorf("antiquity interval must be positive, got %v", a.cfg.Interval)
	}
	logrus.Infof("Starting antiquity sweeps every %v, first one in %v", a.cfg.Interval, a.cfg.BootDelay)
	a.wg.Add(1)
	go a.loop(ctx)
	return nil
}

//Stop prevents future ticks and waits for an in-flight sweep to finish
func (a *Antiquity) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

func (a *Antiquity) loop(ctx context.Context) {
	defer a.wg.Done()
	boot := time.NewTimer(a.cfg.BootDelay)
	defer boot.Stop()
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-boot.C:
		case <-ticker.C:
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if !a.SweepAll(context.WithoutCancel(ctx)) {
				logrus.Debugf("Skipping antiquity tick, previous sweep still running")
			}
		}()
	}
}

//SweepAll re-evaluates every guild with enabled membership age rules. It returns false
//without doing anything when another sweep is running.
func (a *Antiquity) SweepAll(ctx context.Context) bool {
	return a.run(ctx, "")
}

//SweepGuild re-evaluates a single guild
func (a *Antiquity) SweepGuild(ctx context.Context, guildID string) error {
	if !a.run(ctx, guildID) {
		return ErrSweepRunning
	}
	return nil
}

func (a *Antiquity) run(ctx context.Context, guildID string) bool {
	if !a.running.CompareAndSwap(false, true) {
		metrics.SweepsSkipped.WithLabelValues(antiquityName).Inc()
		return false
	}
	defer a.running.Store(false)

	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues(antiquityName).Observe(time.Since(start).Seconds())
	}()
	autorole.BestEffort(ctx, antiquityName, func(ctx context.Context) error {
		return a.sweep(ctx, guildID)
	})
	return true
}

func (a *Antiquity) sweep(ctx context.Context, guildID string) error {
	log := logrus.WithField("sweep_id", uuid.NewString())
	rules, err := a.rules.ListEnabledRulesByKind(ctx, guildmodels.TriggerMembershipAgeThreshold, guildID)
	if err != nil {
		return fmt.Errorf("failed to list membership age rules: %w", err)
	}
	byGuild := map[string][]string{}
	for _, r := range rules {
		byGuild[r.GuildID] = append(byGuild[r.GuildID], r.Name)
	}
	guilds := make([]string, 0, len(byGuild))
	for g := range byGuild {
		guilds = append(guilds, g)
	}
	sort.Strings(guilds)

	for _, g := range guilds {
		glog := log.WithField("guild", g)
		synced, err := a.sweepGuild(ctx, g)
		if err != nil {
			metrics.SweepItems.WithLabelValues(antiquityName, "failed").Inc()
			glog.Warnf("Failed antiquity sweep of rules %v due to error %v", byGuild[g], err)
			continue
		}
		metrics.SweepItems.WithLabelValues(antiquityName, "ok").Inc()
		glog.Debugf("Re-evaluated %d member(s) against %d rule(s)", synced, len(byGuild[g]))
	}
	return nil
}

func (a *Antiquity) sweepGuild(ctx context.Context, guildID string) (int, error) {
	enabled, err := a.syncer.FeatureEnabled(ctx, guildID)
	if err != nil {
		return 0, err
	}
	if !enabled {
		return 0, nil
	}

	synced := 0
	after := ""
	for page := 0; page < a.cfg.MaxPages; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return synced, err
		}
		members, err := a.members.ListMembers(ctx, guildID, a.cfg.PageSize, after)
		metrics.MemberPages.Inc()
		if err != nil {
			return synced, fmt.Errorf("failed to list members after %q: %w", after, err)
		}
		for _, m := range members {
			if m.Bot {
				continue
			}
			if err := a.syncer.SyncUserAntiquityRoles(ctx, guildID, m.ID, m.JoinedAt); err != nil {
				logrus.WithFields(logrus.Fields{
					"guild":  guildID,
					"member": m.ID,
				}).Warnf("Failed to sync membership age roles due to error %v", err)
				continue
			}
			synced++
		}
		if len(members) < a.cfg.PageSize {
			return synced, nil
		}
		after = members[len(members)-1].ID
	}
	logrus.WithField("guild", guildID).Warnf("Stopped antiquity sweep after the %d page cap", a.cfg.MaxPages)
	return synced, nil
}
