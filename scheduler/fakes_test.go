package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
)

const (
	testGuild  = "100000000000000001"
	testGuild2 = "100000000000000002"
	testRole   = "200000000000000001"
)

type fakeRules struct {
	mu    sync.Mutex
	rules []guildmodels.Rule
}

func (f *fakeRules) GetRule(ctx context.Context, guildID, name string) (*guildmodels.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.GuildID == guildID && r.Name == name {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRules) ListEnabledRulesByKind(ctx context.Context, kind guildmodels.TriggerKind, guildID string) ([]guildmodels.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []guildmodels.Rule
	for _, r := range f.rules {
		if r.Enabled && r.Trigger.Kind == kind && (guildID == "" || r.GuildID == guildID) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeGrants struct {
	grants []guildmodels.Grant
	gate   chan struct{}
	calls  int
	mu     sync.Mutex
}

func (f *fakeGrants) ListExpiredGrants(ctx context.Context, now time.Time) ([]guildmodels.Grant, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	var out []guildmodels.Grant
	for _, g := range f.grants {
		if g.Expired(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

type revocation struct {
	Rule     guildmodels.Rule
	MemberID string
	Kind     guildmodels.GrantKind
}

type synced struct {
	GuildID  string
	MemberID string
}

//fakeService records revocations and antiquity syncs
type fakeService struct {
	mu        sync.Mutex
	disabled  map[string]bool
	revoked   []revocation
	synced    []synced
	failRules map[string]error
}

func newFakeService() *fakeService {
	return &fakeService{disabled: map[string]bool{}, failRules: map[string]error{}}
}

func (f *fakeService) FeatureEnabled(ctx context.Context, guildID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disabled[guildID], nil
}

func (f *fakeService) RevokeByRule(ctx context.Context, rule guildmodels.Rule, memberID, reason string, kind guildmodels.GrantKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failRules[rule.Name]; err != nil {
		return err
	}
	f.revoked = append(f.revoked, revocation{rule, memberID, kind})
	return nil
}

func (f *fakeService) SyncUserAntiquityRoles(ctx context.Context, guildID, memberID string, joinedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, synced{guildID, memberID})
	return nil
}

func (f *fakeService) syncedCount(guildID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.synced {
		if s.GuildID == guildID {
			n++
		}
	}
	return n
}

type fakeMembers struct {
	mu      sync.Mutex
	members map[string][]autorole.Member
	calls   map[string]int
	limits  []int
	fail    map[string]error
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{
		members: map[string][]autorole.Member{},
		calls:   map[string]int{},
		fail:    map[string]error{},
	}
}

func (f *fakeMembers) populate(guildID string, n int, bots int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.members[guildID] = append(f.members[guildID], autorole.Member{
			ID:       fmt.Sprintf("3%017d", i+1),
			JoinedAt: time.Now().Add(-time.Duration(i) * time.Hour),
			Bot:      i < bots,
		})
	}
}

func (f *fakeMembers) ListMembers(ctx context.Context, guildID string, limit int, after string) ([]autorole.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[guildID]++
	f.limits = append(f.limits, limit)
	if err := f.fail[guildID]; err != nil {
		return nil, err
	}
	var out []autorole.Member
	for _, m := range f.members[guildID] {
		if m.ID > after {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func ageRule(guildID, name string) guildmodels.Rule {
	return guildmodels.Rule{
		GuildID: guildID,
		Name:    name,
		Trigger: guildmodels.MembershipAgeThreshold(24 * time.Hour),
		RoleID:  testRole,
		Enabled: true,
	}
}
