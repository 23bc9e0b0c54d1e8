package autorole

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
)

const (
	testGuild   = "100000000000000001"
	testGuild2  = "100000000000000002"
	testRole    = "200000000000000001"
	testRole2   = "200000000000000002"
	testMember  = "300000000000000001"
	testMember2 = "300000000000000002"
	testAuthor  = "300000000000000009"
	testMessage = "400000000000000001"
)

func keyString(parts []interface{}) string {
	return fmt.Sprint(parts...)
}

//memStore is an in-memory implementation of every store interface
type memStore struct {
	mu       sync.Mutex
	rules    map[string]guildmodels.Rule
	grants   map[string]guildmodels.Grant
	tallies  map[string]guildmodels.ReactionTally
	presence map[string]guildmodels.PresenceKey
	disabled map[string]bool
	rep      map[string]int64
	failNext error
}

func newMemStore() *memStore {
	return &memStore{
		rules:    map[string]guildmodels.Rule{},
		grants:   map[string]guildmodels.Grant{},
		tallies:  map[string]guildmodels.ReactionTally{},
		presence: map[string]guildmodels.PresenceKey{},
		disabled: map[string]bool{},
		rep:      map[string]int64{},
	}
}

func ruleKey(guildID, name string) string { return guildID + "/" + name }

func (m *memStore) InsertRule(ctx context.Context, rule guildmodels.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := ruleKey(rule.GuildID, rule.Name)
	if _, ok := m.rules[k]; ok {
		return guildmodels.ErrConflict
	}
	m.rules[k] = rule
	return nil
}

func (m *memStore) GetRule(ctx context.Context, guildID, name string) (*guildmodels.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[ruleKey(guildID, name)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) ReplaceRule(ctx context.Context, rule guildmodels.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[ruleKey(rule.GuildID, rule.Name)] = rule
	return nil
}

func (m *memStore) DeleteRule(ctx context.Context, guildID, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := ruleKey(guildID, name)
	_, ok := m.rules[k]
	delete(m.rules, k)
	return ok, nil
}

func (m *memStore) ListGuildRules(ctx context.Context, guildID string) ([]guildmodels.Rule, error) {
	return m.filterRules(func(r guildmodels.Rule) bool { return r.GuildID == guildID }), nil
}

func (m *memStore) ListRules(ctx context.Context) ([]guildmodels.Rule, error) {
	return m.filterRules(func(r guildmodels.Rule) bool { return true }), nil
}

func (m *memStore) ListEnabledRulesByKind(ctx context.Context, kind guildmodels.TriggerKind, guildID string) ([]guildmodels.Rule, error) {
	return m.filterRules(func(r guildmodels.Rule) bool {
		return r.Enabled && r.Trigger.Kind == kind && (guildID == "" || r.GuildID == guildID)
	}), nil
}

func (m *memStore) filterRules(keep func(guildmodels.Rule) bool) []guildmodels.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []guildmodels.Rule
	for _, r := range m.rules {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memStore) UpsertGrant(ctx context.Context, grant guildmodels.Grant, extend time.Duration, now time.Time) (bool, guildmodels.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return false, guildmodels.Grant{}, err
	}
	k := keyString(grant.Key())
	existing, ok := m.grants[k]
	if ok {
		if existing.Kind == guildmodels.GrantTimed {
			base := now
			if existing.ExpiresAt != nil && existing.ExpiresAt.After(now) {
				base = *existing.ExpiresAt
			}
			expires := base.Add(extend)
			existing.ExpiresAt = &expires
			existing.UpdatedAt = now
			m.grants[k] = existing
		}
		return false, existing, nil
	}
	if grant.Kind == guildmodels.GrantTimed {
		expires := now.Add(extend)
		grant.ExpiresAt = &expires
	}
	m.grants[k] = grant
	return true, grant, nil
}

func (m *memStore) DeleteGrant(ctx context.Context, grant guildmodels.Grant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyString(grant.Key())
	_, ok := m.grants[k]
	delete(m.grants, k)
	return ok, nil
}

func (m *memStore) CountGrants(ctx context.Context, guildID, memberID, roleID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.grants {
		if g.GuildID == guildID && g.MemberID == memberID && g.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteRuleGrants(ctx context.Context, guildID, ruleName string) ([]guildmodels.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []guildmodels.Grant
	for k, g := range m.grants {
		if g.GuildID == guildID && g.RuleName == ruleName {
			out = append(out, g)
			delete(m.grants, k)
		}
	}
	return out, nil
}

func (m *memStore) DeleteStaleRuleGrants(ctx context.Context, guildID, ruleName, roleID string, kind guildmodels.GrantKind) ([]guildmodels.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []guildmodels.Grant
	for k, g := range m.grants {
		if g.GuildID == guildID && g.RuleName == ruleName && (g.RoleID != roleID || g.Kind != kind) {
			out = append(out, g)
			delete(m.grants, k)
		}
	}
	return out, nil
}

func (m *memStore) ListExpiredGrants(ctx context.Context, now time.Time) ([]guildmodels.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []guildmodels.Grant
	for _, g := range m.grants {
		if g.Expired(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) grantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.grants)
}

func (m *memStore) getGrant(g guildmodels.Grant) (guildmodels.Grant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	got, ok := m.grants[keyString(g.Key())]
	return got, ok
}

func (m *memStore) IncrementTally(ctx context.Context, key guildmodels.ReactionTally, now time.Time) (guildmodels.ReactionTally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyString(key.Key())
	t, ok := m.tallies[k]
	if !ok {
		t = key
		t.CreatedAt = now
	}
	if t.AuthorID == "" {
		t.AuthorID = key.AuthorID
	}
	t.Count++
	t.UpdatedAt = now
	m.tallies[k] = t
	return t, nil
}

func (m *memStore) DecrementTally(ctx context.Context, key guildmodels.ReactionTally, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyString(key.Key())
	t, ok := m.tallies[k]
	if !ok {
		return 0, nil
	}
	t.Count--
	if t.Count <= 0 {
		delete(m.tallies, k)
		return 0, nil
	}
	m.tallies[k] = t
	return t.Count, nil
}

func (m *memStore) MaxAuthorTally(ctx context.Context, guildID, authorID, emojiKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := 0
	for _, t := range m.tallies {
		if t.GuildID == guildID && t.AuthorID == authorID && t.EmojiKey == emojiKey && t.Count > best {
			best = t.Count
		}
	}
	return best, nil
}

func (m *memStore) tally(guildID, messageID, emojiKey string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tallies[keyString(guildmodels.ReactionTally{GuildID: guildID, MessageID: messageID, EmojiKey: emojiKey}.Key())]
	return t.Count, ok
}

func (m *memStore) InsertPresence(ctx context.Context, key guildmodels.PresenceKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyString(key.Key())
	if _, ok := m.presence[k]; ok {
		return false, nil
	}
	m.presence[k] = key
	return true, nil
}

func (m *memStore) DeletePresence(ctx context.Context, key guildmodels.PresenceKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyString(key.Key())
	_, ok := m.presence[k]
	delete(m.presence, k)
	return ok, nil
}

func (m *memStore) DrainMessage(ctx context.Context, guildID, messageID string) (guildmodels.DrainedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drained := guildmodels.DrainedMessage{GuildID: guildID, MessageID: messageID}
	for k, p := range m.presence {
		if p.GuildID == guildID && p.MessageID == messageID {
			drained.Presence = append(drained.Presence, p)
			delete(m.presence, k)
		}
	}
	for k, t := range m.tallies {
		if t.GuildID == guildID && t.MessageID == messageID {
			drained.Tallies = append(drained.Tallies, t)
			delete(m.tallies, k)
		}
	}
	return drained, nil
}

func (m *memStore) IsEnabled(ctx context.Context, guildID, feature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disabled[guildID], nil
}

func (m *memStore) setFeature(guildID string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled[guildID] = !enabled
}

func (m *memStore) Reputation(ctx context.Context, guildID, memberID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rep[guildID+"/"+memberID], nil
}

type platformCall struct {
	Op       string
	GuildID  string
	MemberID string
	RoleID   string
}

//fakePlatform records every call made to it
type fakePlatform struct {
	mu      sync.Mutex
	calls   []platformCall
	dms     chan string
	fail    map[string]error
	members map[string][]Member
	gate    map[string]chan struct{}
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		dms:     make(chan string, 16),
		fail:    map[string]error{},
		members: map[string][]Member{},
		gate:    map[string]chan struct{}{},
	}
}

func (p *fakePlatform) record(op, guildID, memberID, roleID string) error {
	p.mu.Lock()
	gate := p.gate[guildID]
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, platformCall{op, guildID, memberID, roleID})
	if err, ok := p.fail[memberID]; ok {
		delete(p.fail, memberID)
		return err
	}
	return nil
}

func (p *fakePlatform) AddRole(ctx context.Context, guildID, memberID, roleID, reason string) error {
	return p.record("add", guildID, memberID, roleID)
}

func (p *fakePlatform) RemoveRole(ctx context.Context, guildID, memberID, roleID, reason string) error {
	return p.record("remove", guildID, memberID, roleID)
}

func (p *fakePlatform) FetchRole(ctx context.Context, guildID, roleID string) (*RoleInfo, error) {
	return &RoleInfo{ID: roleID, Name: "Veteran"}, nil
}

func (p *fakePlatform) FetchGuild(ctx context.Context, guildID string) (*GuildInfo, error) {
	return &GuildInfo{ID: guildID, Name: "Test Guild"}, nil
}

func (p *fakePlatform) ListMembers(ctx context.Context, guildID string, limit int, after string) ([]Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Member
	for _, m := range p.members[guildID] {
		if m.ID > after {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (p *fakePlatform) SendDirectMessage(ctx context.Context, memberID, content string) error {
	p.dms <- content
	return nil
}

func (p *fakePlatform) Calls() []platformCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platformCall(nil), p.calls...)
}

func (p *fakePlatform) count(op string) int {
	n := 0
	for _, c := range p.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func newTestService(store *memStore, platform *fakePlatform) *Service {
	return NewService(Deps{
		Rules:    store,
		Grants:   store,
		Tallies:  store,
		Flags:    store,
		Ledger:   store,
		Platform: platform,
	}, Config{})
}

func liveRule(name string, trigger guildmodels.Trigger, roleID string) guildmodels.Rule {
	return guildmodels.Rule{
		GuildID: testGuild,
		Name:    name,
		Trigger: trigger,
		RoleID:  roleID,
		Enabled: true,
	}
}

func timedRule(name string, trigger guildmodels.Trigger, roleID string, d time.Duration) guildmodels.Rule {
	r := liveRule(name, trigger, roleID)
	r.SetDuration(d)
	return r
}
