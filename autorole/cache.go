package autorole

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/ishyv/tx-discord-bot-sub004/metrics"
)

//GuildRules buckets the enabled rules of one guild by trigger kind. Values returned by
//RuleCache.Get are snapshots and must not be modified.
type GuildRules struct {
	GuildID          string
	AnyReaction      []guildmodels.Rule
	SpecificReaction map[string][]guildmodels.Rule
	ReactionCount    map[string][]guildmodels.Rule
	MessageContains  []guildmodels.Rule
	Reputation       []guildmodels.Rule
	MembershipAge    []guildmodels.Rule
}

//SpecificReactionKey builds the bucket key for specific_reaction rules
func SpecificReactionKey(messageID, emojiKey string) string {
	return messageID + ":" + emojiKey
}

func newGuildRules(guildID string) *GuildRules {
	return &GuildRules{
		GuildID:          guildID,
		SpecificReaction: map[string][]guildmodels.Rule{},
		ReactionCount:    map[string][]guildmodels.Rule{},
	}
}

func (g *GuildRules) clone() *GuildRules {
	next := newGuildRules(g.GuildID)
	next.AnyReaction = append([]guildmodels.Rule(nil), g.AnyReaction...)
	next.MessageContains = append([]guildmodels.Rule(nil), g.MessageContains...)
	next.Reputation = append([]guildmodels.Rule(nil), g.Reputation...)
	next.MembershipAge = append([]guildmodels.Rule(nil), g.MembershipAge...)
	for k, v := range g.SpecificReaction {
		next.SpecificReaction[k] = append([]guildmodels.Rule(nil), v...)
	}
	for k, v := range g.ReactionCount {
		next.ReactionCount[k] = append([]guildmodels.Rule(nil), v...)
	}
	return next
}

//insert places an enabled rule in the bucket for its trigger kind
func (g *GuildRules) insert(rule guildmodels.Rule) {
	t := rule.Trigger
	switch t.Kind {
	case guildmodels.TriggerAnyReaction:
		g.AnyReaction = append(g.AnyReaction, rule)
	case guildmodels.TriggerSpecificReaction:
		key := SpecificReactionKey(t.SpecificReaction.MessageID, t.SpecificReaction.EmojiKey)
		g.SpecificReaction[key] = append(g.SpecificReaction[key], rule)
	case guildmodels.TriggerReactionCountThreshold:
		key := t.ReactionCount.EmojiKey
		g.ReactionCount[key] = append(g.ReactionCount[key], rule)
	case guildmodels.TriggerMessageContains:
		g.MessageContains = append(g.MessageContains, rule)
	case guildmodels.TriggerReputationThreshold:
		g.Reputation = append(g.Reputation, rule)
		sort.SliceStable(g.Reputation, func(i, j int) bool {
			return g.Reputation[i].Trigger.Reputation.MinReputation < g.Reputation[j].Trigger.Reputation.MinReputation
		})
	case guildmodels.TriggerMembershipAgeThreshold:
		g.MembershipAge = append(g.MembershipAge, rule)
		sort.SliceStable(g.MembershipAge, func(i, j int) bool {
			return g.MembershipAge[i].Trigger.MembershipAge.MinAgeMs < g.MembershipAge[j].Trigger.MembershipAge.MinAgeMs
		})
	}
}

func withoutRule(rules []guildmodels.Rule, name string) []guildmodels.Rule {
	out := rules[:0]
	for _, r := range rules {
		if r.Name != name {
			out = append(out, r)
		}
	}
	return out
}

//remove strips the named rule from every bucket, dropping emptied map entries
func (g *GuildRules) remove(name string) {
	g.AnyReaction = withoutRule(g.AnyReaction, name)
	g.MessageContains = withoutRule(g.MessageContains, name)
	g.Reputation = withoutRule(g.Reputation, name)
	g.MembershipAge = withoutRule(g.MembershipAge, name)
	for k, v := range g.SpecificReaction {
		if v = withoutRule(v, name); len(v) == 0 {
			delete(g.SpecificReaction, k)
		} else {
			g.SpecificReaction[k] = v
		}
	}
	for k, v := range g.ReactionCount {
		if v = withoutRule(v, name); len(v) == 0 {
			delete(g.ReactionCount, k)
		} else {
			g.ReactionCount[k] = v
		}
	}
}

//Rules flattens every bucket into one list ordered by rule name
func (g *GuildRules) Rules() []guildmodels.Rule {
	var all []guildmodels.Rule
	all = append(all, g.AnyReaction...)
	for _, v := range g.SpecificReaction {
		all = append(all, v...)
	}
	for _, v := range g.ReactionCount {
		all = append(all, v...)
	}
	all = append(all, g.MessageContains...)
	all = append(all, g.Reputation...)
	all = append(all, g.MembershipAge...)
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

//Len returns the number of cached rules
func (g *GuildRules) Len() int {
	n := len(g.AnyReaction) + len(g.MessageContains) + len(g.Reputation) + len(g.MembershipAge)
	for _, v := range g.SpecificReaction {
		n += len(v)
	}
	for _, v := range g.ReactionCount {
		n += len(v)
	}
	return n
}

type guildShard struct {
	mu    sync.Mutex
	rules atomic.Pointer[GuildRules]
}

//RuleCache is the in-memory dispatch index of enabled rules, sharded by guild.
//Readers get immutable snapshots; writers to the same guild are serialized by the shard lock.
type RuleCache struct {
	mu     sync.RWMutex
	guilds map[string]*guildShard
}

//NewRuleCache creates an empty cache
func NewRuleCache() *RuleCache {
	return &RuleCache{guilds: map[string]*guildShard{}}
}

func (c *RuleCache) shard(guildID string) *guildShard {
	c.mu.RLock()
	s, ok := c.guilds[guildID]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.guilds[guildID]; ok {
		return s
	}
	s = &guildShard{}
	s.rules.Store(newGuildRules(guildID))
	c.guilds[guildID] = s
	return s
}

func (c *RuleCache) mutate(guildID string, fn func(next *GuildRules)) {
	s := c.shard(guildID)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.rules.Load()
	next := prev.clone()
	fn(next)
	s.rules.Store(next)
	metrics.CachedRules.Add(float64(next.Len() - prev.Len()))
}

//Get returns the rule buckets of a guild, creating an empty set if the guild is unknown
func (c *RuleCache) Get(guildID string) *GuildRules {
	return c.shard(guildID).rules.Load()
}

//Hydrate replaces every bucket of the guild with the enabled rules given
func (c *RuleCache) Hydrate(guildID string, rules []guildmodels.Rule) {
	c.mutate(guildID, func(next *GuildRules) {
		*next = *newGuildRules(guildID)
		for _, r := range rules {
			if r.GuildID == guildID && r.Enabled {
				next.insert(r)
			}
		}
	})
}

//Upsert removes any previous version of the rule and reinserts it if it is enabled
func (c *RuleCache) Upsert(rule guildmodels.Rule) {
	c.mutate(rule.GuildID, func(next *GuildRules) {
		next.remove(rule.Name)
		if rule.Enabled {
			next.insert(rule)
		}
	})
}

//Remove strips the named rule from every bucket of the guild
func (c *RuleCache) Remove(guildID, name string) {
	c.mutate(guildID, func(next *GuildRules) {
		next.remove(name)
	})
}

//RuleCount returns the number of cached rules across every guild
func (c *RuleCache) RuleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, s := range c.guilds {
		n += s.rules.Load().Len()
	}
	return n
}

//Guilds lists every guild with a shard in the cache
func (c *RuleCache) Guilds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.guilds))
	for id := range c.guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
