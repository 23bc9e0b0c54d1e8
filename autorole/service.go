package autorole

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/ishyv/tx-discord-bot-sub004/metrics"
	"github.com/sirupsen/logrus"
)

const grantLockStripes = 64

//Config tunes the service
type Config struct {
	//DMOnGrant sends the member a direct message the first time they receive a role
	DMOnGrant bool
}

//Deps bundles the collaborators of the service
type Deps struct {
	Rules    RuleStore
	Grants   GrantStore
	Tallies  TallyStore
	Flags    FeatureFlags
	Ledger   ReputationLedger
	Platform Platform
	Cache    *RuleCache
	Queue    *RoleQueue
}

//Service owns the grant/revoke lifecycle. Grants are reference counted per
//(guild, member, role): the external role is added when the first reason appears and
//removed when the last one goes away.
type Service struct {
	rules    RuleStore
	grants   GrantStore
	tallies  TallyStore
	flags    FeatureFlags
	ledger   ReputationLedger
	platform Platform
	cache    *RuleCache
	queue    *RoleQueue
	cfg      Config

	now func() time.Time

	//decisions on one (guild, member, role) triple are serialized through a stripe
	locks [grantLockStripes]sync.Mutex
	//tally writes and their mirror updates on one (guild, message, emoji) are serialized the same way
	tallyLocks [grantLockStripes]sync.Mutex

	tallyMu     sync.RWMutex
	tallyMirror map[string]map[string]int
}

//NewService creates a service. A nil Cache or Queue is created on the fly.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Cache == nil {
		deps.Cache = NewRuleCache()
	}
	if deps.Queue == nil {
		deps.Queue = NewRoleQueue(deps.Platform)
	}
	return &Service{
		rules:       deps.Rules,
		grants:      deps.Grants,
		tallies:     deps.Tallies,
		flags:       deps.Flags,
		ledger:      deps.Ledger,
		platform:    deps.Platform,
		cache:       deps.Cache,
		queue:       deps.Queue,
		cfg:         cfg,
		now:         time.Now,
		tallyMirror: map[string]map[string]int{},
	}
}

//Cache returns the rule cache used for dispatch
func (s *Service) Cache() *RuleCache {
	return s.cache
}

//Queue returns the role operation queue
func (s *Service) Queue() *RoleQueue {
	return s.queue
}

//FeatureEnabled reports whether autorole is switched on for the guild
func (s *Service) FeatureEnabled(ctx context.Context, guildID string) (bool, error) {
	if s.flags == nil {
		return true, nil
	}
	return s.flags.IsEnabled(ctx, guildID, guildmodels.FeatureAutorole)
}

func (s *Service) requireFeature(ctx context.Context, guildID string) error {
	enabled, err := s.FeatureEnabled(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read feature flag for guild %v: %w", guildID, err)
	}
	if !enabled {
		return ErrFeatureDisabled
	}
	return nil
}

func stripe(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{'/'})
	}
	return h.Sum32() % grantLockStripes
}

func (s *Service) lockTriple(guildID, memberID, roleID string) func() {
	mu := &s.locks[stripe(guildID, memberID, roleID)]
	mu.Lock()
	return mu.Unlock
}

func (s *Service) lockTally(guildID, messageID, emojiKey string) func() {
	mu := &s.tallyLocks[stripe(guildID, messageID, emojiKey)]
	mu.Lock()
	return mu.Unlock
}

//GrantByRule records rule as a reason for memberID to hold the rule's role. TIMED grants
//extend their expiry on every qualifying event. The external role is only added when this
//is the member's first reason for the role.
func (s *Service) GrantByRule(ctx context.Context, rule guildmodels.Rule, memberID, reason string) error {
	if err := s.requireFeature(ctx, rule.GuildID); err != nil {
		return err
	}
	return s.grant(ctx, rule, memberID, reason)
}

func (s *Service) grant(ctx context.Context, rule guildmodels.Rule, memberID, reason string) error {
	log := logrus.WithFields(logrus.Fields{
		"guild":  rule.GuildID,
		"member": memberID,
		"role":   rule.RoleID,
		"rule":   rule.Name,
	})
	if !guildmodels.IsSnowflake(memberID) || !guildmodels.IsSnowflake(rule.RoleID) {
		log.Warnf("Not granting rule with malformed member or role id")
		return nil
	}

	unlock := s.lockTriple(rule.GuildID, memberID, rule.RoleID)
	defer unlock()

	existing, err := s.grants.CountGrants(ctx, rule.GuildID, memberID, rule.RoleID)
	if err != nil {
		return fmt.Errorf("failed to count grants of role %v for %v: %w", rule.RoleID, memberID, err)
	}
	now := s.now()
	kind := rule.GrantKind()
	created, grant, err := s.grants.UpsertGrant(ctx, guildmodels.Grant{
		GuildID:   rule.GuildID,
		MemberID:  memberID,
		RoleID:    rule.RoleID,
		RuleName:  rule.Name,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}, rule.Duration(), now)
	if err != nil {
		return fmt.Errorf("failed to store grant of role %v for %v: %w", rule.RoleID, memberID, err)
	}

	if !created {
		if kind == guildmodels.GrantTimed {
			metrics.GrantDecisions.WithLabelValues("extended", string(kind)).Inc()
			log.Debugf("Extended timed grant until %v", grant.ExpiresAt)
		}
		return nil
	}
	metrics.GrantDecisions.WithLabelValues("created", string(kind)).Inc()
	if existing > 0 {
		log.Debugf("Added grant reason; member already held the role through %d other reason(s)", existing)
		return nil
	}

	log.Infof("Granting role (%v)", reason)
	s.queue.EnqueueGrant(rule.GuildID, memberID, rule.RoleID, reason)
	if s.cfg.DMOnGrant {
		go BestEffort(context.Background(), "grant_dm", func(ctx context.Context) error {
			return s.notifyGrant(ctx, rule, memberID)
		})
	}
	return nil
}

//RevokeByRule removes rule's reason of the given kind. The external role is only removed
//once no reason is left for the member.
func (s *Service) RevokeByRule(ctx context.Context, rule guildmodels.Rule, memberID, reason string, kind guildmodels.GrantKind) error {
	if err := s.requireFeature(ctx, rule.GuildID); err != nil {
		return err
	}
	return s.revoke(ctx, rule, memberID, reason, kind)
}

func (s *Service) revoke(ctx context.Context, rule guildmodels.Rule, memberID, reason string, kind guildmodels.GrantKind) error {
	unlock := s.lockTriple(rule.GuildID, memberID, rule.RoleID)
	defer unlock()

	deleted, err := s.grants.DeleteGrant(ctx, guildmodels.Grant{
		GuildID:  rule.GuildID,
		MemberID: memberID,
		RoleID:   rule.RoleID,
		RuleName: rule.Name,
		Kind:     kind,
	})
	if err != nil {
		return fmt.Errorf("failed to delete grant of role %v for %v: %w", rule.RoleID, memberID, err)
	}
	if !deleted {
		return nil
	}
	metrics.GrantDecisions.WithLabelValues("removed", string(kind)).Inc()
	return s.revokeIfUnreferenced(ctx, rule.GuildID, memberID, rule.RoleID, reason)
}

//revokeIfUnreferenced must be called with the triple lock held
func (s *Service) revokeIfUnreferenced(ctx context.Context, guildID, memberID, roleID, reason string) error {
	remaining, err := s.grants.CountGrants(ctx, guildID, memberID, roleID)
	if err != nil {
		return fmt.Errorf("failed to count grants of role %v for %v: %w", roleID, memberID, err)
	}
	if remaining > 0 {
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"guild":  guildID,
		"member": memberID,
		"role":   roleID,
	}).Infof("Revoking role (%v)", reason)
	s.queue.EnqueueRevoke(guildID, memberID, roleID, reason)
	return nil
}

//PurgeRule deletes every grant made by a rule and revokes the role from members left without
//any other reason. It returns the number of members the role was revoked from.
func (s *Service) PurgeRule(ctx context.Context, guildID, ruleName string) (int, error) {
	removed, err := s.grants.DeleteRuleGrants(ctx, guildID, ruleName)
	if err != nil {
		return 0, fmt.Errorf("failed to delete grants of rule %v in guild %v: %w", ruleName, guildID, err)
	}
	return s.revokePurged(ctx, guildID, ruleName, removed, fmt.Sprintf("autorole: rule %v removed", ruleName))
}

//purgeStaleGrants deletes the grants rule made under a previous role or grant kind
func (s *Service) purgeStaleGrants(ctx context.Context, rule guildmodels.Rule) (int, error) {
	removed, err := s.grants.DeleteStaleRuleGrants(ctx, rule.GuildID, rule.Name, rule.RoleID, rule.GrantKind())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale grants of rule %v in guild %v: %w", rule.Name, rule.GuildID, err)
	}
	return s.revokePurged(ctx, rule.GuildID, rule.Name, removed, fmt.Sprintf("autorole: rule %v changed", rule.Name))
}

func (s *Service) revokePurged(ctx context.Context, guildID, ruleName string, removed []guildmodels.Grant, reason string) (int, error) {
	type triple struct{ member, role string }
	seen := map[triple]bool{}
	revoked := 0
	var errs []error
	for _, g := range removed {
		t := triple{g.MemberID, g.RoleID}
		if seen[t] {
			continue
		}
		seen[t] = true
		metrics.GrantDecisions.WithLabelValues("removed", string(g.Kind)).Inc()

		unlock := s.lockTriple(guildID, g.MemberID, g.RoleID)
		remaining, err := s.grants.CountGrants(ctx, guildID, g.MemberID, g.RoleID)
		if err == nil && remaining == 0 {
			s.queue.EnqueueRevoke(guildID, g.MemberID, g.RoleID, reason)
			revoked++
		}
		unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to count grants of role %v for %v: %w", g.RoleID, g.MemberID, err))
		}
	}
	logrus.WithFields(logrus.Fields{
		"guild": guildID,
		"rule":  ruleName,
	}).Infof("Purged %d grant(s), revoked role from %d member(s)", len(removed), revoked)
	return revoked, errors.Join(errs...)
}

//SyncUserReputationRoles re-evaluates every reputation rule of the guild against value,
//granting rules at or below it and revoking LIVE grants of rules above it. Safe to repeat.
func (s *Service) SyncUserReputationRoles(ctx context.Context, guildID, memberID string, value int64) error {
	rules := s.cache.Get(guildID).Reputation
	if len(rules) == 0 {
		return nil
	}
	if err := s.requireFeature(ctx, guildID); err != nil {
		return err
	}
	var errs []error
	for _, r := range rules {
		reason := fmt.Sprintf("autorole: reputation %d (rule %v needs %d)", value, r.Name, r.Trigger.Reputation.MinReputation)
		if value >= r.Trigger.Reputation.MinReputation {
			errs = append(errs, s.grant(ctx, r, memberID, reason))
		} else {
			errs = append(errs, s.revoke(ctx, r, memberID, reason, guildmodels.GrantLive))
		}
	}
	return errors.Join(errs...)
}

//RefreshReputation reads the member's reputation from the ledger and syncs reputation rules
func (s *Service) RefreshReputation(ctx context.Context, guildID, memberID string) error {
	if len(s.cache.Get(guildID).Reputation) == 0 {
		return nil
	}
	if s.ledger == nil {
		return fmt.Errorf("no reputation ledger configured")
	}
	value, err := s.ledger.Reputation(ctx, guildID, memberID)
	if err != nil {
		return fmt.Errorf("failed to read reputation of %v in guild %v: %w", memberID, guildID, err)
	}
	return s.SyncUserReputationRoles(ctx, guildID, memberID, value)
}

//SyncUserAntiquityRoles re-evaluates every membership age rule of the guild for a member who
//joined at joinedAt. Safe to repeat.
func (s *Service) SyncUserAntiquityRoles(ctx context.Context, guildID, memberID string, joinedAt time.Time) error {
	rules := s.cache.Get(guildID).MembershipAge
	if len(rules) == 0 || joinedAt.IsZero() {
		return nil
	}
	if err := s.requireFeature(ctx, guildID); err != nil {
		return err
	}
	age := s.now().Sub(joinedAt)
	var errs []error
	for _, r := range rules {
		minAge := r.Trigger.MembershipAge.MinAge()
		reason := fmt.Sprintf("autorole: member for %v (rule %v needs %v)", age.Truncate(time.Hour), r.Name, minAge)
		if age >= minAge {
			errs = append(errs, s.grant(ctx, r, memberID, reason))
		} else {
			errs = append(errs, s.revoke(ctx, r, memberID, reason, guildmodels.GrantLive))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) notifyGrant(ctx context.Context, rule guildmodels.Rule, memberID string) error {
	roleName := rule.RoleID
	if role, err := s.platform.FetchRole(ctx, rule.GuildID, rule.RoleID); err == nil && role != nil {
		roleName = role.Name
	}
	guildName := rule.GuildID
	if guild, err := s.platform.FetchGuild(ctx, rule.GuildID); err == nil && guild != nil {
		guildName = guild.Name
	}
	content := fmt.Sprintf("You have been given the **%v** role in **%v**.", roleName, guildName)
	if rule.DurationMs != nil {
		content += fmt.Sprintf(" It lasts for %v unless you earn it again.", rule.Duration())
	}
	return s.platform.SendDirectMessage(ctx, memberID, content)
}
