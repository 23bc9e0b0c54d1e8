package autorole

import (
	"context"
	"errors"
	"fmt"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/sirupsen/logrus"
)

//CreateRule validates and stores a new rule, then indexes it if enabled
func (s *Service) CreateRule(ctx context.Context, rule guildmodels.Rule) error {
	if err := guildmodels.ValidateRule(&rule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	now := s.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.rules.InsertRule(ctx, rule); err != nil {
		if errors.Is(err, guildmodels.ErrConflict) {
			return ErrRuleExists
		}
		return fmt.Errorf("failed to store rule %v: %w", rule.Name, err)
	}
	s.cache.Upsert(rule)
	logrus.Infof("Created autorole rule %v", rule)
	return nil
}

//GetRule loads a rule from the store, enabled or not
func (s *Service) GetRule(ctx context.Context, guildID, name string) (*guildmodels.Rule, error) {
	rule, err := s.rules.GetRule(ctx, guildID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %v: %w", name, err)
	}
	return rule, nil
}

//UpdateRule replaces the trigger, role and duration of an existing rule. Once the new rule is
//stored, grants made under the old role or grant kind are purged so no member keeps a role the
//rule no longer gives. A failed replace leaves the old rule and its grants untouched.
func (s *Service) UpdateRule(ctx context.Context, rule guildmodels.Rule) error {
	existing, err := s.GetRule(ctx, rule.GuildID, rule.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrRuleNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	rule.CreatedBy = existing.CreatedBy
	rule.UpdatedAt = s.now()
	if err := guildmodels.ValidateRule(&rule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if err := s.rules.ReplaceRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to update rule %v: %w", rule.Name, err)
	}
	s.cache.Upsert(rule)
	if existing.RoleID != rule.RoleID || existing.GrantKind() != rule.GrantKind() {
		if _, err := s.purgeStaleGrants(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

//ToggleRule enables or disables a rule. Disabling stops new grants; grants already made are
//left to expire or to be purged when the rule is deleted.
func (s *Service) ToggleRule(ctx context.Context, guildID, name string, enabled bool) (*guildmodels.Rule, error) {
	rule, err := s.GetRule(ctx, guildID, name)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrRuleNotFound
	}
	rule.Enabled = enabled
	rule.UpdatedAt = s.now()
	if err := s.rules.ReplaceRule(ctx, *rule); err != nil {
		return nil, fmt.Errorf("failed to update rule %v: %w", name, err)
	}
	s.cache.Upsert(*rule)
	return rule, nil
}

//DeleteRule removes a rule and purges its grants. It returns the number of members the role
//was revoked from.
func (s *Service) DeleteRule(ctx context.Context, guildID, name string) (int, error) {
	deleted, err := s.rules.DeleteRule(ctx, guildID, name)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rule %v: %w", name, err)
	}
	if !deleted {
		return 0, ErrRuleNotFound
	}
	s.cache.Remove(guildID, name)
	return s.PurgeRule(ctx, guildID, name)
}

//RefreshGuildRules reloads a guild's rules from the store into the cache
func (s *Service) RefreshGuildRules(ctx context.Context, guildID string) (int, error) {
	rules, err := s.rules.ListGuildRules(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to load rules of guild %v: %w", guildID, err)
	}
	s.cache.Hydrate(guildID, rules)
	return s.cache.Get(guildID).Len(), nil
}

//GetGuildRules returns the cached enabled rules of a guild
func (s *Service) GetGuildRules(guildID string) *GuildRules {
	return s.cache.Get(guildID)
}

//ListGuildRules returns every stored rule of a guild, including disabled ones
func (s *Service) ListGuildRules(ctx context.Context, guildID string) ([]guildmodels.Rule, error) {
	return s.rules.ListGuildRules(ctx, guildID)
}

//HydrateAll loads every stored rule into the cache, one guild at a time
func (s *Service) HydrateAll(ctx context.Context) error {
	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	byGuild := map[string][]guildmodels.Rule{}
	for _, r := range rules {
		byGuild[r.GuildID] = append(byGuild[r.GuildID], r)
	}
	for guildID, guildRules := range byGuild {
		s.cache.Hydrate(guildID, guildRules)
	}
	logrus.Infof("Loaded %d autorole rule(s) across %d guild(s)", len(rules), len(byGuild))
	return nil
}
