//Package scheduler runs the periodic autorole sweeps: expiry of timed grants and
//re-evaluation of membership age rules.
package scheduler

import (
	"context"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
)

//ExpiredGrantSource lists TIMED grants past their expiry
type ExpiredGrantSource interface {
	ListExpiredGrants(ctx context.Context, now time.Time) ([]guildmodels.Grant, error)
}

//RuleLookup resolves stored rules
type RuleLookup interface {
	GetRule(ctx context.Context, guildID, name string) (*guildmodels.Rule, error)
	ListEnabledRulesByKind(ctx context.Context, kind guildmodels.TriggerKind, guildID string) ([]guildmodels.Rule, error)
}

//GrantRevoker is the part of autorole.Service used by the timed-grant sweep
type GrantRevoker interface {
	FeatureEnabled(ctx context.Context, guildID string) (bool, error)
	RevokeByRule(ctx context.Context, rule guildmodels.Rule, memberID, reason string, kind guildmodels.GrantKind) error
}

//AntiquitySyncer is the part of autorole.Service used by the antiquity sweep
type AntiquitySyncer interface {
	FeatureEnabled(ctx context.Context, guildID string) (bool, error)
	SyncUserAntiquityRoles(ctx context.Context, guildID, memberID string, joinedAt time.Time) error
}

//MemberLister pages through guild members
type MemberLister interface {
	ListMembers(ctx context.Context, guildID string, limit int, after string) ([]autorole.Member, error)
}
