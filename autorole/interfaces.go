package autorole

import (
	"context"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
)

//RuleStore persists autorole rules
type RuleStore interface {
	//InsertRule fails with guildmodels.ErrConflict when the guild already has a rule with that name
	InsertRule(ctx context.Context, rule guildmodels.Rule) error
	//GetRule returns nil without error when the rule does not exist
	GetRule(ctx context.Context, guildID, name string) (*guildmodels.Rule, error)
	ReplaceRule(ctx context.Context, rule guildmodels.Rule) error
	DeleteRule(ctx context.Context, guildID, name string) (bool, error)
	ListGuildRules(ctx context.Context, guildID string) ([]guildmodels.Rule, error)
	ListRules(ctx context.Context) ([]guildmodels.Rule, error)
	//ListEnabledRulesByKind lists enabled rules of a trigger kind, in one guild or in all guilds when guildID is empty
	ListEnabledRulesByKind(ctx context.Context, kind guildmodels.TriggerKind, guildID string) ([]guildmodels.Rule, error)
}

//GrantStore persists grant reasons
type GrantStore interface {
	//UpsertGrant inserts the grant or, for TIMED grants, extends the existing expiry by extend,
	//starting from now if the stored expiry already passed. It reports whether the document was created.
	UpsertGrant(ctx context.Context, grant guildmodels.Grant, extend time.Duration, now time.Time) (bool, guildmodels.Grant, error)
	DeleteGrant(ctx context.Context, grant guildmodels.Grant) (bool, error)
	CountGrants(ctx context.Context, guildID, memberID, roleID string) (int, error)
	DeleteRuleGrants(ctx context.Context, guildID, ruleName string) ([]guildmodels.Grant, error)
	//DeleteStaleRuleGrants deletes the rule's grants whose role or kind differs from roleID and kind
	DeleteStaleRuleGrants(ctx context.Context, guildID, ruleName, roleID string, kind guildmodels.GrantKind) ([]guildmodels.Grant, error)
	ListExpiredGrants(ctx context.Context, now time.Time) ([]guildmodels.Grant, error)
}

//TallyStore persists reaction tallies and reaction presence markers
type TallyStore interface {
	IncrementTally(ctx context.Context, key guildmodels.ReactionTally, now time.Time) (guildmodels.ReactionTally, error)
	//DecrementTally lowers the count by one, deleting the row when it reaches zero. It returns the remaining count.
	DecrementTally(ctx context.Context, key guildmodels.ReactionTally, now time.Time) (int, error)
	//MaxAuthorTally returns the highest count of emojiKey across the author's messages, zero when there is none
	MaxAuthorTally(ctx context.Context, guildID, authorID, emojiKey string) (int, error)
	//InsertPresence returns false when the marker already existed
	InsertPresence(ctx context.Context, key guildmodels.PresenceKey) (bool, error)
	//DeletePresence returns false when there was no marker to delete
	DeletePresence(ctx context.Context, key guildmodels.PresenceKey) (bool, error)
	DrainMessage(ctx context.Context, guildID, messageID string) (guildmodels.DrainedMessage, error)
}

//FeatureFlags answers whether a feature is switched on in a guild
type FeatureFlags interface {
	IsEnabled(ctx context.Context, guildID, feature string) (bool, error)
}

//ReputationLedger is a read-only view of member reputation
type ReputationLedger interface {
	Reputation(ctx context.Context, guildID, memberID string) (int64, error)
}

//Member is one entry of a guild member listing
type Member struct {
	ID       string
	JoinedAt time.Time
	Bot      bool
}

//RoleInfo describes a guild role
type RoleInfo struct {
	ID   string
	Name string
}

//GuildInfo describes a guild
type GuildInfo struct {
	ID   string
	Name string
}

//Platform is the chat platform REST surface the engine needs
type Platform interface {
	AddRole(ctx context.Context, guildID, memberID, roleID, reason string) error
	RemoveRole(ctx context.Context, guildID, memberID, roleID, reason string) error
	FetchRole(ctx context.Context, guildID, roleID string) (*RoleInfo, error)
	FetchGuild(ctx context.Context, guildID string) (*GuildInfo, error)
	//ListMembers returns up to limit members with IDs greater than after
	ListMembers(ctx context.Context, guildID string, limit int, after string) ([]Member, error)
	SendDirectMessage(ctx context.Context, memberID, content string) error
}
