package guildmodels

import (
	"fmt"
	"time"
)

//GrantKind distinguishes grants that live as long as their condition holds from grants with a fixed expiry
type GrantKind string

const (
	GrantLive  GrantKind = "LIVE"
	GrantTimed GrantKind = "TIMED"
)

//Rule represents a role which may be assigned automatically by the bot when its trigger fires.
//Rules are keyed by guild and name.
type Rule struct {
	GuildID    string    `gorethink:"id[0]" validate:"snowflake"`
	Name       string    `gorethink:"id[1]" validate:"rulename"`
	Trigger    Trigger   `gorethink:"trigger"`
	RoleID     string    `gorethink:"role_id" validate:"snowflake"`
	DurationMs *int64    `gorethink:"duration_ms" validate:"omitempty,gt=0"`
	Enabled    bool      `gorethink:"enabled"`
	CreatedBy  string    `gorethink:"created_by" validate:"omitempty,snowflake"`
	CreatedAt  time.Time `gorethink:"created_at"`
	UpdatedAt  time.Time `gorethink:"updated_at"`
}

//Key returns the compound primary key of the rule
func (r Rule) Key() []interface{} {
	return []interface{}{r.GuildID, r.Name}
}

//GrantKind returns LIVE for permanent rules and TIMED for rules with a duration
func (r *Rule) GrantKind() GrantKind {
	if r.DurationMs == nil {
		return GrantLive
	}
	return GrantTimed
}

//Duration returns the grant duration of a TIMED rule, or zero for LIVE rules
func (r *Rule) Duration() time.Duration {
	if r.DurationMs == nil {
		return 0
	}
	return time.Duration(*r.DurationMs) * time.Millisecond
}

//SetDuration sets the rule duration. A non-positive duration makes the rule LIVE.
func (r *Rule) SetDuration(d time.Duration) {
	if d <= 0 {
		r.DurationMs = nil
		return
	}
	ms := d.Milliseconds()
	r.DurationMs = &ms
}

func (r Rule) String() string {
	mode := "live"
	if r.DurationMs != nil {
		mode = r.Duration().String()
	}
	return fmt.Sprintf("%v/%v (%v -> role %v, %v)", r.GuildID, r.Name, r.Trigger.Kind, r.RoleID, mode)
}

//TriggerKind names the condition that causes a rule to fire
type TriggerKind string

const (
	TriggerAnyReaction            TriggerKind = "any_reaction"
	TriggerSpecificReaction       TriggerKind = "specific_reaction"
	TriggerReactionCountThreshold TriggerKind = "reaction_count_threshold"
	TriggerReputationThreshold    TriggerKind = "reputation_threshold"
	TriggerMembershipAgeThreshold TriggerKind = "membership_age_threshold"
	TriggerMessageContains        TriggerKind = "message_contains"
)

//Limits applied to trigger arguments
const (
	MinReactionCount = 1
	MaxReactionCount = 1000
	MinMembershipAge = time.Hour
	MaxKeywords      = 50
)

//Trigger is a tagged union: Kind selects which of the argument structs is populated.
//Exactly one argument pointer is set for kinds that take arguments and none for any_reaction.
type Trigger struct {
	Kind             TriggerKind           `gorethink:"kind" json:"kind"`
	SpecificReaction *SpecificReactionArgs `gorethink:"specific_reaction,omitempty" json:"specific_reaction,omitempty"`
	ReactionCount    *ReactionCountArgs    `gorethink:"reaction_count,omitempty" json:"reaction_count,omitempty"`
	Reputation       *ReputationArgs       `gorethink:"reputation,omitempty" json:"reputation,omitempty"`
	MembershipAge    *MembershipAgeArgs    `gorethink:"membership_age,omitempty" json:"membership_age,omitempty"`
	MessageContains  *MessageContainsArgs  `gorethink:"message_contains,omitempty" json:"message_contains,omitempty"`
}

//SpecificReactionArgs fires when a given emoji is added to a given message
type SpecificReactionArgs struct {
	MessageID string `gorethink:"message_id" json:"message_id"`
	EmojiKey  string `gorethink:"emoji" json:"emoji"`
}

//ReactionCountArgs fires for a message author once one of their messages collects Count reactions of an emoji
type ReactionCountArgs struct {
	EmojiKey string `gorethink:"emoji" json:"emoji"`
	Count    int    `gorethink:"count" json:"count"`
}

//ReputationArgs fires when a member's reputation reaches MinReputation
type ReputationArgs struct {
	MinReputation int64 `gorethink:"min_reputation" json:"min_reputation"`
}

//MembershipAgeArgs fires once a member has been in the guild for at least MinAgeMs
type MembershipAgeArgs struct {
	MinAgeMs int64 `gorethink:"min_age_ms" json:"min_age_ms"`
}

//MinAge returns the threshold as a duration
func (a MembershipAgeArgs) MinAge() time.Duration {
	return time.Duration(a.MinAgeMs) * time.Millisecond
}

//MessageContainsArgs fires when a message contains any of the keywords
type MessageContainsArgs struct {
	Keywords []string `gorethink:"keywords" json:"keywords"`
}

//AnyReaction builds an any_reaction trigger
func AnyReaction() Trigger {
	return Trigger{Kind: TriggerAnyReaction}
}

//SpecificReaction builds a specific_reaction trigger
func SpecificReaction(messageID, emojiKey string) Trigger {
	return Trigger{
		Kind:             TriggerSpecificReaction,
		SpecificReaction: &SpecificReactionArgs{MessageID: messageID, EmojiKey: emojiKey},
	}
}

//ReactionCountThreshold builds a reaction_count_threshold trigger
func ReactionCountThreshold(emojiKey string, count int) Trigger {
	return Trigger{
		Kind:          TriggerReactionCountThreshold,
		ReactionCount: &ReactionCountArgs{EmojiKey: emojiKey, Count: count},
	}
}

//ReputationThreshold builds a reputation_threshold trigger
func ReputationThreshold(minRep int64) Trigger {
	return Trigger{
		Kind:       TriggerReputationThreshold,
		Reputation: &ReputationArgs{MinReputation: minRep},
	}
}

//MembershipAgeThreshold builds a membership_age_threshold trigger
func MembershipAgeThreshold(minAge time.Duration) Trigger {
	return Trigger{
		Kind:          TriggerMembershipAgeThreshold,
		MembershipAge: &MembershipAgeArgs{MinAgeMs: minAge.Milliseconds()},
	}
}

//MessageContains builds a message_contains trigger. Keywords are expected to be normalized already.
func MessageContains(keywords []string) Trigger {
	return Trigger{
		Kind:            TriggerMessageContains,
		MessageContains: &MessageContainsArgs{Keywords: keywords},
	}
}

//Validate checks that the payload matches the kind and that its arguments are within bounds
func (t Trigger) Validate() error {
	set := 0
	for _, present := range []bool{
		t.SpecificReaction != nil,
		t.ReactionCount != nil,
		t.Reputation != nil,
		t.MembershipAge != nil,
		t.MessageContains != nil,
	} {
		if present {
			set++
		}
	}

	switch t.Kind {
	case TriggerAnyReaction:
		if set != 0 {
			return fmt.Errorf("any_reaction trigger takes no arguments")
		}
		return nil
	case TriggerSpecificReaction:
		if set != 1 || t.SpecificReaction == nil {
			return fmt.Errorf("specific_reaction trigger needs exactly its own arguments")
		}
		if !IsSnowflake(t.SpecificReaction.MessageID) {
			return fmt.Errorf("%q is not a valid message id", t.SpecificReaction.MessageID)
		}
		if t.SpecificReaction.EmojiKey == "" {
			return fmt.Errorf("specific_reaction trigger needs an emoji")
		}
	case TriggerReactionCountThreshold:
		if set != 1 || t.ReactionCount == nil {
			return fmt.Errorf("reaction_count_threshold trigger needs exactly its own arguments")
		}
		if t.ReactionCount.EmojiKey == "" {
			return fmt.Errorf("reaction_count_threshold trigger needs an emoji")
		}
		if t.ReactionCount.Count < MinReactionCount || t.ReactionCount.Count > MaxReactionCount {
			return fmt.Errorf("reaction count %d is outside %d-%d", t.ReactionCount.Count, MinReactionCount, MaxReactionCount)
		}
	case TriggerReputationThreshold:
		if set != 1 || t.Reputation == nil {
			return fmt.Errorf("reputation_threshold trigger needs exactly its own arguments")
		}
		if t.Reputation.MinReputation < 0 {
			return fmt.Errorf("minimum reputation %d is negative", t.Reputation.MinReputation)
		}
	case TriggerMembershipAgeThreshold:
		if set != 1 || t.MembershipAge == nil {
			return fmt.Errorf("membership_age_threshold trigger needs exactly its own arguments")
		}
		if t.MembershipAge.MinAge() < MinMembershipAge {
			return fmt.Errorf("membership age %v is shorter than %v", t.MembershipAge.MinAge(), MinMembershipAge)
		}
	case TriggerMessageContains:
		if set != 1 || t.MessageContains == nil {
			return fmt.Errorf("message_contains trigger needs exactly its own arguments")
		}
		n := len(t.MessageContains.Keywords)
		if n == 0 || n > MaxKeywords {
			return fmt.Errorf("message_contains needs 1-%d keywords, got %d", MaxKeywords, n)
		}
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
	return nil
}
