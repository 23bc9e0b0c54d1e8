package autorole

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/sirupsen/logrus"
)

//ReactionEvent is a reaction added to or removed from a message
type ReactionEvent struct {
	GuildID     string
	ChannelID   string
	MessageID   string
	MemberID    string
	AuthorID    string
	EmojiKey    string
	MemberIsBot bool
	//AuthorLookup resolves AuthorID when the gateway event did not carry it. It is only called
	//when a reaction_count_threshold rule needs the author.
	AuthorLookup func(ctx context.Context) (string, error)
}

//MessageEvent is a message posted in a guild channel
type MessageEvent struct {
	GuildID     string
	ChannelID   string
	MessageID   string
	AuthorID    string
	Content     string
	AuthorIsBot bool
}

func (e *ReactionEvent) resolveAuthor(ctx context.Context) string {
	if e.AuthorID != "" || e.AuthorLookup == nil {
		return e.AuthorID
	}
	author, err := e.AuthorLookup(ctx)
	e.AuthorLookup = nil
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"guild":   e.GuildID,
			"message": e.MessageID,
		}).Warnf("Failed to resolve message author due to error %v", err)
		return ""
	}
	e.AuthorID = author
	return author
}

func (e ReactionEvent) presence() guildmodels.PresenceKey {
	return guildmodels.PresenceKey{
		GuildID:   e.GuildID,
		MessageID: e.MessageID,
		EmojiKey:  e.EmojiKey,
		MemberID:  e.MemberID,
		Message:   e.MessageID,
	}
}

//HandleReactionAdd records the reaction and fires any_reaction, specific_reaction and
//reaction_count_threshold rules. A reaction already processed is ignored.
func (s *Service) HandleReactionAdd(ctx context.Context, e ReactionEvent) error {
	if e.GuildID == "" || e.MemberIsBot {
		return nil
	}
	e.EmojiKey = NormalizeEmoji(e.EmojiKey)
	if err := s.requireFeature(ctx, e.GuildID); err != nil {
		return err
	}

	fresh, err := s.tallies.InsertPresence(ctx, e.presence())
	if err != nil {
		return fmt.Errorf("failed to record reaction of %v on %v: %w", e.MemberID, e.MessageID, err)
	}
	if !fresh {
		logrus.WithFields(logrus.Fields{
			"guild":   e.GuildID,
			"message": e.MessageID,
			"member":  e.MemberID,
		}).Debugf("Ignoring reaction %v that was already processed", e.EmojiKey)
		return nil
	}
	rules := s.cache.Get(e.GuildID)
	if len(rules.ReactionCount[e.EmojiKey]) > 0 {
		e.resolveAuthor(ctx)
	}
	count, err := s.IncrementReactionTally(ctx, e.GuildID, e.MessageID, e.EmojiKey, e.AuthorID)
	if err != nil {
		return err
	}

	var errs []error
	for _, r := range rules.AnyReaction {
		errs = append(errs, s.grant(ctx, r, e.MemberID, fmt.Sprintf("autorole: reacted (rule %v)", r.Name)))
	}
	for _, r := range rules.SpecificReaction[SpecificReactionKey(e.MessageID, e.EmojiKey)] {
		errs = append(errs, s.grant(ctx, r, e.MemberID, fmt.Sprintf("autorole: reacted %v on %v (rule %v)", e.EmojiKey, e.MessageID, r.Name)))
	}
	if e.AuthorID != "" {
		for _, r := range rules.ReactionCount[e.EmojiKey] {
			if count >= r.Trigger.ReactionCount.Count {
				reason := fmt.Sprintf("autorole: message %v reached %d %v (rule %v)", e.MessageID, count, e.EmojiKey, r.Name)
				errs = append(errs, s.grant(ctx, r, e.AuthorID, reason))
			}
		}
	}
	return errors.Join(errs...)
}

//HandleReactionRemove undoes a processed reaction. LIVE specific_reaction grants are revoked
//from the reactor. A LIVE reaction_count_threshold grant is revoked from the author only when
//this removal took the message below the threshold and no other message by the author still
//meets it. any_reaction grants are kept.
func (s *Service) HandleReactionRemove(ctx context.Context, e ReactionEvent) error {
	if e.GuildID == "" || e.MemberIsBot {
		return nil
	}
	e.EmojiKey = NormalizeEmoji(e.EmojiKey)
	if err := s.requireFeature(ctx, e.GuildID); err != nil {
		return err
	}

	present, err := s.tallies.DeletePresence(ctx, e.presence())
	if err != nil {
		return fmt.Errorf("failed to clear reaction of %v on %v: %w", e.MemberID, e.MessageID, err)
	}
	if !present {
		return nil
	}
	count, err := s.DecrementReactionTally(ctx, e.GuildID, e.MessageID, e.EmojiKey)
	if err != nil {
		return err
	}

	rules := s.cache.Get(e.GuildID)
	var errs []error
	for _, r := range rules.SpecificReaction[SpecificReactionKey(e.MessageID, e.EmojiKey)] {
		if r.GrantKind() != guildmodels.GrantLive {
			continue
		}
		reason := fmt.Sprintf("autorole: removed %v from %v (rule %v)", e.EmojiKey, e.MessageID, r.Name)
		errs = append(errs, s.revoke(ctx, r, e.MemberID, reason, guildmodels.GrantLive))
	}
	var crossed []guildmodels.Rule
	for _, r := range rules.ReactionCount[e.EmojiKey] {
		threshold := r.Trigger.ReactionCount.Count
		if r.GrantKind() == guildmodels.GrantLive && count < threshold && count+1 >= threshold {
			crossed = append(crossed, r)
		}
	}
	if len(crossed) > 0 && e.resolveAuthor(ctx) != "" {
		errs = append(errs, s.revokeCountThreshold(ctx, e, count, crossed))
	}
	return errors.Join(errs...)
}

//revokeCountThreshold revokes rules whose threshold the message just fell below, skipping any
//rule another message by the same author still satisfies
func (s *Service) revokeCountThreshold(ctx context.Context, e ReactionEvent, count int, crossed []guildmodels.Rule) error {
	best, err := s.tallies.MaxAuthorTally(ctx, e.GuildID, e.AuthorID, e.EmojiKey)
	if err != nil {
		return fmt.Errorf("failed to read tallies of author %v: %w", e.AuthorID, err)
	}
	var errs []error
	for _, r := range crossed {
		if best >= r.Trigger.ReactionCount.Count {
			logrus.WithFields(logrus.Fields{
				"guild":  e.GuildID,
				"member": e.AuthorID,
				"rule":   r.Name,
			}).Debugf("Keeping role, another message still has %d %v", best, e.EmojiKey)
			continue
		}
		reason := fmt.Sprintf("autorole: message %v dropped to %d %v (rule %v)", e.MessageID, count, e.EmojiKey, r.Name)
		errs = append(errs, s.revoke(ctx, r, e.AuthorID, reason, guildmodels.GrantLive))
	}
	return errors.Join(errs...)
}

//HandleMessageCreate grants message_contains rules whose keywords appear in the message
func (s *Service) HandleMessageCreate(ctx context.Context, e MessageEvent) error {
	if e.GuildID == "" || e.AuthorIsBot || e.Content == "" {
		return nil
	}
	rules := s.cache.Get(e.GuildID).MessageContains
	if len(rules) == 0 {
		return nil
	}
	content := strings.ToLower(e.Content)
	var matched []guildmodels.Rule
	for _, r := range rules {
		for _, kw := range r.Trigger.MessageContains.Keywords {
			if strings.Contains(content, kw) {
				matched = append(matched, r)
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	if err := s.requireFeature(ctx, e.GuildID); err != nil {
		return err
	}

	var errs []error
	for _, r := range matched {
		errs = append(errs, s.grant(ctx, r, e.AuthorID, fmt.Sprintf("autorole: message %v matched (rule %v)", e.MessageID, r.Name)))
	}
	return errors.Join(errs...)
}

//HandleMessageDelete clears the reaction state of a deleted message
func (s *Service) HandleMessageDelete(ctx context.Context, guildID, messageID string) error {
	if guildID == "" {
		return nil
	}
	drained, err := s.DrainMessageState(ctx, guildID, messageID)
	if err != nil {
		return err
	}
	if len(drained.Presence)+len(drained.Tallies) > 0 {
		logrus.WithFields(logrus.Fields{
			"guild":   guildID,
			"message": messageID,
		}).Debugf("Cleared %d reaction marker(s) and %d tallies", len(drained.Presence), len(drained.Tallies))
	}
	return nil
}

//HandleReputationChange re-evaluates reputation rules for a member whose reputation changed
func (s *Service) HandleReputationChange(ctx context.Context, change guildmodels.ReputationChange) error {
	return s.SyncUserReputationRoles(ctx, change.GuildID, change.UserID, change.Reputation)
}

//HandleMemberJoin evaluates membership age rules for a member who just joined
func (s *Service) HandleMemberJoin(ctx context.Context, guildID string, member Member) error {
	if member.Bot {
		return nil
	}
	return s.SyncUserAntiquityRoles(ctx, guildID, member.ID, member.JoinedAt)
}
