package autorole

import (
	"context"
	"fmt"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
)

func messageKey(guildID, messageID string) string {
	return guildID + "/" + messageID
}

func (s *Service) mirrorTally(guildID, messageID, emojiKey string, count int) {
	s.tallyMu.Lock()
	defer s.tallyMu.Unlock()
	key := messageKey(guildID, messageID)
	emojis := s.tallyMirror[key]
	if count <= 0 {
		if emojis != nil {
			delete(emojis, emojiKey)
			if len(emojis) == 0 {
				delete(s.tallyMirror, key)
			}
		}
		return
	}
	if emojis == nil {
		emojis = map[string]int{}
		s.tallyMirror[key] = emojis
	}
	emojis[emojiKey] = count
}

//TallyCount reads the in-memory mirror of a reaction tally
func (s *Service) TallyCount(guildID, messageID, emojiKey string) (int, bool) {
	s.tallyMu.RLock()
	defer s.tallyMu.RUnlock()
	count, ok := s.tallyMirror[messageKey(guildID, messageID)][emojiKey]
	return count, ok
}

//IncrementReactionTally atomically adds one reaction to the tally and mirrors the new count.
//The store write and the mirror update happen under one tally lock so the mirror always ends on
//the count of the last store write.
func (s *Service) IncrementReactionTally(ctx context.Context, guildID, messageID, emojiKey, authorID string) (int, error) {
	unlock := s.lockTally(guildID, messageID, emojiKey)
	defer unlock()
	tally, err := s.tallies.IncrementTally(ctx, guildmodels.ReactionTally{
		GuildID:   guildID,
		MessageID: messageID,
		EmojiKey:  emojiKey,
		AuthorID:  authorID,
	}, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to increment tally of %v on %v: %w", emojiKey, messageID, err)
	}
	s.mirrorTally(guildID, messageID, emojiKey, tally.Count)
	return tally.Count, nil
}

//DecrementReactionTally atomically removes one reaction, never going below zero. The row is
//deleted when the count reaches zero.
func (s *Service) DecrementReactionTally(ctx context.Context, guildID, messageID, emojiKey string) (int, error) {
	unlock := s.lockTally(guildID, messageID, emojiKey)
	defer unlock()
	remaining, err := s.tallies.DecrementTally(ctx, guildmodels.ReactionTally{
		GuildID:   guildID,
		MessageID: messageID,
		EmojiKey:  emojiKey,
	}, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to decrement tally of %v on %v: %w", emojiKey, messageID, err)
	}
	s.mirrorTally(guildID, messageID, emojiKey, remaining)
	return remaining, nil
}

//DrainMessageState clears every presence marker and tally of a deleted message and returns
//what was removed
func (s *Service) DrainMessageState(ctx context.Context, guildID, messageID string) (guildmodels.DrainedMessage, error) {
	drained, err := s.tallies.DrainMessage(ctx, guildID, messageID)
	s.tallyMu.Lock()
	delete(s.tallyMirror, messageKey(guildID, messageID))
	s.tallyMu.Unlock()
	if err != nil {
		return drained, fmt.Errorf("failed to drain state of message %v: %w", messageID, err)
	}
	return drained, nil
}
