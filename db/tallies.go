package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/sirupsen/logrus"
	rethink "gopkg.in/gorethink/gorethink.v3"
	"gopkg.in/gorethink/gorethink.v3/encoding"
)

const talliesTable string = "tallies"
const presenceTable string = "presence"

func decodeTally(resp rethink.WriteResponse) (*guildmodels.ReactionTally, error) {
	for _, change := range resp.Changes {
		if change.NewValue == nil {
			continue
		}
		var t guildmodels.ReactionTally
		if err := encoding.Decode(&t, change.NewValue); err != nil {
			return nil, fmt.Errorf("failed to decode tally: %w", err)
		}
		return &t, nil
	}
	return nil, nil
}

//IncrementTally adds one to a reaction tally, creating it at one if absent
func (db *Connection) IncrementTally(ctx context.Context, key guildmodels.ReactionTally, now time.Time) (guildmodels.ReactionTally, error) {
	if err := checkContext(ctx); err != nil {
		return key, err
	}
	fresh := key
	fresh.Count = 1
	fresh.CreatedAt = now
	fresh.UpdatedAt = now

	resp, err := rethink.Table(talliesTable).Get(key.Key()).Replace(func(row rethink.Term) interface{} {
		return rethink.Branch(row.Eq(nil), fresh, row.Merge(map[string]interface{}{
			"count":      row.Field("count").Add(1),
			"updated_at": now,
			"author_id":  rethink.Branch(row.Field("author_id").Default("").Eq(""), key.AuthorID, row.Field("author_id")),
		}))
	}, rethink.ReplaceOpts{ReturnChanges: true}).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to increment tally %v due to error %v", key.Key(), err)
		return key, err
	}
	if err := writeError(resp); err != nil {
		return key, err
	}
	t, err := decodeTally(resp)
	if err != nil {
		return key, err
	}
	if t == nil {
		return key, fmt.Errorf("increment of tally %v returned no document", key.Key())
	}
	return *t, nil
}

//DecrementTally removes one from a reaction tally. The row is deleted instead of reaching zero
//and a missing row stays missing.
func (db *Connection) DecrementTally(ctx context.Context, key guildmodels.ReactionTally, now time.Time) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	resp, err := rethink.Table(talliesTable).Get(key.Key()).Replace(func(row rethink.Term) interface{} {
		return rethink.Branch(
			row.Eq(nil), nil,
			row.Field("count").Le(1), nil,
			row.Merge(map[string]interface{}{
				"count":      row.Field("count").Sub(1),
				"updated_at": now,
			}),
		)
	}, rethink.ReplaceOpts{ReturnChanges: true}).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to decrement tally %v due to error %v", key.Key(), err)
		return 0, err
	}
	if err := writeError(resp); err != nil {
		return 0, err
	}
	t, err := decodeTally(resp)
	if err != nil || t == nil {
		return 0, err
	}
	return t.Count, nil
}

//MaxAuthorTally returns the highest count of emojiKey on any message by authorID, or zero
//when the author has no tally of that emoji
func (db *Connection) MaxAuthorTally(ctx context.Context, guildID, authorID, emojiKey string) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	res, err := rethink.Table(talliesTable).GetAllByIndex("author", []interface{}{guildID, authorID, emojiKey}).
		Field("count").Max().Default(0).Run(db.exec)
	if err != nil {
		logrus.Warnf("Failed to read tallies of %v by author %v due to error %v", emojiKey, authorID, err)
		return 0, err
	}
	defer res.Close()
	var n int
	if err := res.One(&n); err != nil {
		return 0, fmt.Errorf("failed to read author tally: %w", err)
	}
	return n, nil
}

//InsertPresence records that a member's reaction was processed, returning false if it already was
func (db *Connection) InsertPresence(ctx context.Context, key guildmodels.PresenceKey) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	key.Message = key.MessageID
	resp, err := rethink.Table(presenceTable).Insert(key).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to insert reaction presence %v due to error %v", key.Key(), err)
		return false, err
	}
	if isDuplicateKey(resp) {
		return false, nil
	}
	return resp.Inserted == 1, writeError(resp)
}

//DeletePresence forgets a processed reaction, returning false if there was nothing to forget
func (db *Connection) DeletePresence(ctx context.Context, key guildmodels.PresenceKey) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	resp, err := rethink.Table(presenceTable).Get(key.Key()).Delete().RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to delete reaction presence %v due to error %v", key.Key(), err)
		return false, err
	}
	return resp.Deleted == 1, writeError(resp)
}

//DrainMessage deletes every presence marker and tally of a message and returns them
func (db *Connection) DrainMessage(ctx context.Context, guildID, messageID string) (guildmodels.DrainedMessage, error) {
	drained := guildmodels.DrainedMessage{GuildID: guildID, MessageID: messageID}
	if err := checkContext(ctx); err != nil {
		return drained, err
	}
	msgKey := []interface{}{guildID, messageID}

	presResp, err := rethink.Table(presenceTable).GetAllByIndex("message", msgKey).
		Delete(rethink.DeleteOpts{ReturnChanges: true}).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to drain reaction presence of message %v due to error %v", messageID, err)
		return drained, err
	}
	for _, change := range presResp.Changes {
		var p guildmodels.PresenceKey
		if change.OldValue == nil {
			continue
		}
		if err := encoding.Decode(&p, change.OldValue); err != nil {
			return drained, fmt.Errorf("failed to decode presence marker: %w", err)
		}
		drained.Presence = append(drained.Presence, p)
	}

	tallyResp, err := rethink.Table(talliesTable).GetAllByIndex("message", msgKey).
		Delete(rethink.DeleteOpts{ReturnChanges: true}).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to drain tallies of message %v due to error %v", messageID, err)
		return drained, err
	}
	for _, change := range tallyResp.Changes {
		var t guildmodels.ReactionTally
		if change.OldValue == nil {
			continue
		}
		if err := encoding.Decode(&t, change.OldValue); err != nil {
			return drained, fmt.Errorf("failed to decode tally: %w", err)
		}
		drained.Tallies = append(drained.Tallies, t)
	}
	return drained, nil
}
