package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/sirupsen/logrus"
	rethink "gopkg.in/gorethink/gorethink.v3"
)

const membersTable string = "members"

//Reputation returns the reputation stored for a member, zero if the member has no row
func (db *Connection) Reputation(ctx context.Context, guildID, userID string) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	id := []string{guildID, userID}
	res, err := rethink.Table(membersTable).Get(id).Field("reputation").Default(0).Run(db.exec)
	if err != nil {
		logrus.Warnf("Failed to get reputation for member %v:%v due to error %v", guildID, userID, err)
		return 0, err
	}
	defer res.Close()
	var rep int64
	if err := res.One(&rep); err != nil {
		return 0, fmt.Errorf("failed to read reputation of member %v:%v: %w", guildID, userID, err)
	}
	return rep, nil
}

type memberChange struct {
	NewValue *guildmodels.MemberData `gorethink:"new_val"`
	OldValue *guildmodels.MemberData `gorethink:"old_val"`
}

//WatchReputation follows the members changefeed and calls fn for every reputation change
//until ctx is cancelled or the feed fails.
func (db *Connection) WatchReputation(ctx context.Context, fn func(guildmodels.ReputationChange)) error {
	res, err := rethink.Table(membersTable).Changes().Run(db.exec)
	if err != nil {
		logrus.Warnf("Failed to open members changefeed due to error %v", err)
		return err
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = res.Close()
		case <-stop:
			_ = res.Close()
		}
	}()

	var change memberChange
	for res.Next(&change) {
		if change.NewValue != nil {
			if change.OldValue == nil || change.OldValue.Reputation != change.NewValue.Reputation {
				fn(guildmodels.ReputationChange{
					GuildID:    change.NewValue.GuildID,
					UserID:     change.NewValue.UserID,
					Reputation: change.NewValue.Reputation,
				})
			}
		}
		change = memberChange{}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("members changefeed failed: %w", err)
	}
	return errors.New("members changefeed closed")
}
