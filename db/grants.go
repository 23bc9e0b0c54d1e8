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

const grantsTable string = "grants"

//UpsertGrant creates a grant or extends the expiry of an existing TIMED one in a single
//document write. A TIMED expiry grows from whichever is later of the stored expiry and now,
//so repeated grants never shorten it.
func (db *Connection) UpsertGrant(ctx context.Context, grant guildmodels.Grant, extend time.Duration, now time.Time) (bool, guildmodels.Grant, error) {
	if err := checkContext(ctx); err != nil {
		return false, grant, err
	}
	if grant.Kind == guildmodels.GrantTimed {
		expires := now.Add(extend)
		grant.ExpiresAt = &expires
	}

	query := rethink.Table(grantsTable).Get(grant.Key()).Replace(func(row rethink.Term) interface{} {
		if grant.Kind != guildmodels.GrantTimed {
			return rethink.Branch(row.Eq(nil), grant, row)
		}
		current := row.Field("expires_at").Default(now)
		base := rethink.Branch(current.Gt(now), current, now)
		return rethink.Branch(row.Eq(nil), grant, row.Merge(map[string]interface{}{
			"expires_at": base.Add(extend.Seconds()),
			"updated_at": now,
		}))
	}, rethink.ReplaceOpts{ReturnChanges: true})

	resp, err := query.RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to upsert grant %v due to error %v", grant.Key(), err)
		return false, grant, err
	}
	if err := writeError(resp); err != nil {
		return false, grant, err
	}
	stored := grant
	for _, change := range resp.Changes {
		if change.NewValue == nil {
			continue
		}
		if err := encoding.Decode(&stored, change.NewValue); err != nil {
			return false, grant, fmt.Errorf("failed to decode stored grant: %w", err)
		}
	}
	return resp.Inserted == 1, stored, nil
}

//DeleteGrant removes one grant reason, reporting whether it existed
func (db *Connection) DeleteGrant(ctx context.Context, grant guildmodels.Grant) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	resp, err := rethink.Table(grantsTable).Get(grant.Key()).Delete().RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to delete grant %v due to error %v", grant.Key(), err)
		return false, err
	}
	return resp.Deleted == 1, writeError(resp)
}

//CountGrants returns the number of grant reasons for a (guild, member, role) triple
func (db *Connection) CountGrants(ctx context.Context, guildID, memberID, roleID string) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	res, err := rethink.Table(grantsTable).GetAllByIndex("triple", []interface{}{guildID, memberID, roleID}).Count().Run(db.exec)
	if err != nil {
		logrus.Warnf("Failed to count grants of role %v for member %v due to error %v", roleID, memberID, err)
		return 0, err
	}
	defer res.Close()
	var n int
	if err := res.One(&n); err != nil {
		return 0, fmt.Errorf("failed to read grant count: %w", err)
	}
	return n, nil
}

//DeleteRuleGrants removes every grant made by a rule and returns them
func (db *Connection) DeleteRuleGrants(ctx context.Context, guildID, ruleName string) ([]guildmodels.Grant, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	resp, err := rethink.Table(grantsTable).GetAllByIndex("rule", []interface{}{guildID, ruleName}).
		Delete(rethink.DeleteOpts{ReturnChanges: true}).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to delete grants of rule %v in guild %v due to error %v", ruleName, guildID, err)
		return nil, err
	}
	return decodeDeletedGrants(resp)
}

//DeleteStaleRuleGrants removes the grants of a rule made under any role or grant kind other
//than the given ones and returns them
func (db *Connection) DeleteStaleRuleGrants(ctx context.Context, guildID, ruleName, roleID string, kind guildmodels.GrantKind) ([]guildmodels.Grant, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	resp, err := rethink.Table(grantsTable).GetAllByIndex("rule", []interface{}{guildID, ruleName}).
		Filter(func(row rethink.Term) rethink.Term {
			return row.Field("id").Nth(2).Ne(roleID).Or(row.Field("id").Nth(4).Ne(string(kind)))
		}).
		Delete(rethink.DeleteOpts{ReturnChanges: true}).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to delete stale grants of rule %v in guild %v due to error %v", ruleName, guildID, err)
		return nil, err
	}
	return decodeDeletedGrants(resp)
}

func decodeDeletedGrants(resp rethink.WriteResponse) ([]guildmodels.Grant, error) {
	removed := make([]guildmodels.Grant, 0, len(resp.Changes))
	for _, change := range resp.Changes {
		if change.OldValue == nil {
			continue
		}
		var g guildmodels.Grant
		if err := encoding.Decode(&g, change.OldValue); err != nil {
			return removed, fmt.Errorf("failed to decode deleted grant: %w", err)
		}
		removed = append(removed, g)
	}
	return removed, writeError(resp)
}

//ListExpiredGrants returns TIMED grants whose expiry is at or before now
func (db *Connection) ListExpiredGrants(ctx context.Context, now time.Time) ([]guildmodels.Grant, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	query := rethink.Table(grantsTable).Between(rethink.MinVal, now, rethink.BetweenOpts{
		Index:      "expires_at",
		RightBound: "closed",
	}).Filter(func(row rethink.Term) interface{} {
		return row.Field("id").Nth(4).Eq(string(guildmodels.GrantTimed))
	})
	res, err := query.Run(db.exec)
	if err != nil {
		logrus.Warnf("Failed to list expired grants due to error %v", err)
		return nil, err
	}
	defer res.Close()
	var grants []guildmodels.Grant
	if res.IsNil() {
		return nil, nil
	}
	if err := res.All(&grants); err != nil {
		return nil, fmt.Errorf("failed to read expired grants: %w", err)
	}
	return grants, nil
}
