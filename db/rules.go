package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/sirupsen/logrus"
	rethink "gopkg.in/gorethink/gorethink.v3"
)

const rulesTable string = "rules"

func isDuplicateKey(resp rethink.WriteResponse) bool {
	return resp.Errors > 0 && strings.Contains(resp.FirstError, "Duplicate primary key")
}

//InsertRule inserts a new autorole rule, failing with guildmodels.ErrConflict if the name is taken
func (db *Connection) InsertRule(ctx context.Context, rule guildmodels.Rule) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	resp, err := rethink.Table(rulesTable).Insert(rule).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Encountered error inserting autorole rule %v into database: %v.", rule, err)
		return err
	}
	if isDuplicateKey(resp) {
		return fmt.Errorf("rule %v: %w", rule.Name, guildmodels.ErrConflict)
	}
	return writeError(resp)
}

//GetRule fetches a single rule, returning nil if it does not exist
func (db *Connection) GetRule(ctx context.Context, guildID, name string) (*guildmodels.Rule, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	res, err := rethink.Table(rulesTable).Get([]interface{}{guildID, name}).Run(db.exec)
	if err != nil {
		logrus.Warnf("Encountered error looking up rule %v in guild %v: %v.", name, guildID, err)
		return nil, err
	}
	defer res.Close()
	if res.IsNil() {
		return nil, nil
	}
	var rule guildmodels.Rule
	if err := res.One(&rule); err != nil {
		return nil, fmt.Errorf("failed to read rule %v of guild %v: %w", name, guildID, err)
	}
	return &rule, nil
}

//ReplaceRule overwrites a stored rule
func (db *Connection) ReplaceRule(ctx context.Context, rule guildmodels.Rule) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	resp, err := rethink.Table(rulesTable).Get(rule.Key()).Replace(rule).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Encountered error replacing autorole rule %v: %v.", rule, err)
		return err
	}
	return writeError(resp)
}

//DeleteRule removes a rule, reporting whether it existed
func (db *Connection) DeleteRule(ctx context.Context, guildID, name string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	resp, err := rethink.Table(rulesTable).Get([]interface{}{guildID, name}).Delete().RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Encountered error deleting rule %v in guild %v: %v.", name, guildID, err)
		return false, err
	}
	return resp.Deleted == 1, writeError(resp)
}

//ListGuildRules returns every rule of a guild, enabled or not
func (db *Connection) ListGuildRules(ctx context.Context, guildID string) ([]guildmodels.Rule, error) {
	return db.queryRules(ctx, rethink.Table(rulesTable).GetAllByIndex("guild", guildID))
}

//ListRules returns every stored rule
func (db *Connection) ListRules(ctx context.Context) ([]guildmodels.Rule, error) {
	return db.queryRules(ctx, rethink.Table(rulesTable))
}

//ListEnabledRulesByKind returns enabled rules with a given trigger kind, in one guild or everywhere
func (db *Connection) ListEnabledRulesByKind(ctx context.Context, kind guildmodels.TriggerKind, guildID string) ([]guildmodels.Rule, error) {
	query := rethink.Table(rulesTable)
	if guildID != "" {
		query = query.GetAllByIndex("guild", guildID)
	}
	filter := map[string]interface{}{
		"enabled": true,
		"trigger": map[string]interface{}{
			"kind": string(kind),
		},
	}
	logrus.Debugf("Looking up rules with filter %#v", filter)
	return db.queryRules(ctx, query.Filter(filter))
}

func (db *Connection) queryRules(ctx context.Context, query rethink.Term) ([]guildmodels.Rule, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	res, err := query.OrderBy("id").Run(db.exec)
	if err != nil {
		logrus.Warnf("Encountered error looking up rules: %v.", err)
		return nil, err
	}
	defer res.Close()
	var rules []guildmodels.Rule
	if res.IsNil() {
		return nil, nil
	}
	if err := res.All(&rules); err != nil {
		logrus.Warnf("Encountered error reading rules: %v.", err)
		return nil, err
	}
	return rules, nil
}
