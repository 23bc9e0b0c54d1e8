package db

import (
	"context"
	"fmt"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/sirupsen/logrus"
	rethink "gopkg.in/gorethink/gorethink.v3"
)

const guildsTable string = "guilds"

//GetOrCreateGuild fetches a guild with a given ID from the database, creating a new one if it does not exist.
func (db *Connection) GetOrCreateGuild(id string) (*guildmodels.DiscordGuild, error) {
	res, err := rethink.Table(guildsTable).Get(id).Run(db.exec)
	if err != nil {
		logrus.Errorf("Failed to query database for guild %v because: %v.", id, err)
		return nil, fmt.Errorf("failed to query database for guild %v: %w", id, err)
	}
	defer res.Close()

	if res.IsNil() {
		//Create new guild object
		logrus.Infof("Inserting new guild id %v into database.", id)
		guildObj := guildmodels.DefaultGuild(id)
		resp, err := rethink.Table(guildsTable).Insert(guildObj).RunWrite(db.exec)
		if err != nil {
			logrus.Errorf("Failed to insert new guild with id %v because: %v.", id, err)
			return nil, fmt.Errorf("failed to insert new guild with id %v: %w", id, err)
		} else if resp.Inserted != 1 && !isDuplicateKey(resp) {
			logrus.Warnf("Expected to insert 1 new guild but recieved response %v.", resp)
		}
		return &guildObj, nil
	}

	var guildObj guildmodels.DiscordGuild
	if err := res.One(&guildObj); err != nil {
		logrus.Errorf("Failed to read guild %v from database because: %v.", id, err)
		return nil, fmt.Errorf("failed to read guild %v from database: %w", id, err)
	}
	return &guildObj, nil
}

//AddAdminRole adds a roleID to the list of AdminRoles for the given guild. It returns the number of updated
//entries as well as any errors
func (db *Connection) AddAdminRole(gid string, roleID string) (int, error) {
	if _, err := db.GetOrCreateGuild(gid); err != nil {
		return 0, err
	}
	resp, err := rethink.Table(guildsTable).Get(gid).Update(map[string]interface{}{
		"admin_roles": rethink.Row.Field("admin_roles").Default([]interface{}{}).SetInsert(roleID),
	}).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Encountered error appending admin role to DB: %v", err)
		return 0, err
	} else if err := writeError(resp); err != nil {
		logrus.Warnf("Encountered error appending admin role to DB: %v", err)
		return 0, err
	}
	return resp.Replaced, nil
}

//IsEnabled reports whether a feature is switched on for a guild. Guilds that never set the
//feature get the configured default.
func (db *Connection) IsEnabled(ctx context.Context, guildID, feature string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	res, err := rethink.Table(guildsTable).Get(guildID).Run(db.exec)
	if err != nil {
		logrus.Warnf("Failed to read feature flags of guild %v due to error %v", guildID, err)
		return false, err
	}
	defer res.Close()
	if res.IsNil() {
		return db.featureDefault, nil
	}
	var guild guildmodels.DiscordGuild
	if err := res.One(&guild); err != nil {
		return false, fmt.Errorf("failed to read guild %v: %w", guildID, err)
	}
	return guild.FeatureEnabled(feature, db.featureDefault), nil
}

//SetFeature switches a feature on or off for a guild
func (db *Connection) SetFeature(ctx context.Context, guildID, feature string, enabled bool) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if _, err := db.GetOrCreateGuild(guildID); err != nil {
		return err
	}
	resp, err := rethink.Table(guildsTable).Get(guildID).Update(map[string]interface{}{
		"features": map[string]interface{}{
			feature: enabled,
		},
	}).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to set feature %v of guild %v due to error %v", feature, guildID, err)
		return err
	}
	return writeError(resp)
}
