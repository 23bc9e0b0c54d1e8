package guildmodels

//FeatureAutorole is the feature flag key gating every autorole action in a guild
const FeatureAutorole = "autorole"

//DiscordGuild contains configuration for a discord guild managed by this bot
type DiscordGuild struct {
	DiscordGID string          `gorethink:"id"`
	AdminRoles []string        `gorethink:"admin_roles"`
	Features   map[string]bool `gorethink:"features,omitempty"`
}

//DefaultGuild returns an otherwise-empty guild struct with a given ID
func DefaultGuild(gid string) DiscordGuild {
	return DiscordGuild{
		DiscordGID: gid,
		AdminRoles: []string{},
		Features:   map[string]bool{},
	}
}

//FeatureEnabled reports whether a feature is switched on for the guild, falling back to def
//when the guild never set it.
func (g *DiscordGuild) FeatureEnabled(feature string, def bool) bool {
	if g == nil || g.Features == nil {
		return def
	}
	enabled, ok := g.Features[feature]
	if !ok {
		return def
	}
	return enabled
}
