package guildmodels

//MemberData represents the data stored on any given member. Reputation is written by the
//reputation ledger; the autorole engine only reads it.
type MemberData struct {
	GuildID    string `gorethink:"id[0]"`
	UserID     string `gorethink:"id[1]"`
	Reputation int64  `gorethink:"reputation"`
}

//ReputationChange is emitted whenever a member's reputation row changes
type ReputationChange struct {
	GuildID    string
	UserID     string
	Reputation int64
}
