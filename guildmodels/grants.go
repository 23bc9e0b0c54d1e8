package guildmodels

import "time"

//Grant records one rule's claim ("reason") on a role for a member. A member keeps a role
//while at least one grant for the (guild, member, role) triple exists.
type Grant struct {
	GuildID   string     `gorethink:"id[0]"`
	MemberID  string     `gorethink:"id[1]"`
	RoleID    string     `gorethink:"id[2]"`
	RuleName  string     `gorethink:"id[3]"`
	Kind      GrantKind  `gorethink:"id[4]"`
	ExpiresAt *time.Time `gorethink:"expires_at"`
	CreatedAt time.Time  `gorethink:"created_at"`
	UpdatedAt time.Time  `gorethink:"updated_at"`
}

//Key returns the compound primary key of the grant
func (g Grant) Key() []interface{} {
	return []interface{}{g.GuildID, g.MemberID, g.RoleID, g.RuleName, string(g.Kind)}
}

//Expired reports whether a TIMED grant is past its expiry at now
func (g Grant) Expired(now time.Time) bool {
	return g.Kind == GrantTimed && g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

//ReactionTally counts the reactions of one emoji on one message
type ReactionTally struct {
	GuildID   string    `gorethink:"id[0]"`
	MessageID string    `gorethink:"id[1]"`
	EmojiKey  string    `gorethink:"id[2]"`
	AuthorID  string    `gorethink:"author_id"`
	Count     int       `gorethink:"count"`
	CreatedAt time.Time `gorethink:"created_at"`
	UpdatedAt time.Time `gorethink:"updated_at"`
}

//Key returns the compound primary key of the tally
func (t ReactionTally) Key() []interface{} {
	return []interface{}{t.GuildID, t.MessageID, t.EmojiKey}
}

//PresenceKey marks that a member's reaction on a message has been processed. Message
//duplicates id[1] so a message's keys can be found without unpacking the compound key.
type PresenceKey struct {
	GuildID   string `gorethink:"id[0]"`
	MessageID string `gorethink:"id[1]"`
	EmojiKey  string `gorethink:"id[2]"`
	MemberID  string `gorethink:"id[3]"`
	Message   string `gorethink:"message"`
}

//Key returns the compound primary key of the presence marker
func (p PresenceKey) Key() []interface{} {
	return []interface{}{p.GuildID, p.MessageID, p.EmojiKey, p.MemberID}
}

//DrainedMessage lists what was cleared when a message was deleted
type DrainedMessage struct {
	GuildID   string
	MessageID string
	Presence  []PresenceKey
	Tallies   []ReactionTally
}
