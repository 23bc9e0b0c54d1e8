package discord

import (
	"context"
	"sort"

	"github.com/bwmarrin/discordgo"
	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/sirupsen/logrus"
)

//Discord caps a single member list request at this many entries
const maxMemberPageSize int = 1000

//ListMembers fetches one page of guild members with IDs greater than after, ordered by ID
func (p *Platform) ListMembers(ctx context.Context, guildID string, limit int, after string) ([]autorole.Member, error) {
	if limit <= 0 || limit > maxMemberPageSize {
		limit = maxMemberPageSize
	}
	if after == "" {
		after = "0"
	}
	var page []*discordgo.Member
	err := p.call(func() (err error) {
		page, err = p.session.GuildMembers(guildID, after, limit, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		logrus.Warnf("Failed to fetch page of guild members from discord api: %v", err)
		return nil, err
	}
	return toMembers(page), nil
}

func toMembers(page []*discordgo.Member) []autorole.Member {
	members := make([]autorole.Member, 0, len(page))
	for _, m := range page {
		if member, ok := toMember(m); ok {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return snowflakeLess(members[i].ID, members[j].ID)
	})
	return members
}

func toMember(m *discordgo.Member) (autorole.Member, bool) {
	if m == nil || m.User == nil {
		return autorole.Member{}, false
	}
	return autorole.Member{
		ID:       m.User.ID,
		JoinedAt: m.JoinedAt,
		Bot:      m.User.Bot,
	}, true
}

//Snowflakes are decimal strings, so a shorter one is always the smaller
func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
