package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/config"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

//Platform performs the REST calls of the autorole engine. Every call goes through a circuit
//breaker so a Discord outage fails fast instead of piling up requests.
type Platform struct {
	session *discordgo.Session
	breaker *gobreaker.CircuitBreaker[any]
}

//NewPlatform wraps a session with a breaker configured from cfg
func NewPlatform(session *discordgo.Session, cfg config.BreakerConfig) *Platform {
	settings := gobreaker.Settings{
		Name:    "discord-rest",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.Warnf("Circuit breaker %v changed from %v to %v", name, from, to)
		},
		IsSuccessful: countsAsSuccess,
	}
	return &Platform{
		session: session,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

//countsAsSuccess reports true for everything except server errors and transport failures, so
//rejected requests (missing permissions, unknown member) do not trip the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode < http.StatusInternalServerError
	}
	return false
}

//Session returns the underlying discordgo session
func (p *Platform) Session() *discordgo.Session {
	return p.session
}

func (p *Platform) call(fn func() error) error {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

//AddRole adds a role to a guild member
func (p *Platform) AddRole(ctx context.Context, guildID, memberID, roleID, reason string) error {
	return p.call(func() error {
		return p.session.GuildMemberRoleAdd(guildID, memberID, roleID,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	})
}

//RemoveRole removes a role from a guild member
func (p *Platform) RemoveRole(ctx context.Context, guildID, memberID, roleID, reason string) error {
	return p.call(func() error {
		return p.session.GuildMemberRoleRemove(guildID, memberID, roleID,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	})
}

//FetchRole looks a role up in the state cache, falling back to the REST API. It returns nil
//without error when the guild has no such role.
func (p *Platform) FetchRole(ctx context.Context, guildID, roleID string) (*autorole.RoleInfo, error) {
	if p.session.State != nil {
		if role, err := p.session.State.Role(guildID, roleID); err == nil {
			return &autorole.RoleInfo{ID: role.ID, Name: role.Name}, nil
		}
	}
	roles, err := p.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role.ID == roleID {
			return &autorole.RoleInfo{ID: role.ID, Name: role.Name}, nil
		}
	}
	return nil, nil
}

//GuildRoles lists every role of a guild
func (p *Platform) GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	var roles []*discordgo.Role
	err := p.call(func() (err error) {
		roles, err = p.session.GuildRoles(guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		logrus.Warnf("Failed to fetch guild roles for guild id %v due to error %v", guildID, err)
		return nil, err
	}
	return roles, nil
}

//FetchGuild looks a guild up in the state cache, falling back to the REST API
func (p *Platform) FetchGuild(ctx context.Context, guildID string) (*autorole.GuildInfo, error) {
	guild, err := p.Guild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return &autorole.GuildInfo{ID: guild.ID, Name: guild.Name}, nil
}

//Guild returns the full discordgo guild object
func (p *Platform) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if p.session.State != nil {
		if guild, err := p.session.State.Guild(guildID); err == nil {
			return guild, nil
		}
	}
	var guild *discordgo.Guild
	err := p.call(func() (err error) {
		guild, err = p.session.Guild(guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch guild %v: %w", guildID, err)
	}
	return guild, nil
}

//SendDirectMessage opens a DM channel with a user and posts content to it
func (p *Platform) SendDirectMessage(ctx context.Context, memberID, content string) error {
	return p.call(func() error {
		channel, err := p.session.UserChannelCreate(memberID, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		_, err = p.session.ChannelMessageSend(channel.ID, content, discordgo.WithContext(ctx))
		return err
	})
}

//MessageAuthor returns the ID of the user who posted a message
func (p *Platform) MessageAuthor(ctx context.Context, channelID, messageID string) (string, error) {
	if p.session.State != nil {
		if msg, err := p.session.State.Message(channelID, messageID); err == nil && msg.Author != nil {
			return msg.Author.ID, nil
		}
	}
	var msg *discordgo.Message
	err := p.call(func() (err error) {
		msg, err = p.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return "", err
	}
	if msg.Author == nil {
		return "", nil
	}
	return msg.Author.ID, nil
}

//isBotMember answers from the state cache only; unknown members are treated as humans
func (p *Platform) isBotMember(guildID, userID string) bool {
	if p.session.State == nil {
		return false
	}
	member, err := p.session.State.Member(guildID, userID)
	if err != nil || member.User == nil {
		return false
	}
	return member.User.Bot
}
