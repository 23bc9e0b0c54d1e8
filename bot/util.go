package bot

import (
	"context"
	"fmt"
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

//Allows @mentions, double quotation marked role names, role IDs or single word role names
var roleRegex = regexp.MustCompile(`^\s*(?:<@&(\d+)>|"([^"]*)"|(\S+))\s*$`)

func (h *commandHandler) interpretRoleString(ctx context.Context, roleStr string, guildID string) (*discordgo.Role, error) {
	if !roleRegex.MatchString(roleStr) {
		return nil, fmt.Errorf("%q was not a valid role string format", roleStr)
	}
	guildRoles, err := h.platform.GuildRoles(ctx, guildID)
	if err != nil {
		logrus.Warnf("Failed to fetch guild roles for guild id %v", guildID)
		return nil, err
	}
	return findRole(guildRoles, roleStr), nil
}

//findRole resolves a mention, ID or name against a guild's roles, returning nil when nothing matches
func findRole(guildRoles []*discordgo.Role, roleStr string) *discordgo.Role {
	matches := roleRegex.FindStringSubmatch(roleStr)
	switch {
	case matches == nil:
		return nil
	case matches[1] != "":
		//We have a role id directly
		return roleWithID(guildRoles, matches[1])
	case matches[2] != "":
		//We have a role name
		return roleWithName(guildRoles, matches[2])
	default:
		//A bare word may be either an ID or a name
		if role := roleWithID(guildRoles, matches[3]); role != nil {
			return role
		}
		return roleWithName(guildRoles, matches[3])
	}
}

func roleWithID(guildRoles []*discordgo.Role, id string) *discordgo.Role {
	for _, guildRole := range guildRoles {
		if guildRole.ID == id {
			return guildRole
		}
	}
	return nil
}

func roleWithName(guildRoles []*discordgo.Role, name string) *discordgo.Role {
	for _, guildRole := range guildRoles {
		if guildRole.Name == name {
			return guildRole
		}
	}
	return nil
}

func (h *commandHandler) isFromAdmin(ctx context.Context, member *discordgo.Member, user *discordgo.User, guildID string) (bool, error) {
	if user == nil {
		return false, nil
	}
	//Works if from dev
	if h.devUID != "" && user.ID == h.devUID {
		return true, nil
	}
	//Works if from server owner
	guild, err := h.platform.Guild(ctx, guildID)
	if err != nil {
		logrus.Warnf("Failed to fetch guild object from Discord API when checking if user %v is admin for server %v", user.ID, guildID)
		return false, err
	} else if guild.OwnerID == user.ID {
		return true, nil
	}
	//Works if user has an admin role
	localGuild, err := h.db.GetOrCreateGuild(guildID)
	if err != nil {
		logrus.Warnf("Failed to fetch guild object from Database when checking if user %v is admin for server %v", user.ID, guildID)
		return false, err
	}
	if member == nil {
		return false, nil
	}
	for _, adminRole := range localGuild.AdminRoles {
		for _, senderRole := range member.Roles {
			if adminRole == senderRole {
				return true, nil
			}
		}
	}
	return false, nil
}
