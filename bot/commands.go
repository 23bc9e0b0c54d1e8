package bot

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/sirupsen/logrus"
)

//commandTimeout bounds the work a single text command may do
const commandTimeout = 2 * time.Minute

type adminStore interface {
	GetOrCreateGuild(id string) (*guildmodels.DiscordGuild, error)
	AddAdminRole(gid string, roleID string) (int, error)
	SetFeature(ctx context.Context, guildID, feature string, enabled bool) error
}

type roleDirectory interface {
	GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error)
	Guild(ctx context.Context, guildID string) (*discordgo.Guild, error)
}

type ruleManager interface {
	CreateRule(ctx context.Context, rule guildmodels.Rule) error
	DeleteRule(ctx context.Context, guildID, name string) (int, error)
	ToggleRule(ctx context.Context, guildID, name string, enabled bool) (*guildmodels.Rule, error)
	ListGuildRules(ctx context.Context, guildID string) ([]guildmodels.Rule, error)
	RefreshGuildRules(ctx context.Context, guildID string) (int, error)
	FeatureEnabled(ctx context.Context, guildID string) (bool, error)
}

type antiquitySweeper interface {
	SweepGuild(ctx context.Context, guildID string) error
}

//commandHandler runs the text command surface
type commandHandler struct {
	db        adminStore
	platform  roleDirectory
	autorole  ruleManager
	antiquity antiquitySweeper
	devUID    string
	reply     func(msg *discordgo.MessageCreate, resp *discordgo.MessageSend)
}

//HandleMessage checks if the message is a command, and executes it.
func (h *commandHandler) HandleMessage(ctx context.Context, msg *discordgo.MessageCreate) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	result := h.run(ctx, msg)
	if result == nil {
		return
	}
	//Respond
	result.WriteToLog()
	h.reply(msg, result.DiscordResponse())
}

//run returns nil for messages that are not commands of this bot
func (h *commandHandler) run(ctx context.Context, msg *discordgo.MessageCreate) Response {
	if msg.GuildID == "" || len(msg.Content) == 0 || msg.Content[0] != '!' {
		return nil
	}
	words := strings.SplitN(msg.Content, " ", 2)
	command := strings.TrimLeft(words[0], "!")
	switch command {
	case "addadminrole":
		return h.handleAddAdminRole(ctx, msg)
	case "autorole":
		return h.handleAutorole(ctx, msg)
	}
	return nil
}

//requireAdmin returns a response rejecting the command, or nil if the sender may run it
func (h *commandHandler) requireAdmin(ctx context.Context, command string, msg *discordgo.MessageCreate) Response {
	isFromAdmin, err := h.isFromAdmin(ctx, msg.Member, msg.Author, msg.GuildID)
	if err != nil {
		logrus.Warnf("Failed to check if message came from admin due to error %v", err)
		return ResponseInternalError{
			command:     command,
			commandMsg:  msg.Content,
			description: err.Error(),
			timestamp:   time.Now(),
		}
	} else if !isFromAdmin {
		return ResponseNotAllowed{
			command:     command,
			commandMsg:  msg.Content,
			description: "Only the server owner and members with an admin role may run this command",
			timestamp:   time.Now(),
		}
	}
	return nil
}

func (b *TxBot) reply(msg *discordgo.MessageCreate, resp *discordgo.MessageSend) {
	resp.Reference = &discordgo.MessageReference{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
	}
	_, err := b.platform.Session().ChannelMessageSendComplex(msg.ChannelID, resp)
	if err != nil {
		logrus.Errorf("Failed to send response to command due to error %v", err)
	}
}
