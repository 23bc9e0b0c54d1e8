package discord

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bwmarrin/discordgo"
	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/config"
	"github.com/sirupsen/logrus"
)

const botScope = "bot"
const permissions = discordgo.PermissionManageRoles |
	discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory

//EventHandler is a struct which can handle all the events the discord listener generates.
type EventHandler interface {
	HandleCommand(*discordgo.MessageCreate)
	HandleReactionAdd(autorole.ReactionEvent)
	HandleReactionRemove(autorole.ReactionEvent)
	HandleMessageCreate(autorole.MessageEvent)
	HandleMessageDelete(guildID, messageID string)
	HandleMemberJoin(guildID string, member autorole.Member)
}

//EventSource represents a connection to the Discord gateway. It implements suture.Service.
type EventSource struct {
	discordClient *discordgo.Session
	platform      *Platform
	handler       EventHandler
}

//NewDiscordListener creates an EventSource and registers its handlers. The gateway connection
//is only opened by Serve.
func NewDiscordListener(platform *Platform, handler EventHandler) *EventSource {
	dispatch := EventSource{
		discordClient: platform.Session(),
		platform:      platform,
		handler:       handler,
	}
	dc := dispatch.discordClient

	//Register event handlers
	dc.AddHandler(dispatch.dispatchMessageCreateEvent)
	dc.AddHandler(dispatch.dispatchMessageDeleteEvent)
	dc.AddHandler(dispatch.dispatchReactionAddEvent)
	dc.AddHandler(dispatch.dispatchReactionRemoveEvent)
	dc.AddHandler(dispatch.dispatchMemberAddEvent)

	//Register intents
	dc.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	return &dispatch
}

//NewSession creates a discordgo session for a bot token
func NewSession(cfg config.DiscordConfig) (*discordgo.Session, error) {
	if cfg.Token == "" {
		logrus.Errorf("No discord bot token was configured.")
		return nil, fmt.Errorf("no discord bot token was configured")
	}
	dc, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		logrus.Warnf("Failed to create Discord gateway client due to %v", err)
		return nil, err
	}
	return dc, nil
}

//Serve opens the websocket connection and holds it until ctx is cancelled
func (d *EventSource) Serve(ctx context.Context) error {
	err := d.discordClient.Open()
	if err != nil {
		logrus.Errorf("Failed to connect to discord websockets gateway; encountered error %v", err)
		return err
	}
	<-ctx.Done()
	d.Close()
	return ctx.Err()
}

func (d *EventSource) String() string {
	return "discord-gateway"
}

//BotAddURL generates a URL that can be used to add the bot to a server
func (d *EventSource) BotAddURL() (*url.URL, error) {
	user, err := d.discordClient.User("@me")
	if err != nil {
		return nil, err
	}
	clientID := user.ID

	url, err := url.Parse("https://discord.com/api/oauth2/authorize")
	if err != nil {
		return nil, err
	}
	q := url.Query()
	q.Set("client_id", clientID)
	q.Set("scope", botScope)
	q.Set("permissions", fmt.Sprintf("%d", permissions))
	url.RawQuery = q.Encode()

	return url, nil
}

//Close cleanly terminates the Discord connection
func (d *EventSource) Close() {
	logrus.Info("Terminating discord event listener...")
	_ = d.discordClient.Close()
}

//Session returns a handle to the underlying discordgo session
func (d *EventSource) Session() *discordgo.Session {
	return d.discordClient
}

func isSelf(s *discordgo.Session, userID string) bool {
	return s.State != nil && s.State.User != nil && s.State.User.ID == userID
}

//Prevent panic from crashing the whole bot
func recoverHandler(event string) {
	if r := recover(); r != nil {
		logrus.Errorf("Bot handler for %v panicked: %v", event, r)
	}
}

func (d *EventSource) dispatchMessageCreateEvent(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || isSelf(s, m.Author.ID) {
		logrus.Debug("Got a message from self; Ignoring.")
		return
	}
	defer recoverHandler("message create")

	if len(m.Content) > 0 && m.Content[0] == '!' {
		d.handler.HandleCommand(m)
		return
	}
	d.handler.HandleMessageCreate(autorole.MessageEvent{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		AuthorID:    m.Author.ID,
		Content:     m.Content,
		AuthorIsBot: m.Author.Bot,
	})
}

func (d *EventSource) dispatchMessageDeleteEvent(s *discordgo.Session, m *discordgo.MessageDelete) {
	if m.Message == nil {
		return
	}
	defer recoverHandler("message delete")
	d.handler.HandleMessageDelete(m.GuildID, m.ID)
}

func (d *EventSource) dispatchReactionAddEvent(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil || isSelf(s, r.UserID) {
		return
	}
	defer recoverHandler("reaction add")
	isBot := r.Member != nil && r.Member.User != nil && r.Member.User.Bot
	d.handler.HandleReactionAdd(d.reactionEvent(r.MessageReaction, isBot))
}

func (d *EventSource) dispatchReactionRemoveEvent(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.MessageReaction == nil || isSelf(s, r.UserID) {
		return
	}
	defer recoverHandler("reaction remove")
	d.handler.HandleReactionRemove(d.reactionEvent(r.MessageReaction, d.platform.isBotMember(r.GuildID, r.UserID)))
}

func (d *EventSource) dispatchMemberAddEvent(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil {
		return
	}
	defer recoverHandler("member add")
	member, ok := toMember(m.Member)
	if !ok {
		return
	}
	d.handler.HandleMemberJoin(m.GuildID, member)
}

//reactionEvent translates a gateway reaction. The author of the reacted message is looked up
//only if a rule asks for it.
func (d *EventSource) reactionEvent(r *discordgo.MessageReaction, memberIsBot bool) autorole.ReactionEvent {
	channelID, messageID := r.ChannelID, r.MessageID
	return autorole.ReactionEvent{
		GuildID:     r.GuildID,
		ChannelID:   channelID,
		MessageID:   messageID,
		MemberID:    r.UserID,
		EmojiKey:    EmojiKey(&r.Emoji),
		MemberIsBot: memberIsBot,
		AuthorLookup: func(ctx context.Context) (string, error) {
			return d.platform.MessageAuthor(ctx, channelID, messageID)
		},
	}
}

//EmojiKey identifies an emoji: custom emoji by ID, unicode emoji by the emoji itself
func EmojiKey(e *discordgo.Emoji) string {
	if e == nil {
		return ""
	}
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}
