package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/ishyv/tx-discord-bot-sub004/autorole"
)

//Gateway events are fire-and-forget: failures are logged by BestEffort and never reach discordgo.

//HandleCommand is called upon every recieved message starting with '!'
func (b *TxBot) HandleCommand(msg *discordgo.MessageCreate) {
	b.commands.HandleMessage(context.Background(), msg)
}

func (b *TxBot) HandleReactionAdd(e autorole.ReactionEvent) {
	autorole.BestEffort(context.Background(), "reaction_add", func(ctx context.Context) error {
		return b.autorole.HandleReactionAdd(ctx, e)
	})
}

func (b *TxBot) HandleReactionRemove(e autorole.ReactionEvent) {
	autorole.BestEffort(context.Background(), "reaction_remove", func(ctx context.Context) error {
		return b.autorole.HandleReactionRemove(ctx, e)
	})
}

func (b *TxBot) HandleMessageCreate(e autorole.MessageEvent) {
	autorole.BestEffort(context.Background(), "message_create", func(ctx context.Context) error {
		return b.autorole.HandleMessageCreate(ctx, e)
	})
}

func (b *TxBot) HandleMessageDelete(guildID, messageID string) {
	autorole.BestEffort(context.Background(), "message_delete", func(ctx context.Context) error {
		return b.autorole.HandleMessageDelete(ctx, guildID, messageID)
	})
}

func (b *TxBot) HandleMemberJoin(guildID string, member autorole.Member) {
	autorole.BestEffort(context.Background(), "member_join", func(ctx context.Context) error {
		return b.autorole.HandleMemberJoin(ctx, guildID, member)
	})
}
