package bot

import (
	"context"

	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/sirupsen/logrus"
)

type reputationFeed interface {
	WatchReputation(ctx context.Context, fn func(guildmodels.ReputationChange)) error
}

//reputationWatcher turns ledger changefeed events into reputation rule syncs. It implements
//suture.Service; a broken feed returns an error and is restarted by the supervisor.
type reputationWatcher struct {
	feed    reputationFeed
	service *autorole.Service
}

func newReputationWatcher(feed reputationFeed, service *autorole.Service) *reputationWatcher {
	return &reputationWatcher{feed: feed, service: service}
}

func (w *reputationWatcher) Serve(ctx context.Context) error {
	logrus.Info("Watching member reputation changes")
	return w.feed.WatchReputation(ctx, func(change guildmodels.ReputationChange) {
		autorole.BestEffort(ctx, "reputation_change", func(ctx context.Context) error {
			return w.service.HandleReputationChange(ctx, change)
		})
	})
}

func (w *reputationWatcher) String() string {
	return "reputation-watcher"
}
