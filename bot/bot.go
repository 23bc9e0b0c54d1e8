package bot

import (
	"context"
	"net/url"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/config"
	"github.com/ishyv/tx-discord-bot-sub004/db"
	"github.com/ishyv/tx-discord-bot-sub004/discord"
	"github.com/ishyv/tx-discord-bot-sub004/metrics"
	"github.com/ishyv/tx-discord-bot-sub004/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/thejerf/suture/v4"
)

//hydrateTimeout bounds the initial rule load
const hydrateTimeout = time.Minute

//store is the database surface the bot needs on top of the autorole stores
type store interface {
	autorole.RuleStore
	autorole.GrantStore
	autorole.TallyStore
	autorole.FeatureFlags
	autorole.ReputationLedger
	adminStore
}

//TxBot represents an instance of the discord bot, containing handles to the various external connections.
type TxBot struct {
	cfg               *config.Config
	DBConnection      *db.Connection
	DiscordConnection *discord.EventSource
	platform          *discord.Platform
	commands          *commandHandler
	autorole          *autorole.Service
	timedGrants       *scheduler.TimedGrants
	antiquity         *scheduler.Antiquity
	supervisor        *suture.Supervisor
}

//Init connects to the database, builds the autorole engine and registers the gateway
//handlers. Nothing runs until Serve is called.
func Init(cfg *config.Config) (*TxBot, error) {
	res := TxBot{cfg: cfg}

	//Start database connection
	conn, err := db.Init(cfg.DB, cfg.Autorole.FeatureDefault)
	if err != nil {
		logrus.Errorf("Cannot start bot due to error initializing database connection: %v", err)
		return nil, err
	}
	res.DBConnection = conn

	//Prepare discord connection
	session, err := discord.NewSession(cfg.Discord)
	if err != nil {
		logrus.Errorf("Cannot start bot due to error initializing discord connection: %v", err)
		conn.Close()
		return nil, err
	}
	res.platform = discord.NewPlatform(session, cfg.Breaker)

	res.wire(conn)
	res.DiscordConnection = discord.NewDiscordListener(res.platform, &res)
	res.supervisor = res.buildSupervisor(conn)
	return &res, nil
}

func (b *TxBot) wire(st store) {
	b.autorole = autorole.NewService(autorole.Deps{
		Rules:    st,
		Grants:   st,
		Tallies:  st,
		Flags:    st,
		Ledger:   st,
		Platform: b.platform,
	}, autorole.Config{
		DMOnGrant: b.cfg.Autorole.DMOnGrant,
	})
	b.timedGrants = scheduler.NewTimedGrants(b.cfg.Scheduler.TimedInterval, st, st, b.autorole)
	b.antiquity = scheduler.NewAntiquity(scheduler.AntiquityConfig{
		Interval:  b.cfg.Scheduler.AntiquityInterval,
		BootDelay: b.cfg.Scheduler.AntiquityBootDelay,
		PageSize:  b.cfg.Scheduler.AntiquityPageSize,
		MaxPages:  b.cfg.Scheduler.AntiquityMaxPages,
		PageDelay: b.cfg.Scheduler.AntiquityPageDelay,
	}, st, b.platform, b.autorole)
	b.commands = &commandHandler{
		db:        st,
		platform:  b.platform,
		autorole:  b.autorole,
		antiquity: b.antiquity,
		devUID:    b.cfg.Discord.DevUID,
		reply:     b.reply,
	}
}

func (b *TxBot) buildSupervisor(conn *db.Connection) *suture.Supervisor {
	sup := suture.New("txbot", suture.Spec{
		EventHook: supervisorEventHook,
	})
	sup.Add(b.DiscordConnection)
	sup.Add(scheduler.NewService("timed-grants", b.timedGrants))
	sup.Add(scheduler.NewService("antiquity", b.antiquity))
	sup.Add(newReputationWatcher(conn, b.autorole))
	if b.cfg.Metrics.Listen != "" {
		sup.Add(metrics.NewServer(b.cfg.Metrics.Listen))
	}
	return sup
}

//Serve loads every rule into the dispatch cache and runs the supervisor tree until ctx is
//cancelled
func (b *TxBot) Serve(ctx context.Context) error {
	hydrateCtx, cancel := context.WithTimeout(ctx, hydrateTimeout)
	err := b.autorole.HydrateAll(hydrateCtx)
	cancel()
	if err != nil {
		logrus.Errorf("Failed to load autorole rules due to error %v", err)
		return err
	}
	logrus.Infof("Loaded %d enabled autorole rules", b.autorole.Cache().RuleCount())
	return b.supervisor.Serve(ctx)
}

//BotAddURL generates a URL that can be used to add the bot to a server
func (b *TxBot) BotAddURL() (*url.URL, error) {
	return b.DiscordConnection.BotAddURL()
}

//Close waits for queued role operations and releases the database connection. Call it after
//Serve returned.
func (b *TxBot) Close() {
	logrus.Info("Terminating bot...")
	b.autorole.Queue().Wait()
	b.DBConnection.Close()
}
