package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/bot"
	"github.com/ishyv/tx-discord-bot-sub004/config"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const appName = "txbot"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Discord bot assigning roles automatically",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.Version = version.Version
	cmd.AddCommand(newServeCmd(), newParseCmd(), newVersionCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and run the autorole engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := bot.ConfigureLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	logrus.Infof("Starting %v %v", appName, version.Info())

	b, err := bot.Init(cfg)
	if err != nil {
		logrus.Errorf("Failed to start discord bot")
		return err
	}
	defer b.Close()

	addURL, err := b.BotAddURL()
	if err != nil {
		logrus.Errorf("Failed to generate bot add URL due to error %v", err)
	} else {
		logrus.Infof("Go to `%v` to add bot to your server", addURL)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	logrus.Infof("Bot is now running. Press ^+C to exit.")
	err = b.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	fmt.Println("Goodbye!")
	return err
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <trigger>",
		Short: "Parse a trigger expression and print it as JSON",
		Long:  "Parse a trigger expression and print it as JSON. Accepted expressions:\n" + autorole.TriggerSyntax,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			trigger, ok := autorole.ParseTrigger(text)
			if !ok {
				return fmt.Errorf("could not parse trigger %q", text)
			}
			out, err := json.MarshalIndent(trigger, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Print(appName))
		},
	}
}
