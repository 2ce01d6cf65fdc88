package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/linnemanlabs/go-core/log"

	vc "github.com/linnemanlabs/beacon/internal/cfg"
	"github.com/linnemanlabs/beacon/internal/incident"
	"github.com/linnemanlabs/beacon/internal/incident/filestore"
	"github.com/linnemanlabs/beacon/internal/incident/memstore"
	"github.com/linnemanlabs/beacon/internal/incident/pgstore"
	"github.com/linnemanlabs/beacon/internal/notify"
	"github.com/linnemanlabs/beacon/internal/notify/pushover"
	"github.com/linnemanlabs/beacon/internal/notify/slack"
	"github.com/linnemanlabs/beacon/internal/notify/telegram"
	"github.com/linnemanlabs/beacon/internal/postgres"
)

// loadDotenv exports KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// openStore picks the incident backend: postgres when a database URL is set,
// the JSON file when a path is set, memory otherwise. The close func is never nil.
func openStore(ctx context.Context, c *vc.Config, L log.Logger) (incident.Store, func(), error) {
	switch {
	case c.DatabaseURL != "":
		pool, err := postgres.NewPool(ctx, c.DatabaseURL, c.SlowQuery())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		pg, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgstore init: %w", err)
		}
		L.Info(ctx, "using postgres incident store")
		return pg, pool.Close, nil

	case c.IncidentsFile != "":
		fsStore, err := filestore.New(c.IncidentsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("filestore init: %w", err)
		}
		L.Info(ctx, "using file incident store", "path", fsStore.Path())
		return fsStore, func() {}, nil

	default:
		L.Warn(ctx, "using in-memory incident store, incidents are lost on restart")
		return memstore.New(), func() {}, nil
	}
}

// deliveryPlan is the channel registry plus routing hints derived from config.
type deliveryPlan struct {
	channels    []notify.Channel
	broadcast   []notify.Target
	pushChannel string
	chatChannel string
}

// planDelivery builds the delivery channels. Pushover always pages people;
// Telegram pages people with a chat id and, with -telegram-chat-id, also
// receives every broadcast; Slack is broadcast only.
func planDelivery(c *vc.Config) deliveryPlan {
	p := deliveryPlan{
		channels: []notify.Channel{
			pushover.New(c.PushoverToken, pushover.WithRetry(
				time.Duration(c.PushoverRetrySeconds)*time.Second,
				time.Duration(c.PushoverExpireSeconds)*time.Second,
			)),
		},
		broadcast:   []notify.Target{},
		pushChannel: pushover.ChannelName,
	}

	if c.TelegramBotToken != "" {
		p.channels = append(p.channels, telegram.New(c.TelegramBotToken))
		p.chatChannel = telegram.ChannelName
		if c.TelegramChatID != "" {
			p.broadcast = append(p.broadcast, notify.Target{Channel: telegram.ChannelName, Address: c.TelegramChatID})
		}
	}

	if c.SlackWebhookURL != "" {
		p.channels = append(p.channels, slack.New(nil))
		p.broadcast = append(p.broadcast, notify.Target{Channel: slack.ChannelName, Address: c.SlackWebhookURL})
	}

	return p
}

// broadcastsResolutions reports whether resolutions have anywhere to go.
// Resolutions only reach broadcast targets.
func (p deliveryPlan) broadcastsResolutions() bool { return len(p.broadcast) > 0 }

func (p deliveryPlan) channelNames() []string {
	out := make([]string, 0, len(p.channels))
	for _, ch := range p.channels {
		out = append(out, ch.Name())
	}
	return out
}
