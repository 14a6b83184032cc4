package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"care-connect-be/internal/config"
	"care-connect-be/internal/pkg/serverutils"
	"care-connect-be/pkg/events"
	pktNats "care-connect-be/pkg/nats"
	"care-connect-be/pkg/syncpoller"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// connwatch follows one connection the way the web client does (poll mode) or
// tails the notification events on NATS (events mode).
func main() {
	cfg := config.Load()

	mode := flag.String("mode", "poll", "poll | events")
	baseURL := flag.String("url", cfg.App.BaseURL, "API base URL")
	connectionID := flag.String("connection", "", "connection id to follow (poll mode)")
	profileID := flag.String("profile", "", "profile id to act as; a token is signed with JWT_SECRET")
	token := flag.String("token", "", "bearer token, overrides -profile")
	interval := flag.Duration("interval", syncpoller.DefaultInterval, "poll interval")
	subject := flag.String("subject", pktNats.SubjectPrefix+">", "NATS subject (events mode)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch *mode {
	case "poll":
		err = watchConnection(ctx, cfg, *baseURL, *connectionID, *profileID, *token, *interval)
	case "events":
		err = tailEvents(ctx, cfg.App.NatsURL, *subject)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		color.Red("❌ %v", err)
		os.Exit(1)
	}
}

func watchConnection(ctx context.Context, cfg *config.Config, baseURL, connectionID, profileID, token string, interval time.Duration) error {
	id, err := uuid.Parse(connectionID)
	if err != nil {
		return fmt.Errorf("-connection must be a UUID: %w", err)
	}
	if token == "" {
		pid, err := uuid.Parse(profileID)
		if err != nil {
			return fmt.Errorf("need -token or a valid -profile: %w", err)
		}
		if token, err = serverutils.SignProfileToken(cfg.App.JwtSecret, pid); err != nil {
			return err
		}
	}

	fetcher := syncpoller.NewHTTPFetcher(baseURL, token, id)
	poller := syncpoller.New(fetcher, syncpoller.Options{
		Interval: interval,
		Versions: fetcher,
		OnChange: printChange,
		OnError: func(err error) {
			var se *syncpoller.StatusError
			if errors.As(err, &se) && !se.Retryable() {
				color.Red("✗ %v", err)
				return
			}
			color.Yellow("… %v (retrying)", err)
		},
	})

	color.Cyan("👀 Watching connection %s every %s", id, interval)
	return poller.Run(ctx)
}

type connectionDoc struct {
	Status          string `json:"status"`
	Withdrawn       bool   `json:"withdrawn"`
	Ended           bool   `json:"ended"`
	Hidden          bool   `json:"hidden"`
	Locked          bool   `json:"locked"`
	NextStepRequest *struct {
		Type string `json:"type"`
	} `json:"next_step_request"`
	Thread []struct {
		Type string    `json:"type"`
		Text string    `json:"text"`
		At   time.Time `json:"created_at"`
	} `json:"thread"`
}

func printChange(prev, next *syncpoller.Snapshot) {
	var before, after connectionDoc
	if prev != nil {
		_ = json.Unmarshal(prev.Raw, &before)
	}
	if err := json.Unmarshal(next.Raw, &after); err != nil {
		color.Red("✗ undecodable record: %v", err)
		return
	}

	stamp := next.UpdatedAt.Local().Format("15:04:05.000")
	if prev == nil || before.Status != after.Status {
		flags := ""
		if after.Withdrawn {
			flags += " withdrawn"
		}
		if after.Ended {
			flags += " ended"
		}
		if after.Hidden {
			flags += " hidden"
		}
		if after.Locked {
			flags += " locked"
		}
		color.Green("[%s] status %s%s", stamp, after.Status, flags)
	}

	for _, e := range after.Thread[min(len(before.Thread), len(after.Thread)):] {
		switch e.Type {
		case "system":
			color.Blue("[%s] · %s", e.At.Local().Format("15:04:05"), e.Text)
		case "next_step_request":
			color.Magenta("[%s] ⇢ %s", e.At.Local().Format("15:04:05"), e.Text)
		default:
			color.White("[%s] %s", e.At.Local().Format("15:04:05"), e.Text)
		}
	}

	switch {
	case before.NextStepRequest == nil && after.NextStepRequest != nil:
		color.Magenta("[%s] next step pending: %s", stamp, after.NextStepRequest.Type)
	case before.NextStepRequest != nil && after.NextStepRequest == nil:
		color.Magenta("[%s] next step slot cleared", stamp)
	}
}

func tailEvents(ctx context.Context, natsURL, subject string) error {
	sub, err := pktNats.NewSubscriber(natsURL)
	if err != nil {
		return err
	}
	defer sub.Close()

	color.Cyan("📡 Tailing %s on %s", subject, natsURL)
	return sub.Subscribe(ctx, subject, "", func(ctx context.Context, event events.Event) error {
		data := event.Payload()
		line := fmt.Sprintf("[%s] %-22s connection=%v actor=%v notify=%v",
			event.Timestamp().Local().Format("15:04:05"), event.EventType(),
			data["connection_id"], data["actor_id"], data["user_id"])
		switch event.EventType() {
		case events.ConnectionDeclined, events.ConnectionWithdrawn, events.ConnectionExpired, events.ConnectionEnded:
			color.Yellow("%s", line)
		case events.ConnectionMessage:
			color.White("%s", line)
		default:
			color.Green("%s", line)
		}
		return nil
	})
}
