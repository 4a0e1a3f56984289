// Package events holds the CLI commands for the permissions event stream.
package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	purchaseEvents "github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/events"
	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/eventbus"
)

// Cmd is the events command group.
var Cmd = &cobra.Command{
	Use:   "events",
	Short: "Follow permission change events",
}

var watchQueue string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print permission updates published to RabbitMQ",
	Long: `Print permission updates published to RabbitMQ until interrupted.

Without --queue a temporary queue is used, so only updates published while
watching are shown. With --queue a durable queue is consumed and updates
published while nobody watched are delivered too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Config == nil || app.Config.RabbitMQURL == "" {
			return errors.New("events watch requires RABBITMQ_URL")
		}

		sub, err := eventbus.NewSubscriber(eventbus.SubscriberConfig{
			URL:       app.Config.RabbitMQURL,
			Queue:     watchQueue,
			Exclusive: watchQueue == "",
		})
		if err != nil {
			return err
		}
		defer sub.Close()

		out := cmd.OutOrStdout()
		err = sub.Subscribe(purchaseEvents.PermissionsHandler(func(_ context.Context, event *eventbus.Event, update purchaseEvents.PermissionsUpdated) error {
			return writeUpdate(out, event, update)
		}))
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.ErrOrStderr(), "Watching permission updates (Ctrl+C to stop)...")
		if err := sub.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func writeUpdate(w io.Writer, event *eventbus.Event, update purchaseEvents.PermissionsUpdated) error {
	active := "none"
	if len(update.Active) > 0 {
		active = strings.Join(update.Active, ",")
	}
	line := fmt.Sprintf("%s project=%s active=%s permissions=%d",
		event.OccurredAt.Local().Format(time.RFC3339), update.ProjectKey, active, len(update.Permissions))
	if event.CorrelationID != "" {
		line += " correlation_id=" + event.CorrelationID
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func init() {
	watchCmd.Flags().StringVar(&watchQueue, "queue", "", "durable queue to consume instead of a temporary one")
	Cmd.AddCommand(watchCmd)
}
