package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fjod/chibi-storefront/internal/domain"
	"github.com/fjod/chibi-storefront/internal/events"
)

var eventsGroup string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail storefront activity events from Kafka",
	Long: `Print activity events (logins, cart and favorite changes) published by
chibi clients to the configured Kafka topic, one JSON document per line.
Requires events.brokers or CHIBI_KAFKA_BROKERS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Events.Brokers) == 0 {
			return errors.New("no kafka brokers configured")
		}
		consumer := events.NewConsumer(cfg.Events.Topic, eventsGroup, log, cfg.Events.Brokers...)
		defer consumer.Close()

		out := cmd.OutOrStdout()
		return consumer.Run(cmd.Context(), func(ev domain.ActivityEvent) error {
			if asJSON {
				return printJSON(out, ev)
			}
			_, err := fmt.Fprintf(out, "%s\t%s\t%s\t%v\n", ev.OccurredAt.Format("15:04:05"), ev.Type, ev.Actor, ev.Payload)
			return err
		})
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsGroup, "group", "chibi-tail", "Kafka consumer group")
}
