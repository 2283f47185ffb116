package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/rideline-io/rideline/pkg/log"
	"github.com/rideline-io/rideline/pkg/mqtt"
	"github.com/rideline-io/rideline/pkg/mqtt/topic"
)

// ExampleClient shows a driver subscribing to its downstream events and publishing a command.
func ExampleClient() {
	topics := topic.NewTopicBuilder("rideline/v1")

	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "driver-D1",
		Username:       "D1",
		Password:       "<bearer token>",
		KeepAlive:      30,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
		WillTopic:      topics.Presence("D1"),
		WillPayload:    []byte(`{"status":"offline"}`),
		WillRetain:     true,
		OnConnectionUp: func() { log.Info("driver channel up") },
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	// Start returns immediately; autopaho keeps reconnecting in the background.
	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}

	onEvent := func(ctx context.Context, t string, payload []byte) {
		ev, _ := topics.EventName(t)
		fmt.Printf("event %s: %s\n", ev, payload)
	}

	// Re-sent automatically after every reconnect.
	if err := client.Subscribe(ctx, topics.DownWildcard("D1"), 1, onEvent); err != nil {
		log.Error(err, "Failed to subscribe")
	}

	if err := client.AwaitConnection(ctx); err != nil {
		log.Error(err, "Connection timed out")
		return
	}

	payload := []byte(`{"driverId":"D1","status":"online"}`)
	if err := client.Publish(ctx, topics.Up("D1", "driver_status"), 1, false, payload); err != nil {
		log.Error(err, "Failed to publish message")
	}

	client.Disconnect(ctx)
}
