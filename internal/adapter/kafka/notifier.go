// Package kafka publishes a change feed of reconciliation results so
// non-GIS consumers can follow station lifecycle changes without polling
// the feature tables.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
)

// Change kinds carried in the message header.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
)

// changeEvent is the JSON payload for one station change.
type changeEvent struct {
	Triplet    string         `json:"station_triplet"`
	Network    string         `json:"network_code"`
	Change     string         `json:"change"`
	Active     bool           `json:"active"`
	Station    domain.Station `json:"station"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier produces change events to a Kafka topic.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the change-feed topic.
func NewNotifier(brokers []string, topic string, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// PublishChanges publishes one message per inserted and updated station in a
// single WriteMessages call.
func (n *Notifier) PublishChanges(ctx context.Context, network string, cs domain.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	msgs := make([]kafkago.Message, 0, cs.Size())
	for _, st := range cs.Inserts {
		msg, err := serializeToMessage(network, ChangeCreated, st)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	for _, st := range cs.Updates {
		msg, err := serializeToMessage(network, ChangeUpdated, st)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish change feed: %w", err)
	}
	n.logger.Info("change feed published", "network", network, "messages", len(msgs))
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals one station change into a Kafka message keyed
// by triplet so a consumer sees each station's changes in order.
func serializeToMessage(network, change string, st domain.Station) (kafkago.Message, error) {
	occurredAt := st.SyncedAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	event := changeEvent{
		Triplet:    st.Triplet,
		Network:    network,
		Change:     change,
		Active:     st.Active(),
		Station:    st,
		OccurredAt: occurredAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize change event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(st.Triplet),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "network_code", Value: []byte(network)},
			{Key: "change", Value: []byte(change)},
		},
	}, nil
}
