package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/forecast"
)

// ErrMalformedMessage marks a message that can never be processed.
// Such messages are acknowledged so they are not redelivered.
var ErrMalformedMessage = errors.New("malformed refresh message")

// RefreshMessage requests a refresh. Empty Sources means the currently
// enabled sources; empty Date means today.
type RefreshMessage struct {
	Sources []string `json:"sources,omitempty"`
	Date    string   `json:"date,omitempty"`
}

// Decode validates the message and converts it to refresh arguments.
func (m RefreshMessage) Decode() ([]forecast.Source, time.Time, error) {
	sources := make([]forecast.Source, 0, len(m.Sources))
	for _, name := range m.Sources {
		src, err := forecast.ParseSource(name)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		sources = append(sources, src)
	}

	var date time.Time
	if m.Date != "" {
		d, err := forecast.ParseDate(m.Date)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		date = d
	}
	return sources, date, nil
}

// MessageHandler turns refresh message payloads into refresh runs.
type MessageHandler struct {
	job    *RefreshJob
	logger zerolog.Logger
}

// NewMessageHandler creates a handler running job.
func NewMessageHandler(job *RefreshJob, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{job: job, logger: logger}
}

// Handle processes one payload. A nil error or ErrMalformedMessage means the
// message should be acknowledged; any other error asks for redelivery.
func (h *MessageHandler) Handle(ctx context.Context, data []byte) error {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	sources, date, err := msg.Decode()
	if err != nil {
		return err
	}

	_, err = h.job.Run(ctx, sources, date)
	if errors.Is(err, forecast.ErrRefreshSuperseded) {
		// A newer refresh already covers this request.
		return nil
	}
	return err
}

// PubSubHandler receives refresh messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	handler          *MessageHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RefreshJob       *RefreshJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Refreshes are serialized by the service; a deep backlog only produces
	// superseded runs.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		handler:          NewMessageHandler(cfg.RefreshJob, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is canceled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received refresh message")

	err := h.handler.Handle(ctx, msg.Data)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, ErrMalformedMessage):
		logger.Warn().Err(err).Msg("dropping malformed refresh message")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("refresh message failed")
		msg.Nack()
	}
}
