// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"github.com/caarlos0/env/v11"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"
)

var (
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
)

// PubSubConfig holds the Pub/Sub destination settings.
type PubSubConfig struct {
	ProjectID       string `env:"PUBSUB_PROJECT"`
	TopicID         string `env:"PUBSUB_TOPIC"`
	CredentialsFile string `env:"PUBSUB_CREDENTIALS_FILE"`
}

// LoadPubSubConfig reads the Pub/Sub settings from the environment.
func LoadPubSubConfig() (PubSubConfig, error) {
	config, err := env.ParseAs[PubSubConfig]()
	if err != nil {
		return PubSubConfig{}, handleError(err)
	}
	return config, nil
}

// Enabled reports whether any Pub/Sub setting has been provided.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" || c.TopicID != ""
}

func (c PubSubConfig) validate() error {
	missingEnvs := make([]string, 0)
	if c.ProjectID == "" {
		missingEnvs = append(missingEnvs, "PUBSUB_PROJECT")
	}
	if c.TopicID == "" {
		missingEnvs = append(missingEnvs, "PUBSUB_TOPIC")
	}

	if len(missingEnvs) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, strings.Join(missingEnvs, ", "))
	}
	return nil
}

var _ Sender = &pubSubSender{}

type pubSubSender struct {
	config  PubSubConfig
	options []option.ClientOption

	lock      sync.Mutex
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// NewPubSubSender returns a Sender publishing every update as a JSON message on the configured
// topic. The client is created on the first Send; extra options are appended to the ones derived
// from config.
func NewPubSubSender(config PubSubConfig, options ...option.ClientOption) (Sender, error) {
	if err := config.validate(); err != nil {
		return nil, handleError(err)
	}

	clientOptions := make([]option.ClientOption, 0, len(options)+1)
	if config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(config.CredentialsFile))
	}
	clientOptions = append(clientOptions, options...)

	return &pubSubSender{
		config:  config,
		options: clientOptions,
	}, nil
}

func (s *pubSubSender) initPublisher(ctx context.Context) (*pubsub.Publisher, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.publisher != nil {
		return s.publisher, nil
	}

	client, err := pubsub.NewClient(ctx, s.config.ProjectID, s.options...)
	if err != nil {
		return nil, err
	}

	s.client = client
	s.publisher = client.Publisher(s.config.TopicID)
	return s.publisher, nil
}

func (s *pubSubSender) Send(ctx context.Context, update Update) error {
	publisher, err := s.initPublisher(ctx)
	if err != nil {
		return handleError(err)
	}

	data, err := json.Marshal(update)
	if err != nil {
		return handleError(err)
	}

	attributes := map[string]string{
		"resource":  update.Resource,
		"ledger":    update.Ledger,
		"account":   update.Account,
		"operation": update.Operation(),
	}
	if !update.Removed {
		attributes["trustLevel"] = strings.ToLower(update.TrustLevel.String())
	}

	result := publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	if _, err := result.Get(ctx); err != nil {
		return handleError(err)
	}
	return nil
}

func (s *pubSubSender) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.client == nil {
		return nil
	}

	s.publisher.Stop()
	err := s.client.Close()
	s.client = nil
	s.publisher = nil
	return handleError(err)
}

// handleError unwraps configuration and gRPC errors and wraps them in a PublisherError.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	if statusErr, ok := status.FromError(err); ok {
		err = errors.New(statusErr.Message())
	}

	return &PublisherError{err: err}
}
