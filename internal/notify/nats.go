package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig holds connection settings for the NATS backend.
type NATSConfig struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// DefaultNATSConfig returns sensible defaults for local development.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		Name:           "gacha-indexer",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 10 * time.Second,
	}
}

// NATSNotifier publishes play updates as NATS subjects. The channel name
// maps directly onto a subject, so a frontend gateway can subscribe to
// plays.> for the full stream.
type NATSNotifier struct {
	nc *nats.Conn
}

func NewNATSNotifier(cfg NATSConfig, logger *slog.Logger) (*NATSNotifier, error) {
	defaults := DefaultNATSConfig()
	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = defaults.ReconnectWait
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "nats-notifier")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSNotifier{nc: nc}, nil
}

func (n *NATSNotifier) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	// Channel plays:<sig> becomes subject plays.<sig>.
	subject := "plays." + msg.Signature
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s to %s: %w", msg.Kind, subject, err)
	}
	return nil
}

func (n *NATSNotifier) Close() error {
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
