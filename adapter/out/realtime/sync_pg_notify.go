package realtime

import (
	"context"
	"fmt"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// =============================================================================
// PgNotifySubscriber - LISTEN/NOTIFY
// =============================================================================

// PgNotifySubscriber listens on one channel per table. Triggers on the
// backend publish ChangeEvent JSON with pg_notify(TG_TABLE_NAME, ...).
type PgNotifySubscriber struct {
	url string
	log zerolog.Logger
}

func NewPgNotifySubscriber(databaseURL string, log zerolog.Logger) *PgNotifySubscriber {
	return &PgNotifySubscriber{
		url: databaseURL,
		log: log.With().Str("component", "pg_notify").Logger(),
	}
}

func (s *PgNotifySubscriber) Subscribe(ctx context.Context, tables []string, onEvent func(domain.ChangeEvent)) (out.Subscription, error) {
	if err := validateTables(tables); err != nil {
		return nil, err
	}

	conn, err := pgx.Connect(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	for _, t := range tables {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{t}.Sanitize()); err != nil {
			conn.Close(context.Background())
			return nil, fmt.Errorf("listen %s: %w", t, err)
		}
	}
	s.log.Info().Strs("tables", tables).Msg("listening")

	loop := s.listenLoop(conn, tables, onEvent)
	release := func() error {
		return conn.Close(context.Background())
	}
	return startSubscription(ctx, loop, release), nil
}

// notificationSource is the part of *pgx.Conn the listen loop needs.
type notificationSource interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

func (s *PgNotifySubscriber) listenLoop(src notificationSource, tables []string, onEvent func(domain.ChangeEvent)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for {
			n, err := src.WaitForNotification(ctx)
			if err != nil {
				return fmt.Errorf("wait for notification: %w", err)
			}
			if !watched(tables, n.Channel) {
				continue
			}
			ev, err := decodeEvent([]byte(n.Payload), n.Channel)
			if err != nil {
				s.log.Warn().Err(err).Str("channel", n.Channel).Msg("dropping malformed notification")
				continue
			}
			onEvent(ev)
		}
	}
}
