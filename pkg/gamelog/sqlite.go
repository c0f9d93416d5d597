package gamelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLiteLog is a durable Log backed by SQLite in WAL mode. The database is
// the replicated store: every client process reading the same file observes
// the same totally ordered event sequence. Subscriptions are poll-based;
// each poll that finds new rows yields them as one batch, which is exactly
// the catch-up batching the session engine expects.
type SQLiteLog struct {
	db           *sql.DB
	logger       *zap.Logger
	pollInterval time.Duration
	now          func() time.Time
}

const defaultPollInterval = 150 * time.Millisecond

// OpenSQLite opens (or creates) the log database at path and initializes
// the schema.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteLog, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	l := &SQLiteLog{
		db:           db,
		logger:       logger,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return l, nil
}

// Close closes the database connection.
func (l *SQLiteLog) Close() error { return l.db.Close() }

func (l *SQLiteLog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		session_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		time_ms    INTEGER NOT NULL,
		payload    TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Append implements Log. The sequence number is assigned inside a write
// transaction, so concurrent appenders from different processes never
// collide.
func (l *SQLiteLog) Append(ctx context.Context, sessionID uuid.UUID, ev Event) (Event, error) {
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}

	if ev.Time == 0 {
		ev.Time = l.now().UnixMilli()
	}

	err := retryOnContention(func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var next int64
		row := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE session_id = ?`,
			sessionID.String(),
		)
		if err := row.Scan(&next); err != nil {
			return err
		}

		ev.Seq = next

		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (session_id, seq, event_type, time_ms, payload)
			 VALUES (?, ?, ?, ?, ?)`,
			sessionID.String(), ev.Seq, string(ev.Type), ev.Time, string(payload),
		)
		if err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}

	return ev, nil
}

// Subscribe implements Log. The first poll delivers the backlog after
// fromSeq as one batch, then a synthetic Sync marker; subsequent polls
// deliver whatever accumulated since the cursor.
func (l *SQLiteLog) Subscribe(ctx context.Context, sessionID uuid.UUID, fromSeq int64) (<-chan Batch, error) {
	out := make(chan Batch)

	go func() {
		defer close(out)

		cursor := fromSeq

		// The Sync marker promises the subscriber a complete backlog, so a
		// failed read is retried rather than papered over with an empty one.
		var backlog Batch
		for {
			var err error
			backlog, err = l.eventsAfter(ctx, sessionID, cursor)
			if err == nil {
				break
			}

			l.logger.Warn("backlog read failed, retrying",
				zap.String("session_id", sessionID.String()),
				zap.Error(err),
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(l.pollInterval):
			}
		}

		if len(backlog) > 0 {
			cursor = backlog[len(backlog)-1].Seq
			select {
			case out <- backlog:
			case <-ctx.Done():
				return
			}
		}

		sync := Batch{{Type: TypeAction, Action: ActionSync, Time: l.now().UnixMilli()}}
		select {
		case out <- sync:
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(l.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			batch, err := l.eventsAfter(ctx, sessionID, cursor)
			if err != nil {
				l.logger.Warn("event poll failed",
					zap.String("session_id", sessionID.String()),
					zap.Error(err),
				)
				continue
			}
			if len(batch) == 0 {
				continue
			}

			cursor = batch[len(batch)-1].Seq

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (l *SQLiteLog) eventsAfter(ctx context.Context, sessionID uuid.UUID, seq int64) (Batch, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE session_id = ? AND seq > ? ORDER BY seq`,
		sessionID.String(), seq,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch Batch
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}

		batch = append(batch, ev)
	}

	return batch, rows.Err()
}
