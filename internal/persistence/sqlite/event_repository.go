package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/secret-santa/internal/persistence"
)

// EventRepository implements persistence.EventRepository using SQLite.
//
// Every write runs in an immediate transaction, so the started flag read at the
// beginning of a transaction cannot change before it commits.
type EventRepository struct {
	pool *ConnectionPool
}

// NewEventRepository creates a SQLite event repository.
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{pool: pool}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const eventColumns = `e.id, e.title, e.description, e.location, e.moderator_id, e.started, e.started_at, e.created_at, e.updated_at`

// CreateEvent inserts the event and its attender set.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || event.ModeratorID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var startedAt any
		if event.StartedAt != nil {
			startedAt = formatTime(*event.StartedAt)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, title, description, location, moderator_id, started, started_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID,
			event.Title,
			event.Description,
			event.Location,
			event.ModeratorID,
			boolToInt(event.Started),
			startedAt,
			formatTime(event.CreatedAt),
			formatTime(event.UpdatedAt),
		); err != nil {
			return err
		}
		return insertAttenders(ctx, tx, event.ID, event.AttenderIDs)
	})
}

// UpdateEvent overwrites title, description and location, and optionally the
// attender set, in one transaction.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event, replaceAttenders bool) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if replaceAttenders {
			if err := requireOpen(ctx, tx, event.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM event_attenders WHERE event_id = ?`, event.ID); err != nil {
				return err
			}
			if err := insertAttenders(ctx, tx, event.ID, event.AttenderIDs); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE events
			SET title = ?, description = ?, location = ?, updated_at = ?
			WHERE id = ?`,
			event.Title,
			event.Description,
			event.Location,
			formatTime(event.UpdatedAt),
			event.ID,
		)
		if err != nil {
			return err
		}
		return requireAffected(result)
	})
}

// GetEvent loads an event with its attenders.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if id == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return getEvent(ctx, r.pool.db, id)
}

// ListEventsForAttender returns the events the user attends, newest first.
func (r *EventRepository) ListEventsForAttender(ctx context.Context, userID string) ([]persistence.Event, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events e
		JOIN event_attenders a ON a.event_id = e.id
		WHERE a.user_id = ?
		ORDER BY e.created_at DESC, e.id ASC`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	for i := range events {
		if events[i].AttenderIDs, err = listAttenders(ctx, r.pool.db, events[i].ID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// DeleteEvent removes the event. Attenders and gifts cascade.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// AddAttender adds userID to an open event. Adding an existing attender is a no-op.
func (r *EventRepository) AddAttender(ctx context.Context, eventID, userID string, updatedAt time.Time) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := requireOpen(ctx, tx, eventID); err != nil {
			return err
		}
		if err := insertAttenders(ctx, tx, eventID, []string{userID}); err != nil {
			return err
		}
		return touchEvent(ctx, tx, eventID, updatedAt)
	})
}

// StartEvent claims the open to started transition, computes the gifts through
// assign and stores them, all in one transaction. A second caller blocks on the
// write lock until the first commits and then observes ErrConflict.
func (r *EventRepository) StartEvent(ctx context.Context, eventID string, startedAt time.Time, assign persistence.AssignFunc) (persistence.Event, []persistence.Gift, error) {
	var (
		started persistence.Event
		gifts   []persistence.Gift
	)

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE events
			SET started = 1, started_at = ?, updated_at = ?
			WHERE id = ? AND started = 0`,
			formatTime(startedAt), formatTime(startedAt), eventID,
		)
		if err != nil {
			return err
		}
		if err := requireAffected(result); err != nil {
			if _, getErr := getEvent(ctx, tx, eventID); getErr != nil {
				return getErr
			}
			return fmt.Errorf("%w: event %s already started", persistence.ErrConflict, eventID)
		}

		event, err := getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}

		computed, err := assign(event)
		if err != nil {
			return err
		}
		for _, gift := range computed {
			if gift.EventID != eventID {
				return fmt.Errorf("%w: gift %s belongs to event %q", persistence.ErrConstraintViolation, gift.ID, gift.EventID)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO gifts (id, event_id, giver_id, receiver_id, created_at)
				VALUES (?, ?, ?, ?, ?)`,
				gift.ID, gift.EventID, gift.GiverID, gift.ReceiverID, formatTime(gift.CreatedAt),
			); err != nil {
				return err
			}
		}

		started, gifts = event, computed
		return nil
	})
	if err != nil {
		return persistence.Event{}, nil, err
	}
	return started, gifts, nil
}

// GetGiftByGiver returns the gift the giver has to buy in the event.
func (r *EventRepository) GetGiftByGiver(ctx context.Context, eventID, giverID string) (persistence.Gift, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT id, event_id, giver_id, receiver_id, created_at
		FROM gifts
		WHERE event_id = ? AND giver_id = ?`, eventID, giverID)
	return scanGift(row)
}

// ListGifts returns every gift of the event ordered by giver.
func (r *EventRepository) ListGifts(ctx context.Context, eventID string) ([]persistence.Gift, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, event_id, giver_id, receiver_id, created_at
		FROM gifts
		WHERE event_id = ?
		ORDER BY giver_id ASC`, eventID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var gifts []persistence.Gift
	for rows.Next() {
		gift, err := scanGift(rows)
		if err != nil {
			return nil, err
		}
		gifts = append(gifts, gift)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return gifts, nil
}

func getEvent(ctx context.Context, q querier, id string) (persistence.Event, error) {
	row := q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
	event, err := scanEvent(row)
	if err != nil {
		return persistence.Event{}, err
	}
	if event.AttenderIDs, err = listAttenders(ctx, q, id); err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}

func listAttenders(ctx context.Context, q querier, eventID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id FROM event_attenders
		WHERE event_id = ?
		ORDER BY user_id ASC`, eventID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

func insertAttenders(ctx context.Context, q querier, eventID string, userIDs []string) error {
	for _, userID := range userIDs {
		if strings.TrimSpace(userID) == "" {
			return fmt.Errorf("%w: empty attender id", persistence.ErrConstraintViolation)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_attenders (event_id, user_id) VALUES (?, ?)`,
			eventID, userID,
		); err != nil {
			return err
		}
	}
	return nil
}

func requireOpen(ctx context.Context, q querier, eventID string) error {
	var started int
	if err := q.QueryRowContext(ctx, `SELECT started FROM events WHERE id = ?`, eventID).Scan(&started); err != nil {
		return mapError(err)
	}
	if started != 0 {
		return fmt.Errorf("%w: event %s already started", persistence.ErrConflict, eventID)
	}
	return nil
}

func touchEvent(ctx context.Context, q querier, eventID string, updatedAt time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE events SET updated_at = ? WHERE id = ?`, formatTime(updatedAt), eventID)
	return err
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		event                persistence.Event
		started              int
		startedAt            sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.Location,
		&event.ModeratorID,
		&started,
		&startedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Event{}, mapError(err)
	}

	event.Started = started != 0
	var err error
	if startedAt.Valid {
		ts, err := parseTime("started_at", startedAt.String)
		if err != nil {
			return persistence.Event{}, err
		}
		event.StartedAt = &ts
	}
	if event.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Event{}, err
	}
	if event.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}

func scanGift(row rowScanner) (persistence.Gift, error) {
	var (
		gift      persistence.Gift
		createdAt string
	)
	if err := row.Scan(&gift.ID, &gift.EventID, &gift.GiverID, &gift.ReceiverID, &createdAt); err != nil {
		return persistence.Gift{}, mapError(err)
	}
	var err error
	if gift.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Gift{}, err
	}
	return gift, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
