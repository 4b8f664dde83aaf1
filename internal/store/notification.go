package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/foodalloc/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func scanNotification(s scanner) (*model.Notification, error) {
	var n model.Notification
	if err := s.Scan(&n.ID, &n.Level, &n.Message, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

const notificationCols = `id, level, message, created_at`

func (s *NotificationStore) Create(level, message string) (*model.Notification, error) {
	result, err := s.db.Exec(
		`INSERT INTO notifications (level, message, created_at) VALUES (?, ?, ?)`,
		level, message, stamp(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListRecent returns up to limit notifications, newest first.
func (s *NotificationStore) ListRecent(limit int) ([]model.Notification, error) {
	rows, err := s.db.Query(`SELECT `+notificationCols+` FROM notifications ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep notifications.
func (s *NotificationStore) Prune(keep int) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM notifications WHERE id NOT IN (SELECT id FROM notifications ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	return result.RowsAffected()
}
