package ticket

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"gorm.io/gorm"
)

const maxIDAttempts = 5

type record struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"index"`
	Issue     string
	Status    string
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (record) TableName() string { return "tickets" }

// DBStore keeps tickets in the local database under random 6-digit ids.
type DBStore struct {
	db  *gorm.DB
	now func() time.Time
	// newID is replaceable in tests to force collisions.
	newID func() string
}

// NewDBStore migrates the tickets table and returns a DBStore.
func NewDBStore(db *gorm.DB) (*DBStore, error) {
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tickets: %w", err)
	}
	return &DBStore{db: db, now: time.Now, newID: randomID}, nil
}

func randomID() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

func (s *DBStore) Create(ctx context.Context, email, issue string) (*Ticket, error) {
	email, issue, err := Validate(email, issue)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	db := s.db.WithContext(ctx)
	for range maxIDAttempts {
		rec := &record{
			ID:        s.newID(),
			Email:     email,
			Issue:     issue,
			Status:    string(StatusPending),
			CreatedAt: now,
			UpdatedAt: now,
		}
		var n int64
		if err := db.Model(&record{}).Where("id = ?", rec.ID).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to check ticket id: %w", err)
		}
		if n > 0 {
			continue
		}
		if err := db.Create(rec).Error; err != nil {
			return nil, fmt.Errorf("failed to create ticket: %w", err)
		}
		return rec.ticket(), nil
	}
	return nil, fmt.Errorf("failed to allocate a ticket id after %d attempts", maxIDAttempts)
}

func (s *DBStore) Get(ctx context.Context, id string) (*Ticket, error) {
	var rec record
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}
	return rec.ticket(), nil
}

// SetStatus moves a ticket along its lifecycle.
func (s *DBStore) SetStatus(ctx context.Context, id string, status Status) (*Ticket, error) {
	switch status {
	case StatusPending, StatusInProgress, StatusResolved:
	default:
		return nil, fmt.Errorf("unknown ticket status %q", status)
	}
	res := s.db.WithContext(ctx).Model(&record{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": s.now().UTC()})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (r *record) ticket() *Ticket {
	return &Ticket{
		ID:        r.ID,
		Email:     r.Email,
		Issue:     r.Issue,
		Status:    Status(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
