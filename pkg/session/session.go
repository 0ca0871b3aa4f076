// Package session persists chat sessions: the ordered message history shown
// to a user and the assistant thread id the conversation continues on.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no session has the requested id.
var ErrNotFound = errors.New("session not found")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a session transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a conversation as seen by its user.
type Session struct {
	ID        string    `json:"id"`
	ThreadID  *string   `json:"threadId"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type record struct {
	ID        string         `gorm:"primaryKey"`
	ThreadID  *string        `gorm:"index"`
	Messages  datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time      `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time      `gorm:"index;autoUpdateTime:false"`
}

func (record) TableName() string { return "chat_sessions" }

// Config configures a Store.
type Config struct {
	// WelcomeMessage seeds new and cleared sessions when non-empty.
	WelcomeMessage string
	Now            func() time.Time
}

// Store keeps sessions in a gorm database.
type Store struct {
	db      *gorm.DB
	welcome string
	now     func() time.Time
}

// NewStore migrates the sessions table and returns a Store.
func NewStore(db *gorm.DB, cfg Config) (*Store, error) {
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sessions: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, welcome: cfg.WelcomeMessage, now: now}, nil
}

// Create starts a new session without a thread.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Messages:  s.initialMessages(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec, err := toRecord(sess)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	rec, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// List returns all sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	var recs []record
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]Session, 0, len(recs))
	for i := range recs {
		sess, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&record{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear drops the transcript and the thread id, so the next turn starts a
// new thread.
func (s *Store) Clear(ctx context.Context, id string) (*Session, error) {
	return s.update(ctx, id, func(sess *Session, now time.Time) {
		sess.ThreadID = nil
		sess.Messages = s.initialMessages(now)
	})
}

// RecordTurn appends the user message and the assistant reply and stores the
// thread id the turn ran on.
func (s *Store) RecordTurn(ctx context.Context, id, threadID string, user, reply Message) (*Session, error) {
	return s.update(ctx, id, func(sess *Session, now time.Time) {
		sess.ThreadID = &threadID
		for _, m := range []Message{user, reply} {
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
			if m.Timestamp.IsZero() {
				m.Timestamp = now
			}
			sess.Messages = append(sess.Messages, m)
		}
	})
}

func (s *Store) update(ctx context.Context, id string, mutate func(*Session, time.Time)) (*Session, error) {
	var out *Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.load(tx, id)
		if err != nil {
			return err
		}
		sess, err := fromRecord(rec)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		mutate(sess, now)
		sess.UpdatedAt = now

		updated, err := toRecord(sess)
		if err != nil {
			return err
		}
		if err := tx.Save(updated).Error; err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) load(db *gorm.DB, id string) (*record, error) {
	var rec record
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &rec, nil
}

func (s *Store) initialMessages(now time.Time) []Message {
	if s.welcome == "" {
		return []Message{}
	}
	return []Message{{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   s.welcome,
		Timestamp: now,
	}}
}

func toRecord(sess *Session) (*record, error) {
	msgs := sess.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}
	return &record{
		ID:        sess.ID,
		ThreadID:  sess.ThreadID,
		Messages:  datatypes.JSON(data),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}, nil
}

func fromRecord(rec *record) (*Session, error) {
	msgs := []Message{}
	if len(rec.Messages) > 0 {
		if err := json.Unmarshal(rec.Messages, &msgs); err != nil {
			return nil, fmt.Errorf("failed to decode messages of session %s: %w", rec.ID, err)
		}
	}
	return &Session{
		ID:        rec.ID,
		ThreadID:  rec.ThreadID,
		Messages:  msgs,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
