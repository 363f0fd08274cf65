package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attachments is the repository for uploaded file metadata.
type Attachments struct {
	db *gorm.DB
}

func NewAttachments(db *gorm.DB) *Attachments {
	return &Attachments{db: db}
}

func (r *Attachments) Create(ctx context.Context, a *FileAttachment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.SavedAt.IsZero() {
		a.SavedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

func (r *Attachments) Get(ctx context.Context, id string) (*FileAttachment, error) {
	var a FileAttachment
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attachment %s: %w", id, err)
	}
	return &a, nil
}

// Claim links pre-uploaded attachments to the message that references them.
func (r *Attachments) Claim(ctx context.Context, messageID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&FileAttachment{}).
		Where("id IN ?", ids).
		Update("message_id", messageID).Error
	if err != nil {
		return fmt.Errorf("claim attachments: %w", err)
	}
	return nil
}

// ForIDs loads attachments by id, preserving the caller's order.
func (r *Attachments) ForIDs(ctx context.Context, ids []string) ([]FileAttachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []FileAttachment
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load attachments: %w", err)
	}
	byID := make(map[string]FileAttachment, len(rows))
	for _, a := range rows {
		byID[a.ID] = a
	}
	out := make([]FileAttachment, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("attachment %s: %w", id, ErrNotFound)
		}
		out = append(out, a)
	}
	return out, nil
}
