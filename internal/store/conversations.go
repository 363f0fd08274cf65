package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tandem-chat/backend/internal/prompts"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Conversations is the repository for conversation threads and their
// messages.
type Conversations struct {
	db *gorm.DB
}

func NewConversations(db *gorm.DB) *Conversations {
	return &Conversations{db: db}
}

func (r *Conversations) Create(ctx context.Context, targetLanguage, model string) (*Conversation, error) {
	c := &Conversation{
		ID:             uuid.NewString(),
		TargetLanguage: targetLanguage,
		Model:          model,
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (r *Conversations) Get(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Messages.Attachments").
		First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return &c, nil
}

func (r *Conversations) List(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

func (r *Conversations) SetTitle(ctx context.Context, id, title string) error {
	res := r.db.WithContext(ctx).Model(&Conversation{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("set title: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Conversations) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&Conversation{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage stores one finalized message and bumps the conversation's
// updated_at.
func (r *Conversations) AppendMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("append message: %w", err)
		}
		if err := tx.Model(&Conversation{}).Where("id = ?", m.ConversationID).
			Update("updated_at", tx.NowFunc()).Error; err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return nil
	})
}

// History loads a conversation's messages as prompt history entries, oldest
// first.
func (r *Conversations) History(ctx context.Context, id string) ([]prompts.HistoryEntry, error) {
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", id, err)
	}
	out := make([]prompts.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, prompts.HistoryEntry{
			Role:    prompts.Role(m.Role),
			Content: m.Content,
			Type:    prompts.MessageType(m.MessageType),
		})
	}
	return out, nil
}
