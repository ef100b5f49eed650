package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository is the conversation store: it persists messages and
// answers queries by conversation. Listings are ordered by createdAt
// ascending and exclude deleted messages; reactions are attached.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conv models.ConversationRef, senderID int, payload models.MessagePayload) (models.Message, error)
	ListMessages(ctx context.Context, conv models.ConversationRef) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	AddReaction(ctx context.Context, messageID int, userID int, emoji string) error
	SetStarred(ctx context.Context, messageID int, starred bool) error
	UpdateText(ctx context.Context, messageID int, text string) error
	MarkDeleted(ctx context.Context, messageID int) error
}

// MessageRepo is a sqlx-backed implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	ID         int            `db:"id"`
	SenderID   int            `db:"sender_id"`
	ReceiverID sql.NullInt64  `db:"receiver_id"`
	GroupID    sql.NullInt64  `db:"group_id"`
	Text       sql.NullString `db:"text"`
	FileURL    sql.NullString `db:"file_url"`
	FileName   sql.NullString `db:"file_name"`
	FileType   sql.NullString `db:"file_type"`
	AudioURL   sql.NullString `db:"audio_url"`
	Starred    bool           `db:"starred"`
	Edited     bool           `db:"edited"`
	Deleted    bool           `db:"deleted"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (row messageRow) toModel() models.Message {
	msg := models.Message{
		ID:        row.ID,
		SenderID:  row.SenderID,
		Reactions: []models.Reaction{},
		Starred:   row.Starred,
		Edited:    row.Edited,
		Deleted:   row.Deleted,
		CreatedAt: row.CreatedAt,
	}
	if row.ReceiverID.Valid {
		receiver := int(row.ReceiverID.Int64)
		msg.ReceiverID = &receiver
	}
	if row.GroupID.Valid {
		group := int(row.GroupID.Int64)
		msg.GroupID = &group
	}
	if row.Text.Valid {
		text := row.Text.String
		msg.Text = &text
	}
	if row.FileURL.Valid {
		msg.File = &models.FileAttachment{
			URL:  row.FileURL.String,
			Name: row.FileName.String,
			Type: row.FileType.String,
		}
	}
	if row.AudioURL.Valid {
		audio := row.AudioURL.String
		msg.Audio = &audio
	}
	return msg
}

const messageColumns = `id, sender_id, receiver_id, group_id, text, file_url, file_name, file_type, audio_url, starred, edited, deleted, created_at`

// CreateMessage persists a message addressed to conv. The id and createdAt
// are assigned by the database.
func (r *MessageRepo) CreateMessage(ctx context.Context, conv models.ConversationRef, senderID int, payload models.MessagePayload) (models.Message, error) {
	var receiverID, groupID sql.NullInt64
	if conv.IsGroup() {
		groupID = sql.NullInt64{Int64: int64(conv.GroupID), Valid: true}
	} else {
		receiverID = sql.NullInt64{Int64: int64(conv.Peer(senderID)), Valid: true}
	}

	var text, fileURL, fileName, fileType, audioURL sql.NullString
	if payload.Text != nil {
		text = sql.NullString{String: *payload.Text, Valid: true}
	}
	if payload.File != nil {
		fileURL = sql.NullString{String: payload.File.URL, Valid: true}
		fileName = sql.NullString{String: payload.File.Name, Valid: true}
		fileType = sql.NullString{String: payload.File.Type, Valid: true}
	}
	if payload.Audio != nil {
		audioURL = sql.NullString{String: *payload.Audio, Valid: true}
	}

	var row messageRow
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, group_id, text, file_url, file_name, file_type, audio_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+messageColumns,
		senderID, receiverID, groupID, text, fileURL, fileName, fileType, audioURL).StructScan(&row)
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// ListMessages returns the conversation's messages ordered by creation.
func (r *MessageRepo) ListMessages(ctx context.Context, conv models.ConversationRef) ([]models.Message, error) {
	var rows []messageRow
	var err error
	if conv.IsGroup() {
		err = r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
            WHERE group_id=$1 AND deleted = FALSE ORDER BY created_at ASC, id ASC`, conv.GroupID)
	} else {
		err = r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
            WHERE group_id IS NULL AND deleted = FALSE
            AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
            ORDER BY created_at ASC, id ASC`, conv.UserA, conv.UserB)
	}
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
		ids = append(ids, int64(row.ID))
	}
	if err := r.attachReactions(ctx, msgs, ids); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetMessage retrieves a single message with its reactions.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	msgs := []models.Message{row.toModel()}
	if err := r.attachReactions(ctx, msgs, []int64{int64(messageID)}); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// AddReaction appends a reaction. Duplicate (emoji, user) pairs are kept.
func (r *MessageRepo) AddReaction(ctx context.Context, messageID int, userID int, emoji string) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji)
        SELECT $1, $2, $3 WHERE EXISTS(SELECT 1 FROM messages WHERE id=$1)`, messageID, userID, emoji)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SetStarred sets the starred flag.
func (r *MessageRepo) SetStarred(ctx context.Context, messageID int, starred bool) error {
	return r.updateFlag(ctx, `UPDATE messages SET starred=$2 WHERE id=$1`, messageID, starred)
}

// UpdateText replaces the text payload and marks the message edited.
func (r *MessageRepo) UpdateText(ctx context.Context, messageID int, text string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET text=$2, edited=TRUE WHERE id=$1 AND text IS NOT NULL`, messageID, text)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkDeleted soft-deletes the message; history queries no longer return it.
func (r *MessageRepo) MarkDeleted(ctx context.Context, messageID int) error {
	return r.updateFlag(ctx, `UPDATE messages SET deleted=$2 WHERE id=$1`, messageID, true)
}

func (r *MessageRepo) updateFlag(ctx context.Context, query string, messageID int, value bool) error {
	res, err := r.db.ExecContext(ctx, query, messageID, value)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

type reactionRow struct {
	MessageID int    `db:"message_id"`
	UserID    int    `db:"user_id"`
	Emoji     string `db:"emoji"`
}

func (r *MessageRepo) attachReactions(ctx context.Context, msgs []models.Message, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var rows []reactionRow
	err := r.db.SelectContext(ctx, &rows, `SELECT message_id, user_id, emoji FROM message_reactions
        WHERE message_id = ANY($1) ORDER BY id ASC`, pq.Array(ids))
	if err != nil {
		return err
	}
	byMessage := map[int][]models.Reaction{}
	for _, row := range rows {
		byMessage[row.MessageID] = append(byMessage[row.MessageID], models.Reaction{Emoji: row.Emoji, User: row.UserID})
	}
	for i := range msgs {
		if reactions, ok := byMessage[msgs[i].ID]; ok {
			msgs[i].Reactions = reactions
		}
	}
	return nil
}
