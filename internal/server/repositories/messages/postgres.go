package messages

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/dbx"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, msg *NewMessage) (string, time.Time, error) {

	query :=
		`INSERT INTO messages (sender_id, recipient_id, text, file_url)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		 RETURNING id, timestamp
		 `

	var id string
	var ts time.Time
	err := r.db.QueryRowContext(ctx, query,
		msg.SenderID, msg.RecipientID, msg.Text, msg.FileURL).Scan(&id, &ts)

	if err != nil {
		return "", time.Time{}, fmt.Errorf("db error: %w", err)
	}

	return id, ts, nil
}

func (r *PostgresRepository) Conversation(ctx context.Context, userID, peerID, textFilter string) ([]*models.Message, error) {

	var rows *sql.Rows
	var err error

	filter := escapeLikePattern(textFilter)

	if peerID == "" {
		query :=
			`SELECT m.id, COALESCE(m.text, ''), COALESCE(m.file_url, ''), m.timestamp,
			        s.id, s.username, r.id, r.username
			 FROM messages m
			 JOIN users s ON s.id = m.sender_id
			 JOIN users r ON r.id = m.recipient_id
			 WHERE (m.sender_id = $1 OR m.recipient_id = $1)
			   AND ($2 = '' OR m.text ILIKE '%' || $2 || '%' ESCAPE '\')
			 ORDER BY m.timestamp ASC
			 `
		rows, err = r.db.QueryContext(ctx, query, userID, filter)
	} else {
		query :=
			`SELECT m.id, COALESCE(m.text, ''), COALESCE(m.file_url, ''), m.timestamp,
			        s.id, s.username, r.id, r.username
			 FROM messages m
			 JOIN users s ON s.id = m.sender_id
			 JOIN users r ON r.id = m.recipient_id
			 WHERE ((m.sender_id = $1 AND m.recipient_id = $2)
			     OR (m.sender_id = $2 AND m.recipient_id = $1))
			   AND ($3 = '' OR m.text ILIKE '%' || $3 || '%' ESCAPE '\')
			 ORDER BY m.timestamp ASC
			 `
		rows, err = r.db.QueryContext(ctx, query, userID, peerID, filter)
	}

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.Text, &m.FileURL, &m.Timestamp,
			&m.Sender.ID, &m.Sender.Username, &m.Recipient.ID, &m.Recipient.Username); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// escapeLikePattern neutralizes LIKE metacharacters so the filter matches as
// a literal substring.
func escapeLikePattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
