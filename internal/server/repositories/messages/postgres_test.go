package messages

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQuery = `(?s)^INSERT\s+INTO\s+messages\s*\(sender_id,\s*recipient_id,\s*text,\s*file_url\)\s*VALUES\s*\(\$1,\s*\$2,\s*NULLIF\(\$3,\s*''\),\s*NULLIF\(\$4,\s*''\)\)\s*RETURNING\s+id,\s*timestamp\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "timestamp"}).AddRow("m-1", now)
	mock.ExpectQuery(insertQuery).
		WithArgs("u-1", "u-2", "hi", "").
		WillReturnRows(rows)

	id, ts, err := repo.Create(context.Background(), &NewMessage{
		SenderID: "u-1", RecipientID: "u-2", Text: "hi",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if id != "m-1" || !ts.Equal(now) {
		t.Fatalf("unexpected result: id=%q ts=%v", id, ts)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).
		WithArgs("u-1", "u-2", "hi", "").
		WillReturnError(errors.New("db down"))

	_, _, err := repo.Create(context.Background(), &NewMessage{
		SenderID: "u-1", RecipientID: "u-2", Text: "hi",
	})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func messageRows(t *testing.T) *sqlmock.Rows {
	t.Helper()
	return sqlmock.NewRows([]string{
		"id", "text", "file_url", "timestamp",
		"s_id", "s_username", "r_id", "r_username",
	})
}

func TestConversation_AllForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT.+FROM\s+messages\s+m\s+JOIN\s+users\s+s.+JOIN\s+users\s+r.+WHERE\s+\(m\.sender_id\s*=\s*\$1\s+OR\s+m\.recipient_id\s*=\s*\$1\).+ORDER\s+BY\s+m\.timestamp\s+ASC\s*$`

	now := time.Now()
	rows := messageRows(t).
		AddRow("m-1", "hello", "", now, "u-1", "alice", "u-2", "bob").
		AddRow("m-2", "", "http://files/pic.png", now.Add(time.Second), "u-2", "bob", "u-1", "alice")
	mock.ExpectQuery(q).WithArgs("u-1", "").WillReturnRows(rows)

	got, err := repo.Conversation(context.Background(), "u-1", "", "")
	if err != nil {
		t.Fatalf("Conversation error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Sender.Username != "alice" || got[0].Recipient.Username != "bob" {
		t.Fatalf("unexpected expansion: %+v", got[0])
	}
	if got[1].FileURL != "http://files/pic.png" || got[1].Text != "" {
		t.Fatalf("unexpected file message: %+v", got[1])
	}
}

func TestConversation_BetweenTwoUsers(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT.+WHERE\s+\(\(m\.sender_id\s*=\s*\$1\s+AND\s+m\.recipient_id\s*=\s*\$2\).+OR\s+\(m\.sender_id\s*=\s*\$2\s+AND\s+m\.recipient_id\s*=\s*\$1\)\).+ORDER\s+BY\s+m\.timestamp\s+ASC\s*$`

	rows := messageRows(t).
		AddRow("m-1", "hi", "", time.Now(), "u-1", "alice", "u-2", "bob")
	mock.ExpectQuery(q).WithArgs("u-1", "u-2", "").WillReturnRows(rows)

	got, err := repo.Conversation(context.Background(), "u-1", "u-2", "")
	if err != nil {
		t.Fatalf("Conversation error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m-1" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestConversation_TextFilterEscaped(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT.+ILIKE.+$`

	rows := messageRows(t).
		AddRow("m-1", "50% done", "", time.Now(), "u-1", "alice", "u-2", "bob")
	mock.ExpectQuery(q).WithArgs("u-1", `50\%`).WillReturnRows(rows)

	got, err := repo.Conversation(context.Background(), "u-1", "", "50%")
	if err != nil {
		t.Fatalf("Conversation error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
}

func TestConversation_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.+$`).
		WithArgs("u-1", "").
		WillReturnError(errors.New("db err"))

	_, err := repo.Conversation(context.Background(), "u-1", "", "")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestEscapeLikePattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeLikePattern(tt.in); got != tt.want {
			t.Errorf("escapeLikePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
