package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/newronx/waitlist/internal/apperror"
	"github.com/newronx/waitlist/internal/model"
	"github.com/newronx/waitlist/internal/repository"
)

// compile-time check that *DB implements repository.StoryRepository
var _ repository.StoryRepository = (*DB)(nil)

const storyColumns = `id, registrant_id, email, name, story, source, status, created_at, updated_at`

func scanStory(row interface{ Scan(...any) error }) (*model.Story, error) {
	var (
		s            model.Story
		registrantID sql.NullString
		email        sql.NullString
	)
	err := row.Scan(&s.ID, &registrantID, &email, &s.Name, &s.Story,
		&s.Source, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.RegistrantID = registrantID.String
	s.Email = email.String
	return &s, nil
}

// CreateStory inserts a new story in pending status.
func (db *DB) CreateStory(ctx context.Context, story *model.Story) error {
	now := time.Now().UTC()
	story.ID = xid.New().String()
	story.Status = model.StoryPending
	story.CreatedAt = now
	story.UpdatedAt = now
	if story.Name == "" {
		story.Name = "Anonymous"
	}
	if story.Source == "" {
		story.Source = model.SourceManual
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO stories (id, registrant_id, email, name, story, source, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		story.ID,
		nullIfEmpty(story.RegistrantID),
		nullIfEmpty(story.Email),
		story.Name,
		story.Story,
		string(story.Source),
		string(story.Status),
		story.CreatedAt,
		story.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting story: %w", err)
	}
	return nil
}

// GetStoryByID retrieves a single story.
func (db *DB) GetStoryByID(ctx context.Context, id string) (*model.Story, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE id = ?`, id)
	story, err := scanStory(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("story", id)
		}
		return nil, fmt.Errorf("sqlite: getting story %s: %w", id, err)
	}
	return story, nil
}

// UpdateStoryStatus moves a story through moderation.
func (db *DB) UpdateStoryStatus(ctx context.Context, id string, status model.StoryStatus) (*model.Story, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE stories SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating story %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("story", id)
	}
	return db.GetStoryByID(ctx, id)
}

// ListStories returns stories newest-first, optionally filtered by status.
func (db *DB) ListStories(ctx context.Context, status model.StoryStatus, limit, offset int) ([]model.Story, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + storyColumns + ` FROM stories`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing stories: %w", err)
	}
	defer rows.Close()

	var stories []model.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning story: %w", err)
		}
		stories = append(stories, *story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: listing stories: %w", err)
	}
	return stories, nil
}
