package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/jokes-api/internal/apperror"
	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/repository"
)

// compile-time check that *DB implements repository.JokeRepository
var _ repository.JokeRepository = (*DB)(nil)

const jokeColumns = `id, text_tn, text_fr, text_en, age_group, era, region, acceptability,
	delivery_type, tone, rhythm, is_published, author_id, created_at, updated_at`

// likeEscaper escapes the LIKE wildcards so a search for "100%" matches
// the literal text rather than everything starting with "100".
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CreateJoke inserts a new joke, assigning its ID and timestamps.
//
// The author must exist: the foreign key is enforced by SQLite
// (foreign_keys pragma), and a dangling author_id comes back as a
// NotFound for the user.
func (db *DB) CreateJoke(ctx context.Context, joke *model.Joke) error {
	now := db.now()
	joke.ID = xid.New().String()
	joke.CreatedAt = now
	joke.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO jokes (`+jokeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		joke.ID,
		joke.TextTN,
		joke.TextFR,
		joke.TextEN,
		joke.AgeGroup,
		joke.Era,
		joke.Region,
		joke.Acceptability,
		joke.DeliveryType,
		joke.Tone,
		joke.Rhythm,
		joke.IsPublished,
		joke.AuthorID,
		joke.CreatedAt,
		joke.UpdatedAt,
	)
	if err != nil {
		if foreignKeyViolation(err) {
			return apperror.NotFound("user", joke.AuthorID)
		}
		return fmt.Errorf("sqlite: inserting joke: %w", err)
	}

	return nil
}

// GetJokeByID retrieves a joke regardless of its published state.
// Visibility is the caller's decision.
func (db *DB) GetJokeByID(ctx context.Context, id string) (*model.Joke, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+jokeColumns+` FROM jokes WHERE id = ?`,
		id,
	)

	j, err := scanJoke(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("joke", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting joke %s: %w", id, err)
	}
	return j, nil
}

// ListPublishedJokes returns one page of published jokes matching filter,
// newest first, plus the total number of matches.
//
// The count and the page run as two statements. A write landing between
// them can make total disagree with the page by one; nothing depends on
// the two being exact.
func (db *DB) ListPublishedJokes(ctx context.Context, filter model.JokeFilter, opts repository.ListOptions) ([]model.Joke, int, error) {
	where, args := buildJokeFilter(filter)

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jokes `+where,
		args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting jokes: %w", err)
	}

	jokes := []model.Joke{}
	if total == 0 || opts.Offset() >= total {
		return jokes, total, nil
	}

	pageArgs := append(args, opts.PerPage, opts.Offset())
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+jokeColumns+` FROM jokes `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing jokes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		j, err := scanJoke(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning joke: %w", err)
		}
		jokes = append(jokes, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating jokes: %w", err)
	}

	return jokes, total, nil
}

// UpdateJoke writes the fields supplied in patch, refreshes updated_at and
// returns the joke as stored. Columns absent from patch are not part of the
// statement, so a concurrent update to other fields is preserved.
// author_id and created_at never change.
func (db *DB) UpdateJoke(ctx context.Context, id string, patch model.JokePatch) (*model.Joke, error) {
	var cols assignments
	if patch.TextTN != nil {
		cols.set("text_tn", *patch.TextTN)
	}
	cols.setOptional("text_fr", patch.TextFR)
	cols.setOptional("text_en", patch.TextEN)
	cols.setOptional("age_group", patch.AgeGroup)
	cols.setOptional("era", patch.Era)
	cols.setOptional("region", patch.Region)
	cols.setOptional("acceptability", patch.Acceptability)
	cols.setOptional("delivery_type", patch.DeliveryType)
	cols.setOptional("tone", patch.Tone)
	cols.setOptional("rhythm", patch.Rhythm)
	if patch.IsPublished != nil {
		cols.set("is_published", *patch.IsPublished)
	}
	cols.set("updated_at", db.now())

	var joke *model.Joke
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE jokes SET `+cols.clause()+` WHERE id = ?`,
			append(cols.args, id)...,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating joke %s: %w", id, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("joke", id)
		}

		joke, err = scanJoke(tx.QueryRowContext(ctx,
			`SELECT `+jokeColumns+` FROM jokes WHERE id = ?`,
			id,
		))
		if err != nil {
			return fmt.Errorf("sqlite: reading back joke %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return joke, nil
}

// DeleteJoke removes a joke by ID.
func (db *DB) DeleteJoke(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM jokes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting joke %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("joke", id)
	}

	return nil
}

// buildJokeFilter turns a filter into a WHERE clause. Only placeholders are
// concatenated; every value travels as an argument.
func buildJokeFilter(f model.JokeFilter) (string, []any) {
	conds := []string{"is_published = 1"}
	var args []any

	eq := func(column, value string) {
		if value == "" {
			return
		}
		conds = append(conds, column+" = ?")
		args = append(args, value)
	}
	eq("era", f.Era)
	eq("region", f.Region)
	eq("age_group", f.AgeGroup)
	eq("acceptability", f.Acceptability)
	eq("delivery_type", f.DeliveryType)

	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + likeEscaper.Replace(q) + "%"
		conds = append(conds,
			`(text_tn LIKE ? ESCAPE '\' OR text_fr LIKE ? ESCAPE '\' OR text_en LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJoke(s rowScanner) (*model.Joke, error) {
	var (
		j                           model.Joke
		textFR, textEN              sql.NullString
		ageGroup, era, region       sql.NullString
		acceptability, deliveryType sql.NullString
		tone, rhythm                sql.NullString
	)

	err := s.Scan(
		&j.ID,
		&j.TextTN,
		&textFR,
		&textEN,
		&ageGroup,
		&era,
		&region,
		&acceptability,
		&deliveryType,
		&tone,
		&rhythm,
		&j.IsPublished,
		&j.AuthorID,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.TextFR = ptr(textFR)
	j.TextEN = ptr(textEN)
	j.AgeGroup = ptr(ageGroup)
	j.Era = ptr(era)
	j.Region = ptr(region)
	j.Acceptability = ptr(acceptability)
	j.DeliveryType = ptr(deliveryType)
	j.Tone = ptr(tone)
	j.Rhythm = ptr(rhythm)
	return &j, nil
}
