package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store on a local SQLite database
type SQLiteStore struct {
	db       *sqlx.DB
	settings SettingsSource
}

// NewSQLiteStore opens (or creates) the database at dbPath, enables WAL
// mode and applies pending migrations.
func NewSQLiteStore(dbPath string, settings SettingsSource) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between the pipeline and the API
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, settings: settings}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// GetSettings returns the current settings snapshot
func (s *SQLiteStore) GetSettings() *types.Settings {
	if s.settings == nil {
		return nil
	}
	return s.settings.Get()
}

// emailRow is the database shape of models.Email. Times are stored as
// text, attachments and parsed info as JSON.
type emailRow struct {
	ID             string         `db:"id"`
	MessageID      string         `db:"message_id"`
	UID            int64          `db:"uid"`
	Subject        string         `db:"subject"`
	From           string         `db:"from_header"`
	SenderEmail    string         `db:"sender_email"`
	To             string         `db:"to_header"`
	Date           string         `db:"date"`
	Body           string         `db:"body"`
	IsHTML         bool           `db:"is_html"`
	Attachments    string         `db:"attachments"`
	Status         string         `db:"status"`
	Classification string         `db:"classification"`
	Parsed         sql.NullString `db:"parsed"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

const emailColumns = `id, message_id, uid, subject, from_header, sender_email, to_header,
	date, body, is_html, attachments, status, classification, parsed, created_at, updated_at`

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalParsed(p *models.ParsedInfo) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func toRow(e *models.Email) (emailRow, error) {
	// attachment bytes live in the archive, only the stubs are stored
	attachments := e.Attachments
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	attJSON, err := json.Marshal(attachments)
	if err != nil {
		return emailRow{}, fmt.Errorf("marshaling attachments: %w", err)
	}
	parsed, err := marshalParsed(e.Parsed)
	if err != nil {
		return emailRow{}, fmt.Errorf("marshaling parsed info: %w", err)
	}

	return emailRow{
		ID:             e.ID,
		MessageID:      e.MessageID,
		UID:            int64(e.UID),
		Subject:        e.Subject,
		From:           e.From,
		SenderEmail:    e.SenderEmail,
		To:             e.To,
		Date:           formatTime(e.Date),
		Body:           e.Body,
		IsHTML:         e.IsHTML,
		Attachments:    string(attJSON),
		Status:         string(e.Status),
		Classification: string(e.Classification),
		Parsed:         parsed,
		CreatedAt:      formatTime(e.CreatedAt),
		UpdatedAt:      formatTime(e.UpdatedAt),
	}, nil
}

func (r emailRow) toModel() (models.Email, error) {
	e := models.Email{
		ID:             r.ID,
		MessageID:      r.MessageID,
		UID:            uint32(r.UID),
		Subject:        r.Subject,
		From:           r.From,
		SenderEmail:    r.SenderEmail,
		To:             r.To,
		Date:           parseTime(r.Date),
		Body:           r.Body,
		IsHTML:         r.IsHTML,
		Status:         models.EmailStatus(r.Status),
		Classification: models.Classification(r.Classification),
		CreatedAt:      parseTime(r.CreatedAt),
		UpdatedAt:      parseTime(r.UpdatedAt),
	}

	if r.Attachments != "" {
		if err := json.Unmarshal([]byte(r.Attachments), &e.Attachments); err != nil {
			return e, fmt.Errorf("unmarshaling attachments of %s: %w", r.ID, err)
		}
	}
	if r.Parsed.Valid && r.Parsed.String != "" {
		var p models.ParsedInfo
		if err := json.Unmarshal([]byte(r.Parsed.String), &p); err != nil {
			return e, fmt.Errorf("unmarshaling parsed info of %s: %w", r.ID, err)
		}
		e.Parsed = &p
	}
	return e, nil
}

// GetEmails returns emails newest first
func (s *SQLiteStore) GetEmails(ctx context.Context, filter EmailFilter) ([]models.Email, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Classification != "" {
		conditions = append(conditions, "classification = ?")
		args = append(args, string(filter.Classification))
	}

	query := "SELECT " + emailColumns + " FROM emails"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []emailRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}

	emails := make([]models.Email, 0, len(rows))
	for _, r := range rows {
		e, err := r.toModel()
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, nil
}

// GetEmail returns one email or ErrNotFound
func (s *SQLiteStore) GetEmail(ctx context.Context, id string) (*models.Email, error) {
	var r emailRow
	err := s.db.GetContext(ctx, &r, "SELECT "+emailColumns+" FROM emails WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying email %s: %w", id, err)
	}

	e, err := r.toModel()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// AddEmail inserts email, assigning an id and timestamps when missing
func (s *SQLiteStore) AddEmail(ctx context.Context, email *models.Email) error {
	if email.ID == "" {
		email.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}
	email.UpdatedAt = now
	if email.Status == "" {
		email.Status = models.StatusUnprocessed
	}
	if email.Classification == "" {
		email.Classification = models.ClassPending
	}

	row, err := toRow(email)
	if err != nil {
		return err
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO emails (`+emailColumns+`) VALUES (
			:id, :message_id, :uid, :subject, :from_header, :sender_email, :to_header,
			:date, :body, :is_html, :attachments, :status, :classification, :parsed,
			:created_at, :updated_at
		)`, row)
	if isUniqueViolation(err) {
		return fmt.Errorf("message %s: %w", email.MessageID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting email: %w", err)
	}
	return nil
}

// EmailExists reports whether an email with messageID is stored. An empty
// id never matches.
func (s *SQLiteStore) EmailExists(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM emails WHERE message_id = ?", messageID); err != nil {
		return false, fmt.Errorf("checking message %s: %w", messageID, err)
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// UpdateEmail applies the non-nil fields of patch
func (s *SQLiteStore) UpdateEmail(ctx context.Context, id string, patch models.EmailPatch) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{formatTime(time.Now().UTC())}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Classification != nil {
		sets = append(sets, "classification = ?")
		args = append(args, string(*patch.Classification))
	}
	if patch.Parsed != nil {
		parsed, err := marshalParsed(patch.Parsed)
		if err != nil {
			return fmt.Errorf("marshaling parsed info: %w", err)
		}
		sets = append(sets, "parsed = ?")
		args = append(args, parsed)
	}

	args = append(args, id)
	result, err := s.db.ExecContext(ctx,
		"UPDATE emails SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating email %s: %w", id, err)
	}
	return expectOne(result, "email", id)
}

// DeleteEmail removes one email
func (s *SQLiteStore) DeleteEmail(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM emails WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting email %s: %w", id, err)
	}
	return expectOne(result, "email", id)
}

// DeleteEmailsBefore removes emails stored before the cutoff and returns
// how many were deleted
func (s *SQLiteStore) DeleteEmailsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM emails WHERE created_at < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting old emails: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// senderMatch is symmetric containment between the stored sender and a
// lowercased pattern, the same comparison rules.Route uses
const senderMatch = `sender_email != '' AND
	(instr(lower(trim(sender_email)), ?) > 0 OR instr(?, lower(trim(sender_email))) > 0)`

// DeleteEmailsFromSender removes the emails whose sender matches pattern
// and returns how many were deleted
func (s *SQLiteStore) DeleteEmailsFromSender(ctx context.Context, pattern string) (int64, error) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return 0, nil
	}
	return deleteFromSender(ctx, s.db, pattern)
}

func deleteFromSender(ctx context.Context, db sqlx.ExecerContext, pattern string) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM emails WHERE "+senderMatch, pattern, pattern)
	if err != nil {
		return 0, fmt.Errorf("deleting emails from %q: %w", pattern, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type ruleRow struct {
	ID          string `db:"id"`
	Type        string `db:"type"`
	Pattern     string `db:"pattern"`
	Description string `db:"description"`
	Active      bool   `db:"active"`
	CreatedAt   string `db:"created_at"`
}

// GetRules returns all rules, oldest first
func (s *SQLiteStore) GetRules(ctx context.Context) ([]models.Rule, error) {
	var rows []ruleRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, type, pattern, description, active, created_at FROM rules ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}

	rules := make([]models.Rule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, models.Rule{
			ID:          r.ID,
			Type:        models.RuleType(r.Type),
			Pattern:     r.Pattern,
			Description: r.Description,
			Active:      r.Active,
			CreatedAt:   parseTime(r.CreatedAt),
		})
	}
	return rules, nil
}

// AddRule stores a rule. Patterns are lowercased and trimmed. Adding an
// active blacklist rule also deletes the stored emails it matches.
func (s *SQLiteStore) AddRule(ctx context.Context, rule *models.Rule) error {
	rule.Pattern = strings.ToLower(strings.TrimSpace(rule.Pattern))
	if rule.Pattern == "" {
		return fmt.Errorf("%w: pattern must not be empty", ErrInvalidRule)
	}
	if rule.Type != models.RuleWhitelist && rule.Type != models.RuleBlacklist {
		return fmt.Errorf("%w: type %q", ErrInvalidRule, rule.Type)
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rules (id, type, pattern, description, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rule.ID, string(rule.Type), rule.Pattern, rule.Description, rule.Active, formatTime(rule.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}

	if rule.Type == models.RuleBlacklist && rule.Active {
		if _, err := deleteFromSender(ctx, tx, rule.Pattern); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rule: %w", err)
	}
	return nil
}

// DeleteRule removes one rule
func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule %s: %w", id, err)
	}
	return expectOne(result, "rule", id)
}

func expectOne(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
