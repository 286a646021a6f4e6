package autopost

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Store interface {
	ListEnabledSettings(ctx context.Context) ([]AutomationSetting, error)
	GetSetting(ctx context.Context, id string) (AutomationSetting, error)
	MarkExecuted(ctx context.Context, settingID, date string, executed []string) error
	SavePost(ctx context.Context, record PostRecord) (PostRecord, error)
	ListEngagedTargetIDs(ctx context.Context, accountID string) ([]string, error)
	SaveExecutionLog(ctx context.Context, entry ExecutionLog) (ExecutionLog, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const settingColumns = `id,
		account_id,
		content_kind,
		enabled,
		trigger_times,
		posts_per_day,
		posting_mode,
		themes,
		tone,
		audience,
		note,
		max_length,
		provider,
		model,
		last_run_date,
		executed_times`

func (s *SQLStore) ListEnabledSettings(ctx context.Context) ([]AutomationSetting, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("automation store unavailable")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+settingColumns+`
		FROM autopilot_settings
		WHERE enabled = TRUE
		ORDER BY account_id, content_kind
	`)
	if err != nil {
		return nil, fmt.Errorf("list enabled settings: %w", err)
	}
	defer rows.Close()

	var settings []AutomationSetting
	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings, nil
}

func (s *SQLStore) GetSetting(ctx context.Context, id string) (AutomationSetting, error) {
	if s == nil || s.db == nil {
		return AutomationSetting{}, errors.New("automation store unavailable")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+settingColumns+`
		FROM autopilot_settings
		WHERE id = $1
	`, id)
	setting, err := scanSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AutomationSetting{}, fmt.Errorf("automation setting %s not found", id)
	}
	return setting, err
}

// MarkExecuted commits the idempotency marker after a slot run. The executed
// set is stored as a CSV alongside the civil date it belongs to.
func (s *SQLStore) MarkExecuted(ctx context.Context, settingID, date string, executed []string) error {
	if s == nil || s.db == nil {
		return errors.New("automation store unavailable")
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE autopilot_settings
		SET last_run_date = $2, executed_times = $3, updated_at = NOW()
		WHERE id = $1
	`, settingID, date, strings.Join(executed, ","))
	if err != nil {
		return fmt.Errorf("mark executed: %w", err)
	}
	return nil
}

func (s *SQLStore) SavePost(ctx context.Context, record PostRecord) (PostRecord, error) {
	if s == nil || s.db == nil {
		return PostRecord{}, errors.New("automation store unavailable")
	}

	status := record.Status
	if status == "" {
		status = "draft"
	}

	var id string
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO autopilot_posts (
			setting_id,
			account_id,
			content_kind,
			post_text,
			status,
			target_id,
			scheduled_at,
			external_id,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NOW())
		RETURNING id, created_at
	`,
		record.SettingID,
		record.AccountID,
		string(record.Kind),
		record.Text,
		status,
		record.TargetID,
		record.ScheduledAt,
		record.ExternalID,
	).Scan(&id, &createdAt)
	if err != nil {
		return PostRecord{}, fmt.Errorf("insert post: %w", err)
	}

	record.ID = id
	record.Status = status
	record.CreatedAt = createdAt
	return record, nil
}

// ListEngagedTargetIDs returns ids of posts this account has already replied
// to or quoted, so they are excluded from future target suggestions.
func (s *SQLStore) ListEngagedTargetIDs(ctx context.Context, accountID string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("automation store unavailable")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT target_id
		FROM autopilot_posts
		WHERE account_id = $1 AND target_id IS NOT NULL
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list engaged targets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan target id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engaged targets: %w", err)
	}
	return ids, nil
}

func (s *SQLStore) SaveExecutionLog(ctx context.Context, entry ExecutionLog) (ExecutionLog, error) {
	if s == nil || s.db == nil {
		return ExecutionLog{}, errors.New("automation store unavailable")
	}

	var id string
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO autopilot_execution_logs (
			setting_id,
			requested_count,
			generated_count,
			scheduled_count,
			published_count,
			status,
			error_message,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW())
		RETURNING id, created_at
	`,
		entry.SettingID,
		entry.Requested,
		entry.Generated,
		entry.Scheduled,
		entry.Published,
		string(entry.Status),
		entry.ErrorMessage,
	).Scan(&id, &createdAt)
	if err != nil {
		return ExecutionLog{}, fmt.Errorf("insert execution log: %w", err)
	}

	entry.ID = id
	entry.CreatedAt = createdAt
	return entry, nil
}

type settingScanner interface {
	Scan(dest ...any) error
}

func scanSetting(sc settingScanner) (AutomationSetting, error) {
	var setting AutomationSetting
	var kind, mode string
	var triggerCSV, themesCSV string
	var tone, audience, note, provider, model sql.NullString
	var lastRunDate, executedCSV sql.NullString
	if err := sc.Scan(
		&setting.ID,
		&setting.AccountID,
		&kind,
		&setting.Enabled,
		&triggerCSV,
		&setting.PostsPerDay,
		&mode,
		&themesCSV,
		&tone,
		&audience,
		&note,
		&setting.MaxLength,
		&provider,
		&model,
		&lastRunDate,
		&executedCSV,
	); err != nil {
		return AutomationSetting{}, fmt.Errorf("scan setting: %w", err)
	}
	setting.Kind = ContentKind(kind)
	setting.Mode = PostingMode(mode)
	setting.TriggerTimes = splitCSV(triggerCSV)
	setting.Themes = splitCSV(themesCSV)
	setting.Tone = tone.String
	setting.Audience = audience.String
	setting.Note = note.String
	setting.Provider = provider.String
	setting.Model = model.String
	setting.LastRunDate = lastRunDate.String
	setting.ExecutedTimes = splitCSV(executedCSV.String)
	return setting, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
