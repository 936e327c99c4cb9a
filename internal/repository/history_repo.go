package repository

import (
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"gorm.io/gorm"
)

// History schema versions. The notifications table belongs to a separate
// deployment artifact; v1 predates the data column, v2 has it. "auto"
// probes the live database exactly once at startup and then behaves like
// an explicit version.
const (
	HistorySchemaV1   = "v1"
	HistorySchemaV2   = "v2"
	HistorySchemaAuto = "auto"
)

// HistorySchema is the versioned descriptor of the history table,
// resolved once at startup and injected as configuration. It replaces
// per-call information_schema introspection.
type HistorySchema struct {
	Table   string
	Version string
	HasData bool // v2: opaque data column present
}

// ResolveHistorySchema builds the descriptor for the configured table.
// A missing table is a configuration error: the process should refuse to
// start rather than silently skip history persistence.
func ResolveHistorySchema(db *gorm.DB, table, version string) (HistorySchema, error) {
	if table == "" {
		table = model.NotificationRecord{}.TableName()
	}
	if !db.Migrator().HasTable(table) {
		return HistorySchema{}, fmt.Errorf("history table %q does not exist; check HISTORY_TABLE and migrations", table)
	}

	switch version {
	case HistorySchemaV1:
		return HistorySchema{Table: table, Version: HistorySchemaV1, HasData: false}, nil
	case HistorySchemaV2:
		return HistorySchema{Table: table, Version: HistorySchemaV2, HasData: true}, nil
	case HistorySchemaAuto, "":
		hasData := db.Migrator().HasColumn(table, "data")
		v := HistorySchemaV1
		if hasData {
			v = HistorySchemaV2
		}
		return HistorySchema{Table: table, Version: v, HasData: hasData}, nil
	default:
		return HistorySchema{}, fmt.Errorf("unknown history schema version %q", version)
	}
}

// HistoryRepository writes the user-visible notification history.
// Writes are best-effort: the dispatcher's callers log the returned error
// but never fail a dispatch on it. The writer capability (data column
// yes/no) is fixed by the schema descriptor, not re-detected per call.
type HistoryRepository struct {
	db *gorm.DB

	mu     sync.RWMutex
	schema HistorySchema
}

func NewHistoryRepository(db *gorm.DB, schema HistorySchema) *HistoryRepository {
	return &HistoryRepository{db: db, schema: schema}
}

// Schema returns the active descriptor
func (r *HistoryRepository) Schema() HistorySchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schema
}

// Reload re-resolves the descriptor against the live database. This is
// the explicit invalidation entry point for deployments that migrate the
// history table under a running process.
func (r *HistoryRepository) Reload() error {
	r.mu.RLock()
	table, version := r.schema.Table, HistorySchemaAuto
	r.mu.RUnlock()

	schema, err := ResolveHistorySchema(r.db, table, version)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.schema = schema
	r.mu.Unlock()
	return nil
}

// Write persists one history record using only the columns the active
// schema version has
func (r *HistoryRepository) Write(rec *model.NotificationRecord) error {
	schema := r.Schema()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	cols := map[string]interface{}{
		"id":         rec.ID,
		"user_id":    rec.UserID,
		"title":      rec.Title,
		"body":       rec.Body,
		"type":       rec.Type,
		"read":       rec.Read,
		"created_at": rec.CreatedAt,
	}
	if schema.HasData && rec.Data != nil {
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("encode history data: %w", err)
		}
		cols["data"] = string(raw)
	}

	if err := r.db.Table(schema.Table).Create(cols).Error; err != nil {
		return fmt.Errorf("write history for user %s: %w", rec.UserID, err)
	}
	return nil
}

type historyRow struct {
	ID        uuid.UUID `gorm:"column:id"`
	UserID    uuid.UUID `gorm:"column:user_id"`
	Title     string    `gorm:"column:title"`
	Body      string    `gorm:"column:body"`
	Type      string    `gorm:"column:type"`
	Data      *string   `gorm:"column:data"`
	Read      bool      `gorm:"column:read"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// ListForUser returns a user's notification history, newest first
func (r *HistoryRepository) ListForUser(userID uuid.UUID, limit, offset int) ([]model.NotificationRecord, error) {
	schema := r.Schema()

	cols := "id, user_id, title, body, type, read, created_at"
	if schema.HasData {
		cols += ", data"
	}

	var rows []historyRow
	err := r.db.Table(schema.Table).
		Select(cols).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]model.NotificationRecord, 0, len(rows))
	for _, row := range rows {
		rec := model.NotificationRecord{
			ID:        row.ID,
			UserID:    row.UserID,
			Title:     row.Title,
			Body:      row.Body,
			Type:      row.Type,
			Read:      row.Read,
			CreatedAt: row.CreatedAt,
		}
		if row.Data != nil && *row.Data != "" {
			// Tolerate malformed stored payloads: history is best-effort
			_ = json.Unmarshal([]byte(*row.Data), &rec.Data)
		}
		records = append(records, rec)
	}
	return records, nil
}

// MarkRead flags one notification as read. Returns false when the record
// does not exist or belongs to another user.
func (r *HistoryRepository) MarkRead(userID, id uuid.UUID) (bool, error) {
	schema := r.Schema()
	res := r.db.Table(schema.Table).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
