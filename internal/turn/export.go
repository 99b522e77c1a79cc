package turn

// ExportSchemaVersion is written into the export header line.
const ExportSchemaVersion = "1.0"

// ExportRecord is a turn in JSONL export format. The first line of an
// export file is a header record with TarsExport set.
type ExportRecord struct {
	// Header detection field - true only for header line
	TarsExport bool `json:"_tars_export,omitempty"`

	// Header fields (only present in header line)
	SchemaVersion string `json:"schema_version,omitempty"`
	ExportedAt    int64  `json:"exported_at,omitempty"`

	ID            string  `json:"id"`
	SessionID     string  `json:"session_id"`
	Question      string  `json:"question"`
	Response      string  `json:"response"`
	Context       *string `json:"context"`
	Mode          string  `json:"mode"`
	Model         *string `json:"model"`
	OneShot       bool    `json:"one_shot"`
	ResponseChars int     `json:"response_chars"` // IGNORED on import, recomputed
	CreatedAt     int64   `json:"created_at"`
	DeletedAt     *int64  `json:"deleted_at"`
}

// ToTurn converts an ExportRecord to a Turn, recomputing derived fields.
func (r *ExportRecord) ToTurn() *Turn {
	return &Turn{
		ID:            r.ID,
		SessionID:     r.SessionID,
		Question:      r.Question,
		Response:      r.Response,
		Context:       r.Context,
		Mode:          r.Mode,
		Model:         r.Model,
		OneShot:       r.OneShot,
		ResponseChars: CountChars(r.Response),
		CreatedAt:     r.CreatedAt,
		DeletedAt:     r.DeletedAt,
	}
}

// ToExportRecord converts a Turn to an ExportRecord.
func ToExportRecord(t *Turn) *ExportRecord {
	return &ExportRecord{
		ID:            t.ID,
		SessionID:     t.SessionID,
		Question:      t.Question,
		Response:      t.Response,
		Context:       t.Context,
		Mode:          t.Mode,
		Model:         t.Model,
		OneShot:       t.OneShot,
		ResponseChars: t.ResponseChars,
		CreatedAt:     t.CreatedAt,
		DeletedAt:     t.DeletedAt,
	}
}
