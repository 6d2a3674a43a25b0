// Package query implements the read side of the artifact store: it unions
// every artifact in a namespace into one logical table and answers the
// pipeline's dedup and join queries over it.
//
// Consistency comes entirely from read-time latest-wins resolution; nothing
// here writes. Each call loads a fresh in-memory SQLite database from the
// current set of finalized artifacts, so re-triggered runs always see the
// append-only log as it stands.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/Veraticus/ads-placement-excluder/internal/artifact"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// Engine answers queries over the artifact store.
type Engine struct {
	store  *artifact.Store
	logger *slog.Logger
}

// NewEngine creates a query engine over the given store.
func NewEngine(store *artifact.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

type colKind int

const (
	colText colKind = iota
	colInt
	colReal
)

type column struct {
	name string
	kind colKind
}

type tableSchema struct {
	namespace string
	columns   []column
}

var reportSchema = tableSchema{
	namespace: artifact.NamespaceReport,
	columns: []column{
		{"datetime_updated", colText},
		{"customer_id", colText},
		{"placement", colText},
		{"placement_target_url", colText},
		{"impressions", colInt},
		{"cost_micros", colInt},
		{"conversions", colReal},
		{"video_view_rate", colReal},
		{"video_views", colInt},
		{"clicks", colInt},
		{"average_cpm", colReal},
		{"ctr", colReal},
		{"all_conversions_from_interactions_rate", colReal},
	},
}

var channelSchema = tableSchema{
	namespace: artifact.NamespaceChannel,
	columns: []column{
		{"placement", colText},
		{"view_count", colInt},
		{"video_count", colInt},
		{"subscriber_count", colInt},
		{"title", colText},
		{"title_language", colText},
		{"title_language_confidence", colReal},
		{"country", colText},
		{"default_language", colText},
		{"datetime_updated", colText},
	},
}

var exclusionSchema = tableSchema{
	namespace: artifact.NamespaceExclusion,
	columns: []column{
		{"placement", colText},
		{"customer_id", colText},
		{"matched_rule", colText},
		{"datetime_updated", colText},
	},
}

// LoadStats reports what the read-time merge had to discard.
type LoadStats struct {
	DroppedRows  int
	SkippedFiles int
}

// NovelPlacements returns the distinct placements in an account's report
// artifacts that appear in no enrichment artifact. These are the only keys
// ever forwarded to the video platform: first enrichment is final.
func (e *Engine) NovelPlacements(ctx context.Context, customerID string) ([]string, LoadStats, error) {
	db, stats, err := e.open(ctx, reportSchema, channelSchema)
	if err != nil {
		return nil, stats, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT r.placement
		FROM ads_report r
		WHERE r.customer_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM youtube_channel y WHERE y.placement = r.placement
		  )
		ORDER BY r.placement`, customerID)
	if err != nil {
		return nil, stats, fmt.Errorf("novel placements query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var placements []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, stats, fmt.Errorf("failed to scan placement: %w", err)
		}
		placements = append(placements, p)
	}
	return placements, stats, rows.Err()
}

// EnrichedPlacements returns the set of placements present in any enrichment
// artifact. Used by the enrichment stage to stay idempotent under message
// redelivery.
func (e *Engine) EnrichedPlacements(ctx context.Context) (map[string]bool, error) {
	db, _, err := e.open(ctx, channelSchema)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT placement FROM youtube_channel`)
	if err != nil {
		return nil, fmt.Errorf("enriched placements query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	enriched := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan placement: %w", err)
		}
		enriched[p] = true
	}
	return enriched, rows.Err()
}

// JoinedRows builds the decision view for one account: the latest report row
// per (placement, customer) joined with the latest channel metadata per
// placement and the existing exclusion state. Latest-wins is resolved by
// datetime_updated, with source file name and placement as deterministic
// tie-breakers.
func (e *Engine) JoinedRows(ctx context.Context, customerID string) ([]model.JoinedRow, LoadStats, error) {
	db, stats, err := e.open(ctx, reportSchema, channelSchema, exclusionSchema)
	if err != nil {
		return nil, stats, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `
		WITH latest_report AS (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY placement, customer_id
				ORDER BY datetime_updated DESC, source_file DESC, placement
			) AS rn
			FROM ads_report
			WHERE customer_id = ?
		),
		latest_channel AS (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY placement
				ORDER BY datetime_updated DESC, source_file DESC, placement
			) AS rn
			FROM youtube_channel
		)
		SELECT
			r.placement,
			r.customer_id,
			r.impressions,
			r.cost_micros,
			r.conversions,
			r.video_view_rate,
			r.video_views,
			r.clicks,
			r.average_cpm,
			r.ctr,
			r.all_conversions_from_interactions_rate,
			c.placement IS NOT NULL,
			COALESCE(c.view_count, 0),
			COALESCE(c.video_count, 0),
			COALESCE(c.subscriber_count, 0),
			COALESCE(c.title, ''),
			COALESCE(c.title_language, ''),
			COALESCE(c.title_language_confidence, 0),
			COALESCE(c.country, ''),
			COALESCE(c.default_language, ''),
			EXISTS (
				SELECT 1 FROM exclusion x
				WHERE x.placement = r.placement AND x.customer_id = r.customer_id
			)
		FROM latest_report r
		LEFT JOIN latest_channel c ON c.placement = r.placement AND c.rn = 1
		WHERE r.rn = 1
		ORDER BY r.placement`, customerID)
	if err != nil {
		return nil, stats, fmt.Errorf("joined rows query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var joined []model.JoinedRow
	for rows.Next() {
		var row model.JoinedRow
		var hasChannel, excluded int
		if err := rows.Scan(
			&row.Placement,
			&row.CustomerID,
			&row.Impressions,
			&row.CostMicros,
			&row.Conversions,
			&row.VideoViewRate,
			&row.VideoViews,
			&row.Clicks,
			&row.AverageCPM,
			&row.CTR,
			&row.AllConversionsFromInteractionsRate,
			&hasChannel,
			&row.ViewCount,
			&row.VideoCount,
			&row.SubscriberCount,
			&row.Title,
			&row.TitleLanguage,
			&row.TitleLanguageConfidence,
			&row.Country,
			&row.DefaultLanguage,
			&excluded,
		); err != nil {
			return nil, stats, fmt.Errorf("failed to scan joined row: %w", err)
		}
		row.HasChannel = hasChannel == 1
		row.AlreadyExcluded = excluded == 1
		joined = append(joined, row)
	}
	return joined, stats, rows.Err()
}

// open builds a fresh in-memory database holding the requested namespaces.
func (e *Engine) open(ctx context.Context, schemas ...tableSchema) (*sql.DB, LoadStats, error) {
	var stats LoadStats

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, stats, fmt.Errorf("failed to open query database: %w", err)
	}
	// A second connection would see an empty independent database.
	db.SetMaxOpenConns(1)

	for _, schema := range schemas {
		if err := e.loadNamespace(ctx, db, schema, &stats); err != nil {
			_ = db.Close()
			return nil, stats, err
		}
	}

	if stats.DroppedRows > 0 || stats.SkippedFiles > 0 {
		e.logger.Warn("query layer dropped malformed data",
			"dropped_rows", stats.DroppedRows,
			"skipped_files", stats.SkippedFiles)
	}

	return db, stats, nil
}

func (e *Engine) loadNamespace(ctx context.Context, db *sql.DB, schema tableSchema, stats *LoadStats) error {
	create := "CREATE TABLE " + schema.namespace + " ("
	insert := "INSERT INTO " + schema.namespace + " ("
	marks := ""
	for i, col := range schema.columns {
		if i > 0 {
			create += ", "
			insert += ", "
			marks += ", "
		}
		create += col.name + " " + sqlType(col.kind)
		insert += col.name
		marks += "?"
	}
	create += ", source_file TEXT)"
	insert += ", source_file) VALUES (" + marks + ", ?)"

	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s: %w", schema.namespace, err)
	}

	paths, err := e.store.List(schema.namespace)
	if err != nil {
		return err
	}

	stmt, err := db.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert for %s: %w", schema.namespace, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, path := range paths {
		header, records, err := e.store.Read(path)
		if err != nil {
			e.logger.Warn("skipping unreadable artifact", "path", path, "error", err)
			stats.SkippedFiles++
			continue
		}

		// Column positions are resolved by name so reordered headers
		// still load; a header missing a schema column means the file
		// belongs to a different schema version and is skipped.
		idx, ok := columnIndex(header, schema.columns)
		if !ok {
			e.logger.Warn("skipping artifact with incompatible header",
				"path", path, "namespace", schema.namespace)
			stats.SkippedFiles++
			continue
		}

		source := filepath.Base(path)
		for _, record := range records {
			args, ok := convertRecord(record, idx, schema.columns)
			if !ok {
				stats.DroppedRows++
				continue
			}
			args = append(args, source)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to load row from %s: %w", path, err)
			}
		}
	}

	return nil
}

func sqlType(kind colKind) string {
	switch kind {
	case colInt:
		return "INTEGER"
	case colReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func columnIndex(header []string, columns []column) ([]int, bool) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}
	idx := make([]int, len(columns))
	for i, col := range columns {
		p, ok := pos[col.name]
		if !ok {
			return nil, false
		}
		idx[i] = p
	}
	return idx, true
}

// convertRecord turns one CSV record into typed insert arguments. Any field
// that fails conversion drops the whole row; a dropped row is never defaulted
// into the joined view.
func convertRecord(record []string, idx []int, columns []column) ([]any, bool) {
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		p := idx[i]
		if p >= len(record) {
			return nil, false
		}
		raw := record[p]
		switch col.kind {
		case colInt:
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, false
			}
			args = append(args, v)
		case colReal:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, false
			}
			args = append(args, v)
		default:
			args = append(args, raw)
		}
	}
	return args, true
}
