package migrate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ardaguler/kvmigrate/internal/catalog"
	"github.com/ardaguler/kvmigrate/internal/config"
	"github.com/ardaguler/kvmigrate/internal/database"
	"github.com/ardaguler/kvmigrate/internal/schema"
	"github.com/ardaguler/kvmigrate/pkg/logger"
	"github.com/ardaguler/kvmigrate/pkg/progress"
)

// Service runs the whole pipeline: schema load, catalog discovery,
// dependency ordering, per-table transformation, emission. Structural
// failures (unreadable schema, foreign-key cycles) surface before the
// output file is created, so a fatal run leaves no artifact behind.
type Service struct {
	cfg          *config.Config
	logger       *logger.Logger
	showProgress bool
}

func NewService(cfg *config.Config, log *logger.Logger, showProgress bool) *Service {
	return &Service{
		cfg:          cfg,
		logger:       log,
		showProgress: showProgress,
	}
}

func (s *Service) Run() (*Report, error) {
	conn, err := database.Open(s.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrSchemaUnavailable, err)
	}
	defer conn.Close()

	model, err := schema.NewExtractor(conn, s.logger).Extract()
	if err != nil {
		return nil, err
	}

	sources, err := catalog.Discover(s.cfg.ExportRoot, model, s.cfg.Tables.Overrides, s.logger)
	if err != nil {
		return nil, err
	}

	present := sources.Tables()
	order, selfReferential, err := Resolve(model, present)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Processing %d tables in dependency order", len(order))

	report := &Report{
		Tables:     make(map[string]*TableReport),
		Order:      order,
		OutputPath: s.cfg.OutputPath,
	}

	registry := NewRegistry()
	transformer := NewTransformer(model, registry, s.logger)

	var bar *progress.Bar
	if s.showProgress {
		total := int64(0)
		for _, group := range sources.Groups {
			total += int64(len(group.Documents))
		}
		bar = progress.NewBar(total, "Transforming records")
	}

	rowsByTable := make(map[string][]*Row)
	for _, tableName := range order {
		group := sources.Groups[tableName]
		table := model.Table(tableName)

		tableReport := newTableReport()
		tableReport.Files = group.Files
		tableReport.Discovered = len(group.Documents)
		for i := 0; i < group.Invalid; i++ {
			tableReport.skip(SkipInvalidDocument)
		}
		report.Tables[tableName] = tableReport

		docs := group.Documents
		if field, ok := s.cfg.Tables.Chronological[tableName]; ok {
			docs = sortedByField(docs, field)
		}

		var deferred []catalog.Document
		for _, doc := range docs {
			bar.Increment()
			row, skip := transformer.Transform(table, doc)
			if skip == nil {
				rowsByTable[tableName] = append(rowsByTable[tableName], row)
				continue
			}
			// Rows whose self-reference is not yet resolvable get one
			// more chance after the rest of the table has been seen.
			if skip.Reason == SkipMissingParent && skip.Referenced == tableName && selfReferential[tableName] {
				deferred = append(deferred, doc)
				continue
			}
			s.reportSkip(tableReport, skip)
		}

		for _, doc := range deferred {
			row, skip := transformer.Transform(table, doc)
			if skip == nil {
				rowsByTable[tableName] = append(rowsByTable[tableName], row)
				continue
			}
			s.reportSkip(tableReport, skip)
		}
	}
	bar.Finish()
	report.Fallbacks = transformer.Fallbacks()

	emitted, err := s.writeArtifact(order, rowsByTable)
	if err != nil {
		return nil, err
	}
	for tableName, count := range emitted {
		report.Tables[tableName].Emitted = count
	}

	s.logger.Infof("SQL statements written to %s", s.cfg.OutputPath)
	return report, nil
}

func (s *Service) writeArtifact(order []string, rowsByTable map[string][]*Row) (map[string]int, error) {
	file, err := os.Create(s.cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	emitted, err := NewEmitter(writer).Emit(order, rowsByTable, s.cfg.Tables.Chronological)
	if err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}

	return emitted, nil
}

func (s *Service) reportSkip(tableReport *TableReport, skip *Skip) {
	tableReport.skip(skip.Reason)

	entry := s.logger.WithTable(skip.Table)
	switch skip.Reason {
	case SkipMissingParent:
		entry.Warnf("Skipping record %q: referenced parent in %s not found", skip.OriginalID, skip.Referenced)
	case SkipNoIdentifier:
		entry.Warnf("Skipping record: document carries no identifier")
	default:
		entry.Warnf("Skipping record %q: %s", skip.OriginalID, skip.Reason)
	}
}

// sortedByField stably orders documents by the string form of one field,
// used for append-only event logs that must stay chronological.
func sortedByField(docs []catalog.Document, field string) []catalog.Document {
	sorted := append([]catalog.Document(nil), docs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return fieldSortKey(sorted[i], field) < fieldSortKey(sorted[j], field)
	})
	return sorted
}

func fieldSortKey(doc catalog.Document, field string) string {
	switch v := doc[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
