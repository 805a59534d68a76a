package reindex

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/extract"
	"github.com/casekit/exposer/internal/metadata"
	"github.com/casekit/exposer/internal/models"
)

// DefaultPlainTablePrefix prefixes the per-entity work table name when the
// metadata does not pin one.
const DefaultPlainTablePrefix = "case_plain_"

// Service is the top-level reindex use case: load the latest case snapshot,
// annotate and project it into the entity's plain table, then drive every
// applicable index definition.
type Service struct {
	conn      *gorm.DB
	resolver  *metadata.Resolver
	annotator *metadata.Annotator
	indexes   *metadata.IndexLoader
	persister *Persister
	indexer   *IndexProcessor
}

// NewService wires the orchestrator.
func NewService(conn *gorm.DB, resolver *metadata.Resolver, annotator *metadata.Annotator, indexes *metadata.IndexLoader, persister *Persister) *Service {
	if conn == nil || resolver == nil || persister == nil {
		return nil
	}
	return &Service{
		conn:      conn,
		resolver:  resolver,
		annotator: annotator,
		indexes:   indexes,
		persister: persister,
		indexer:   NewIndexProcessor(persister),
	}
}

// Reindex projects the latest snapshot of one case. A case with no stored
// snapshot, or a snapshot that is not valid JSON, is a silent no-op: the
// record may simply not have arrived yet. A database failure on the primary
// row propagates; index definition failures are logged and skipped.
func (s *Service) Reindex(ctx context.Context, caseInstanceID, entityTypeHint string) error {
	if s == nil {
		return errors.New("reindex: service not initialized")
	}
	caseInstanceID = strings.TrimSpace(caseInstanceID)
	if caseInstanceID == "" {
		return errors.New("reindex: empty case instance id")
	}

	record, found, errFetch := s.latestRecord(ctx, caseInstanceID)
	if errFetch != nil {
		return errFetch
	}
	if !found {
		log.Debugf("reindex: no stored snapshot for case %s yet", caseInstanceID)
		return nil
	}

	entityType := strings.TrimSpace(entityTypeHint)
	if entityType == "" {
		entityType = strings.TrimSpace(record.EntityType)
	}

	doc := s.annotateDocument(ctx, record.Payload, entityType)
	if doc == nil {
		log.Warnf("reindex: case %s payload is not valid JSON, skipping", caseInstanceID)
		return nil
	}

	mappings := s.resolver.MappingsFor(ctx, entityType)
	row := extract.BuildRowValues(caseInstanceID, doc, record.CreatedAt, mappings, nil, DirectFallbacks(doc))
	hints := extract.TypeHints(mappings)

	table := s.plainTableName(ctx, entityType)
	if errUpsert := s.persister.UpsertRow(ctx, table, row, hints); errUpsert != nil {
		return errUpsert
	}

	for _, def := range s.applicableIndexDefinitions(doc, entityType) {
		if errIndex := s.indexer.Process(ctx, doc, def, caseInstanceID, record.CreatedAt); errIndex != nil {
			log.WithError(errIndex).Warnf("reindex: index definition %s failed for case %s", def.Table, caseInstanceID)
		}
	}
	return nil
}

// latestRecord fetches the newest snapshot row for the case.
func (s *Service) latestRecord(ctx context.Context, caseInstanceID string) (*models.CaseRecord, bool, error) {
	var record models.CaseRecord
	errFind := s.conn.WithContext(ctx).
		Where("case_instance_id = ?", caseInstanceID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Take(&record).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if errFind != nil {
		return nil, false, errFind
	}
	return &record, true, nil
}

// annotateDocument parses the payload, tags it with type discriminators and
// re-serializes so the raw-text extraction path sees the annotations too.
// Annotation is best-effort; a payload that fails to parse yields nil.
func (s *Service) annotateDocument(ctx context.Context, payload, entityType string) *extract.Document {
	doc := extract.NewDocument(payload)
	root, isMap := doc.Parsed().(map[string]any)
	if !isMap {
		if doc.Parsed() == nil {
			return nil
		}
		return doc
	}
	if s.annotator != nil && entityType != "" {
		s.annotator.Annotate(ctx, root, rootClassFor(entityType))
		if encoded, errMarshal := json.Marshal(root); errMarshal == nil {
			return extract.NewDocument(string(encoded))
		}
	}
	return doc
}

// rootClassFor derives the root class tag from an entity type, stripping a
// trailing "process" suffix the way metadata lookup candidates do.
func rootClassFor(entityType string) string {
	candidates := metadata.BuildCandidates(entityType)
	if len(candidates) == 0 {
		return entityType
	}
	return candidates[len(candidates)-1]
}

// plainTableName picks the primary work table: the resolved definition's
// tableName when pinned, otherwise the prefixed entity name.
func (s *Service) plainTableName(ctx context.Context, entityType string) string {
	if def, ok := s.resolver.Resolve(ctx, entityType); ok && strings.TrimSpace(def.TableName) != "" {
		return def.TableName
	}
	name := strings.ToLower(strings.TrimSpace(entityType))
	name = strings.TrimSuffix(name, "process")
	if name == "" {
		name = "unknown"
	}
	return DefaultPlainTablePrefix + name
}

// applicableIndexDefinitions selects the payload class's own definition plus
// every other definition whose base path digs below the root or whose class
// tag appears nested in the payload.
func (s *Service) applicableIndexDefinitions(doc *extract.Document, entityType string) []*metadata.IndexDefinition {
	if s.indexes == nil {
		return nil
	}
	var out []*metadata.IndexDefinition
	seen := map[string]struct{}{}
	add := func(def *metadata.IndexDefinition) {
		if def == nil {
			return
		}
		if _, dup := seen[def.Table]; dup {
			return
		}
		seen[def.Table] = struct{}{}
		out = append(out, def)
	}

	for _, candidate := range metadata.BuildCandidates(entityType) {
		if def, ok := s.indexes.FindByClass(candidate); ok {
			add(def)
		}
	}
	for _, def := range s.indexes.All() {
		path := strings.TrimSpace(def.JSONPath)
		if path != "" && path != "$" {
			add(def)
			continue
		}
		if def.Class != "" && len(doc.FindByClass(def.Class)) > 0 {
			add(def)
		}
	}
	return out
}
