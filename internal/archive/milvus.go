package archive

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/rs/zerolog"

	"deep-researcher/internal/config"
	"deep-researcher/pkg/interfaces"
)

// Collection field names
const (
	fieldID        = "id"
	fieldRunID     = "run_id"
	fieldSubtaskID = "subtask_id"
	fieldText      = "text"
	fieldSource    = "source"
	fieldEmbedding = "embedding"
)

// Maximum VarChar lengths of the collection schema
const (
	maxIDLength     = 256
	maxTextLength   = 65535
	maxSourceLength = 2048
)

// MilvusArchive stores chunked findings in a Milvus collection and serves
// similarity search over them
type MilvusArchive struct {
	client         client.Client
	embedder       interfaces.Embedder
	collectionName string
	chunkSize      int
	logger         zerolog.Logger
}

// NewMilvusArchive connects to Milvus and makes sure the collection exists
func NewMilvusArchive(ctx context.Context, cfg config.ArchiveConfig, embedder interfaces.Embedder, logger zerolog.Logger) (*MilvusArchive, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.GetURI(),
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}

	a := &MilvusArchive{
		client:         c,
		embedder:       embedder,
		collectionName: cfg.Collection,
		chunkSize:      cfg.ChunkSize,
		logger:         logger.With().Str("component", "archive").Str("collection", cfg.Collection).Logger(),
	}

	if err := a.ensureCollection(ctx, cfg.Recreate); err != nil {
		c.Close()
		return nil, err
	}
	return a, nil
}

// ensureCollection creates and loads the collection, dropping an existing
// one first if recreate is set
func (a *MilvusArchive) ensureCollection(ctx context.Context, recreate bool) error {
	exists, err := a.client.HasCollection(ctx, a.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if exists && recreate {
		if err := a.client.DropCollection(ctx, a.collectionName); err != nil {
			return fmt.Errorf("failed to drop existing collection: %w", err)
		}
		exists = false
	}

	if !exists {
		if err := a.client.CreateCollection(ctx, a.schema(), entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		index, err := entity.NewIndexFlat(entity.COSINE)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := a.client.CreateIndex(ctx, a.collectionName, fieldEmbedding, index, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		a.logger.Info().Msg("archive collection created")
	}

	if err := a.client.LoadCollection(ctx, a.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (a *MilvusArchive) schema() *entity.Schema {
	varchar := func(name string, maxLength int, description string) *entity.Field {
		return &entity.Field{
			Name:        name,
			DataType:    entity.FieldTypeVarChar,
			TypeParams:  map[string]string{"max_length": strconv.Itoa(maxLength)},
			Description: description,
		}
	}

	return &entity.Schema{
		CollectionName: a.collectionName,
		Description:    "Findings of past research runs",
		Fields: []*entity.Field{
			{
				Name:        fieldID,
				DataType:    entity.FieldTypeInt64,
				PrimaryKey:  true,
				AutoID:      true,
				Description: "Primary key",
			},
			varchar(fieldRunID, maxIDLength, "Research run that produced the finding"),
			varchar(fieldSubtaskID, maxIDLength, "Subtask the finding answers"),
			varchar(fieldText, maxTextLength, "Finding text chunk"),
			varchar(fieldSource, maxSourceLength, "First source cited by the finding"),
			{
				Name:        fieldEmbedding,
				DataType:    entity.FieldTypeFloatVector,
				TypeParams:  map[string]string{"dim": strconv.Itoa(a.embedder.GetDimension())},
				Description: "Text embedding vector",
			},
		},
	}
}

// row is one chunk ready for insertion
type row struct {
	runID     string
	subtaskID string
	text      string
	source    string
	embedding []float32
}

// prepare chunks and embeds completed findings
func (a *MilvusArchive) prepare(ctx context.Context, runID string, findings []*interfaces.Finding) ([]row, error) {
	var rows []row
	for _, f := range findings {
		if !f.Completed() {
			continue
		}
		source := ""
		if len(f.Sources) > 0 {
			source = truncate(f.Sources[0].URL, maxSourceLength)
		}
		for _, chunk := range ChunkText(f.Content, a.chunkSize) {
			rows = append(rows, row{
				runID:     truncate(runID, maxIDLength),
				subtaskID: truncate(f.SubtaskID, maxIDLength),
				text:      truncate(chunk, maxTextLength),
				source:    source,
			})
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.text
	}
	embeddings, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed findings: %w", err)
	}
	if len(embeddings) != len(rows) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(rows), len(embeddings))
	}
	for i := range rows {
		rows[i].embedding = embeddings[i]
	}
	return rows, nil
}

func (a *MilvusArchive) columns(rows []row) []entity.Column {
	runIDs := make([]string, len(rows))
	subtaskIDs := make([]string, len(rows))
	texts := make([]string, len(rows))
	sources := make([]string, len(rows))
	embeddings := make([][]float32, len(rows))

	for i, r := range rows {
		runIDs[i] = r.runID
		subtaskIDs[i] = r.subtaskID
		texts[i] = r.text
		sources[i] = r.source
		embeddings[i] = r.embedding
	}

	return []entity.Column{
		entity.NewColumnVarChar(fieldRunID, runIDs),
		entity.NewColumnVarChar(fieldSubtaskID, subtaskIDs),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldSource, sources),
		entity.NewColumnFloatVector(fieldEmbedding, a.embedder.GetDimension(), embeddings),
	}
}

// Store chunks, embeds and inserts the completed findings of a run
func (a *MilvusArchive) Store(ctx context.Context, runID string, findings []*interfaces.Finding) error {
	rows, err := a.prepare(ctx, runID, findings)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	if _, err := a.client.Insert(ctx, a.collectionName, "", a.columns(rows)...); err != nil {
		return fmt.Errorf("failed to insert findings: %w", err)
	}
	if err := a.client.Flush(ctx, a.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}

	a.logger.Debug().Str("run_id", runID).Int("chunks", len(rows)).Msg("findings stored")
	return nil
}

// Search returns the topK passages most similar to query
func (a *MilvusArchive) Search(ctx context.Context, query string, topK int) ([]interfaces.ArchiveHit, error) {
	if topK <= 0 {
		topK = 5
	}

	embeddings, err := a.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}

	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := a.client.Search(
		ctx,
		a.collectionName,
		nil,
		"",
		[]string{fieldRunID, fieldSubtaskID, fieldText, fieldSource},
		[]entity.Vector{entity.FloatVector(embeddings[0])},
		fieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search archive: %w", err)
	}

	return hitsFromResults(results)
}

// hitsFromResults flattens Milvus search results into archive hits
func hitsFromResults(results []client.SearchResult) ([]interfaces.ArchiveHit, error) {
	var hits []interfaces.ArchiveHit
	for _, result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("search result error: %w", result.Err)
		}

		for i := 0; i < result.ResultCount; i++ {
			hit := interfaces.ArchiveHit{}
			if i < len(result.Scores) {
				hit.Score = result.Scores[i]
			}
			for _, col := range result.Fields {
				value, err := col.Get(i)
				if err != nil {
					return nil, fmt.Errorf("failed to read field %s: %w", col.Name(), err)
				}
				s, _ := value.(string)
				switch col.Name() {
				case fieldRunID:
					hit.RunID = s
				case fieldSubtaskID:
					hit.SubtaskID = s
				case fieldText:
					hit.Text = s
				case fieldSource:
					hit.Source = s
				}
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// Close closes the Milvus client connection
func (a *MilvusArchive) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
