package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/quality"
	"github.com/hyperjump/cratedig/pkg/utils"
)

// trackDoc is the indexed form of a track.
type trackDoc struct {
	Filename       string `json:"filename"`
	Path           string `json:"path"`
	Format         string `json:"format"`
	Codec          string `json:"codec"`
	Classification string `json:"classification"`
	Folder         string `json:"folder"`
}

func newTrackDoc(track *models.Track) trackDoc {
	name := strings.TrimSuffix(track.Filename, filepath.Ext(track.Filename))
	doc := trackDoc{
		Filename: utils.SpaceWords(name),
		Path:     utils.SpaceWords(filepath.ToSlash(filepath.Dir(track.Path))),
		Format:   strings.TrimPrefix(strings.ToLower(track.Format), "."),
	}
	if m := track.Metrics; m != nil {
		doc.Codec = m.Codec
		classification, folder, _ := quality.SuggestFolder(m)
		doc.Classification = utils.SpaceWords(strings.ToLower(classification))
		doc.Folder = utils.SpaceWords(folder)
	}
	return doc
}

// BleveCatalog implements Catalog using Bleve.
type BleveCatalog struct {
	index bleve.Index
}

// NewBleveCatalog creates or opens a Bleve index at path. An existing index
// is reused so that unchanged tracks need not be re-indexed. Remove the
// directory after changing the mapping.
func NewBleveCatalog(path string) (*BleveCatalog, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open catalog index: %w", openErr)
		}
		return &BleveCatalog{index: index}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog index: %w", err)
	}
	return &BleveCatalog{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	// standard analyzer: lowercase and tokenize without stemming so "kicks"
	// does not collapse into "kick"
	text.Analyzer = standard.Name
	doc.AddFieldMappingsAt("filename", text)
	doc.AddFieldMappingsAt("path", text)
	doc.AddFieldMappingsAt("classification", text)
	doc.AddFieldMappingsAt("folder", text)

	keyword := bleve.NewKeywordFieldMapping()
	doc.AddFieldMappingsAt("format", keyword)
	doc.AddFieldMappingsAt("codec", keyword)

	im.AddDocumentMapping("track", doc)
	im.DefaultType = "track"
	im.DefaultMapping = doc
	return im
}

// Index adds or replaces track in the catalog.
func (c *BleveCatalog) Index(ctx context.Context, track *models.Track) error {
	if err := c.index.Index(track.ID, newTrackDoc(track)); err != nil {
		return fmt.Errorf("failed to index %s: %w", track.Path, err)
	}
	return nil
}

// Delete removes a track from the catalog.
func (c *BleveCatalog) Delete(ctx context.Context, id string) error {
	return c.index.Delete(id)
}

// DocCount returns the number of indexed tracks.
func (c *BleveCatalog) DocCount() (uint64, error) {
	return c.index.DocCount()
}

// Close closes the index.
func (c *BleveCatalog) Close() error {
	return c.index.Close()
}

// Search runs query and returns up to limit hits, best first.
// With a FilenameBoost above 1, filename and all-field queries run separately
// and their scores are added, so a hit in the name outranks one that only
// matches the folder path.
func (c *BleveCatalog) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	boost := 1.0
	fuzzy := false
	fuzziness := 1
	if opts != nil {
		if opts.FilenameBoost > 0 {
			boost = opts.FilenameBoost
		}
		fuzzy = opts.Fuzzy
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}
	if fuzziness > 2 {
		fuzziness = 2
	}

	if boost <= 1 {
		return c.run(buildQuery(query, "", fuzzy, fuzziness), limit, 1)
	}

	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	nameHits, err := c.run(buildQuery(query, "filename", fuzzy, fuzziness), reqSize, boost)
	if err != nil {
		return nil, err
	}
	allHits, err := c.run(buildQuery(query, "", fuzzy, fuzziness), reqSize, 1)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	for _, h := range nameHits {
		scores[h.ID] += h.Score
	}
	for _, h := range allHits {
		scores[h.ID] += h.Score
	}
	merged := make([]*Hit, 0, len(scores))
	for id, s := range scores {
		merged = append(merged, &Hit{ID: id, Score: s})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (c *BleveCatalog) run(q blevequery.Query, size int, scale float64) ([]*Hit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	hits := make([]*Hit, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = &Hit{ID: h.ID, Score: h.Score * scale}
	}
	return hits, nil
}

// buildQuery returns a match query, or a disjunction of per-term fuzzy
// queries when fuzzy is set. An empty field searches all fields.
func buildQuery(query, field string, fuzzy bool, fuzziness int) blevequery.Query {
	terms := tokenize(query)
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(utils.SpaceWords(query))
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenize splits query into lowercase words the same way filenames are
// split at index time.
func tokenize(query string) []string {
	return strings.Fields(strings.ToLower(utils.SpaceWords(query)))
}

// Terms returns every distinct term in the filename field with its document
// frequency.
func (c *BleveCatalog) Terms() (map[string]int, error) {
	dict, err := c.index.FieldDict("filename")
	if err != nil {
		return nil, fmt.Errorf("failed to read term dictionary: %w", err)
	}
	defer dict.Close()

	terms := make(map[string]int)
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		terms[entry.Term] = int(entry.Count)
	}
	return terms, nil
}
