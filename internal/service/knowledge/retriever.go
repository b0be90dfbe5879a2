package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

var _ retriever.Retriever = (*Retriever)(nil)

// Options 检索器配置。
type Options struct {
	TopK int
	// Embedder 开启向量检索。为空或建索引失败时改用词项重叠排序。
	Embedder embedding.Embedder
}

// Retriever 基于内存的知识库文本块检索器。
type Retriever struct {
	docs     []*schema.Document
	terms    []map[string]struct{}
	vectors  [][]float64
	embedder embedding.Embedder
	topK     int
	logger   *zap.Logger
}

// NewRetriever 为 docs 建立索引，向量化失败时告警并降级为词项排序。
func NewRetriever(ctx context.Context, docs []*schema.Document, opts Options, logger *zap.Logger) (*Retriever, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents to index")
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 2
	}

	r := &Retriever{
		docs:   docs,
		terms:  make([]map[string]struct{}, len(docs)),
		topK:   topK,
		logger: logger.Named("knowledge"),
	}
	for i, doc := range docs {
		r.terms[i] = termSet(doc.Content)
	}

	if opts.Embedder != nil {
		contents := make([]string, len(docs))
		for i, doc := range docs {
			contents[i] = doc.Content
		}
		vectors, err := opts.Embedder.EmbedStrings(ctx, contents)
		switch {
		case err != nil:
			r.logger.Warn("embedding knowledge base failed, using lexical ranking", zap.Error(err))
		case len(vectors) != len(docs):
			r.logger.Warn("embedder returned wrong vector count, using lexical ranking",
				zap.Int("want", len(docs)), zap.Int("got", len(vectors)))
		default:
			r.vectors = vectors
			r.embedder = opts.Embedder
		}
	}

	r.logger.Info("knowledge base indexed",
		zap.Int("chunks", len(docs)),
		zap.Bool("vector", r.embedder != nil))
	return r, nil
}

// Mode 返回当前使用的排序方式。
func (r *Retriever) Mode() string {
	if r.embedder != nil {
		return "vector"
	}
	return "lexical"
}

// Retrieve 按与 query 的相似度返回至多 TopK 个文本块，最相关的在前。
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}

	scores, err := r.score(ctx, query)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(r.docs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	results := make([]*schema.Document, 0, topK)
	for _, idx := range order {
		if len(results) == topK {
			break
		}
		if options.ScoreThreshold != nil && scores[idx] < *options.ScoreThreshold {
			continue
		}
		doc := r.docs[idx]
		meta := make(map[string]any, len(doc.MetaData)+1)
		for k, v := range doc.MetaData {
			meta[k] = v
		}
		hit := &schema.Document{ID: doc.ID, Content: doc.Content, MetaData: meta}
		results = append(results, hit.WithScore(scores[idx]))
	}
	return results, nil
}

func (r *Retriever) score(ctx context.Context, query string) ([]float64, error) {
	scores := make([]float64, len(r.docs))

	if r.embedder != nil {
		vectors, err := r.embedder.EmbedStrings(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
		}
		for i, vec := range r.vectors {
			scores[i] = cosine(vectors[0], vec)
		}
		return scores, nil
	}

	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return scores, nil
	}
	for i, docTerms := range r.terms {
		hits := 0
		for term := range queryTerms {
			if _, ok := docTerms[term]; ok {
				hits++
			}
		}
		scores[i] = float64(hits) / float64(len(queryTerms))
	}
	return scores, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "of": {}, "to": {}, "and": {},
	"or": {}, "in": {}, "on": {}, "for": {}, "it": {}, "do": {}, "does": {}, "i": {},
	"you": {}, "your": {}, "my": {}, "me": {}, "what": {}, "how": {}, "much": {},
	"can": {}, "with": {}, "about": {}, "tell": {}, "there": {}, "be": {},
}

func termSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}
