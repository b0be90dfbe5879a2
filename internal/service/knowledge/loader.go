package knowledge

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/cloudwego/eino/schema"

	"github.com/autostream/agent/backend/internal/config"
)

//go:embed data/knowledge_base.md
var defaultKnowledgeBase string

// DefaultSource 内置知识库在文档元数据中的来源名。
const DefaultSource = "embedded:knowledge_base.md"

// MetaSource 记录文本块来源的元数据键。
const MetaSource = "source"

// LoadDocuments 读取知识库（配置的文件或内置默认文件）并切分为带重叠的文本块。
func LoadDocuments(ctx context.Context, cfg config.KnowledgeConfig) ([]*schema.Document, error) {
	content := defaultKnowledgeBase
	source := DefaultSource
	if cfg.Path != "" {
		data, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("knowledge base not found at %s: %w", cfg.Path, err)
		}
		content = string(data)
		source = cfg.Path
	}

	return Split(ctx, content, source, cfg.ChunkSize, cfg.ChunkOverlap)
}

// Split 使用 Splitter 切分内容，优先在段落和换行处断开。
func Split(ctx context.Context, content, source string, chunkSize, overlap int) ([]*schema.Document, error) {
	splitter, err := NewSplitter(chunkSize, overlap)
	if err != nil {
		return nil, fmt.Errorf("failed to create splitter: %w", err)
	}

	chunks, err := splitter.Transform(ctx, []*schema.Document{{
		ID:       source,
		Content:  content,
		MetaData: map[string]any{MetaSource: source},
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to split knowledge base: %w", err)
	}

	docs := make([]*schema.Document, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil || chunk.Content == "" {
			continue
		}
		chunk.ID = fmt.Sprintf("%s#%d", source, len(docs))
		if chunk.MetaData == nil {
			chunk.MetaData = map[string]any{}
		}
		chunk.MetaData[MetaSource] = source
		docs = append(docs, chunk)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("knowledge base %s is empty", source)
	}
	return docs, nil
}
