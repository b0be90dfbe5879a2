package knowledge

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// DefaultSeparators 按段落、行、句子、单词的顺序尝试切分。
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Splitter 递归切分文本，块长度按字符计，相邻块之间保留 overlap 个字符的重叠。
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

var _ document.Transformer = (*Splitter)(nil)

// NewSplitter 创建切分器，未指定分隔符时使用 DefaultSeparators。
func NewSplitter(chunkSize, overlap int, separators ...string) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap, separators: separators}, nil
}

// Transform 实现 document.Transformer，每个块继承源文档的元数据。
func (s *Splitter) Transform(_ context.Context, src []*schema.Document, _ ...document.TransformerOption) ([]*schema.Document, error) {
	var out []*schema.Document
	for _, doc := range src {
		if doc == nil {
			continue
		}
		for i, chunk := range s.SplitText(doc.Content) {
			meta := make(map[string]any, len(doc.MetaData))
			for k, v := range doc.MetaData {
				meta[k] = v
			}
			out = append(out, &schema.Document{
				ID:       fmt.Sprintf("%s_%d", doc.ID, i),
				Content:  chunk,
				MetaData: meta,
			})
		}
	}
	return out, nil
}

// SplitText 返回 text 的切分结果，空白块会被丢弃。
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.chunkSize {
		if chunk := strings.TrimSpace(text); chunk != "" {
			return []string{chunk}
		}
		return nil
	}

	for i, sep := range separators {
		if sep == "" || !strings.Contains(text, sep) {
			continue
		}
		var (
			out   []string
			small []string
		)
		for _, piece := range strings.SplitAfter(text, sep) {
			if piece == "" {
				continue
			}
			if utf8.RuneCountInString(piece) <= s.chunkSize {
				small = append(small, piece)
				continue
			}
			out = append(out, s.merge(small)...)
			small = nil
			out = append(out, s.split(piece, separators[i+1:])...)
		}
		return append(out, s.merge(small)...)
	}

	return s.window(text)
}

// merge 把小片段拼成不超过 chunkSize 的块，新块以上一块末尾不超过 overlap 的片段开头。
func (s *Splitter) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	emit := func() {
		if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
			out = append(out, chunk)
		}
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			emit()
			for len(current) > 0 && (total > s.overlap || total+n > s.chunkSize) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if len(current) > 0 {
		emit()
	}
	return out
}

// window 在没有可用分隔符时按固定字符窗口切分。
func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.chunkSize - s.overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
