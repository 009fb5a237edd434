package chunk

import (
	"strings"

	"go.uber.org/zap"

	"github.com/DhruvDh/context-gather/internal/tokenizer"
	"github.com/DhruvDh/context-gather/internal/types"
)

// splitAttemptCeiling bounds the fixed-point iteration on the part count.
// The part="i/total" attribute's size depends on the total being decided, so
// splitting re-runs with the observed count until it stops changing.
const splitAttemptCeiling = 16

// engine carries the per-run configuration shared by the packing helpers.
type engine struct {
	counter tokenizer.Counter
	escape  bool
	logger  *zap.Logger
}

// count measures text with the injected counter. Counter failures degrade to
// zero with a warning; packing never aborts mid-computation.
func (e *engine) count(text string) int {
	tokens, countError := e.counter.CountString(text)
	if countError != nil {
		e.logger.Warn("token counting failed; treating text as zero tokens", zap.Error(countError))
		return 0
	}
	return tokens
}

// fileBlock is one rendered file or file part, immutable once created.
type fileBlock struct {
	xml    string
	tokens int
}

// chunkBody accumulates blocks for one chunk until a boundary is decided.
type chunkBody struct {
	blocks []fileBlock
	tokens int
}

func (body *chunkBody) append(block fileBlock) {
	body.tokens += block.tokens
	body.blocks = append(body.blocks, block)
}

func (body *chunkBody) xml() string {
	var builder strings.Builder
	for _, block := range body.blocks {
		builder.WriteString(block.xml)
	}
	return builder.String()
}

// buildFileMeta produces one manifest entry per file without any splitting,
// used by multi-step mode where only the header chunk is emitted.
func (e *engine) buildFileMeta(files []types.FileContent) []types.FileMeta {
	metas := make([]types.FileMeta, 0, len(files))
	for fileID, file := range files {
		contents := maybeEscapeText(file.Text, e.escape)
		metas = append(metas, types.FileMeta{
			ID:     fileID,
			Path:   file.Path,
			Tokens: e.count(contents),
			Parts:  1,
		})
	}
	return metas
}

// buildChunkBodies partitions the ordered file list into token-bounded bodies
// and emits one FileMeta per file. A limit of zero disables partitioning: one
// body holds every block and nothing is split. A block that alone exceeds the
// limit is split into the fewest contiguous line ranges whose rendered parts
// fit.
func (e *engine) buildChunkBodies(files []types.FileContent, limit int) ([]chunkBody, []types.FileMeta) {
	metas := make([]types.FileMeta, 0, len(files))
	var blocks []fileBlock

	for fileID, file := range files {
		contents := maybeEscapeText(file.Text, e.escape)
		contentTokens := e.count(contents)
		wholeBlock := wrapFile(file.Path, contents)
		blockTokens := e.count(wholeBlock)

		if limit == 0 || blockTokens <= limit {
			blocks = append(blocks, fileBlock{xml: wholeBlock, tokens: blockTokens})
			metas = append(metas, types.FileMeta{ID: fileID, Path: file.Path, Tokens: contentTokens, Parts: 1})
			continue
		}

		parts := e.splitFileIntoParts(contents, file.Path, limit)
		partsCount := len(parts)
		if partsCount == 0 {
			partsCount = 1
		}
		for partIndex, partBody := range parts {
			wrapped := wrapPart(file.Path, partIndex+1, partsCount, partBody)
			wrappedTokens := e.count(wrapped)
			if wrappedTokens > limit {
				e.logger.Warn("file part exceeds the chunk size; emitting oversize part",
					zap.String("path", file.Path),
					zap.Int("part", partIndex+1),
					zap.Int("limit", limit))
			}
			blocks = append(blocks, fileBlock{xml: wrapped, tokens: wrappedTokens})
		}
		metas = append(metas, types.FileMeta{ID: fileID, Path: file.Path, Tokens: contentTokens, Parts: partsCount})
	}

	var bodies []chunkBody
	current := chunkBody{}
	for _, block := range blocks {
		if limit > 0 && len(current.blocks) > 0 && current.tokens+block.tokens > limit {
			bodies = append(bodies, current)
			current = chunkBody{}
		}
		current.append(block)
	}
	if len(current.blocks) > 0 {
		bodies = append(bodies, current)
	}

	return bodies, metas
}

// splitFileIntoParts breaks escaped file content at line boundaries so every
// rendered part fits the limit. Because the declared total changes the size of
// each part's wrapper, the split runs as a bounded fixed-point iteration:
// guess a total, split, and retry with the observed count until stable.
func (e *engine) splitFileIntoParts(contents, filePath string, limit int) []string {
	rawLines := strings.Split(contents, "\n")
	lines := make([]string, len(rawLines))
	for lineIndex, line := range rawLines {
		lines[lineIndex] = line + "\n"
	}

	targetParts := 1
	var parts []string
	for attempt := 0; attempt < splitAttemptCeiling; attempt++ {
		parts = e.splitWithTotal(lines, filePath, limit, targetParts)
		actual := len(parts)
		if actual < 1 {
			actual = 1
		}
		if actual == targetParts {
			return parts
		}
		targetParts = actual
	}
	e.logger.Warn("part count did not converge; using best attempt",
		zap.String("path", filePath),
		zap.Int("parts", len(parts)))
	return parts
}

// splitWithTotal greedily accumulates lines into parts whose rendered wrapper,
// assuming the provided declared total, stays within the limit. A single line
// whose own rendered part exceeds the limit becomes an oversize part with a
// warning; content is never dropped or truncated.
func (e *engine) splitWithTotal(lines []string, filePath string, limit, totalParts int) []string {
	var parts []string
	var current strings.Builder
	partIndex := 1

	closePart := func() {
		parts = append(parts, current.String())
		current.Reset()
		partIndex++
	}

	for _, line := range lines {
		if current.Len() == 0 {
			current.WriteString(line)
			wrapped := wrapPart(filePath, partIndex, totalParts, current.String())
			if e.count(wrapped) > limit {
				e.logger.Warn("line exceeds the chunk size; emitting oversize part",
					zap.String("path", filePath),
					zap.Int("limit", limit))
				closePart()
			}
			continue
		}

		previousLength := current.Len()
		current.WriteString(line)
		wrapped := wrapPart(filePath, partIndex, totalParts, current.String())
		if e.count(wrapped) > limit {
			withoutLine := current.String()[:previousLength]
			current.Reset()
			current.WriteString(withoutLine)
			closePart()

			current.WriteString(line)
			wrapped = wrapPart(filePath, partIndex, totalParts, current.String())
			if e.count(wrapped) > limit {
				e.logger.Warn("line exceeds the chunk size; emitting oversize part",
					zap.String("path", filePath),
					zap.Int("limit", limit))
				closePart()
			}
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
