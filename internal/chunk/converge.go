package chunk

import (
	"time"

	"go.uber.org/zap"

	"github.com/DhruvDh/context-gather/internal/tokenizer"
	"github.com/DhruvDh/context-gather/internal/types"
)

// convergencePassCeiling bounds the outer repacking loop. Each pass either
// shrinks the effective limit or performs a split bounded by the total block
// count, so the loop halts; eight passes suffice empirically.
const convergencePassCeiling = 8

// Options configures one Build invocation.
type Options struct {
	// Limit is the configured token budget per chunk. Zero disables chunking.
	Limit int
	// EscapeXML controls body-text escaping. Attribute values are always
	// escaped when they would break the container.
	EscapeXML bool
	// MultiStep emits only the manifest chunk, listing every file unsplit.
	MultiStep bool
	// IncludeGit adds repository metadata sections to the manifest chunk.
	// When Git is nil a placeholder comment marks the metadata unavailable.
	IncludeGit bool
	Git        *types.GitInfo
	// Counter measures token counts. Defaults to the process-wide shared
	// tokenizer when nil.
	Counter tokenizer.Counter
	// Now supplies the header timestamp. Defaults to time.Now.
	Now func() time.Time
	// Logger receives fidelity and non-convergence warnings. Defaults to a
	// no-op logger.
	Logger *zap.Logger
}

// Result holds the rendered chunks and the per-file manifest entries.
type Result struct {
	Chunks []types.RenderedChunk
	Metas  []types.FileMeta
}

// Build converts gathered files into on-wire chunk snippets under the
// configured token budget. The boundary markers wrapped around each chunk
// count against the same budget that decides the chunk count, so packing runs
// as a bounded fixed-point iteration: oversize multi-block chunks shed their
// last block into a new chunk, and an oversize single-block chunk shrinks the
// effective limit of the next full repacking pass by its marker overhead.
// Internal issues degrade to warnings; Build never fails after packing starts.
func Build(files []types.FileContent, options Options) (Result, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	counter := options.Counter
	if counter == nil {
		sharedCounter, sharedError := tokenizer.Shared()
		if sharedError != nil {
			return Result{}, sharedError
		}
		counter = sharedCounter
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}

	packer := &engine{counter: counter, escape: options.EscapeXML, logger: logger}
	generatedAt := now()

	if options.MultiStep {
		return packer.buildMultiStep(files, options, generatedAt), nil
	}
	if options.Limit == 0 {
		return packer.buildUnchunked(files), nil
	}
	return packer.converge(files, options, generatedAt), nil
}

// buildUnchunked emits a single chunk holding every file block in order, with
// no header and no chunk wrapper.
func (e *engine) buildUnchunked(files []types.FileContent) Result {
	bodies, metas := e.buildChunkBodies(files, 0)
	var xml string
	if len(bodies) > 0 {
		xml = bodies[0].xml()
	}
	return Result{
		Chunks: []types.RenderedChunk{{Snippet: xml, Tokens: e.count(xml)}},
		Metas:  metas,
	}
}

// buildMultiStep emits only the manifest chunk; file content is served on
// demand by the caller afterwards.
func (e *engine) buildMultiStep(files []types.FileContent, options Options, generatedAt time.Time) Result {
	metas := e.buildFileMeta(files)
	headerXML := "<shared-context>\n" +
		e.buildHeader(1, options.Limit, metas, options.Git, options.IncludeGit, generatedAt) + "\n"
	snippet := renderSnippet(headerXML, nil, 0)
	return Result{
		Chunks: []types.RenderedChunk{{Snippet: snippet, Tokens: e.count(snippet)}},
		Metas:  metas,
	}
}

// passOutcome captures what one measuring pass over rendered snippets decided.
type passOutcome struct {
	snippets       []string
	tokens         []int
	splitBodyIndex int
	requiredLimit  int
	headerOversize bool
	oversizeCount  int
}

func (e *engine) converge(files []types.FileContent, options Options, generatedAt time.Time) Result {
	effectiveLimit := options.Limit

	for attempt := 0; attempt < convergencePassCeiling; attempt++ {
		bodies, metas := e.buildChunkBodies(files, effectiveLimit)

		maxBlocks := 0
		for _, body := range bodies {
			maxBlocks += len(body.blocks)
		}

		splits := 0
		splitsExhausted := false
		for {
			headerXML := "<shared-context>\n" +
				e.buildHeader(len(bodies)+1, options.Limit, metas, options.Git, options.IncludeGit, generatedAt) + "\n"
			outcome := e.measurePass(headerXML, bodies, options.Limit, splitsExhausted)

			if outcome.splitBodyIndex >= 0 {
				bodies = detachLastBlock(bodies, outcome.splitBodyIndex)
				splits++
				if splits > maxBlocks {
					e.logger.Warn("chunk splitting did not converge; using last attempt",
						zap.Int("limit", options.Limit))
					splitsExhausted = true
				}
				continue
			}

			if outcome.requiredLimit > 0 && outcome.requiredLimit < effectiveLimit && attempt < convergencePassCeiling-1 {
				effectiveLimit = outcome.requiredLimit
				break
			}

			if outcome.requiredLimit > 0 && outcome.requiredLimit < effectiveLimit {
				e.logger.Warn("packing did not converge within the pass ceiling; using last attempt",
					zap.Int("limit", options.Limit))
			}
			if outcome.headerOversize {
				e.logger.Warn("header exceeds the chunk size; increase the chunk size or disable git info",
					zap.Int("limit", options.Limit))
			}
			if outcome.oversizeCount > 0 {
				e.logger.Warn("one or more chunks exceed the chunk size due to oversize file parts",
					zap.Int("limit", options.Limit),
					zap.Int("chunks", outcome.oversizeCount))
			}

			chunks := make([]types.RenderedChunk, len(outcome.snippets))
			for index, snippet := range outcome.snippets {
				chunks[index] = types.RenderedChunk{Snippet: snippet, Tokens: outcome.tokens[index]}
			}
			return Result{Chunks: chunks, Metas: metas}
		}
	}

	// Unreachable with a positive pass ceiling: the final pass always returns.
	return Result{}
}

// measurePass renders every chunk's true on-wire snippet at the current body
// partition and classifies any that exceed the configured limit. The first
// oversize chunk with more than one block stops the scan so the caller can
// detach its last block. Oversize single-block chunks instead report the
// smallest effective limit that would leave room for their marker overhead.
func (e *engine) measurePass(headerXML string, bodies []chunkBody, limit int, ignoreSplits bool) passOutcome {
	bodyXMLs := make([]string, len(bodies))
	for bodyIndex := range bodies {
		bodyXMLs[bodyIndex] = bodies[bodyIndex].xml()
	}

	outcome := passOutcome{
		snippets:       make([]string, len(bodies)+1),
		tokens:         make([]int, len(bodies)+1),
		splitBodyIndex: -1,
	}

	for index := 0; index < len(bodies)+1; index++ {
		snippet := renderSnippet(headerXML, bodyXMLs, index)
		tokens := e.count(snippet)
		outcome.snippets[index] = snippet
		outcome.tokens[index] = tokens

		if limit <= 0 || tokens <= limit {
			continue
		}
		if index == 0 {
			outcome.headerOversize = true
			continue
		}

		bodyIndex := index - 1
		if len(bodies[bodyIndex].blocks) > 1 && !ignoreSplits {
			outcome.splitBodyIndex = bodyIndex
			return outcome
		}

		outcome.oversizeCount++
		overhead := tokens - bodies[bodyIndex].tokens
		candidate := limit - overhead
		if candidate < 0 {
			candidate = 0
		}
		if outcome.requiredLimit == 0 || candidate < outcome.requiredLimit {
			outcome.requiredLimit = candidate
		}
	}

	return outcome
}

// detachLastBlock moves the final block of the indicated body into a fresh
// body inserted right after it, preserving file and line order.
func detachLastBlock(bodies []chunkBody, bodyIndex int) []chunkBody {
	body := &bodies[bodyIndex]
	lastBlock := body.blocks[len(body.blocks)-1]
	body.blocks = body.blocks[:len(body.blocks)-1]
	body.tokens -= lastBlock.tokens

	detached := chunkBody{}
	detached.append(lastBlock)

	result := make([]chunkBody, 0, len(bodies)+1)
	result = append(result, bodies[:bodyIndex+1]...)
	result = append(result, detached)
	result = append(result, bodies[bodyIndex+1:]...)
	return result
}
