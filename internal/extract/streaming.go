package extract

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
	"github.com/Border-Link/immigration-ai-sub000/internal/respparse"
)

// promptOverhead reserves room in each chunk for the system prompt and
// request template so the effective request stays under the chunk budget.
const promptOverhead = 800

// SplitChunks splits text into overlapping chunks. The overlap keeps a rule
// that straddles a boundary fully inside at least one chunk.
func SplitChunks(text string, chunkSize, overlap int) []string {
	effective := chunkSize - promptOverhead
	if effective <= 0 {
		effective = chunkSize
	}
	if overlap >= effective {
		overlap = effective / 4
	}

	if len(text) <= effective {
		return []string{text}
	}

	step := effective - overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + effective
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

// streamExtract processes an oversized document as overlapping chunks, each
// independently sent through the gateway and parser. A chunk failure
// degrades to an empty rule list for that chunk; usage and cost are summed
// across chunks.
func (o *Orchestrator) streamExtract(ctx context.Context, dv *model.DocumentVersion, text string) (*extraction, error) {
	chunks := SplitChunks(text, o.cfg.ChunkSize, o.cfg.ChunkOverlap)

	zap.L().Info("extract: streaming oversized document",
		zap.String("document_version_id", dv.ID),
		zap.Int("text_len", len(text)),
		zap.Int("chunks", len(chunks)),
	)

	type chunkOutcome struct {
		candidates   []model.CandidateRule
		usage        model.TokenUsage
		cost         float64
		modelName    string
		processingMS int64
	}
	outcomes := make([]chunkOutcome, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ChunkConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := o.gw.Extract(gctx, chunk, dv.Jurisdiction)
			if err != nil {
				zap.L().Warn("extract: chunk extraction failed, continuing with empty list",
					zap.String("document_version_id", dv.ID),
					zap.Int("chunk", i),
					zap.Error(err),
				)
				return nil
			}
			outcomes[i].usage = res.Usage
			outcomes[i].cost = res.EstimatedCost
			outcomes[i].modelName = res.Model
			outcomes[i].processingMS = res.ProcessingMS

			candidates, err := respparse.Parse(res.Text)
			if err != nil {
				zap.L().Warn("extract: chunk response unparsable, continuing with empty list",
					zap.String("document_version_id", dv.ID),
					zap.Int("chunk", i),
					zap.Error(err),
				)
				return nil
			}
			outcomes[i].candidates = candidates
			return nil
		})
	}
	// Chunk workers never return errors; failures degrade per-chunk.
	_ = g.Wait()

	merged := &extraction{streamed: true, chunks: len(chunks)}
	for _, out := range outcomes {
		merged.candidates = append(merged.candidates, out.candidates...)
		merged.usage.Add(out.usage)
		merged.cost += out.cost
		merged.processingMS += out.processingMS
		if merged.modelName == "" {
			merged.modelName = out.modelName
		}
	}
	return merged, nil
}
