package schema

import (
	"context"
	"log/slog"

	"github.com/queryloom/queryloom/internal/llm"
	"github.com/queryloom/queryloom/internal/observability"
)

// Store is the persisted vector search surface. Populated by the
// external sync job; read-only here.
type Store interface {
	SearchSimilar(ctx context.Context, embedding []float32, k int) (Context, error)
}

// Retriever embeds a question and returns the top-K most similar schema
// entries. It degrades to an empty context on any failure: downstream,
// an empty context means nothing is allowed, never everything.
type Retriever struct {
	Embedder llm.Embedder
	Store    Store
	TopK     int
	Logger   *slog.Logger
}

func (r *Retriever) Retrieve(ctx context.Context, question string) Context {
	k := r.TopK
	if k <= 0 {
		k = 5
	}

	embedding, err := r.Embedder.Embed(ctx, question)
	if err != nil {
		r.degrade(ctx, "embed question", err)
		return Context{}
	}

	entries, err := r.Store.SearchSimilar(ctx, embedding, k)
	if err != nil {
		r.degrade(ctx, "search vector store", err)
		return Context{}
	}
	return entries
}

func (r *Retriever) degrade(ctx context.Context, stage string, err error) {
	observability.IncrementRetrievalDegraded()
	if r.Logger != nil {
		r.Logger.WarnContext(ctx, "schema retrieval degraded to empty context",
			slog.String("stage", stage),
			slog.Any("error", err),
		)
	}
}
