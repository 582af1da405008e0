package schema

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDeriveExtractsTablesAndColumns(t *testing.T) {
	ctx := Context{
		{
			Object: "public.orders",
			Kind:   "table",
			Columns: []Column{
				{Name: "id"},
				{Name: "created_at"},
				{Name: "amount"},
			},
		},
		{Object: "movies", Kind: "view"},
	}

	allowed := Derive(ctx)
	if allowed.Empty() {
		t.Fatal("allowed set should not be empty")
	}
	if !allowed.HasTable("public.orders") {
		t.Fatal("expected public.orders to be allowed")
	}
	if !allowed.HasTable("orders") {
		t.Fatal("expected bare orders to be allowed")
	}
	if !allowed.HasTable("MOVIES") {
		t.Fatal("table membership should be case-insensitive")
	}
	if !allowed.HasColumn("created_at") {
		t.Fatal("expected created_at to be allowed")
	}
	if allowed.HasColumn("secret_col") {
		t.Fatal("secret_col must not be allowed")
	}
	if allowed.HasTable("ratings") {
		t.Fatal("ratings was never retrieved and must not be allowed")
	}
}

func TestDeriveEmptyContextYieldsEmptySet(t *testing.T) {
	allowed := Derive(Context{})
	if !allowed.Empty() {
		t.Fatal("empty context must derive an empty allowed set")
	}
	if allowed.HasTable("orders") {
		t.Fatal("nothing may be allowed from an empty context")
	}
}

func TestContextPromptText(t *testing.T) {
	ctx := Context{
		{
			Object:      "orders",
			Kind:        "table",
			Description: "customer orders",
			Columns: []Column{
				{Name: "id", Type: "bigint", Description: "order id"},
			},
		},
	}
	text := ctx.PromptText()
	for _, want := range []string{"TABLE orders", "customer orders", "id (bigint): order id"} {
		if !strings.Contains(text, want) {
			t.Fatalf("PromptText() missing %q in %q", want, text)
		}
	}
	if (Context{}).PromptText() != "" {
		t.Fatal("empty context should render empty prompt text")
	}
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

type fakeStore struct {
	entries Context
	err     error
	gotK    int
}

func (f *fakeStore) SearchSimilar(_ context.Context, _ []float32, k int) (Context, error) {
	f.gotK = k
	return f.entries, f.err
}

func TestRetrieverReturnsRankedEntries(t *testing.T) {
	store := &fakeStore{entries: Context{{Object: "orders", Similarity: 0.9}}}
	r := &Retriever{
		Embedder: &fakeEmbedder{vec: []float32{0.1}},
		Store:    store,
		TopK:     3,
	}
	got := r.Retrieve(context.Background(), "recent orders")
	if len(got) != 1 || got[0].Object != "orders" {
		t.Fatalf("Retrieve() = %#v", got)
	}
	if store.gotK != 3 {
		t.Fatalf("k = %d", store.gotK)
	}
}

func TestRetrieverDegradesToEmptyContext(t *testing.T) {
	cases := map[string]*Retriever{
		"embed failure": {
			Embedder: &fakeEmbedder{err: errors.New("embedding down")},
			Store:    &fakeStore{entries: Context{{Object: "orders"}}},
		},
		"store failure": {
			Embedder: &fakeEmbedder{vec: []float32{0.1}},
			Store:    &fakeStore{err: errors.New("vector store unreachable")},
		},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			got := r.Retrieve(context.Background(), "anything")
			if !got.Empty() {
				t.Fatalf("Retrieve() = %#v, want empty context", got)
			}
		})
	}
}
