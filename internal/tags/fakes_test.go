package tags

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"research-backend/internal/llm"
)

const testDims = 64

// fakeEmbedder returns fixed vectors for known texts and pseudo-random
// sign vectors for everything else.
type fakeEmbedder struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	embedCalls int
	batchCalls int
}

func newFakeEmbedder(known map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{vectors: known}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		out := make([]float32, testDims)
		copy(out, v)
		return out
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()
	out := make([]float32, testDims)
	for i := range out {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		if state&1 == 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) batches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

// near returns a unit vector at the given cosine to the first axis.
func near(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func axis() []float32 { return []float32{1, 0} }

type funcReasoner func(ctx context.Context, req llm.Request) (llm.Response, error)

func (f funcReasoner) Reason(ctx context.Context, req llm.Request) (llm.Response, error) {
	return f(ctx, req)
}

func suggesting(tag string) funcReasoner {
	return func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{Content: map[string]any{"suggested_tag": tag}}, nil
	}
}

func seedTag(repo *MemoryRepo, id, name string, category Category) Tag {
	t, _, _ := repo.GetOrCreate(context.Background(), Tag{ID: id, Name: name, Category: category})
	return t
}
