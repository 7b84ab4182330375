package search

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/store"
)

// benchVocab seeds synthetic section text with contract vocabulary so
// the keyword branch scores real term overlap instead of noise.
var benchVocab = []string{
	"employee", "employer", "union", "overtime", "vacation", "holiday",
	"seniority", "grievance", "arbitration", "wage", "premium", "schedule",
	"layoff", "recall", "discharge", "probationary", "classification",
	"bargaining", "steward", "shift", "allowance", "pension", "leave",
}

var benchTitles = []string{
	"RECOGNITION", "HOURS OF WORK", "OVERTIME", "HOLIDAYS", "VACATIONS",
	"SENIORITY", "LEAVES OF ABSENCE", "GRIEVANCE PROCEDURE", "WAGES",
	"HEALTH AND WELFARE",
}

var benchQueries = []string{
	"overtime premium pay",
	"vacation accrual",
	"grievance arbitration procedure",
	"seniority layoff recall",
	"holiday schedule allowance",
}

func benchSentence(rng *rand.Rand) string {
	words := make([]byte, 0, 160)
	n := 15 + rng.Intn(15)
	for i := 0; i < n; i++ {
		if i > 0 {
			words = append(words, ' ')
		}
		words = append(words, benchVocab[rng.Intn(len(benchVocab))]...)
	}
	return string(words)
}

// setupBenchEngine builds an engine over n synthetic section chunks
// with seeded content and vectors, so runs are comparable.
func setupBenchEngine(b *testing.B, n int) *Engine {
	b.Helper()
	rng := rand.New(rand.NewSource(42))

	chunks := make([]*contract.Chunk, n)
	for i := range chunks {
		art := i/4 + 1
		sec := i%4 + 1
		chunks[i] = &contract.Chunk{
			ChunkID:      fmt.Sprintf("art%d_sec%d", art, sec),
			ArticleNum:   art,
			ArticleTitle: benchTitles[art%len(benchTitles)],
			SectionNum:   sec,
			Citation:     fmt.Sprintf("Article %d, Section %d", art, sec),
			Content:      benchSentence(rng),
		}
	}

	cs := store.NewChunkStore(chunks)
	vix, err := store.NewVectorIndex(store.DefaultVectorConfig(4))
	if err != nil {
		b.Fatal(err)
	}
	for _, c := range chunks {
		vec := []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
		if err := vix.Add(c.ChunkID, vec, store.MetaFromChunk(c)); err != nil {
			b.Fatal(err)
		}
	}

	kix := store.NewKeywordIndex(store.DefaultBM25K1, store.DefaultBM25B)
	kix.Build(chunks)

	eng, err := NewEngine(cs, vix, kix, &fakeEmbedder{}, config.NewConfig().Retrieval)
	if err != nil {
		b.Fatal(err)
	}
	return eng
}

func BenchmarkEngineSearch_Scale(b *testing.B) {
	for _, scale := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("chunks_%d", scale), func(b *testing.B) {
			eng := setupBenchEngine(b, scale)
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := eng.Search(ctx, Query{Text: benchQueries[i%len(benchQueries)], K: 20}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEngineSearch_Parallel(b *testing.B) {
	eng := setupBenchEngine(b, 10000)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := eng.Search(ctx, Query{Text: benchQueries[i%len(benchQueries)], K: 20}); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}
