package services

import (
	"sync"
	"sync/atomic"
	"testing"
)

type countingProvider struct {
	calls int32
}

func (p *countingProvider) FetchContent() (*Content, error) {
	atomic.AddInt32(&p.calls, 1)
	return defaultContent(), nil
}

func TestContentCacheFetchesOnce(t *testing.T) {
	provider := &countingProvider{}
	cache := NewContentCache(provider)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(); err != nil {
				t.Errorf("Get error: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(&provider.calls); n != 1 {
		t.Fatalf("provider fetched %d times, want 1", n)
	}

	cache.Invalidate()
	if _, err := cache.Get(); err != nil {
		t.Fatalf("Get after Invalidate error: %v", err)
	}
	if n := atomic.LoadInt32(&provider.calls); n != 2 {
		t.Fatalf("provider fetched %d times after invalidation, want 2", n)
	}
}

func TestBandForTotal(t *testing.T) {
	content := defaultContent()
	cases := []struct {
		total int
		want  string
	}{
		{0, "calm"},
		{16, "calm"},
		{17, "moderate"},
		{32, "moderate"},
		{33, "high"},
		{MaxTotalScore, "high"},
	}
	for _, c := range cases {
		band, err := content.BandForTotal(c.total)
		if err != nil {
			t.Fatalf("BandForTotal(%d) error: %v", c.total, err)
		}
		if band.ID != c.want {
			t.Fatalf("BandForTotal(%d)=%s, want %s", c.total, band.ID, c.want)
		}
	}

	content.Bands = content.Bands[:1]
	_, err := content.BandForTotal(40)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDefaultContentComplete(t *testing.T) {
	content := defaultContent()
	for i := 0; i < QuestionCount; i++ {
		for _, cat := range []DiffCategory{DiffSame, DiffClose, DiffDifferent, DiffVeryDifferent} {
			if _, err := content.QuestionNarrative(i, cat); err != nil {
				t.Fatalf("missing narrative (%d, %s): %v", i, cat, err)
			}
		}
	}
	for _, dim := range DimensionKeys {
		if _, ok := content.DimensionTitles[dim]; !ok {
			t.Fatalf("missing title for %s", dim)
		}
		if _, ok := content.DimensionDefinitions[dim]; !ok {
			t.Fatalf("missing definition for %s", dim)
		}
		for _, rel := range []Relation{RelationSimilar, RelationDifferent} {
			if _, err := content.DimensionNarrative(dim, rel); err != nil {
				t.Fatalf("missing narrative (%s, %s): %v", dim, rel, err)
			}
		}
	}
}
