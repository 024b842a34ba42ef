package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Get("a")               // a is now most recent
	c.Set("c", []float32{6}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len: got %d", c.Len())
	}
}

func TestEmbeddingCache_returnsCopies(t *testing.T) {
	c := NewEmbeddingCache(1)
	orig := []float32{1, 2}
	c.Set("a", orig)
	orig[0] = 99
	v, _ := c.Get("a")
	if v[0] != 1 {
		t.Errorf("cache aliased caller slice: %v", v)
	}
	v[1] = 42
	again, _ := c.Get("a")
	if again[1] != 2 {
		t.Errorf("cache aliased returned slice: %v", again)
	}
}

func TestCachingEmbedder(t *testing.T) {
	inner := NewMockEmbedder(8)
	e := NewCachingEmbedder(inner, 10)
	ctx := context.Background()

	a, err := e.Embed(ctx, "browser history")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "browser history")
	if err != nil {
		t.Fatal(err)
	}
	if inner.Calls() != 1 {
		t.Errorf("inner calls: got %d, want 1", inner.Calls())
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("cached vector differs at %d", i)
		}
	}
	if e.Dimensions() != 8 {
		t.Errorf("Dimensions: got %d", e.Dimensions())
	}
}

func TestCachingEmbedder_doesNotCacheFailures(t *testing.T) {
	fail := true
	inner := NewMockEmbedder(4, WithFailure(func(string) error {
		if fail {
			return ErrUnavailable
		}
		return nil
	}))
	e := NewCachingEmbedder(inner, 10)
	ctx := context.Background()

	if _, err := e.Embed(ctx, "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	fail = false
	if _, err := e.Embed(ctx, "x"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if inner.Calls() != 2 {
		t.Errorf("inner calls: got %d, want 2", inner.Calls())
	}
}
