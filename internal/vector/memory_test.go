package vector

import (
	"context"
	"testing"
)

func TestMemoryIndex_UpsertSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	vecs := map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.9, 0.1, 0},
		"c": {0, 1, 0},
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := idx.Upsert(id, vecs[id]); err != nil {
			t.Fatal(err)
		}
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("order: got %s, %s", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results should be sorted by descending score")
	}
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	_ = idx.Upsert("x", []float32{1, 0})
	_ = idx.Upsert("x", []float32{0, 1})
	if idx.Size() != 1 {
		t.Fatalf("expected size 1, got %d", idx.Size())
	}
	res, _ := idx.Search(context.Background(), []float32{0, 1}, 1)
	if res[0].Score < 0.999 {
		t.Errorf("replaced vector should match exactly, score=%f", res[0].Score)
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	if err := idx.Upsert("x", []float32{1, 2, 3}); err == nil {
		t.Error("expected upsert dimension error")
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 1); err == nil {
		t.Error("expected search dimension error")
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	_ = idx.Upsert("x", []float32{1, 0})
	_ = idx.Upsert("y", []float32{0, 1})
	idx.Remove("x", "missing")
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	res, _ := idx.Search(context.Background(), []float32{1, 0}, 5)
	if len(res) != 1 || res[0].ID != "y" {
		t.Errorf("unexpected results after remove: %+v", res)
	}
}

func TestMemoryIndex_EmptySearch(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	res, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil || len(res) != 0 {
		t.Errorf("empty index: got %v, %v", res, err)
	}
}
