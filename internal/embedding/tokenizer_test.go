package embedding

import (
	"testing"
)

func TestHashTokenizer_Tokenize(t *testing.T) {
	tok := &HashTokenizer{}
	ids, attn, types := tok.Tokenize("USB history, Android", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths: ids=%d attn=%d types=%d", len(ids), len(attn), len(types))
	}
	if ids[0] != clsTokenID {
		t.Errorf("expected CLS %d, got %d", clsTokenID, ids[0])
	}
	if ids[4] != sepTokenID {
		t.Errorf("expected SEP at 4, got %d", ids[4])
	}
	for i := 0; i < 5; i++ {
		if attn[i] != 1 {
			t.Errorf("attention[%d] should be 1", i)
		}
	}
	if attn[5] != 0 {
		t.Error("padding should not be attended")
	}
	for i := 1; i < 4; i++ {
		if ids[i] < firstWordID || ids[i] >= vocabSize {
			t.Errorf("ids[%d]=%d outside word range", i, ids[i])
		}
	}
}

func TestHashTokenizer_truncates(t *testing.T) {
	tok := &HashTokenizer{}
	ids, attn, _ := tok.Tokenize("one two three four five six", 4)
	if len(ids) != 4 {
		t.Fatalf("len(ids)=%d", len(ids))
	}
	if ids[3] != sepTokenID {
		t.Errorf("expected SEP in last slot, got %d", ids[3])
	}
	if attn[3] != 1 {
		t.Error("SEP should be attended")
	}
}

func TestHashTokenizer_caseInsensitive(t *testing.T) {
	tok := &HashTokenizer{}
	a, _, _ := tok.Tokenize("Registry Hive", 8)
	b, _, _ := tok.Tokenize("registry hive", 8)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("ids differ at %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  Call-logs, SMS  & MMS.db ")
	want := []string{"call", "logs", "sms", "mms", "db"}
	if len(words) != len(want) {
		t.Fatalf("got %v, want %v", words, want)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("words[%d]=%q, want %q", i, words[i], want[i])
		}
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
	if SplitWords(" ,.; ") != nil {
		t.Error("punctuation only should return nil")
	}
}

func TestHashWord(t *testing.T) {
	if HashWord("abc") != HashWord("abc") {
		t.Error("hash should be deterministic")
	}
	if HashWord("abc") == HashWord("abd") {
		t.Error("distinct words should usually hash differently")
	}
	if HashWord("anything") < 0 {
		t.Error("hash should be non-negative")
	}
}
