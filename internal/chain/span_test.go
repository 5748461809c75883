package chain

import (
	"reflect"
	"testing"
)

func TestSplitSpans(t *testing.T) {
	got, err := splitSpans(5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []span{{From: 0, To: 2}, {From: 2, To: 4}, {From: 4, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("spans mismatch: %+v != %+v", got, want)
	}
}

func TestSplitSpansSingle(t *testing.T) {
	got, err := splitSpans(3, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []span{{From: 0, To: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("spans mismatch: %+v != %+v", got, want)
	}
}

func TestSplitSpansInvalid(t *testing.T) {
	if _, err := splitSpans(-1, 1); err == nil {
		t.Fatalf("expected error for negative total")
	}
	if _, err := splitSpans(10, 0); err == nil {
		t.Fatalf("expected error for zero batch limit")
	}
}
