package openai

import "testing"

func TestModelDimensions(t *testing.T) {
	tests := map[string]int{
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		"some-future-model":      1536,
	}
	for model, want := range tests {
		if got := modelDimensions(model); got != want {
			t.Errorf("%s: got %d dimensions, want %d", model, got, want)
		}
	}
}

func TestDimensions_Override(t *testing.T) {
	p, err := New("sk-test", "text-embedding-3-large", WithDimensions(256))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 256 {
		t.Errorf("Dimensions() = %d, want 256", got)
	}
	params := p.buildParams([]string{"a"})
	if !params.Dimensions.Valid() || params.Dimensions.Value != 256 {
		t.Errorf("request dimensions = %+v, want 256", params.Dimensions)
	}
}

func TestBuildParams_NoDimensionsByDefault(t *testing.T) {
	p, _ := New("sk-test", "")
	if p.ModelID() != DefaultModel {
		t.Errorf("ModelID() = %q, want %q", p.ModelID(), DefaultModel)
	}
	params := p.buildParams([]string{"a", "b"})
	if params.Dimensions.Valid() {
		t.Error("dimensions should be omitted without WithDimensions")
	}
	if len(params.Input.OfArrayOfStrings) != 2 {
		t.Errorf("input = %v", params.Input.OfArrayOfStrings)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "text-embedding-3-small"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", "", WithDimensions(-1)); err == nil {
		t.Error("expected error for negative dimensions")
	}
}
