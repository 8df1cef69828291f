package types

import (
	"encoding/json"
	"testing"
)

func TestNullableUnmarshal(t *testing.T) {
	type payload struct {
		ImageURL Nullable[string] `json:"imageUrl"`
	}

	var got payload
	if err := json.Unmarshal([]byte(`{"imageUrl": "https://img.example/1.png"}`), &got); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if !got.ImageURL.Present || got.ImageURL.Value == nil || *got.ImageURL.Value != "https://img.example/1.png" {
		t.Fatalf("expected present value, got %+v", got.ImageURL)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{"imageUrl": null}`), &got); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !got.ImageURL.Present || got.ImageURL.Value != nil {
		t.Fatalf("expected null to be present but nil, got %+v", got.ImageURL)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{}`), &got); err != nil {
		t.Fatalf("unmarshal missing: %v", err)
	}
	if got.ImageURL.Present {
		t.Fatalf("expected missing field to be absent, got %+v", got.ImageURL)
	}

	if err := json.Unmarshal([]byte(`{"imageUrl": 12}`), &got); err == nil {
		t.Fatal("expected type mismatch to fail")
	}
}

func TestSetHelper(t *testing.T) {
	n := Set("x")
	if !n.Present || n.Value == nil || *n.Value != "x" {
		t.Fatalf("unexpected %+v", n)
	}
}
