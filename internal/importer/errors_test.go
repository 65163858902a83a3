package importer

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), CatConnectivity},
		{"connection reset", errors.New("read: connection reset by peer"), CatConnectivity},
		{"deadlock", errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), CatConnectivity},
		{"timeout", errors.New("i/o timeout"), CatConnectivity},
		{"deadline", errors.New("context deadline exceeded"), CatConnectivity},
		{"cancelled", errors.New("context canceled"), CatConnectivity},
		{"duplicate key", errors.New(`ERROR: duplicate key value violates unique constraint "products_sku_lower_idx"`), CatDuplicateKey},
		{"bad csv", errors.New("parse error on line 3, column 7: bare \" in non-quoted field"), CatFormat},
		{"too large", errors.New("http: request body too large"), CatSize},
		{"permission", errors.New("pq: permission denied for table products"), CatPermission},
		{"encoding", errors.New("invalid UTF-8 sequence at byte 1024"), CatEncoding},
		{"unknown", errors.New("something inexplicable"), CatGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Category != tt.want {
				t.Errorf("Classify(%q).Category = %s, want %s", tt.err, got.Category, tt.want)
			}
			if got.Message == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestClassify_FormatErrorKeepsColumnDetail(t *testing.T) {
	err := fmt.Errorf("validating upload: %w", &FormatError{Missing: []string{"name", "sku"}})
	got := Classify(err)
	if got.Category != CatFormat {
		t.Fatalf("category = %s, want %s", got.Category, CatFormat)
	}
	if got.Message != "missing required columns: name, sku" {
		t.Errorf("message = %q", got.Message)
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got.Message != "" || got.Category != "" {
		t.Errorf("Classify(nil) = %+v, want zero value", got)
	}
}

func TestClassify_PatternPrecedence(t *testing.T) {
	// A constraint error whose detail mentions a connection must still
	// classify as duplicate key.
	err := errors.New("duplicate key value on connection 42")
	if got := Classify(err); got.Category != CatDuplicateKey {
		t.Errorf("category = %s, want %s", got.Category, CatDuplicateKey)
	}
}
