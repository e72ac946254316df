package infra

import (
	"strings"
	"testing"
)

func TestExtractMarker(t *testing.T) {
	query := "--sql 6295b10c-ff0b-4b9e-b481-19ca5c062d01\nselect 1;\n"
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker returned error: %v", err)
	}
	if marker != "6295b10c-ff0b-4b9e-b481-19ca5c062d01" {
		t.Fatalf("marker = %q", marker)
	}
	if !strings.Contains(trimmed, "select 1;") {
		t.Fatalf("trimmed query lost statement: %q", trimmed)
	}
	if strings.Contains(trimmed, "--sql") {
		t.Fatalf("trimmed query still has marker: %q", trimmed)
	}
}

func TestExtractMarkerRejectsUnmarkedSQL(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "no marker", query: "select 1;"},
		{name: "malformed uuid", query: "--sql not-a-uuid\nselect 1;"},
		{name: "marker not first", query: "select 1;\n--sql 6295b10c-ff0b-4b9e-b481-19ca5c062d01"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := extractMarker(tc.query); err == nil {
				t.Fatalf("extractMarker accepted %q", tc.query)
			}
		})
	}
}
