package core

import "testing"

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"int vs float", 3, float64(3), true},
		{"int vs different float", 3, 3.5, false},
		{"strings", "a", "a", true},
		{"string vs number", "1", 1, false},
		{"bool", true, true, true},
		{"slices", []any{1, "a"}, []any{float64(1), "a"}, true},
		{"typed slice", []string{"a"}, []any{"a"}, true},
		{"slice length", []any{1}, []any{1, 2}, false},
		{"maps", map[string]any{"a": 1}, map[string]any{"a": float64(1)}, true},
		{"typed map", map[string]string{"a": "b"}, map[string]any{"a": "b"}, true},
		{"map missing key", map[string]any{"a": 1}, map[string]any{"b": 1}, false},
		{
			"nested",
			map[string]any{"fields": map[string]any{"tags": []any{"x"}}},
			map[string]any{"fields": map[string]any{"tags": []any{"x"}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
