package nested

import (
	"reflect"
	"testing"

	"github.com/rezakhademix/zorm"
)

func TestSplit(t *testing.T) {
	assocs, err := Resolve(registry(t), "Player")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		payload  zorm.Values
		aliases  []string
		attrs    zorm.Values
		payloads map[string]any
	}{
		{
			name:     "attributes only",
			payload:  zorm.Values{"name": "a"},
			attrs:    zorm.Values{"name": "a"},
			payloads: map[string]any{},
		},
		{
			name:     "declaration order",
			payload:  zorm.Values{"name": "a", "positions": []any{1}, "team": "x"},
			aliases:  []string{"team", "positions"},
			attrs:    zorm.Values{"name": "a"},
			payloads: map[string]any{"positions": []any{1}, "team": "x"},
		},
		{
			name:     "explicit null",
			payload:  zorm.Values{"scored": nil},
			aliases:  []string{"scored"},
			attrs:    zorm.Values{},
			payloads: map[string]any{"scored": nil},
		},
		{
			name:     "unknown keys stay attributes",
			payload:  zorm.Values{"goals": []any{1}},
			attrs:    zorm.Values{"goals": []any{1}},
			payloads: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.payload.Clone()
			p := Split(assocs, tt.payload)

			if !reflect.DeepEqual(p.Aliases, tt.aliases) {
				t.Errorf("aliases = %v, want %v", p.Aliases, tt.aliases)
			}
			if !reflect.DeepEqual(p.Attributes, tt.attrs) {
				t.Errorf("attributes = %v, want %v", p.Attributes, tt.attrs)
			}
			if !reflect.DeepEqual(p.Payloads, tt.payloads) {
				t.Errorf("payloads = %v, want %v", p.Payloads, tt.payloads)
			}
			if !reflect.DeepEqual(tt.payload, before) {
				t.Error("Split must not modify the payload")
			}
		})
	}
}

func TestSplitBulk(t *testing.T) {
	assocs, err := Resolve(registry(t), "Player")
	if err != nil {
		t.Fatal(err)
	}

	bp := SplitBulk(assocs, []zorm.Values{
		{"name": "a", "scored": []any{zorm.Values{"minute": 3}}},
		{"name": "b"},
		{"name": "c", "team": "x", "scored": nil},
	})

	if !reflect.DeepEqual(bp.Aliases, []string{"team", "scored"}) {
		t.Errorf("aliases = %v", bp.Aliases)
	}
	want := []zorm.Values{{"name": "a"}, {"name": "b"}, {"name": "c"}}
	if !reflect.DeepEqual(bp.Rows, want) {
		t.Errorf("rows = %v, want %v", bp.Rows, want)
	}
	if scored := bp.Payloads["scored"]; len(scored) != 3 || scored[0] == nil || scored[1] != nil || scored[2] != nil {
		t.Errorf("unexpected scored payloads %v", scored)
	}
	if team := bp.Payloads["team"]; len(team) != 3 || team[2] != "x" {
		t.Errorf("unexpected team payloads %v", team)
	}
}

func TestSplitBulk_NoAssociations(t *testing.T) {
	assocs, err := Resolve(registry(t), "Player")
	if err != nil {
		t.Fatal(err)
	}

	bp := SplitBulk(assocs, []zorm.Values{{"name": "a"}, {"name": "b", "scored": nil}})
	if len(bp.Aliases) != 0 {
		t.Errorf("nil sub-payloads in a bulk call are ignored, got %v", bp.Aliases)
	}
}
