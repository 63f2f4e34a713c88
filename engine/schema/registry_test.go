package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
)

func TestValidatePath(t *testing.T) {
	r := New()

	tests := []struct {
		name         string
		start        domain.EntityType
		hops         []Hop
		wantTerminal domain.EntityType
		wantErr      bool
	}{
		{
			name:         "no hops",
			start:        domain.EntityPart,
			wantTerminal: domain.EntityPart,
		},
		{
			name:         "model symptom part",
			start:        domain.EntityModel,
			hops:         []Hop{{RelType: "HAS_SYMPTOM"}, {RelType: "USES_FIXING_PART"}},
			wantTerminal: domain.EntityPart,
		},
		{
			name:         "compatibility",
			start:        domain.EntityPart,
			hops:         []Hop{{RelType: "COMPATIBLE_WITH"}},
			wantTerminal: domain.EntityModel,
		},
		{
			name:         "reverse hop",
			start:        domain.EntityModel,
			hops:         []Hop{{RelType: "COMPATIBLE_WITH", Direction: DirIn}},
			wantTerminal: domain.EntityPart,
		},
		{
			name:    "undefined relationship from start",
			start:   domain.EntitySymptom,
			hops:    []Hop{{RelType: "HAS_MANUAL"}},
			wantErr: true,
		},
		{
			name:    "valid rel wrong direction",
			start:   domain.EntityPart,
			hops:    []Hop{{RelType: "HAS_PART"}},
			wantErr: true,
		},
		{
			name:    "breaks mid path",
			start:   domain.EntityModel,
			hops:    []Hop{{RelType: "HAS_SYMPTOM"}, {RelType: "HAS_MANUAL"}},
			wantErr: true,
		},
		{
			name:    "unknown start type",
			start:   domain.EntityType("Widget"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terminal, err := r.ValidatePath(tt.start, tt.hops)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got terminal %s", terminal)
				}
				if !errors.Is(err, domain.ErrInvalidQueryShape) {
					t.Fatalf("error should wrap ErrInvalidQueryShape, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if terminal != tt.wantTerminal {
				t.Fatalf("terminal = %s, want %s", terminal, tt.wantTerminal)
			}
		})
	}
}

func TestStepSharedRelType(t *testing.T) {
	r := New()

	// HAS_QNA connects from both Part and Model.
	if to, ok := r.Step(domain.EntityPart, Hop{RelType: "HAS_QNA"}); !ok || to != domain.EntityQnA {
		t.Fatalf("Part HAS_QNA = (%s, %v)", to, ok)
	}
	if to, ok := r.Step(domain.EntityModel, Hop{RelType: "HAS_QNA"}); !ok || to != domain.EntityQnA {
		t.Fatalf("Model HAS_QNA = (%s, %v)", to, ok)
	}
	if _, ok := r.Step(domain.EntitySymptom, Hop{RelType: "HAS_QNA"}); ok {
		t.Fatal("Symptom should not have HAS_QNA")
	}
}

func TestAttrKind(t *testing.T) {
	r := New()

	if k, ok := r.AttrKind(domain.EntityPart, "partselect_num"); !ok || k != AttrIdentifier {
		t.Fatalf("partselect_num kind = (%v, %v)", k, ok)
	}
	if k, ok := r.AttrKind(domain.EntityPart, "price"); !ok || k != AttrNumeric {
		t.Fatalf("price kind = (%v, %v)", k, ok)
	}
	if k, ok := r.AttrKind(domain.EntitySymptom, "name"); !ok || k != AttrText {
		t.Fatalf("symptom name kind = (%v, %v)", k, ok)
	}
	if _, ok := r.AttrKind(domain.EntityPart, "nonexistent"); ok {
		t.Fatal("unknown attribute should not resolve")
	}
}

func TestDescribeDeterministic(t *testing.T) {
	r := New()

	first := r.Describe()
	for i := 0; i < 5; i++ {
		if got := r.Describe(); got != first {
			t.Fatal("Describe output should be deterministic")
		}
	}
	if !strings.Contains(first, "(:Symptom)-[:USES_FIXING_PART]->(:Part)") {
		t.Fatalf("Describe missing expected line:\n%s", first)
	}
	lines := strings.Split(first, "\n")
	if len(lines) != 24 {
		t.Fatalf("expected 24 relationship lines, got %d", len(lines))
	}
}
