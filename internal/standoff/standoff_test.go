package standoff

import (
	"errors"
	"testing"
)

func TestParse_RoundTrip(t *testing.T) {
	raw := "html/body/p:0-5+b:5-9"
	spans, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Tag != "html/body/p" || spans[0].Start != 0 || spans[0].End != 5 {
		t.Errorf("unexpected first span: %+v", spans[0])
	}
	if spans[1].Len() != 4 {
		t.Errorf("expected second span length 4, got %d", spans[1].Len())
	}
	if got := Format(spans); got != raw {
		t.Errorf("expected %q, got %q", raw, got)
	}
}

func TestParse_Empty(t *testing.T) {
	spans, err := Parse("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("expected no spans, got %d", len(spans))
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		"p0-5",
		":0-5",
		"p:5",
		"p:a-5",
		"p:0-b",
		"p:9-5",
		"p:0-5+",
		"p:0-5+b",
	}
	for _, raw := range cases {
		_, err := Parse(raw)
		if err == nil {
			t.Errorf("Parse(%q): expected error", raw)
			continue
		}
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q): expected ErrMalformed, got %v", raw, err)
		}
		var me *MalformedError
		if !errors.As(err, &me) {
			t.Errorf("Parse(%q): expected *MalformedError, got %T", raw, err)
		}
	}
}

func TestReconstruct(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		offset int
		length int
		want   string
	}{
		{"whole block single span", "p:0-12", 0, 12, "p:0-12"},
		{"suffix of single span", "p:0-12", 6, 6, "p:6-12"},
		{"inside single span", "p:0-12", 2, 3, "p:2-5"},
		{"range ends exactly at span end", "p:0-5+b:5-9", 1, 4, "p:1-5"},
		{"crosses into second span", "p:0-5+b:5-9", 3, 4, "p:3-5+b:5-7"},
		{"crosses three spans", "p:0-2+i:2-4+b:4-9", 1, 6, "p:1-2+i:2-4+b:4-7"},
		{"skips leading span", "p:0-5+b:5-9", 6, 2, "b:1-3"},
		{"zero length", "p:0-5+b:5-9", 3, 0, ""},
		{"negative length", "p:0-5", 1, -1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconstruct(tt.raw, tt.offset, tt.length)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestReconstruct_TwoSpanLengthsSumToMatch(t *testing.T) {
	got, err := Reconstruct("p:0-5+b:5-9", 3, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spans, err := Parse(got)
	if err != nil {
		t.Fatalf("reconstructed annotation does not parse: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d (%q)", len(spans), got)
	}
	if spans[0].Tag != "p" || spans[1].Tag != "b" {
		t.Errorf("expected tags p,b; got %s,%s", spans[0].Tag, spans[1].Tag)
	}
	if total := spans[0].Len() + spans[1].Len(); total != 4 {
		t.Errorf("expected span lengths to sum to 4, got %d", total)
	}
}

func TestReconstruct_ContinuationPolicies(t *testing.T) {
	tests := []struct {
		policy Policy
		want   string
	}{
		{ContinueAtSpanStart, "p:3-5+b:5-7"},
		{ContinueAtOffset, "p:3-5+b:3-5"},
	}
	for _, tt := range tests {
		r := Reconstructor{Policy: tt.policy}
		got, err := r.Reconstruct("p:0-5+b:5-9", 3, 4)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.policy, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.policy, tt.want, got)
		}
	}
}

func TestReconstruct_ShortAnnotation(t *testing.T) {
	got, err := Reconstruct("p:0-5", 3, 4)
	if !errors.Is(err, ErrShortAnnotation) {
		t.Fatalf("expected ErrShortAnnotation, got %v", err)
	}
	if got != "p:3-5" {
		t.Errorf("expected partial annotation %q, got %q", "p:3-5", got)
	}

	got, err = Reconstruct("p:0-5", 7, 1)
	if !errors.Is(err, ErrShortAnnotation) {
		t.Fatalf("expected ErrShortAnnotation for offset past the end, got %v", err)
	}
	if got != "" {
		t.Errorf("expected empty annotation, got %q", got)
	}
}

func TestReconstruct_Malformed(t *testing.T) {
	_, err := Reconstruct("p:0-5+garbage", 0, 3)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": ContinueAtSpanStart, "span": ContinueAtSpanStart, "offset": ContinueAtOffset} {
		got, err := ParsePolicy(in)
		if err != nil {
			t.Fatalf("ParsePolicy(%q): unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParsePolicy(%q): expected %s, got %s", in, want, got)
		}
	}
	if _, err := ParsePolicy("bogus"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
