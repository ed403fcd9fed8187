package transcript_test

import (
	"testing"

	"github.com/MrWong99/intervox/internal/transcript"
)

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		terms      []string
		want       string
		wantFixes  int
		wantMethod transcript.Method
	}{
		{
			name:       "misheard company name",
			text:       "I really admire acne and their culture.",
			terms:      []string{"Acme"},
			want:       "I really admire Acme and their culture.",
			wantFixes:  1,
			wantMethod: transcript.MethodFuzzy,
		},
		{
			name:       "company heard as two words",
			text:       "I want to join data dog next year.",
			terms:      []string{"Datadog"},
			want:       "I want to join Datadog next year.",
			wantFixes:  1,
			wantMethod: transcript.MethodPhonetic,
		},
		{
			name:       "punctuation kept and inflections left alone",
			text:       "I work with metal and data at meta.",
			terms:      []string{"Meta"},
			want:       "I work with metal and data at Meta.",
			wantFixes:  1,
			wantMethod: transcript.MethodPhonetic,
		},
		{
			name:  "already correct",
			text:  "Acme builds rockets.",
			terms: []string{"Acme"},
			want:  "Acme builds rockets.",
		},
		{
			name:  "whitespace preserved without corrections",
			text:  "line one\n\nline  two",
			terms: []string{"Acme"},
			want:  "line one\n\nline  two",
		},
		{
			name:  "no terms",
			text:  "hello acne",
			terms: nil,
			want:  "hello acne",
		},
		{
			name:  "terms too short to match safely",
			text:  "the hop was fine",
			terms: []string{"HP", "  "},
			want:  "the hop was fine",
		},
		{
			name:  "empty text",
			text:  "",
			terms: []string{"Acme"},
			want:  "",
		},
	}

	c := transcript.NewCorrector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, fixes := c.Correct(tt.text, tt.terms)
			if got != tt.want {
				t.Errorf("Correct() = %q, want %q", got, tt.want)
			}
			if len(fixes) != tt.wantFixes {
				t.Fatalf("corrections = %+v, want %d", fixes, tt.wantFixes)
			}
			for _, f := range fixes {
				if f.Method != tt.wantMethod {
					t.Errorf("method = %q, want %q", f.Method, tt.wantMethod)
				}
				if f.Confidence <= 0 || f.Confidence > 1 {
					t.Errorf("confidence = %f, want (0, 1]", f.Confidence)
				}
			}
		})
	}
}

func TestCorrector_RecordsOriginalSpan(t *testing.T) {
	t.Parallel()

	_, fixes := transcript.NewCorrector().Correct("Why data dog? Because of observability.", []string{"Datadog"})
	if len(fixes) != 1 {
		t.Fatalf("corrections = %+v, want 1", fixes)
	}
	if fixes[0].Original != "data dog" || fixes[0].Corrected != "Datadog" {
		t.Errorf("correction = %+v", fixes[0])
	}
	if fixes[0].Confidence != 1 {
		t.Errorf("confidence = %f, want 1 for an exact key match", fixes[0].Confidence)
	}
}

func TestCorrector_Thresholds(t *testing.T) {
	t.Parallel()

	strict := transcript.NewCorrector(
		transcript.WithPhoneticThreshold(0.99),
		transcript.WithFuzzyThreshold(0.99),
	)
	text := "I really admire acne and their culture."
	if got, fixes := strict.Correct(text, []string{"Acme"}); got != text || len(fixes) != 0 {
		t.Errorf("strict Correct() = %q, %+v; want unchanged", got, fixes)
	}
}
