package safety

import "testing"

func TestMatcherRecognizesEveryIndicator(t *testing.T) {
	m := NewMatcher()
	cases := []struct {
		indicator Indicator
		evidence  []string
	}{
		{IndicatorChestPain, []string{"brustschmerz seit heute morgen", "crushing chest pain"}},
		{IndicatorSyncope, []string{"bin gestern ohnmächtig geworden", "i passed out twice"}},
		{IndicatorSevereDyspnea, []string{"starke atemnot beim treppensteigen", "shortness of breath at rest"}},
		{IndicatorSuicidalIdeation, []string{"ich denke an suizid", "i want to kill myself"}},
		{IndicatorAcutePsychiatricCrisis, []string{"ich kann stimmen hören", "hearing voices at night"}},
		{IndicatorSeverePalpitations, []string{"plötzliches herzrasen", "palpitations all day"}},
		{IndicatorAcuteNeuroDeficit, []string{"verwaschene sprache seit einer stunde", "sudden weakness in my arm"}},
		{IndicatorSevereUncontrolled, []string{"die schmerzen sind unerträglich", "excruciating headache"}},
	}
	for _, tc := range cases {
		for _, text := range tc.evidence {
			if !m.MatchIndicator(tc.indicator, text) {
				t.Fatalf("expected %s to match %q", tc.indicator, text)
			}
			if !m.Match(text).Has(tc.indicator) {
				t.Fatalf("Match(%q) missing %s", text, tc.indicator)
			}
		}
	}
}

func TestMatcherEmptyEvidenceMatchesNothing(t *testing.T) {
	set := NewMatcher().Match("")
	if len(set) != 0 {
		t.Fatalf("expected no indicators, got %v", set.Sorted())
	}
}

func TestMatcherIgnoresUnrelatedText(t *testing.T) {
	set := NewMatcher().Match("leichte kopfschmerzen nach der arbeit\nmild headache")
	if len(set) != 0 {
		t.Fatalf("expected no indicators, got %v", set.Sorted())
	}
}

func TestIndicatorSetSortedIsStable(t *testing.T) {
	set := NewMatcher().Match("atemnot und brustschmerz und herzrasen")
	got := set.Sorted()
	want := []Indicator{IndicatorChestPain, IndicatorSevereDyspnea, IndicatorSeverePalpitations}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMatcherIndicatorsListsCatalog(t *testing.T) {
	if got := len(NewMatcher().Indicators()); got != 8 {
		t.Fatalf("expected 8 indicators, got %d", got)
	}
}
