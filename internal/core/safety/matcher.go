package safety

import (
	"regexp"
	"sort"
)

// Indicator is a named clinical red-flag tag.
type Indicator string

const (
	IndicatorChestPain              Indicator = "chest_pain"
	IndicatorSyncope                Indicator = "syncope"
	IndicatorSevereDyspnea          Indicator = "severe_dyspnea"
	IndicatorSuicidalIdeation       Indicator = "suicidal_ideation"
	IndicatorAcutePsychiatricCrisis Indicator = "acute_psychiatric_crisis"
	IndicatorSeverePalpitations     Indicator = "severe_palpitations"
	IndicatorAcuteNeuroDeficit      Indicator = "acute_neurological_deficit"
	IndicatorSevereUncontrolled     Indicator = "severe_uncontrolled_symptoms"
)

// Patterns run against lower-cased evidence and cover German and English.
var indicatorCatalog = []struct {
	indicator Indicator
	patterns  []string
}{
	{IndicatorChestPain, []string{
		`brust\s*schmerz`,
		`schmerz(en)?\s+in\s+der\s+brust`,
		`brustenge`,
		`enge(gef(ü|ue)hl)?\s+in\s+der\s+brust`,
		`druck\s+auf\s+der\s+brust`,
		`chest\s+(pain|tightness|pressure)`,
		`thorak(ale|aler)?\s*schmerz`,
	}},
	{IndicatorSyncope, []string{
		`synkope`,
		`ohnmacht`,
		`ohnm(ä|ae)chtig`,
		`bewusstlos`,
		`bewusstsein\s+verloren`,
		`kollabiert`,
		`syncope`,
		`\bfaint(ed|ing)\b`,
		`passed\s+out`,
		`loss\s+of\s+consciousness`,
	}},
	{IndicatorSevereDyspnea, []string{
		`atemnot`,
		`luftnot`,
		`kann\s+(kaum|nicht)\s+(mehr\s+)?(atmen|luft\s+holen)`,
		`bekomme\s+(kaum|keine)\s+luft`,
		`erstickungs`,
		`shortness\s+of\s+breath`,
		`(can\s?not|can't|cannot)\s+breathe`,
		`dyspn`,
	}},
	{IndicatorSuicidalIdeation, []string{
		`suizid`,
		`selbstmord`,
		`mich\s+(umbringen|t(ö|oe)ten)`,
		`nicht\s+mehr\s+leben`,
		`lebensm(ü|ue)de`,
		`suicid`,
		`kill\s+myself`,
		`end\s+my\s+life`,
		`want\s+to\s+die`,
	}},
	{IndicatorAcutePsychiatricCrisis, []string{
		`psychose`,
		`psychotisch`,
		`halluzin`,
		`stimmen\s+h(ö|oe)ren`,
		`wahnvorstellung`,
		`akute\s+krise`,
		`psychosis`,
		`psychotic`,
		`hallucinat`,
		`hearing\s+voices`,
		`acute\s+(psychiatric\s+)?crisis`,
	}},
	{IndicatorSeverePalpitations, []string{
		`herzrasen`,
		`starkes\s+herzklopfen`,
		`herzstolpern`,
		`palpitation`,
		`racing\s+heart`,
		`heart\s+(is\s+)?(racing|pounding)`,
	}},
	{IndicatorAcuteNeuroDeficit, []string{
		`l(ä|ae)hmung`,
		`gel(ä|ae)hmt`,
		`sprachst(ö|oe)rung`,
		`verwaschene\s+sprache`,
		`h(ä|ae)ngende[rn]?\s+mundwinkel`,
		`schlaganfall`,
		`paralys`,
		`slurred\s+speech`,
		`facial\s+droop`,
		`sudden\s+(weakness|numbness)`,
		`\bstroke\b`,
	}},
	{IndicatorSevereUncontrolled, []string{
		`unertr(ä|ae)glich`,
		`st(ä|ae)rkste[n]?\s+schmerz`,
		`unkontrollierbar`,
		`nicht\s+auszuhalten`,
		`unbearable`,
		`uncontroll(ed|able)`,
		`worst\s+pain`,
		`excruciating`,
	}},
}

// IndicatorSet is the set of indicators present in a piece of evidence.
type IndicatorSet map[Indicator]struct{}

func (s IndicatorSet) Has(ind Indicator) bool {
	_, ok := s[ind]
	return ok
}

func (s IndicatorSet) Sorted() []Indicator {
	out := make([]Indicator, 0, len(s))
	for ind := range s {
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type matcherEntry struct {
	indicator Indicator
	patterns  []*regexp.Regexp
}

// Matcher tests evidence against the fixed indicator catalog. It is
// read-only after construction and safe for concurrent use.
type Matcher struct {
	entries []matcherEntry
}

func NewMatcher() *Matcher {
	entries := make([]matcherEntry, 0, len(indicatorCatalog))
	for _, item := range indicatorCatalog {
		compiled := make([]*regexp.Regexp, 0, len(item.patterns))
		for _, p := range item.patterns {
			compiled = append(compiled, regexp.MustCompile(p))
		}
		entries = append(entries, matcherEntry{indicator: item.indicator, patterns: compiled})
	}
	return &Matcher{entries: entries}
}

// Indicators lists every indicator the matcher knows, in catalog order.
func (m *Matcher) Indicators() []Indicator {
	out := make([]Indicator, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.indicator)
	}
	return out
}

func (m *Matcher) Match(evidence string) IndicatorSet {
	out := IndicatorSet{}
	if evidence == "" {
		return out
	}
	for _, e := range m.entries {
		if anyMatch(e.patterns, evidence) {
			out[e.indicator] = struct{}{}
		}
	}
	return out
}

func (m *Matcher) MatchIndicator(ind Indicator, evidence string) bool {
	for _, e := range m.entries {
		if e.indicator == ind {
			return anyMatch(e.patterns, evidence)
		}
	}
	return false
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func allMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if !p.MatchString(text) {
			return false
		}
	}
	return len(patterns) > 0
}
