package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// answerScorer maps one raw answer value to a 0..100 sub-score.
type answerScorer func(value any) (float64, error)

type answerRule struct {
	factor string
	score  answerScorer
}

type factorDef struct {
	Key    string
	Label  string
	Weight float64
}

// Algorithm is one versioned scoring definition. Every answer key the
// algorithm accepts is listed in answers; anything else is rejected.
type Algorithm struct {
	Version string
	factors []factorDef
	answers map[string]answerRule
}

func (a Algorithm) factor(key string) (factorDef, bool) {
	for _, f := range a.factors {
		if f.Key == key {
			return f, true
		}
	}
	return factorDef{}, false
}

// AnswerKeys lists the accepted answer keys in sorted order.
func (a Algorithm) AnswerKeys() []string {
	keys := make([]string, 0, len(a.answers))
	for k := range a.answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const (
	FactorStress         = "stress"
	FactorSleep          = "sleep"
	FactorCardiovascular = "cardiovascular"
	FactorLifestyle      = "lifestyle"
	FactorSafety         = "safety"
)

func algorithmV1() Algorithm {
	return Algorithm{
		Version: "v1",
		factors: []factorDef{
			{Key: FactorStress, Label: "Stress", Weight: 0.3},
			{Key: FactorSleep, Label: "Sleep", Weight: 0.2},
			{Key: FactorCardiovascular, Label: "Cardiovascular", Weight: 0.3},
			{Key: FactorLifestyle, Label: "Lifestyle", Weight: 0.2},
		},
		answers: map[string]answerRule{
			"stress_level": {FactorStress, scale(0, 10, false)},
			"stress_frequency": {FactorStress, choice(map[string]float64{
				"never": 0, "rarely": 25, "sometimes": 50, "often": 75, "always": 100,
			})},
			"sleep_quality":             {FactorSleep, scale(1, 5, true)},
			"sleep_hours":               {FactorSleep, sleepHours},
			"chest_discomfort":          {FactorCardiovascular, boolean},
			"palpitations":              {FactorCardiovascular, boolean},
			"blood_pressure_known_high": {FactorCardiovascular, boolean},
			"physical_activity_days":    {FactorLifestyle, scale(0, 7, true)},
			"smoking":                   {FactorLifestyle, boolean},
			"alcohol_units_week":        {FactorLifestyle, saturating(21)},
		},
	}
}

func scale(min, max float64, invert bool) answerScorer {
	return func(value any) (float64, error) {
		v, err := toFloat(value)
		if err != nil {
			return 0, err
		}
		if v < min || v > max {
			return 0, fmt.Errorf("value %v outside [%v, %v]", v, min, max)
		}
		score := (v - min) / (max - min) * 100
		if invert {
			score = 100 - score
		}
		return score, nil
	}
}

func choice(options map[string]float64) answerScorer {
	return func(value any) (float64, error) {
		s, ok := value.(string)
		if !ok {
			return 0, fmt.Errorf("expected one of %s", strings.Join(optionNames(options), ", "))
		}
		score, ok := options[strings.ToLower(strings.TrimSpace(s))]
		if !ok {
			return 0, fmt.Errorf("%q is not one of %s", s, strings.Join(optionNames(options), ", "))
		}
		return score, nil
	}
}

func boolean(value any) (float64, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return 100, nil
		}
		return 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "ja", "true":
			return 100, nil
		case "no", "nein", "false":
			return 0, nil
		}
	}
	return 0, fmt.Errorf("expected a boolean answer")
}

// saturating scores a non-negative count linearly up to limit.
func saturating(limit float64) answerScorer {
	return func(value any) (float64, error) {
		v, err := toFloat(value)
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, fmt.Errorf("value %v must not be negative", v)
		}
		return math.Min(v/limit, 1) * 100, nil
	}
}

func sleepHours(value any) (float64, error) {
	v, err := toFloat(value)
	if err != nil {
		return 0, err
	}
	switch {
	case v < 0 || v > 24:
		return 0, fmt.Errorf("value %v outside [0, 24]", v)
	case v < 5:
		return 100, nil
	case v < 6:
		return 70, nil
	case v < 7:
		return 40, nil
	case v <= 9:
		return 0, nil
	default:
		return 30, nil
	}
}

func toFloat(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected a number")
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.Replace(v, ",", ".", 1)), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number")
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expected a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected a finite number")
	}
	return f, nil
}

func optionNames(options map[string]float64) []string {
	names := make([]string, 0, len(options))
	for k := range options {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
