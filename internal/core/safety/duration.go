package safety

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numericDurationRe = regexp.MustCompile(
		`(\d+(?:[.,]\d+)?)\s*(minuten|minutes|minute|mins|min|stunden|stunde|std|hours|hour|hrs|hr|h|tagen|tage|tag|days|day)\b`)
	wordDurationRe = regexp.MustCompile(
		`\b(eine[rn]?|ein|one|an|a|zwei|two|drei|three|vier|four|fünf|five|zehn|ten|fünfzehn|fifteen|zwanzig|twenty|fünfundzwanzig|twenty-five|dreißig|dreissig|thirty|vierzig|forty|fünfundvierzig|forty-five)\s+(minuten|minutes|minute|stunden|stunde|hours|hour|tagen|tage|tag|days|day)\b`)
	halfHourRe        = regexp.MustCompile(`halbe[nr]?\s+stunde|half\s+an\s+hour|half[\s-]hour|1/2\s*(stunde|hour|std|h)\b`)
	hourAndAHalfRe    = regexp.MustCompile(`anderthalb\s+stunden|eineinhalb\s+stunden|an\s+hour\s+and\s+a\s+half|one\s+and\s+a\s+half\s+hours`)
	durationWordValue = map[string]float64{
		"ein": 1, "eine": 1, "einer": 1, "einen": 1, "one": 1, "an": 1, "a": 1,
		"zwei": 2, "two": 2, "drei": 3, "three": 3, "vier": 4, "four": 4,
		"fünf": 5, "five": 5, "zehn": 10, "ten": 10, "fünfzehn": 15, "fifteen": 15,
		"zwanzig": 20, "twenty": 20, "fünfundzwanzig": 25, "twenty-five": 25,
		"dreißig": 30, "dreissig": 30, "thirty": 30, "vierzig": 40, "forty": 40,
		"fünfundvierzig": 45, "forty-five": 45,
	}
)

// ParseDurationMinutes extracts the longest duration mentioned in free text,
// in whole minutes. It recognizes minute/hour/day vocabulary in German and
// English, a few number words and the half-hour idiom (30 minutes).
func ParseDurationMinutes(text string) (int, bool) {
	text = strings.ToLower(text)
	best := -1.0
	consider := func(minutes float64) {
		if minutes > best {
			best = minutes
		}
	}

	// Idioms are consumed first so "half an hour" is not also read as "an hour".
	if hourAndAHalfRe.MatchString(text) {
		consider(90)
		text = hourAndAHalfRe.ReplaceAllString(text, " ")
	}
	if halfHourRe.MatchString(text) {
		consider(30)
		text = halfHourRe.ReplaceAllString(text, " ")
	}

	for _, m := range numericDurationRe.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil {
			continue
		}
		consider(value * unitMinutes(m[2]))
	}
	for _, m := range wordDurationRe.FindAllStringSubmatch(text, -1) {
		consider(durationWordValue[m[1]] * unitMinutes(m[2]))
	}
	if best < 0 {
		return 0, false
	}
	return int(best), true
}

func unitMinutes(unit string) float64 {
	switch {
	case strings.HasPrefix(unit, "min"):
		return 1
	case strings.HasPrefix(unit, "tag"), strings.HasPrefix(unit, "day"):
		return 24 * 60
	default:
		return 60
	}
}
