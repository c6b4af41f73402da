package distill

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	stepsRe      = regexp.MustCompile(`(?i)\b(\d{3,7})\s*steps?\b`)
	durationRe   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:min|mins|minutes)\b`)
	distKmRe     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*km\b`)
	distMiRe     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:mi|mile|miles)\b`)
	caloriesRe   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:kcal|calories?|cals?)\b`)
	sleepHoursRe = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:h|hr|hrs|hour|hours)\b`)
	sleepMinRe   = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:m|min|mins|minute|minutes)\b`)
	qualityRe    = regexp.MustCompile(`(?i)(?:\bquality\b|\bscore\b)\s*[:=]?\s*([1-5])\b|\b([1-5])\s*/\s*5\b`)
	weightRe     = regexp.MustCompile(`(?i)\b(\d{2,3}(?:\.\d+)?)\s*(kg|kgs|kilogram|kilograms|lb|lbs|pound|pounds)\b`)
)

// ActivityObservation is extracted movement data for one entry.
type ActivityObservation struct {
	Steps       int
	DurationMin float64
	DistanceKm  float64
	Calories    float64
	Notes       string
}

// SleepObservation is extracted sleep data for one entry.
type SleepObservation struct {
	DurationMin float64
	Quality     int
	Notes       string
}

// FoodObservation is extracted meal data for one entry.
type FoodObservation struct {
	MealType string
	Items    []string
	Notes    string
}

// WeightObservation is an extracted weight measurement for one entry.
type WeightObservation struct {
	WeightKg float64
	Notes    string
}

// ExtractActivity pulls steps, duration, distance and calories out of raw
// text. Returns false when the text does not look like an activity log.
func ExtractActivity(entryType, rawText string) (ActivityObservation, bool) {
	lower := strings.ToLower(rawText)
	looksActivity := entryType == "activity"
	for _, token := range []string{"steps", "workout", "exercise", "run", "walk", "gym", "km", "mile"} {
		if strings.Contains(lower, token) {
			looksActivity = true
			break
		}
	}
	if !looksActivity {
		return ActivityObservation{}, false
	}

	var obs ActivityObservation
	found := false
	if m := stepsRe.FindStringSubmatch(rawText); m != nil {
		obs.Steps, _ = strconv.Atoi(m[1])
		found = true
	}
	if v, ok := matchFloat(durationRe, rawText); ok {
		obs.DurationMin = v
		found = true
	}
	if v, ok := matchFloat(distKmRe, rawText); ok {
		obs.DistanceKm = v
		found = true
	} else if miles, ok := matchFloat(distMiRe, rawText); ok {
		obs.DistanceKm = math.Round(miles*1.60934*1000) / 1000
		found = true
	}
	if v, ok := matchFloat(caloriesRe, rawText); ok {
		obs.Calories = v
		found = true
	}

	if !found && entryType != "activity" {
		return ActivityObservation{}, false
	}
	obs.Notes = truncateNotes(rawText)
	return obs, true
}

// ExtractSleep pulls sleep duration and a 1-5 quality score out of raw text.
func ExtractSleep(entryType, rawText string) (SleepObservation, bool) {
	lower := strings.ToLower(rawText)
	looksSleep := entryType == "sleep"
	for _, token := range []string{"sleep", "slept", "nap", "bed"} {
		if strings.Contains(lower, token) {
			looksSleep = true
			break
		}
	}
	if !looksSleep {
		return SleepObservation{}, false
	}

	var obs SleepObservation
	hours, hasHours := matchFloat(sleepHoursRe, rawText)
	minutes, hasMinutes := matchFloat(sleepMinRe, rawText)
	hasDuration := false
	switch {
	case hasHours:
		extra := 0.0
		if hasMinutes {
			extra = minutes
		}
		obs.DurationMin = math.Round((hours*60+extra)*100) / 100
		hasDuration = true
	case hasMinutes:
		obs.DurationMin = minutes
		hasDuration = true
	}

	hasQuality := false
	if m := qualityRe.FindStringSubmatch(rawText); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if raw != "" {
			obs.Quality, _ = strconv.Atoi(raw)
			hasQuality = true
		}
	}

	if !hasDuration && !hasQuality && entryType != "sleep" {
		return SleepObservation{}, false
	}
	obs.Notes = truncateNotes(rawText)
	return obs, true
}

// ExtractFood pulls a meal type and item list out of raw text.
func ExtractFood(entryType, rawText string) (FoodObservation, bool) {
	lower := strings.ToLower(rawText)
	looksFood := entryType == "food"
	for _, token := range []string{"breakfast", "lunch", "dinner", "snack", "meal", "ate", "food"} {
		if strings.Contains(lower, token) {
			looksFood = true
			break
		}
	}
	if !looksFood {
		return FoodObservation{}, false
	}

	mealType := "other"
	for _, candidate := range []string{"breakfast", "lunch", "dinner", "snack"} {
		if strings.Contains(lower, candidate) {
			mealType = candidate
			break
		}
	}

	var items []string
	for _, part := range regexp.MustCompile(`[,\n;]+`).Split(rawText, -1) {
		clean := compact(part)
		if clean == "" {
			continue
		}
		if len(clean) > 80 {
			clean = strings.TrimRight(clean[:80], " ") + "..."
		}
		items = append(items, clean)
		if len(items) >= 12 {
			break
		}
	}
	if len(items) == 0 {
		items = []string{"meal logged"}
	}

	return FoodObservation{MealType: mealType, Items: items, Notes: truncateNotes(rawText)}, true
}

// ExtractWeight pulls a weight measurement out of raw text, converting
// pounds to kilograms.
func ExtractWeight(entryType, rawText string) (WeightObservation, bool) {
	lower := strings.ToLower(rawText)
	m := weightRe.FindStringSubmatch(rawText)
	if m == nil {
		return WeightObservation{}, false
	}
	if !strings.Contains(lower, "weight") && !strings.Contains(lower, "weigh") &&
		entryType != "goal" && entryType != "note" {
		return WeightObservation{}, false
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return WeightObservation{}, false
	}
	weightKg := value
	switch strings.ToLower(m[2]) {
	case "lb", "lbs", "pound", "pounds":
		weightKg = math.Round(value*0.45359237*1000) / 1000
	}
	if weightKg <= 0 {
		return WeightObservation{}, false
	}
	return WeightObservation{WeightKg: weightKg, Notes: truncateNotes(rawText)}, true
}

func matchFloat(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func truncateNotes(text string) string {
	notes := compact(text)
	if len(notes) > 240 {
		notes = notes[:240]
	}
	return notes
}
