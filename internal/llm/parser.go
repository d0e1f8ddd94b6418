package llm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/campwire/bunkmate/internal/model"
)

// parseIntents parses the Phase 1 extraction response into Intent values.
// Malformed blocks are skipped rather than failing the whole response.
func parseIntents(content string) ([]Intent, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty extraction response")
	}
	if strings.EqualFold(content, "NO_INTENTS") {
		return nil, nil
	}

	var intents []Intent
	var current *Intent

	flush := func() {
		if current != nil && (current.TargetName != "" || current.Relation == model.RequestAgePreference) {
			intents = append(intents, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.EqualFold(line, "INTENT:") {
			flush()
			current = &Intent{Confidence: 0.5, Strength: 0.5}
			continue
		}
		if current == nil {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "name":
			if !strings.EqualFold(value, "NONE") {
				current.TargetName = value
			}
		case "relation":
			switch strings.ToLower(value) {
			case string(model.RequestBunkWith):
				current.Relation = model.RequestBunkWith
			case string(model.RequestNotBunkWith):
				current.Relation = model.RequestNotBunkWith
			case string(model.RequestAgePreference):
				current.Relation = model.RequestAgePreference
			}
		case "strength":
			if f, ok := parseScore(value); ok {
				current.Strength = f
			}
		case "confidence":
			if f, ok := parseScore(value); ok {
				current.Confidence = f
			}
		case "reasoning":
			current.Reasoning = value
		case "sentiment":
			current.Sentiment = value
		}
	}
	flush()

	// Drop blocks that never got a valid relation.
	valid := intents[:0]
	for _, intent := range intents {
		if intent.Relation != "" {
			valid = append(valid, intent)
		}
	}
	return valid, nil
}

// parseChoice parses the Phase 3 disambiguation response.
func parseChoice(content string) (DisambiguationResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return DisambiguationResult{}, fmt.Errorf("empty disambiguation response")
	}

	result := DisambiguationResult{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.EqualFold(line, "UNRESOLVED"):
			result.Resolved = false
			result.ChosenExternalID = ""
		case strings.HasPrefix(strings.ToUpper(line), "CHOICE:"):
			result.ChosenExternalID = strings.TrimSpace(line[len("CHOICE:"):])
			result.Resolved = result.ChosenExternalID != ""
		case strings.HasPrefix(strings.ToUpper(line), "CONFIDENCE:"):
			if f, ok := parseScore(strings.TrimSpace(line[len("CONFIDENCE:"):])); ok {
				result.Confidence = f
			}
		case strings.HasPrefix(strings.ToUpper(line), "REASONING:"):
			result.Reasoning = strings.TrimSpace(line[len("REASONING:"):])
		}
	}

	if result.Resolved && result.Confidence == 0 {
		result.Confidence = 0.5
	}
	return result, nil
}

// parseScore parses a confidence-like value, tolerating percentages and
// stray formatting the providers occasionally emit.
func parseScore(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, "%") {
		if f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(raw, "%")), 64); err == nil {
			return clampScore(f / 100), true
		}
		return 0, false
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, raw)
		f, err = strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
	}
	return clampScore(f), true
}

func clampScore(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
