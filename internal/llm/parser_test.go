package llm

import (
	"testing"

	"github.com/campwire/bunkmate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntents(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []Intent
		wantErr bool
	}{
		{
			name: "single bunk_with intent",
			content: `INTENT:
name: Emma Watson
relation: bunk_with
strength: 0.9
confidence: 0.95
reasoning: "wants to be with Emma Watson"`,
			want: []Intent{{
				TargetName: "Emma Watson",
				Relation:   model.RequestBunkWith,
				Strength:   0.9,
				Confidence: 0.95,
				Reasoning:  `"wants to be with Emma Watson"`,
			}},
		},
		{
			name: "multiple intents including avoid",
			content: `INTENT:
name: Jake M
relation: bunk_with
strength: 0.8
confidence: 0.9
reasoning: first friend

INTENT:
name: Tyler
relation: not_bunk_with
strength: 1.0
confidence: 0.85
reasoning: history of conflict`,
			want: []Intent{
				{TargetName: "Jake M", Relation: model.RequestBunkWith, Strength: 0.8, Confidence: 0.9, Reasoning: "first friend"},
				{TargetName: "Tyler", Relation: model.RequestNotBunkWith, Strength: 1.0, Confidence: 0.85, Reasoning: "history of conflict"},
			},
		},
		{
			name: "age preference with no target",
			content: `INTENT:
name: NONE
relation: age_preference
strength: 0.6
confidence: 0.8
reasoning: wants to be with older kids`,
			want: []Intent{{
				Relation:   model.RequestAgePreference,
				Strength:   0.6,
				Confidence: 0.8,
				Reasoning:  "wants to be with older kids",
			}},
		},
		{
			name:    "no intents marker",
			content: "NO_INTENTS",
			want:    nil,
		},
		{
			name: "percentage confidence tolerated",
			content: `INTENT:
name: Ella
relation: bunk_with
confidence: 85%
reasoning: mentioned once`,
			want: []Intent{{
				TargetName: "Ella",
				Relation:   model.RequestBunkWith,
				Strength:   0.5,
				Confidence: 0.85,
				Reasoning:  "mentioned once",
			}},
		},
		{
			name: "block without relation is dropped",
			content: `INTENT:
name: Somebody
reasoning: unclear`,
			want: []Intent{},
		},
		{
			name:    "empty response is an error",
			content: "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntents(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    DisambiguationResult
		wantErr bool
	}{
		{
			name: "resolved choice",
			content: `CHOICE: p42
CONFIDENCE: 0.88
REASONING: school and grade both match`,
			want: DisambiguationResult{
				ChosenExternalID: "p42",
				Confidence:       0.88,
				Reasoning:        "school and grade both match",
				Resolved:         true,
			},
		},
		{
			name: "explicit unresolved",
			content: `UNRESOLVED
REASONING: two siblings share the nickname`,
			want: DisambiguationResult{
				Reasoning: "two siblings share the nickname",
			},
		},
		{
			name: "choice without confidence gets a floor",
			content: `CHOICE: p7
REASONING: only plausible match`,
			want: DisambiguationResult{
				ChosenExternalID: "p7",
				Confidence:       0.5,
				Reasoning:        "only plausible match",
				Resolved:         true,
			},
		},
		{
			name:    "empty response is an error",
			content: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseChoice(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		wantOK bool
	}{
		{name: "plain float", input: "0.75", want: 0.75, wantOK: true},
		{name: "percentage", input: "90%", want: 0.9, wantOK: true},
		{name: "clamped above one", input: "1.8", want: 1, wantOK: true},
		{name: "stray formatting recovered", input: "~0.6", want: 0.6, wantOK: true},
		{name: "garbage", input: "high", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseScore(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}
