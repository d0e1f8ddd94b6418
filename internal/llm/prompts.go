package llm

import (
	"fmt"
	"strings"

	"github.com/campwire/bunkmate/internal/model"
)

const extractionSystemPrompt = "You extract camper bunking requests from camp intake forms. Respond only in the exact format requested."

const disambiguationSystemPrompt = "You identify which enrolled camper a written name refers to. Respond only in the exact format requested."

// fieldDescriptions tell the model what each intake field means.
var fieldDescriptions = map[model.FieldType]string{
	model.FieldBunkRequest:   "a parent or camper listing who they want to bunk with",
	model.FieldBunkAvoid:     "a parent or camper listing who they should NOT bunk with",
	model.FieldParentNotes:   "free-form parent notes that may mention bunking preferences",
	model.FieldInternalNotes: "staff notes that may mention bunking preferences",
}

// buildExtractionPrompt creates the Phase 1 prompt for one submission.
func buildExtractionPrompt(text string, fieldType model.FieldType) string {
	return fmt.Sprintf(`Extract every bunking request from this camp intake field.

Field: %s (%s)
Text:
%s

Rules:
- A request names a specific person the camper wants to bunk with (relation bunk_with), wants to avoid (not_bunk_with), or expresses an age/grade placement preference without naming anyone (age_preference).
- Quote the person's name exactly as written; do not guess full names.
- Ignore requests about activities, food, or anything that is not about cabin placement.

For each request found, respond with a block in this exact format:

INTENT:
name: <name as written, or NONE for age_preference>
relation: <bunk_with|not_bunk_with|age_preference>
strength: <0.0-1.0 how emphatic the request is>
confidence: <0.0-1.0 how certain you are this is a real bunking request>
reasoning: <one sentence quoting the evidence>

If the text contains no bunking requests, respond with exactly:
NO_INTENTS`,
		fieldType, fieldDescriptions[fieldType], text)
}

// buildDisambiguationPrompt creates the Phase 3 prompt over a narrowed
// candidate set.
func buildDisambiguationPrompt(req DisambiguationRequest) string {
	var candidates strings.Builder
	for _, c := range req.Candidates {
		fmt.Fprintf(&candidates, "- id=%s name=%q grade=%d school=%q session=%s prior_confidence=%.2f\n",
			c.ExternalID, c.Name, c.Grade, c.School, c.SessionID, c.Confidence)
	}

	return fmt.Sprintf(`A camper's intake form mentions %q but several enrolled campers could match.

Requester: %s
Session: %s
Original text:
%s

Candidates:
%s
Pick the candidate the text most plausibly refers to, considering spelling,
nicknames, school, and grade closeness to the requester. If the evidence does
not single out one candidate, say so rather than guessing.

Respond in exactly one of these two formats:

CHOICE: <candidate id>
CONFIDENCE: <0.0-1.0>
REASONING: <one sentence>

or:

UNRESOLVED
REASONING: <one sentence>`,
		req.RawReference, req.RequesterName, req.SessionName, req.OriginalText, candidates.String())
}
