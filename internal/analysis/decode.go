package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/llm"
	"github.com/retz8/iris/internal/models"
)

// ReadPlan is the identify step's decision, cached per content.
type ReadPlan struct {
	Reads []PlannedRange `json:"reads"`
}

// PlannedRange is one read the identify step asked for.
type PlannedRange struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Reason    string `json:"reason,omitempty"`
}

// plannedRead is a planned range after execution.
type plannedRead struct {
	PlannedRange
	observation string
}

// decodeResult parses and schema-checks a terminal payload.
func decodeResult(text string) (*models.RawResult, error) {
	payload := llm.ExtractJSON(text)
	if payload == "" {
		return nil, errors.MalformedOutput(nil, "empty terminal payload")
	}

	var raw models.RawResult
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, errors.MalformedOutput(err, "terminal payload is not valid JSON")
	}
	if err := checkSchema(&raw); err != nil {
		return nil, errors.MalformedOutput(err, "terminal payload failed schema validation")
	}
	return &raw, nil
}

func checkSchema(raw *models.RawResult) error {
	if strings.TrimSpace(raw.FileIntent) == "" {
		return fmt.Errorf("file_intent is empty")
	}
	if len(raw.ResponsibilityBlocks) == 0 {
		return fmt.Errorf("responsibility_blocks is empty")
	}
	for i, b := range raw.ResponsibilityBlocks {
		if strings.TrimSpace(b.Label) == "" {
			return fmt.Errorf("block %d has no label", i+1)
		}
		if len(b.Ranges) == 0 {
			return fmt.Errorf("block %d (%s) has no ranges", i+1, b.Label)
		}
	}
	return nil
}

// decodePlan parses the identify step's reply.
func decodePlan(text string) (*ReadPlan, error) {
	var plan ReadPlan
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &plan); err != nil {
		return nil, errors.MalformedOutput(err, "read plan is not valid JSON")
	}
	return &plan, nil
}
