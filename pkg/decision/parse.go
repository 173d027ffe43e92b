package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teslashibe/go-stuffbot/pkg/mode"
)

// rawCommand detects missing fields, which plain unmarshalling would zero.
type rawCommand struct {
	LinearVelocity  *float64 `json:"linear_velocity"`
	AngularVelocity *float64 `json:"angular_velocity"`
	Description     string   `json:"description"`
	NextMode        *string  `json:"next_mode"`
}

// ParseCommand extracts a MovementCommand from model output. Markdown code
// fences and text around the JSON object are tolerated.
func ParseCommand(text string) (*MovementCommand, error) {
	body := extractJSON(text)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidResponse)
	}

	var raw rawCommand
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if raw.LinearVelocity == nil || raw.AngularVelocity == nil || raw.NextMode == nil {
		return nil, fmt.Errorf("%w: missing required field", ErrInvalidResponse)
	}

	next, err := mode.Parse(*raw.NextMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	cmd := &MovementCommand{
		LinearVelocity:  *raw.LinearVelocity,
		AngularVelocity: *raw.AngularVelocity,
		Description:     strings.TrimSpace(raw.Description),
		NextMode:        next,
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
