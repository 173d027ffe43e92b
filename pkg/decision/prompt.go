package decision

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-stuffbot/pkg/distance"
	"github.com/teslashibe/go-stuffbot/pkg/mode"
)

var modeGoals = map[mode.Mode]string{
	mode.Searching:        "Wander the room looking for a surface or object worth inspecting. Prefer slow turns over long drives.",
	mode.Approaching:      "Drive toward the chosen object until it fills a good part of the frame. Slow down as it gets close.",
	mode.Inspecting:       "Hold still or creep very slowly so the camera gets clear views of the objects in front of you.",
	mode.SeekingNewTarget: "Back away from the inspected area and turn to find the next unexplored spot.",
	mode.RecoveringVision: "The view is blocked or unusable. Back up slowly and turn until the camera sees the room again.",
}

// SystemPrompt describes the robot, its modes and the reply format.
func SystemPrompt(maxLinear, maxAngular float64) string {
	var b strings.Builder

	b.WriteString("You drive a small wheeled robot that explores a room and catalogues the objects it finds. ")
	b.WriteString("Each turn you get one camera image, the robot's current velocity, its current mode and the objects a detector found.\n\n")

	fmt.Fprintf(&b, "Reply with a single JSON object with linear_velocity (m/s, -%.1f to %.1f, positive is forward), ", maxLinear, maxLinear)
	fmt.Fprintf(&b, "angular_velocity (rad/s, -%.1f to %.1f, positive turns left), ", maxAngular, maxAngular)
	b.WriteString("description (one short sentence on what you see and why you move) and next_mode.\n\n")

	b.WriteString("Modes and the modes you may switch to from each:\n")
	for _, m := range mode.All() {
		next := mode.Successors(m)
		labels := make([]string, 0, len(next)+1)
		for _, n := range next {
			labels = append(labels, n.String())
		}
		if m == mode.RecoveringVision {
			labels = append(labels, "the mode you were in before")
		}
		fmt.Fprintf(&b, "- %s: %s Next: %s.\n", m, modeGoals[m], strings.Join(labels, ", "))
	}
	b.WriteString("\nStaying in the same mode is always allowed. Never drive into people, walls or furniture. ")
	b.WriteString("When unsure, stop: both velocities 0.")

	return b.String()
}

// UserPrompt renders the textual part of a request.
func UserPrompt(req *Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Tick %d. Current mode: %s", req.Tick, req.Mode)
	if req.ModeSince > 0 {
		fmt.Fprintf(&b, " (for %.1fs)", req.ModeSince.Seconds())
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "Robot velocity: linear %.2f m/s, angular %.2f rad/s.\n",
		req.State.LinearVelocity, req.State.AngularVelocity)

	if len(req.Objects) == 0 {
		b.WriteString("Detected objects: none.\n")
	} else {
		fmt.Fprintf(&b, "Detected objects (%d):\n", len(req.Objects))
		for _, o := range req.Objects {
			cx, cy := o.Box.Center()
			fmt.Fprintf(&b, "- %s id=%s confidence %.2f distance %.2f m (%s) center (%.0f, %.0f) width %.0f px\n",
				o.Class, o.ID, o.Confidence, distance.Round2(o.Distance), distance.Category(o.Distance),
				cx, cy, o.Box.Width())
		}
	}

	b.WriteString("What is the next movement command?")
	return b.String()
}

// jsonSchema is the response schema in JSON Schema form (OpenAI json_schema).
func jsonSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"linear_velocity":  map[string]any{"type": "number"},
			"angular_velocity": map[string]any{"type": "number"},
			"description":      map[string]any{"type": "string"},
			"next_mode": map[string]any{
				"type": "string",
				"enum": modeLabels(),
			},
		},
		"required":             []string{"linear_velocity", "angular_velocity", "description", "next_mode"},
		"additionalProperties": false,
	}
}

// geminiSchema is the same schema in Gemini's OpenAPI subset.
func geminiSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"linear_velocity":  map[string]any{"type": "NUMBER"},
			"angular_velocity": map[string]any{"type": "NUMBER"},
			"description":      map[string]any{"type": "STRING"},
			"next_mode": map[string]any{
				"type": "STRING",
				"enum": modeLabels(),
			},
		},
		"required":         []string{"linear_velocity", "angular_velocity", "description", "next_mode"},
		"propertyOrdering": []string{"description", "next_mode", "linear_velocity", "angular_velocity"},
	}
}

func modeLabels() []string {
	all := mode.All()
	labels := make([]string, len(all))
	for i, m := range all {
		labels[i] = m.String()
	}
	return labels
}
