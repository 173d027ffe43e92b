package decision

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-stuffbot/pkg/mode"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *MovementCommand
		wantErr bool
	}{
		{
			name:  "plain json",
			input: `{"linear_velocity":0.3,"angular_velocity":-0.2,"description":"cup ahead","next_mode":"APPROACHING"}`,
			want:  &MovementCommand{LinearVelocity: 0.3, AngularVelocity: -0.2, Description: "cup ahead", NextMode: mode.Approaching},
		},
		{
			name:  "fenced json with prose",
			input: "Sure:\n```json\n{\"linear_velocity\":0,\"angular_velocity\":0.5,\"description\":\" turning \",\"next_mode\":\"searching\"}\n```",
			want:  &MovementCommand{AngularVelocity: 0.5, Description: "turning", NextMode: mode.Searching},
		},
		{
			name:  "out of range passes through for clamping",
			input: `{"linear_velocity":5.0,"angular_velocity":0,"description":"","next_mode":"INSPECTING"}`,
			want:  &MovementCommand{LinearVelocity: 5.0, NextMode: mode.Inspecting},
		},
		{
			name:    "unknown mode",
			input:   `{"linear_velocity":0,"angular_velocity":0,"description":"","next_mode":"DANCING"}`,
			wantErr: true,
		},
		{
			name:    "missing velocity",
			input:   `{"angular_velocity":0,"next_mode":"SEARCHING"}`,
			wantErr: true,
		},
		{
			name:    "missing mode",
			input:   `{"linear_velocity":0,"angular_velocity":0}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   "I think you should turn left.",
			wantErr: true,
		},
		{
			name:    "wrong types",
			input:   `{"linear_velocity":"fast","angular_velocity":0,"next_mode":"SEARCHING"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidResponse) {
					t.Fatalf("err = %v, want ErrInvalidResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand: %v", err)
			}
			if *got != *tt.want {
				t.Errorf("got %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestParseCommandUnknownModeIsModeError(t *testing.T) {
	_, err := ParseCommand(`{"linear_velocity":0,"angular_velocity":0,"next_mode":"FLYING"}`)
	if !errors.Is(err, mode.ErrUnknownMode) {
		t.Errorf("err = %v, want wrapped mode.ErrUnknownMode", err)
	}
}

func TestValidateRejectsNonFinite(t *testing.T) {
	cmd := &MovementCommand{LinearVelocity: math.NaN(), NextMode: mode.Searching}
	if err := cmd.Validate(); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("NaN: err = %v", err)
	}
	cmd = &MovementCommand{AngularVelocity: math.Inf(1), NextMode: mode.Searching}
	if err := cmd.Validate(); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Inf: err = %v", err)
	}
	cmd = &MovementCommand{NextMode: mode.Unknown}
	if err := cmd.Validate(); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("unknown mode: err = %v", err)
	}
	var nilCmd *MovementCommand
	if err := nilCmd.Validate(); err == nil {
		t.Error("nil command should be invalid")
	}
}
