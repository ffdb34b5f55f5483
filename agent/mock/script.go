package mock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/core/response"
)

// Script is a canned conversation keyed by phase. Turn n in a phase plays
// reply n; once replies run out the last one repeats.
type Script struct {
	Name   string                     `yaml:"name"`
	Delay  time.Duration              `yaml:"delay"`
	Phases map[protocol.Phase][]Reply `yaml:"phases"`
}

// Reply is one scripted backend response.
type Reply struct {
	Frames []Frame `yaml:"frames"`
	// FailAttempts makes the first N stream openings for this reply fail as
	// unavailable.
	FailAttempts int `yaml:"fail_attempts"`
	// FailAfter breaks the stream after this many frames. Zero disables it.
	FailAfter int `yaml:"fail_after"`
	// Delay overrides the script delay between frames.
	Delay time.Duration `yaml:"delay"`
}

// Frame is the YAML form of a backend frame.
type Frame struct {
	Type     protocol.ChunkKind `yaml:"type"`
	Text     string             `yaml:"text"`
	Set      map[string]any     `yaml:"set"`
	Remove   []string           `yaml:"remove"`
	DataType string             `yaml:"data_type"`
	Data     any                `yaml:"data"`
	Tool     string             `yaml:"tool"`
	Args     map[string]any     `yaml:"args"`
	Target   protocol.Phase     `yaml:"target"`
	Complete bool               `yaml:"complete"`
	Reason   string             `yaml:"reason"`
	Code     string             `yaml:"code"`
	Error    string             `yaml:"error"`
}

// ParseScript decodes a YAML script and checks every frame converts.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for phase, replies := range s.Phases {
		if !protocol.IsValid(string(phase)) {
			return nil, fmt.Errorf("script %s: %w: %q", s.Name, protocol.ErrUnknownPhase, phase)
		}
		for i, r := range replies {
			for j, f := range r.Frames {
				if _, err := f.Chunk(); err != nil {
					return nil, fmt.Errorf("script %s: %s reply %d frame %d: %w", s.Name, phase, i, j, err)
				}
			}
		}
	}
	return &s, nil
}

// LoadScript reads a YAML script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// Chunk converts the frame through the backend wire format so scripted and
// live backends decode identically.
func (f Frame) Chunk() (protocol.Chunk, error) {
	wire := response.Frame{
		Type:     f.Type,
		Text:     f.Text,
		Remove:   f.Remove,
		DataType: f.DataType,
		Target:   f.Target,
		Complete: f.Complete,
		Reason:   f.Reason,
		Code:     f.Code,
		Error:    f.Error,
	}

	if len(f.Set) > 0 {
		wire.Set = make(map[string]json.RawMessage, len(f.Set))
		for k, v := range f.Set {
			raw, err := json.Marshal(v)
			if err != nil {
				return protocol.Chunk{}, fmt.Errorf("set %s: %w", k, err)
			}
			wire.Set[k] = raw
		}
	}

	if f.Data != nil {
		raw, err := json.Marshal(f.Data)
		if err != nil {
			return protocol.Chunk{}, fmt.Errorf("data: %w", err)
		}
		wire.Data = raw
	}

	if f.Tool != "" {
		args := "{}"
		if len(f.Args) > 0 {
			raw, err := json.Marshal(f.Args)
			if err != nil {
				return protocol.Chunk{}, fmt.Errorf("args: %w", err)
			}
			args = string(raw)
		}
		wire.ToolCall = &protocol.ToolCall{Name: f.Tool, Arguments: args}
	}

	return wire.Chunk()
}
