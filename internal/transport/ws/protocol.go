package ws

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/star/wwtengine/internal/spacetime"
	"github.com/star/wwtengine/internal/stream"
)

// Client command types.
const (
	TypeGoto     = "GOTO"
	TypeRender   = "RENDER"
	TypeSyncTime = "SYNC_TIME"
	TypeSetRate  = "SET_RATE"
)

// Server message types.
const (
	TypeHello = "HELLO"
	TypeAck   = "ACK"
	TypeError = "ERROR"
	TypeEvent = "EVENT"
)

//go:embed command.schema.json
var commandSchemaJSON string

var commandSchema = jsonschema.MustCompileString("command.schema.json", commandSchemaJSON)

// Command is a client request.
type Command struct {
	Type    string  `json:"type"`
	ID      string  `json:"id,omitempty"`
	RA      float64 `json:"ra,omitempty"`
	Dec     float64 `json:"dec,omitempty"`
	Zoom    float64 `json:"zoom,omitempty"`
	Instant bool    `json:"instant,omitempty"`
	Rate    float64 `json:"rate,omitempty"`
}

// Reply acknowledges or rejects a command.
type Reply struct {
	Type    string           `json:"type"`
	ID      string           `json:"id,omitempty"`
	Command string           `json:"command,omitempty"`
	Error   string           `json:"error,omitempty"`
	Clock   *spacetime.State `json:"clock,omitempty"`
}

// HelloMsg is the first server message on a connection.
type HelloMsg struct {
	Type     string          `json:"type"`
	Metadata stream.Metadata `json:"metadata"`
}

// EventMsg carries one engine event.
type EventMsg struct {
	Type  string       `json:"type"`
	Event stream.Event `json:"event"`
}

// DecodeCommand validates msg against the command schema and decodes it.
func DecodeCommand(msg []byte) (Command, error) {
	var raw any
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Command{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := commandSchema.Validate(raw); err != nil {
		return Command{}, fmt.Errorf("invalid command: %w", err)
	}
	var cmd Command
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return Command{}, fmt.Errorf("decoding command: %w", err)
	}
	return cmd, nil
}
