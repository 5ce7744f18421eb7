package payload

import (
	"encoding/json"
	"math"
	"strconv"
)

// PatternSize is the number of cells a pattern must cover.
const PatternSize = 64

// RGB is a 3-channel color. Components are not range checked here.
type RGB [3]int

// Command is a decoded message-topic payload. Absent fields keep their zero value.
type Command struct {
	Message  string
	Color    *RGB
	Pattern  []RGB
	Rotation *int
	Volume   *float64
	Sound    string
	Speak    bool

	// Ignored lists present fields whose value had an unusable type or shape.
	Ignored []string
}

// InvalidRotation is stored in Command.Rotation when the field is present but
// not an integral number; the display coerces it to its default.
const InvalidRotation = -1

// DecodeCommand decodes a message-topic payload.
func DecodeCommand(raw []byte) (Command, error) {
	obj, err := Decode(raw)
	if err != nil {
		return Command{}, err
	}

	var cmd Command
	ignore := func(field string) { cmd.Ignored = append(cmd.Ignored, field) }

	if obj.has("message") {
		if text, ok := textValue(obj["message"]); ok {
			cmd.Message = text
		} else {
			ignore("message")
		}
	}

	if obj.has("color") {
		if c, ok := rgbValue(obj["color"]); ok {
			cmd.Color = &c
		} else {
			ignore("color")
		}
	}

	if obj.has("pattern") {
		if p, ok := patternValue(obj["pattern"]); ok {
			cmd.Pattern = p
		} else {
			ignore("pattern")
		}
	}

	if obj.has("rotation") {
		rotation := InvalidRotation
		if n, ok := numberValue(obj["rotation"]); ok && n == math.Trunc(n) {
			rotation = int(n)
		} else {
			ignore("rotation")
		}
		cmd.Rotation = &rotation
	}

	if obj.has("volume") {
		if n, ok := numberValue(obj["volume"]); ok {
			cmd.Volume = &n
		} else {
			ignore("volume")
		}
	}

	if obj.has("sound") {
		var s string
		if err := json.Unmarshal(obj["sound"], &s); err == nil {
			cmd.Sound = s
		} else {
			ignore("sound")
		}
	}

	if obj.has("speak") {
		cmd.Speak = truthy(obj["speak"])
	}

	return cmd, nil
}

// Action names understood on the command topic.
const (
	ActionGetSensors  = "get_sensors"
	ActionSetInterval = "set_interval"
	ActionClear       = "clear"
	ActionReboot      = "reboot"
)

// ControlAction is a decoded command-topic payload.
type ControlAction struct {
	Action string
	// Interval is the raw set_interval value in milliseconds, nil when absent or not a number.
	Interval *float64
}

// DecodeAction decodes a command-topic payload.
func DecodeAction(raw []byte) (ControlAction, error) {
	obj, err := Decode(raw)
	if err != nil {
		return ControlAction{}, err
	}

	var act ControlAction
	if obj.has("action") {
		_ = json.Unmarshal(obj["action"], &act.Action)
	}
	if obj.has("interval") {
		if n, ok := numberValue(obj["interval"]); ok {
			act.Interval = &n
		}
	}
	return act, nil
}

func numberValue(raw json.RawMessage) (float64, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

func textValue(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	if n, ok := numberValue(raw); ok {
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	return "", false
}

func rgbValue(raw json.RawMessage) (RGB, bool) {
	var parts []float64
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) != 3 {
		return RGB{}, false
	}
	return RGB{int(parts[0]), int(parts[1]), int(parts[2])}, true
}

func patternValue(raw json.RawMessage) ([]RGB, bool) {
	var cells []json.RawMessage
	if err := json.Unmarshal(raw, &cells); err != nil || len(cells) != PatternSize {
		return nil, false
	}
	out := make([]RGB, 0, PatternSize)
	for _, cell := range cells {
		c, ok := rgbValue(cell)
		if !ok {
			return nil, false
		}
		out = append(out, c)
	}
	return out, true
}

// truthy follows the loose truthiness publishers expect: false, 0, "" and null are false.
func truthy(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}
