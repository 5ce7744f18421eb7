package payload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Wrapping(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain", `{"message":"hi"}`, false},
		{"whitespace", "  \n{\"message\":\"hi\"}\t ", false},
		{"single quoted", `'{"message":"hi"}'`, false},
		{"double quoted escaped", `"{\"message\":\"hi\"}"`, false},
		{"escaped without wrapper", `{\"message\":\"hi\"}`, false},
		{"two layers", `'"{\"message\":\"hi\"}"'`, true},
		{"double escaped", `{\\\"message\\\":\\\"hi\\\"}`, true},
		{"not json", `hello`, true},
		{"quoted text", `"hello"`, true},
		{"null", `null`, true},
		{"array", `[1,2,3]`, true},
		{"number", `42`, true},
		{"empty", ``, true},
		{"mismatched quotes", `'{"message":"hi"}"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := Decode([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				var decodeErr *DecodeError
				assert.True(t, errors.As(err, &decodeErr))
				assert.Nil(t, obj)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, `"hi"`, string(obj["message"]))
		})
	}
}

func TestDecodeCommand_QuotedAndPlainAreIdentical(t *testing.T) {
	quoted, err := DecodeCommand([]byte(`'{"message":"hi"}'`))
	require.NoError(t, err)
	plain, err := DecodeCommand([]byte(`{"message":"hi"}`))
	require.NoError(t, err)

	assert.Equal(t, plain, quoted)
	assert.Equal(t, "hi", plain.Message)
}

func TestDecodeCommand_AllFields(t *testing.T) {
	raw := `{"message":"Door open","color":[255,128,0],"rotation":90,"volume":55.5,
		"sound":"bell","speak":true,"extra":{"ignored":1}}`

	cmd, err := DecodeCommand([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "Door open", cmd.Message)
	require.NotNil(t, cmd.Color)
	assert.Equal(t, RGB{255, 128, 0}, *cmd.Color)
	require.NotNil(t, cmd.Rotation)
	assert.Equal(t, 90, *cmd.Rotation)
	require.NotNil(t, cmd.Volume)
	assert.InDelta(t, 55.5, *cmd.Volume, 1e-9)
	assert.Equal(t, "bell", cmd.Sound)
	assert.True(t, cmd.Speak)
	assert.Empty(t, cmd.Ignored)
}

func TestDecodeCommand_EmptyObject(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, Command{}, cmd)
}

func TestDecodeCommand_WrongTypesAreIgnored(t *testing.T) {
	raw := `{"message":{"a":1},"color":[1,2],"volume":"loud","sound":7,"pattern":[[0,0,0]]}`

	cmd, err := DecodeCommand([]byte(raw))
	require.NoError(t, err)

	assert.Empty(t, cmd.Message)
	assert.Nil(t, cmd.Color)
	assert.Nil(t, cmd.Volume)
	assert.Empty(t, cmd.Sound)
	assert.Nil(t, cmd.Pattern)
	assert.ElementsMatch(t, []string{"message", "color", "volume", "sound", "pattern"}, cmd.Ignored)
}

func TestDecodeCommand_Rotation(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"rotation":0}`, 0},
		{`{"rotation":270}`, 270},
		{`{"rotation":45}`, 45},
		{`{"rotation":90.5}`, InvalidRotation},
		{`{"rotation":"90"}`, InvalidRotation},
	}

	for _, tt := range tests {
		cmd, err := DecodeCommand([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		require.NotNil(t, cmd.Rotation, tt.raw)
		assert.Equal(t, tt.want, *cmd.Rotation, tt.raw)
	}

	cmd, err := DecodeCommand([]byte(`{"rotation":null}`))
	require.NoError(t, err)
	assert.Nil(t, cmd.Rotation)
}

func TestDecodeCommand_Pattern(t *testing.T) {
	cells := make([]string, PatternSize)
	for i := range cells {
		cells[i] = "[0,0,255]"
	}
	raw := `{"pattern":[` + join(cells) + `]}`

	cmd, err := DecodeCommand([]byte(raw))
	require.NoError(t, err)
	require.Len(t, cmd.Pattern, PatternSize)
	assert.Equal(t, RGB{0, 0, 255}, cmd.Pattern[63])

	cells[10] = `"red"`
	cmd, err = DecodeCommand([]byte(`{"pattern":[` + join(cells) + `]}`))
	require.NoError(t, err)
	assert.Nil(t, cmd.Pattern)
	assert.Equal(t, []string{"pattern"}, cmd.Ignored)
}

func TestDecodeCommand_SpeakTruthiness(t *testing.T) {
	tests := map[string]bool{
		`{"speak":true}`:  true,
		`{"speak":false}`: false,
		`{"speak":1}`:     true,
		`{"speak":0}`:     false,
		`{"speak":"yes"}`: true,
		`{"speak":""}`:    false,
		`{"speak":null}`:  false,
	}
	for raw, want := range tests {
		cmd, err := DecodeCommand([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, cmd.Speak, raw)
	}
}

func TestDecodeCommand_NumericMessage(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"message":21.5}`))
	require.NoError(t, err)
	assert.Equal(t, "21.5", cmd.Message)
}

func TestDecodeAction(t *testing.T) {
	act, err := DecodeAction([]byte(`{"action":"set_interval","interval":5000}`))
	require.NoError(t, err)
	assert.Equal(t, ActionSetInterval, act.Action)
	require.NotNil(t, act.Interval)
	assert.Equal(t, 5000.0, *act.Interval)

	act, err = DecodeAction([]byte(`'{"action":"set_interval","interval":"soon"}'`))
	require.NoError(t, err)
	assert.Nil(t, act.Interval)

	act, err = DecodeAction([]byte(`{"verb":"clear"}`))
	require.NoError(t, err)
	assert.Empty(t, act.Action)

	_, err = DecodeAction([]byte(`clear`))
	assert.Error(t, err)
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
