package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAct_Variants(t *testing.T) {
	tests := []struct {
		name string
		json string
		want any
	}{
		{"launch", `{"type":"launch","browserID":"chromium"}`, &LaunchAct{}},
		{"url", `{"type":"url","which":"https://example.com/"}`, &URLAct{}},
		{"wait", `{"type":"wait","which":"Hello","in":"body"}`, &WaitAct{}},
		{"button", `{"type":"button","which":"Submit","index":1}`, &MoveAct{}},
		{"presses", `{"type":"presses","which":["Tab","Enter"]}`, &PressesAct{}},
		{"next", `{"type":"next","if":["result.found","=",true],"jump":2}`, &NextAct{}},
		{"test", `{"type":"test","which":"testaro","rules":["hr"]}`, &TestAct{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := DecodeAct([]byte(tt.json))
			require.NoError(t, err)
			assert.IsType(t, tt.want, act)
			assert.Equal(t, ActType(tt.name), act.Base().Type)
		})
	}
}

func TestDecodeAct_UnknownType(t *testing.T) {
	_, err := DecodeAct([]byte(`{"type":"teleport"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestDecodeAct_NextJumpZeroIsKept(t *testing.T) {
	act, err := DecodeAct([]byte(`{"type":"next","if":["result.ok"],"jump":0}`))
	require.NoError(t, err)
	next := act.(*NextAct)
	require.NotNil(t, next.Jump)
	assert.Equal(t, 0, *next.Jump)
}

func TestActs_RoundTrip(t *testing.T) {
	data := `[{"type":"launch"},{"type":"test","which":"axe","detailLevel":2}]`

	var acts Acts
	require.NoError(t, json.Unmarshal([]byte(data), &acts))
	require.Len(t, acts, 2)

	test := acts[1].(*TestAct)
	require.NotNil(t, test.DetailLevel)
	assert.Equal(t, 2, *test.DetailLevel)

	out, err := json.Marshal(acts)
	require.NoError(t, err)
	assert.JSONEq(t, data, string(out))
}

func TestAsMap_ExposesResult(t *testing.T) {
	act := &MoveAct{ActBase: ActBase{Type: ActButton, Result: map[string]any{"found": true}}, Which: "Go"}

	m, err := AsMap(act)
	require.NoError(t, err)
	result, ok := m["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["found"])
	assert.Equal(t, "button", m["type"])
}

func TestTestAct_Items(t *testing.T) {
	act := &TestAct{}
	assert.True(t, act.Items())

	no := false
	act.WithItems = &no
	assert.False(t, act.Items())
}
