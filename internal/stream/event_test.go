package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_JSONShape(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"start", Start("msg-1"), `{"type":"start","messageId":"msg-1"}`},
		{"finish", Finish(), `{"type":"finish"}`},
		{"error", Error("boom"), `{"type":"error","errorText":"boom"}`},
		{"data", DataReplace(KindResponse, ResponseID, map[string]string{"answer": "x"}),
			`{"type":"data-response","id":"response-main","data":{"answer":"x"}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(b))
		})
	}
}

func TestEvent_Kind(t *testing.T) {
	assert.Equal(t, "metadata", DataReplace(KindMetadata, MetadataID, nil).Kind())
	assert.Equal(t, "", Start("m").Kind())
	assert.True(t, DataReplace(KindResponse, ResponseID, nil).IsData())
	assert.False(t, Finish().IsData())
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"data-metadata","id":"metadata-main","data":{"isComplete":true}}`))
	require.NoError(t, err)
	assert.Equal(t, Key{Type: "data-metadata", ID: MetadataID}, ev.Key())

	var meta map[string]bool
	require.NoError(t, ev.DecodeData(&meta))
	assert.True(t, meta["isComplete"])

	_, err = Decode([]byte(`{"id":"x"}`))
	assert.Error(t, err)

	ev, err = Decode([]byte(`{"type":"finish"}`))
	require.NoError(t, err)
	assert.Error(t, ev.DecodeData(&meta))
}
