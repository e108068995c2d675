package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSender_UnmarshalLegacyAI(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","text":"hi","sender":"ai","timestamp":5}`), &m))
	require.Equal(t, SenderAgent, m.Sender)
}

func TestSender_UnmarshalUnknown(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":"1","text":"hi","sender":"robot","timestamp":5}`), &m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown sender")
}

func TestActionItem_AcceptsNameOrLabel(t *testing.T) {
	var items []ActionItem
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id":"a","name":"Track","action":"track"},
		{"id":"b","label":"Refund","action":"refund"}
	]`), &items))
	require.Equal(t, []ActionItem{
		{ID: "a", Label: "Track", ActionCode: "track"},
		{ID: "b", Label: "Refund", ActionCode: "refund"},
	}, items)
}

func TestActionItem_NumericID(t *testing.T) {
	var items []ActionItem
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id":1,"name":"Track","action":"track"},
		{"id":2.5,"name":"Refund","action":"refund"},
		{"id":null,"name":"FAQ","action":"faq"},
		{"name":"Help","action":"help"}
	]`), &items))
	require.Equal(t, []ActionItem{
		{ID: "1", Label: "Track", ActionCode: "track"},
		{ID: "2.5", Label: "Refund", ActionCode: "refund"},
		{ID: "", Label: "FAQ", ActionCode: "faq"},
		{ID: "", Label: "Help", ActionCode: "help"},
	}, items)
}

func TestActionItem_RejectsOtherIDTypes(t *testing.T) {
	for _, body := range []string{`{"id":true,"name":"x","action":"x"}`, `{"id":{"v":1},"name":"x","action":"x"}`} {
		var item ActionItem
		err := json.Unmarshal([]byte(body), &item)
		require.Error(t, err, body)
		require.Contains(t, err.Error(), "decode action item")
	}
}

func TestActionItem_MarshalsLabelAsName(t *testing.T) {
	b, err := json.Marshal(ActionItem{ID: "a", Label: "Track", ActionCode: "track"})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"a","name":"Track","action":"track"}`, string(b))
}

func TestCloneActions(t *testing.T) {
	require.Nil(t, CloneActions(nil))

	src := []ActionItem{{ID: "a"}}
	out := CloneActions(src)
	out[0].ID = "changed"
	require.Equal(t, "a", src[0].ID)
}
