package shopee

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The walk order decides which orders make the detail cut when a cookie has
// more than the fetch limit, so it must not vary between runs.
func TestValuesByKeyStableOrder(t *testing.T) {
	raw := `{
		"b": {"order_id": 2},
		"a": {"order_id": 1},
		"c": [{"order_id": 3}, {"order_id": 4}]
	}`
	var data interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	first := ValuesByKey(data, "order_id")
	require.Equal(t, []interface{}{float64(1), float64(2), float64(3), float64(4)}, first)

	for i := 0; i < 30; i++ {
		assert.Equal(t, first, ValuesByKey(data, "order_id"))
	}
}

func TestFindFirstKeyStable(t *testing.T) {
	raw := `{"z": {"total": 9}, "a": {"total": 1}}`
	var data interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	for i := 0; i < 30; i++ {
		assert.Equal(t, float64(1), FindFirstKey(data, "total"))
	}
}

func TestFindFirstKeyMissing(t *testing.T) {
	var data interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"a": [1, 2]}`), &data))
	assert.Nil(t, FindFirstKey(data, "nope"))
}
