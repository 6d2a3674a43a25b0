package ads

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutateResponse_RejectedByIndex(t *testing.T) {
	channelIDs := []string{"yt-1", "yt-2", "yt-3"}

	t.Run("no partial failure", func(t *testing.T) {
		var resp mutateResponse
		assert.Empty(t, resp.rejectedByIndex(channelIDs))
	})

	t.Run("indexed error maps to its channel", func(t *testing.T) {
		payload := `{
			"results": [
				{"resourceName": "customers/111/sharedCriteria/1~1"},
				{},
				{"resourceName": "customers/111/sharedCriteria/1~3"}
			],
			"partialFailureError": {
				"message": "partial failure",
				"details": [{
					"errors": [{
						"message": "INVALID_CHANNEL",
						"location": {
							"fieldPathElements": [
								{"fieldName": "operations", "index": 1}
							]
						}
					}]
				}]
			}
		}`
		var resp mutateResponse
		require.NoError(t, json.Unmarshal([]byte(payload), &resp))

		rejected := resp.rejectedByIndex(channelIDs)
		require.Len(t, rejected, 1)
		assert.Equal(t, "INVALID_CHANNEL", rejected["yt-2"])
	})

	t.Run("unindexed error keyed under star", func(t *testing.T) {
		payload := `{
			"partialFailureError": {
				"message": "partial failure",
				"details": [{
					"errors": [{"message": "SOMETHING_ELSE", "location": {}}]
				}]
			}
		}`
		var resp mutateResponse
		require.NoError(t, json.Unmarshal([]byte(payload), &resp))

		rejected := resp.rejectedByIndex(channelIDs)
		assert.Equal(t, "SOMETHING_ELSE", rejected["*"])
	})

	t.Run("failure without details still surfaces", func(t *testing.T) {
		payload := `{"partialFailureError": {"message": "opaque failure"}}`
		var resp mutateResponse
		require.NoError(t, json.Unmarshal([]byte(payload), &resp))

		rejected := resp.rejectedByIndex(channelIDs)
		assert.Equal(t, "opaque failure", rejected["*"])
	})
}
