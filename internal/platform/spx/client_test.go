package spx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retcode": 1, "message": "not found"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, 2*time.Second).Track(context.Background(), "spxvn000")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Records)
}

func TestTrackFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		// Codes are normalized to upper case before they go upstream.
		assert.Equal(t, "SPXVN05805112503C", payload["tracking_id"])

		_, _ = w.Write([]byte(`{
			"retcode": 0,
			"data": {"sls_tracking_info": {"records": [
				{"actual_time": 1748600000, "buyer_description": "Shipper 0912345678 đang giao", "current_location": {"location_name": "HN Hub"}},
				{"actual_time": 1748500000, "buyer_description": "Đã đến kho", "current_location": {"location_name": "SOC"}}
			]}}
		}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, 2*time.Second).Track(context.Background(), "spxvn05805112503c")
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Len(t, res.Records, 2)
	assert.Equal(t, int64(1748600000), res.Records[0].ActualTime)
	assert.Equal(t, "HN Hub", res.Records[0].CurrentLocation.LocationName)
}

func TestTrackMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 2*time.Second).Track(context.Background(), "SPXVN1")
	require.Error(t, err)
}
