package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
)

func TestHTTPCrossEncoder_Score(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req crossEncoderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hồ sơ khai sinh", req.Query)
		require.Len(t, req.Documents, 2)

		_ = json.NewEncoder(w).Encode(crossEncoderResponse{Scores: []float64{0.8, 0.2}})
	}))
	defer server.Close()

	enc := NewHTTPCrossEncoder(server.URL)
	scores, err := enc.Score(context.Background(), "hồ sơ khai sinh", []string{"doc a", "doc b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.8, 0.2}, scores)
}

func TestHTTPCrossEncoder_Errors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewHTTPCrossEncoder(server.URL).Score(context.Background(), "q", []string{"d"})
		require.Error(t, err)
		assert.Equal(t, therrors.CodeRerankerFailed, therrors.GetCode(err))
	})

	t.Run("score count mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(crossEncoderResponse{Scores: []float64{0.5}})
		}))
		defer server.Close()

		_, err := NewHTTPCrossEncoder(server.URL).Score(context.Background(), "q", []string{"d1", "d2"})
		require.Error(t, err)
		assert.Equal(t, therrors.CodeRerankerFailed, therrors.GetCode(err))
	})

	t.Run("unreachable service", func(t *testing.T) {
		_, err := NewHTTPCrossEncoder("http://127.0.0.1:1").Score(context.Background(), "q", []string{"d"})
		require.Error(t, err)
		assert.Equal(t, therrors.CodeRerankerFailed, therrors.GetCode(err))
	})

	t.Run("empty documents short-circuit", func(t *testing.T) {
		scores, err := NewHTTPCrossEncoder("http://127.0.0.1:1").Score(context.Background(), "q", nil)
		require.NoError(t, err)
		assert.Empty(t, scores)
	})
}
