package connector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*OCRClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOCRClient(resty.New(), OCROptions{
		APIKey:   "test-key",
		Endpoint: server.URL + "/parse/image",
		Rate:     1000,
		Burst:    100,
	}), server
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestRecognize(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/parse/image", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		body, err := io.ReadAll(file)
		assert.NoError(t, err)
		assert.Equal(t, "sticker-bytes", string(body))
		assert.Equal(t, "s1.webp", header.Filename)
		assert.Equal(t, "image/webp", header.Header.Get("Content-Type"))
		assert.Equal(t, "eng", r.FormValue("language"))

		writeJSON(w, map[string]interface{}{
			"ParsedResults": []map[string]interface{}{
				{"ParsedText": "GOOD\r\nMORNING \r\n"},
				{"ParsedText": ""},
			},
			"OCRExitCode":           1,
			"IsErroredOnProcessing": false,
		})
	})

	text, err := client.Recognize(context.Background(), strings.NewReader("sticker-bytes"), "s1.webp", "webp")
	require.NoError(t, err)
	assert.Equal(t, "GOOD MORNING", text)
}

func TestRecognize_ProcessingError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"IsErroredOnProcessing": true,
			"ErrorMessage":          []string{"Unable to recognize the file type"},
		})
	})

	_, err := client.Recognize(context.Background(), strings.NewReader("x"), "s1.webp", "webp")
	assert.ErrorIs(t, err, ErrProcessing)
}

func TestRecognize_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	})

	for i := 0; i < 5; i++ {
		_, err := client.Recognize(context.Background(), strings.NewReader("x"), "s1.webp", "webp")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := client.Recognize(context.Background(), strings.NewReader("x"), "s1.webp", "webp")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
}

func TestRecognize_CancelledWhileRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{})
	}))
	t.Cleanup(server.Close)
	client := NewOCRClient(resty.New(), OCROptions{Endpoint: server.URL, Rate: 0.001, Burst: 1})

	_, err := client.Recognize(context.Background(), strings.NewReader("x"), "a.png", "png")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Recognize(ctx, strings.NewReader("x"), "a.png", "png")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/webp", contentType("WEBP"))
	assert.Equal(t, "image/jpeg", contentType("jpg"))
	assert.Equal(t, "video/webm", contentType("webm"))
	assert.Equal(t, "application/octet-stream", contentType("tgs"))
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(server.Close)

	body, err := Download(context.Background(), resty.New(), server.URL+"/file.webp")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))

	_, err = Download(context.Background(), resty.New(), server.URL+"/missing")
	assert.Error(t, err)
}
