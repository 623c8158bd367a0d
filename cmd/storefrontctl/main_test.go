package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEndpoint(t *testing.T, data map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		for marker, payload := range data {
			if strings.Contains(body.Query, marker) {
				_, _ = w.Write([]byte(`{"data":` + payload + `}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"data":null}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestProductsCommand(t *testing.T) {
	srv := fakeEndpoint(t, map[string]string{
		"GetProducts": `{"products":{"nodes":[{"id":"cHJvZHVjdDo3","name":"Blue Bike","slug":"blue-bike","price":"<bdi>$1,299.00</bdi>"}],
			"pageInfo":{"hasNextPage":true,"endCursor":"YXJyYXk6MTE="}}}`,
	})

	out, err := run(t, "products", "-g", srv.URL, "--category", "bikes")
	require.NoError(t, err)
	assert.Contains(t, out, "blue-bike")
	assert.Contains(t, out, "$1299.00")
	assert.Contains(t, out, "next: --after YXJyYXk6MTE=")
}

func TestProductCommandNotFound(t *testing.T) {
	srv := fakeEndpoint(t, map[string]string{"GetProductBySlug": `{"product":null}`})

	_, err := run(t, "product", "ghost", "-g", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost" not found`)
}

func TestCheckoutDataCommandRejectsBadID(t *testing.T) {
	srv := fakeEndpoint(t, nil)

	_, err := run(t, "checkout-data", "-g", srv.URL, "--add", "not-an-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-id")
}
