package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeES answers like an elasticsearch node for the handful of calls we make.
func fakeES(t *testing.T, searchResponse string) (*elasticsearch.Client, *[]recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/_search"):
			_, _ = io.WriteString(w, searchResponse)
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"result":"not_found"}`)
		default:
			_, _ = io.WriteString(w, `{"acknowledged":true,"result":"created"}`)
		}
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return es, &reqs
}

func TestIndex_Search(t *testing.T) {
	t.Parallel()

	es, reqs := fakeES(t, `{"hits":{"total":{"value":2},"hits":[
		{"_source":{"id":"p1","name":"Blue Mug","price":12}},
		{"_source":{"id":"p2","name":"Blue Kettle","price":40}}]}}`)
	ix := NewIndex(es, "products")

	total, items, err := ix.Search(context.Background(), "blue", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, "Blue Mug", items[0].Name)
	assert.InDelta(t, 40, items[1].Price, 1e-9)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, "/products/_search", got.Path)

	var q map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.Body), &q))
	mm := q["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "blue", mm["query"])
	assert.Equal(t, "AUTO", mm["fuzziness"])
	assert.EqualValues(t, 10, q["size"])
}

func TestIndex_EnsureIndexCreatesWhenMissing(t *testing.T) {
	t.Parallel()

	es, reqs := fakeES(t, `{}`)
	ix := NewIndex(es, "products")

	require.NoError(t, ix.EnsureIndex(context.Background()))
	require.Len(t, *reqs, 2)
	assert.Equal(t, http.MethodHead, (*reqs)[0].Method)
	assert.Equal(t, http.MethodPut, (*reqs)[1].Method)
	assert.Contains(t, (*reqs)[1].Body, `"mappings"`)
}

func TestIndex_IndexAndDelete(t *testing.T) {
	t.Parallel()

	es, reqs := fakeES(t, `{}`)
	ix := NewIndex(es, "products")
	ctx := context.Background()

	require.NoError(t, ix.IndexProduct(ctx, models.Product{ID: "p1", Name: "Mug", Price: 3}))
	require.NoError(t, ix.DeleteProduct(ctx, "p1"), "missing documents are not an error")

	require.Len(t, *reqs, 2)
	assert.Equal(t, "/products/_doc/p1", (*reqs)[0].Path)
	assert.Contains(t, (*reqs)[0].Body, `"name":"Mug"`)
	assert.Equal(t, http.MethodDelete, (*reqs)[1].Method)
}

func TestIndex_Elasticsearch(t *testing.T) {
	url := os.Getenv("ES_TEST_URL")
	if url == "" {
		t.Skip("ES_TEST_URL not set")
	}

	ctx := context.Background()
	es, err := NewClient(ctx, url, os.Getenv("ES_TEST_USER"), os.Getenv("ES_TEST_PASSWORD"))
	require.NoError(t, err)

	ix := NewIndex(es, "storefront_test_"+uuid.NewString()[:8])
	require.NoError(t, ix.EnsureIndex(ctx))
	t.Cleanup(func() {
		res, err := es.Indices.Delete([]string{ix.Name})
		if err == nil {
			res.Body.Close()
		}
	})

	require.NoError(t, ix.IndexProduct(ctx, models.Product{ID: "p1", Name: "Ceramic Mug", Description: "Holds coffee", Price: 9}))
	res, err := es.Indices.Refresh(es.Indices.Refresh.WithIndex(ix.Name))
	require.NoError(t, err)
	res.Body.Close()

	total, items, err := ix.Search(ctx, "ceramc", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ID)
}
