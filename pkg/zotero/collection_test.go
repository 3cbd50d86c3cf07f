package zotero

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectionsHandler(t *testing.T, calls *int32) http.Handler {
	data, err := os.ReadFile("testdata/collections.json")
	require.NoError(t, err)
	colls := []Collection{}
	require.NoError(t, json.Unmarshal(data, &colls))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/users/475425/collections", r.URL.Path)
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := start + limit
		if end > len(colls) {
			end = len(colls)
		}
		w.Header().Set("Total-Results", strconv.Itoa(len(colls)))
		json.NewEncoder(w).Encode(colls[start:end])
	})
}

func TestCollections(t *testing.T) {
	var calls int32
	zot := newTestZotero(t, collectionsHandler(t, &calls))
	colls, err := zot.Collections(context.Background())
	require.NoError(t, err)
	require.Len(t, colls, 5)
	// page size 2
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, "Research/Machine Learning", CollectionPath(colls, "MLMX6789"))
	assert.Equal(t, "Reading List", CollectionPath(colls, "READ2345"))
	assert.Equal(t, "", CollectionPath(colls, "NONE2345"))

	_, err = zot.Collections(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFindCollection(t *testing.T) {
	var calls int32
	zot := newTestZotero(t, collectionsHandler(t, &calls))
	ctx := context.Background()

	for input, want := range map[string]string{
		"READ2345":                  "READ2345",
		"reading list":              "READ2345",
		"Research/Machine Learning": "MLMX6789",
		"teaching/machine learning": "MLTE6789",
	} {
		key, err := zot.FindCollection(ctx, input)
		require.NoError(t, err, input)
		assert.Equal(t, want, key, input)
	}

	_, err := zot.FindCollection(ctx, "Machine Learning")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MLMX6789")

	_, err = zot.FindCollection(ctx, "Cooking")
	assert.ErrorIs(t, err, ErrNotFound)

	query, err := zot.ResolveQuery(ctx, ItemQuery{Q: "x", Collection: "Reading List"})
	require.NoError(t, err)
	assert.Equal(t, "READ2345", query.Collection)
	assert.Equal(t, "/users/475425/collections/READ2345/items", query.endpoint(zot.LibraryPath()))
}

func TestIsKey(t *testing.T) {
	assert.True(t, IsKey("ABCD2345"))
	assert.False(t, IsKey("ABCD234"))
	assert.False(t, IsKey("abcd2345"))
	assert.False(t, IsKey("NOTE0001"))
}
