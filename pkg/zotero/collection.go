package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/bluele/gcache"
)

type CollectionData struct {
	Key              string       `json:"key"`
	Name             string       `json:"name"`
	Version          int64        `json:"version"`
	Relations        RelationList `json:"relations"`
	ParentCollection Parent       `json:"parentCollection,omitempty"`
}

type CollectionMeta struct {
	NumCollections int64 `json:"numCollections"`
	NumItems       int64 `json:"numItems"`
}

type Collection struct {
	Key     string         `json:"key"`
	Version int64          `json:"version"`
	Library Library        `json:"library,omitempty"`
	Links   interface{}    `json:"links,omitempty"`
	Meta    CollectionMeta `json:"meta,omitempty"`
	Data    CollectionData `json:"data,omitempty"`
}

// Collections loads all collections of the library.
func (zot *Zotero) Collections(ctx context.Context) ([]Collection, error) {
	endpoint := fmt.Sprintf("/%s/collections", zot.LibraryPath())
	if tmp, err := zot.items.Get(endpoint); err == nil {
		if colls, ok := tmp.([]Collection); ok {
			return colls, nil
		}
	} else if err != gcache.KeyNotFoundError {
		return nil, errors.Wrapf(err, "cannot read cache for %s", endpoint)
	}
	result := []Collection{}
	start := int64(0)
	for {
		params := url.Values{}
		params.Set("format", "json")
		params.Set("limit", strconv.FormatInt(zot.pageSize, 10))
		params.Set("start", strconv.FormatInt(start, 10))
		resp, err := zot.get(ctx, endpoint, params)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot load collections from %s", endpoint)
		}
		rawBody := resp.Body()
		colls := []Collection{}
		if err := json.Unmarshal(rawBody, &colls); err != nil {
			return nil, errors.Wrapf(err, "cannot unmarshal %s", string(rawBody))
		}
		result = append(result, colls...)
		total, err := strconv.ParseInt(resp.Header().Get("Total-Results"), 10, 64)
		if err != nil {
			break
		}
		start += int64(len(colls))
		if len(colls) == 0 || start >= total {
			break
		}
	}
	if err := zot.items.Set(endpoint, result); err != nil {
		zot.Logger.Warningf("cannot cache %s: %v", endpoint, err)
	}
	return result, nil
}

// CollectionPath is the slash separated name of the collection and its parents.
func CollectionPath(colls []Collection, key string) string {
	byKey := map[string]*Collection{}
	for i := range colls {
		byKey[colls[i].Key] = &colls[i]
	}
	parts := []string{}
	// parents can't loop in zotero, the bound is for broken data
	for i := 0; key != "" && i < len(colls); i++ {
		coll, ok := byKey[key]
		if !ok {
			break
		}
		parts = append([]string{coll.Data.Name}, parts...)
		key = string(coll.Data.ParentCollection)
	}
	return strings.Join(parts, "/")
}

// FindCollection resolves a collection key, name or slash separated path to
// the collection key. Names are compared case insensitive.
func (zot *Zotero) FindCollection(ctx context.Context, nameOrKey string) (string, error) {
	colls, err := zot.Collections(ctx)
	if err != nil {
		return "", err
	}
	if IsKey(nameOrKey) {
		for _, coll := range colls {
			if coll.Key == nameOrKey {
				return coll.Key, nil
			}
		}
	}
	found := []string{}
	for _, coll := range colls {
		if strings.EqualFold(coll.Data.Name, nameOrKey) || strings.EqualFold(CollectionPath(colls, coll.Key), nameOrKey) {
			found = append(found, coll.Key)
		}
	}
	switch len(found) {
	case 0:
		return "", errors.Wrapf(ErrNotFound, "collection %s", nameOrKey)
	case 1:
		return found[0], nil
	}
	return "", errors.Errorf("collection name %s is not unique, use the path or one of %s", nameOrKey, strings.Join(found, ", "))
}

// ResolveQuery replaces a collection name in the query by its key.
func (zot *Zotero) ResolveQuery(ctx context.Context, query ItemQuery) (ItemQuery, error) {
	if query.Collection == "" {
		return query, nil
	}
	key, err := zot.FindCollection(ctx, query.Collection)
	if err != nil {
		return query, err
	}
	query.Collection = key
	return query, nil
}
