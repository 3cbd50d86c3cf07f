package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"emperror.dev/errors"
	"github.com/bluele/gcache"
)

type QMode string

const (
	QModeTitleCreatorYear QMode = "titleCreatorYear"
	QModeEverything       QMode = "everything"
)

// ItemQuery mirrors the search parameters of the zotero items endpoint.
type ItemQuery struct {
	Q          string
	QMode      QMode
	Tag        []string
	ItemType   string
	Collection string
	// Top restricts the result to top level items (no notes or attachments)
	Top bool
	// Limit stops paging after this many items, 0 means all
	Limit int64
}

func (q ItemQuery) endpoint(libraryPath string) string {
	endpoint := fmt.Sprintf("/%s", libraryPath)
	if q.Collection != "" {
		endpoint += fmt.Sprintf("/collections/%s", q.Collection)
	}
	endpoint += "/items"
	if q.Top {
		endpoint += "/top"
	}
	return endpoint
}

func (q ItemQuery) values() url.Values {
	params := url.Values{}
	params.Set("format", "json")
	if q.Q != "" {
		params.Set("q", q.Q)
		if q.QMode != "" {
			params.Set("qmode", string(q.QMode))
		}
	}
	for _, tag := range q.Tag {
		params.Add("tag", tag)
	}
	if q.ItemType != "" {
		params.Set("itemType", q.ItemType)
	}
	return params
}

func (q ItemQuery) String() string {
	return fmt.Sprintf("%s?%s&max=%v", q.endpoint(""), q.values().Encode(), q.Limit)
}

// Items loads all items matching the query, page by page.
// Results are cached per query until the cache expires.
func (zot *Zotero) Items(ctx context.Context, query ItemQuery) ([]Item, error) {
	endpoint := query.endpoint(zot.LibraryPath())
	cacheKey := endpoint + "?" + query.String()
	if tmp, err := zot.items.Get(cacheKey); err == nil {
		if items, ok := tmp.([]Item); ok {
			zot.Logger.Debugf("cache hit: %s", cacheKey)
			return items, nil
		}
	} else if err != gcache.KeyNotFoundError {
		return nil, errors.Wrapf(err, "cannot read cache for %s", cacheKey)
	}

	result, err := zot.fetch(ctx, endpoint, query.values(), query.Limit)
	if err != nil {
		return nil, err
	}
	if err := zot.items.Set(cacheKey, result); err != nil {
		zot.Logger.Warningf("cannot cache %s: %v", cacheKey, err)
	}
	return result, nil
}

// Item loads a single item by key.
func (zot *Zotero) Item(ctx context.Context, key string) (*Item, error) {
	endpoint := fmt.Sprintf("/%s/items/%s", zot.LibraryPath(), key)
	resp, err := zot.get(ctx, endpoint, url.Values{"format": []string{"json"}})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load item %s", key)
	}
	rawBody := resp.Body()
	item := &Item{}
	if err := json.Unmarshal(rawBody, item); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal %s", string(rawBody))
	}
	return item, nil
}

// Children loads notes and attachments of an item, oldest first.
func (zot *Zotero) Children(ctx context.Context, key string) ([]Item, error) {
	endpoint := fmt.Sprintf("/%s/items/%s/children", zot.LibraryPath(), key)
	items, err := zot.fetch(ctx, endpoint, url.Values{"format": []string{"json"}}, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load children of %s", key)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Data.DateAdded < items[j].Data.DateAdded
	})
	return items, nil
}

// fetch pages through a list endpoint until Total-Results items are loaded.
// maxItems > 0 stops after maxItems.
func (zot *Zotero) fetch(ctx context.Context, endpoint string, params url.Values, maxItems int64) ([]Item, error) {
	result := []Item{}
	start := int64(0)
	limit := zot.pageSize
	for {
		if maxItems > 0 && maxItems-start < limit {
			limit = maxItems - start
		}
		params.Set("limit", strconv.FormatInt(limit, 10))
		params.Set("start", strconv.FormatInt(start, 10))
		resp, err := zot.get(ctx, endpoint, params)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot load items from %s", endpoint)
		}
		rawBody := resp.Body()
		items := []Item{}
		if err := json.Unmarshal(rawBody, &items); err != nil {
			return nil, errors.Wrapf(err, "cannot unmarshal %s", string(rawBody))
		}
		result = append(result, items...)

		totalStr := resp.Header().Get("Total-Results")
		total, err := strconv.ParseInt(totalStr, 10, 64)
		if err != nil {
			// no paging information, single page
			break
		}
		start += int64(len(items))
		if len(items) == 0 || start >= total {
			break
		}
		if maxItems > 0 && start >= maxItems {
			break
		}
	}
	return result, nil
}

// Purge drops all memoized item lists.
func (zot *Zotero) Purge() {
	zot.items.Purge()
}
