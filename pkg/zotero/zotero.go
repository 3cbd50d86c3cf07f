package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/bluele/gcache"
	"github.com/op/go-logging"
	"gopkg.in/resty.v1"
)

const DefaultEndpoint = "https://api.zotero.org"

const maxRetries = 5

var (
	ErrNotFound  = errors.NewPlain("not found")
	ErrForbidden = errors.NewPlain("access denied")
)

type LibraryType string

const (
	LibraryUser  LibraryType = "user"
	LibraryGroup LibraryType = "group"
)

type Zotero struct {
	baseUrl     *url.URL
	apiKey      string
	libraryType LibraryType
	libraryId   string
	pageSize    int64
	client      *resty.Client
	items       gcache.Cache
	Logger      *logging.Logger
	CurrentKey  *ApiKey
	sleep       func(ctx context.Context, d time.Duration) error
}

type Library struct {
	Type  string      `json:"type"`
	Id    int64       `json:"id"`
	Name  string      `json:"name"`
	Links interface{} `json:"links"`
}

// Relations are empty array or string map
type RelationList map[string]ZoteroStringList

func (rl *RelationList) UnmarshalJSON(data []byte) error {
	var i interface{}
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	switch d := i.(type) {
	case map[string]interface{}:
		*rl = RelationList{}
		for key := range d {
			var list ZoteroStringList
			raw, _ := json.Marshal(d[key])
			if err := list.UnmarshalJSON(raw); err != nil {
				return errors.Wrapf(err, "invalid relation %s", key)
			}
			(*rl)[key] = list
		}
	case []interface{}:
		if len(d) > 0 {
			return errors.Errorf("invalid object list for type RelationList - %s", string(data))
		}
		*rl = RelationList{}
	}
	return nil
}

// zotero returns single item lists as string
type ZoteroStringList []string

func (irl *ZoteroStringList) UnmarshalJSON(data []byte) error {
	var i interface{}
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	switch v := i.(type) {
	case string:
		*irl = ZoteroStringList{v}
	case []interface{}:
		*irl = ZoteroStringList{}
		for _, i2 := range v {
			str, ok := i2.(string)
			if !ok {
				return errors.Errorf("invalid type %T for %v", i2, i2)
			}
			*irl = append(*irl, str)
		}
	default:
		return errors.Errorf("invalid type %T for %v", i, string(data))
	}
	return nil
}

// zotero treats empty strings as false in parentItem
type Parent string

func (pc *Parent) UnmarshalJSON(data []byte) error {
	var i interface{}
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	switch v := i.(type) {
	case bool:
		*pc = ""
	case string:
		*pc = Parent(v)
	case nil:
		*pc = ""
	default:
		return errors.Errorf("invalid no string for %v", string(data))
	}
	return nil
}

func NewZotero(baseUrl string, apiKey string, libraryType LibraryType, libraryId string, cacheExpiration time.Duration, pageSize int64, logger *logging.Logger) (*Zotero, error) {
	if baseUrl == "" {
		baseUrl = DefaultEndpoint
	}
	burl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create url from %s", baseUrl)
	}
	switch libraryType {
	case LibraryUser, LibraryGroup:
	case "":
		libraryType = LibraryUser
	default:
		return nil, errors.Errorf("invalid library type %s", libraryType)
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	if cacheExpiration <= 0 {
		cacheExpiration = 10 * time.Minute
	}
	zot := &Zotero{
		baseUrl:     burl,
		apiKey:      apiKey,
		libraryType: libraryType,
		libraryId:   libraryId,
		pageSize:    pageSize,
		Logger:      logger,
		sleep:       sleepContext,
	}
	zot.client = resty.New()
	zot.client.SetHostURL(strings.TrimRight(zot.baseUrl.String(), "/"))
	if apiKey != "" {
		zot.client.SetHeader("Zotero-API-Key", apiKey)
	}
	zot.client.SetHeader("Zotero-API-Version", "3")
	zot.client.SetHeader("Accept", "application/json")
	zot.client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(3))
	zot.client.SetTimeout(60 * time.Second)
	zot.items = gcache.New(64).
		ARC().
		Expiration(cacheExpiration).
		Build()
	return zot, nil
}

// Init checks the api key and resolves the library id if none was configured.
// Without an api key only public libraries with a configured id are readable.
func (zot *Zotero) Init(ctx context.Context) error {
	if zot.libraryId == "" && zot.libraryType != LibraryUser {
		return errors.New("group library needs an explicit library id")
	}
	if zot.apiKey == "" {
		if zot.libraryId == "" {
			return errors.New("user library needs an api key or an explicit library id")
		}
		zot.Logger.Infof("no api key, reading public library %s", zot.LibraryPath())
		return nil
	}
	key, err := zot.GetCurrentKey(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot check api key")
	}
	zot.CurrentKey = key
	if zot.libraryId == "" {
		zot.libraryId = strconv.FormatInt(key.UserId, 10)
		zot.Logger.Infof("using library of user %s (#%v)", key.Username, key.UserId)
	}
	if !key.CanReadNotes(zot.libraryType, zot.libraryId) {
		return errors.Wrapf(ErrForbidden, "api key of %s cannot read notes of %s", key.Username, zot.LibraryPath())
	}
	return nil
}

// LibraryPath is the url prefix of the library, e.g. users/475425
func (zot *Zotero) LibraryPath() string {
	return fmt.Sprintf("%ss/%s", zot.libraryType, zot.libraryId)
}

func (zot *Zotero) LibraryType() LibraryType { return zot.libraryType }

func (zot *Zotero) LibraryId() string { return zot.libraryId }

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func headerSeconds(header http.Header, name string) int64 {
	str := header.Get(name)
	if str == "" {
		return 0
	}
	secs, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0
	}
	return secs
}

/*
*
Clients accessing the Zotero API should be prepared to handle two forms of rate limiting: backoff requests and hard limiting.
If the API servers are overloaded, the API may include a Backoff: <seconds> HTTP header in responses, indicating that the client should perform the minimum number of requests necessary to maintain data consistency and then refrain from making further requests for the number of seconds indicated. Backoff can be included in any response, including successful ones.
If a client has made too many requests within a given time period, the API may return 429 Too Many Requests with a Retry-After: <seconds> header. Clients receiving a 429 should wait the number of seconds indicated in the header before retrying the request.
Retry-After can also be included with 503 Service Unavailable responses when the server is undergoing maintenance.
*/
func (zot *Zotero) CheckRetry(ctx context.Context, header http.Header) (bool, error) {
	retryAfter := headerSeconds(header, "Retry-After")
	if retryAfter > 0 {
		zot.Logger.Infof("Sleeping %v seconds (RetryAfter)", retryAfter)
		if err := zot.sleep(ctx, time.Duration(retryAfter)*time.Second); err != nil {
			return false, err
		}
	}
	return retryAfter > 0, nil
}

func (zot *Zotero) CheckBackoff(ctx context.Context, header http.Header) (bool, error) {
	backoff := headerSeconds(header, "Backoff")
	if backoff > 0 {
		zot.Logger.Infof("Sleeping %v seconds (Backoff)", backoff)
		if err := zot.sleep(ctx, time.Duration(backoff)*time.Second); err != nil {
			return false, err
		}
	}
	return backoff > 0, nil
}

// get executes a GET request, retrying as long as the server asks for it.
func (zot *Zotero) get(ctx context.Context, endpoint string, params url.Values) (*resty.Response, error) {
	zot.Logger.Infof("rest call: %s %s", endpoint, params.Encode())
	var resp *resty.Response
	var err error
	for try := 0; ; try++ {
		call := zot.client.R().SetContext(ctx)
		for name, values := range params {
			for _, value := range values {
				call.QueryParam.Add(name, value)
			}
		}
		resp, err = call.Get(endpoint)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot execute rest call to %s", endpoint)
		}
		retry, err := zot.CheckRetry(ctx, resp.Header())
		if err != nil {
			return nil, errors.Wrapf(err, "interrupted while waiting for %s", endpoint)
		}
		if !retry {
			break
		}
		if try >= maxRetries {
			return nil, errors.Errorf("giving up on %s after %v retries", endpoint, try)
		}
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, errors.Wrapf(ErrNotFound, "rest call %s", endpoint)
	case resp.StatusCode() == http.StatusForbidden:
		return nil, errors.Wrapf(ErrForbidden, "rest call %s", endpoint)
	case resp.StatusCode() >= 300:
		return nil, errors.Errorf("rest call %s failed with status %s: %s", endpoint, resp.Status(), string(resp.Body()))
	}
	if _, err := zot.CheckBackoff(ctx, resp.Header()); err != nil {
		return nil, errors.Wrapf(err, "interrupted while backing off after %s", endpoint)
	}
	return resp, nil
}
