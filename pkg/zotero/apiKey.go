package zotero

import (
	"context"
	"encoding/json"

	"emperror.dev/errors"
)

type AccessElements struct {
	Library bool `json:"library,omitempty"`
	Files   bool `json:"files,omitempty"`
	Notes   bool `json:"notes,omitempty"`
	Write   bool `json:"write,omitempty"`
}

type Access struct {
	User   AccessElements            `json:"user,omitempty"`
	Groups map[string]AccessElements `json:"groups,omitempty"`
}

type ApiKey struct {
	Key      string `json:"key"`
	UserId   int64  `json:"userID"`
	Username string `json:"username"`
	Access   Access `json:"access"`
}

// CanReadNotes reports whether the key grants note access to the user library
// or to all groups.
func (key *ApiKey) CanReadNotes(libraryType LibraryType, libraryId string) bool {
	switch libraryType {
	case LibraryUser:
		return key.Access.User.Notes
	case LibraryGroup:
		if elem, ok := key.Access.Groups[libraryId]; ok {
			return elem.Library
		}
		if elem, ok := key.Access.Groups["all"]; ok {
			return elem.Library
		}
	}
	return false
}

func (zot *Zotero) GetCurrentKey(ctx context.Context) (*ApiKey, error) {
	endpoint := "/keys/current"
	resp, err := zot.get(ctx, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot get current key from %s", endpoint)
	}
	rawBody := resp.Body()
	key := &ApiKey{}
	if err := json.Unmarshal(rawBody, key); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal %s", string(rawBody))
	}
	return key, nil
}
