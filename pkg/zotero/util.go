package zotero

import (
	"regexp"
)

// zotero keys are 8 characters without the ambiguous ones
// https://github.com/zotero/dataserver/blob/master/model/DataObjectUtilities.inc.php#L63
var keyRegexp = regexp.MustCompile(`^[23456789ABCDEFGHIJKLMNPQRSTUVWXYZ]{8}$`)

func IsKey(key string) bool {
	return keyRegexp.MatchString(key)
}
