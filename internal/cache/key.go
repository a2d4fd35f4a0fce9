package cache

import (
	"net/url"
	"strconv"
	"strings"

	"carvalue-api/internal/model"
)

const keyPrefix = "valuation:v1:"

// SignatureKey encodes the comparability signature of q. Each field is
// escaped before joining, so separators inside make or model cannot make
// two distinct signatures share a key. The excluded external id is not
// part of the signature.
func SignatureKey(q model.ComparableQuery) string {
	fields := []string{
		strings.ToLower(strings.TrimSpace(q.Make)),
		strings.ToLower(strings.TrimSpace(q.Model)),
		string(q.Condition),
		strconv.FormatInt(q.MinMileage, 10),
		strconv.FormatInt(q.MaxMileage, 10),
		strconv.Itoa(q.MinYear),
		strconv.Itoa(q.MaxYear),
	}
	for i, f := range fields {
		fields[i] = url.QueryEscape(f)
	}
	return keyPrefix + strings.Join(fields, ":")
}
