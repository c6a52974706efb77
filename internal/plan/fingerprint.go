package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"

	"github.com/kestrelauth/flowengine/internal/policy"
)

// Prefix returns the cache key prefix owned by one flow. Every cache
// entry for the flow carries it as a literal prefix, which is what makes
// prefix-based bulk invalidation possible.
func Prefix(keyPrefix string, flowID uuid.UUID) string {
	return keyPrefix + ":" + flowID.String()
}

// Fingerprint derives the deterministic cache key for one flow/request
// combination: the flow prefix, then a hash over the whitelisted request
// attributes. Only the principal identity, group set, impersonation
// marker, and the configured attribute whitelist feed the hash — never
// raw secrets and never unlisted attributes.
func Fingerprint(keyPrefix string, flowID uuid.UUID, req *policy.Request, attrKeys []string) string {
	h := sha256.New()

	if req != nil {
		_, _ = io.WriteString(h, req.Principal.ID)
		_, _ = io.WriteString(h, "\x00")

		groups := append([]string(nil), req.Principal.Groups...)
		sort.Strings(groups)
		for _, g := range groups {
			_, _ = io.WriteString(h, g)
			_, _ = io.WriteString(h, "\x00")
		}

		if req.Impersonated {
			_, _ = io.WriteString(h, "impersonated\x00")
		}

		keys := append([]string(nil), attrKeys...)
		sort.Strings(keys)
		for _, k := range keys {
			v, ok := req.Attributes[k]
			if !ok {
				continue
			}
			// The dynamic type is part of the encoding so string
			// "true" and bool true never hash to the same entry.
			fmt.Fprintf(h, "%s=%T:%v\x00", k, v, v)
		}
	}

	return Prefix(keyPrefix, flowID) + "#" + hex.EncodeToString(h.Sum(nil))
}
