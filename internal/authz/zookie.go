package authz

import (
	"encoding/base64"
	"strconv"
	"strings"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// Zookie is the opaque consistency token write() returns (spec §4.C):
// presenting it to a later check/read-at guarantees that check observes at
// least the state as of that write (monotonic reads).
type Zookie string

// zookieVersion is the store's monotonically increasing write counter a
// Zookie encodes; one counter is shared by all tenants. The Postgres store
// backs this with a sequence; the in-memory store with a mutex-guarded
// counter.
type zookieVersion int64

func encodeZookie(tenantID string, v zookieVersion) Zookie {
	raw := tenantID + ":" + strconv.FormatInt(int64(v), 10)
	return Zookie(base64.RawURLEncoding.EncodeToString([]byte(raw)))
}

// decodeZookie extracts the tenant and version a Zookie was minted for. An
// empty Zookie decodes to version 0, meaning "no monotonic floor" — the
// evaluator may observe any consistent state.
func decodeZookie(z Zookie) (tenantID string, v zookieVersion, err error) {
	if z == "" {
		return "", 0, nil
	}

	raw, decodeErr := base64.RawURLEncoding.DecodeString(string(z))
	if decodeErr != nil {
		return "", 0, rcerrors.Validation("authz.malformed_zookie", nil, "zookie is not valid base64")
	}

	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return "", 0, rcerrors.Validation("authz.malformed_zookie", nil, "zookie has an unexpected shape")
	}

	n, parseErr := strconv.ParseInt(parts[1], 10, 64)
	if parseErr != nil {
		return "", 0, rcerrors.Validation("authz.malformed_zookie", nil, "zookie version is not numeric")
	}

	return parts[0], zookieVersion(n), nil
}
