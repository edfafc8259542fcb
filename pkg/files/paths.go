package files

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

const maxFileNameLength = 200

// ObjectPath builds org/{orgID}/{domain}/{entityID}/{unixMillis}_{name}
func ObjectPath(orgID string, domain Domain, entityID, fileName string, at time.Time) string {
	return fmt.Sprintf("org/%s/%s/%s/%d_%s", orgID, domain, entityID, at.UnixMilli(), SanitizeFileName(fileName))
}

// OrgPrefix is the storage prefix owned by orgID
func OrgPrefix(orgID string) string {
	return "org/" + orgID + "/"
}

// SanitizeFileName strips directories and keeps only characters that are safe
// in an object key
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxFileNameLength {
		out = out[len(out)-maxFileNameLength:]
	}
	if out == "" {
		return "file"
	}
	return out
}

// CheckOrgPath returns Forbidden unless storagePath lies under orgID's prefix
func CheckOrgPath(orgID, storagePath string) error {
	if orgID == "" || !strings.HasPrefix(storagePath, OrgPrefix(orgID)) {
		return apperr.Forbidden("storage path does not belong to your organization")
	}
	for _, seg := range strings.Split(storagePath, "/") {
		if seg == ".." || seg == "." {
			return apperr.Forbidden("storage path does not belong to your organization")
		}
	}
	return nil
}
