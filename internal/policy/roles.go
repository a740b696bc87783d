// internal/policy/roles.go
package policy

import (
	"github.com/genzdict/battlegate/internal/document"
)

// Role is the caller's relationship to a target document.
type Role int

const (
	// RoleStranger is the fail-closed default: anonymous callers, callers
	// unrelated to the document, and documents whose identity fields are
	// missing or unreadable all resolve to stranger.
	RoleStranger Role = iota
	RoleOwner
	RoleHost
	RoleGuest
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	}
	return "stranger"
}

// Participant reports whether the role is host or guest.
func (r Role) Participant() bool {
	return r == RoleHost || r == RoleGuest
}

// ResolveRole determines the caller's role for a document. Ownership comes
// from the path's leading user key; host/guest come from the document's
// identity fields, preferring the committed document over the proposal so a
// caller cannot claim a role by writing it. Pure lookup, never errors.
func ResolveRole(caller string, path document.Path, existing, proposed document.Doc) Role {
	if caller == "" {
		return RoleStranger
	}
	if path.OwnerID != "" && path.OwnerID == caller {
		return RoleOwner
	}

	doc := existing
	if doc == nil {
		doc = proposed
	}
	if doc == nil {
		return RoleStranger
	}
	if host, ok := doc.String("hostId"); ok && host != "" && host == caller {
		return RoleHost
	}
	if guest, ok := doc.String("guestId"); ok && guest != "" && guest == caller {
		return RoleGuest
	}
	return RoleStranger
}
