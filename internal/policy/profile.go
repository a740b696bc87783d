// internal/policy/profile.go
package policy

import (
	"strings"
)

// profileMutableFields are the only user-profile fields this policy allows a
// write to touch. Profile creation happens at account provisioning through
// the system write path; owner writes here cover display-name changes.
var profileMutableFields = map[string]bool{
	"displayId":      true,
	"displayIdLower": true,
}

func (e *Evaluator) evaluateProfile(req Request) Decision {
	role := ResolveRole(req.Caller, req.Path, req.Existing, req.Proposed)
	if role != RoleOwner {
		return Deny(CauseRoleMismatch, "profile writable only by its owner")
	}

	switch req.Op {
	case OpDelete:
		// Profiles are provisioned externally and never deleted here.
		return Deny(CauseFieldMutation, "profile delete not permitted")
	case OpUpdate:
		for _, key := range changedKeysOf(req) {
			if !profileMutableFields[key] {
				return Deny(CauseFieldMutation, "profile field "+key+" is not writable")
			}
		}
	}

	return checkDisplayID(req)
}

// checkDisplayID enforces that displayIdLower is always the case-folded copy
// of displayId, and that both are written jointly as strings.
func checkDisplayID(req Request) Decision {
	display, ok := req.Proposed.String("displayId")
	if !ok {
		return Deny(CauseFieldMutation, "displayId missing or not a string")
	}
	lower, ok := req.Proposed.String("displayIdLower")
	if !ok {
		return Deny(CauseFieldMutation, "displayIdLower missing or not a string")
	}
	if lower != strings.ToLower(display) {
		return Deny(CauseFieldMutation, "displayIdLower is not the folded displayId")
	}
	return Allow()
}
