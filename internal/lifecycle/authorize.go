package lifecycle

import (
	"fmt"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
)

// ActingUser is the console operator performing an operation.
type ActingUser struct {
	ID   string          `json:"id"`
	Role types.ActorRole `json:"role"`
}

// Action is an operation subject to authorization.
type Action string

const (
	ActionView       Action = "view"
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
	ActionExtend     Action = "extend_subscription"
	ActionGrant      Action = "grant_access"
	ActionRevoke     Action = "revoke_access"
	ActionAddMember  Action = "add_member"
	ActionEdit       Action = "edit"
	ActionTransfer   Action = "transfer_ownership"
)

// Operator role permissions
var permissions = map[types.ActorRole]map[Action]bool{
	types.ActorSuperAdmin: {
		ActionView: true, ActionActivate: true, ActionDeactivate: true, ActionExtend: true,
		ActionGrant: true, ActionRevoke: true, ActionAddMember: true, ActionEdit: true, ActionTransfer: true,
	},
	types.ActorDeveloper: {
		ActionView: true, ActionExtend: true, ActionGrant: true, ActionRevoke: true,
		ActionAddMember: true, ActionEdit: true,
	},
	types.ActorSupport: {
		ActionView: true,
	},
}

// Authorize is a pure check of what an operator role may do.
func Authorize(u ActingUser, a Action) error {
	if u.ID == "" {
		return fmt.Errorf("%w: no acting user", apperr.ErrForbidden)
	}
	if !permissions[u.Role][a] {
		return fmt.Errorf("%w: role %q may not %s", apperr.ErrForbidden, u.Role, a)
	}
	return nil
}

// Can is Authorize as a boolean, for deciding which actions to offer.
func Can(u ActingUser, a Action) bool {
	return Authorize(u, a) == nil
}
