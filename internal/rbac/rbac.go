package rbac

// Role is a profile's account type.
type Role string
type Action string

const (
	RoleClient       Role = "client"
	RoleProducer     Role = "producer"
	RoleRightsHolder Role = "rights_holder"
	RoleAdmin        Role = "admin"
)

const (
	ActionProposeSync     Action = "propose_sync"
	ActionPostBrief       Action = "post_brief"
	ActionSubmitTrack     Action = "submit_track"
	ActionNegotiate       Action = "negotiate"
	ActionViewAll         Action = "view_all"
	ActionManageCatalog   Action = "manage_catalog"
	ActionManageDiscounts Action = "manage_discounts"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleClient:
		return action == ActionProposeSync || action == ActionPostBrief || action == ActionNegotiate
	case RoleProducer, RoleRightsHolder:
		return action == ActionSubmitTrack || action == ActionNegotiate
	default:
		return false
	}
}

// Normalize maps unknown account types to client, the least privileged role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleClient, RoleProducer, RoleRightsHolder, RoleAdmin:
		return Role(role)
	default:
		return RoleClient
	}
}

// OwnsTracks reports whether the role lists tracks and receives proposals.
func (r Role) OwnsTracks() bool {
	return r == RoleProducer || r == RoleRightsHolder
}
