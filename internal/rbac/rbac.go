package rbac

// Relationship is how a caller relates to one roadmap.
type Relationship string
type Action string

const (
	RelNone         Relationship = "none"
	RelPublic       Relationship = "public"
	RelCollaborator Relationship = "collaborator"
	RelOwner        Relationship = "owner"
)

const (
	// ActionRead covers loading the document, comments, activity and exports.
	ActionRead Action = "read"
	// ActionEdit covers canvas content: milestones, notes, connections, risks.
	ActionEdit Action = "edit"
	// ActionManage covers owner-only changes: title, visibility, collaborators,
	// webhooks, ownership transfer and deletion.
	ActionManage Action = "manage"
)

func Can(rel Relationship, action Action) bool {
	switch rel {
	case RelOwner:
		return true
	case RelCollaborator:
		return action == ActionRead || action == ActionEdit
	case RelPublic:
		return action == ActionRead
	default:
		return false
	}
}

// Resolve derives the caller's relationship. An empty callerID is an
// anonymous visitor.
func Resolve(ownerID string, collaboratorIDs []string, isPublic bool, callerID string) Relationship {
	if callerID != "" {
		if callerID == ownerID {
			return RelOwner
		}
		for _, id := range collaboratorIDs {
			if id == callerID {
				return RelCollaborator
			}
		}
	}
	if isPublic {
		return RelPublic
	}
	return RelNone
}

func CanRead(ownerID string, collaboratorIDs []string, isPublic bool, callerID string) bool {
	return Can(Resolve(ownerID, collaboratorIDs, isPublic, callerID), ActionRead)
}

func CanWrite(ownerID string, collaboratorIDs []string, callerID string) bool {
	return Can(Resolve(ownerID, collaboratorIDs, false, callerID), ActionEdit)
}
