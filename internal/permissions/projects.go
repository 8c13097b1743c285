package permissions

import "taskboard/internal/models"

type ProjectAction string

const (
	ActionArchive ProjectAction = "archive"
	ActionDelete  ProjectAction = "delete"
)

func (a ProjectAction) Valid() bool {
	return a == ActionArchive || a == ActionDelete
}

// CanManageProject decides bulk archive/delete authority for one project.
// Admins pass everything; otherwise creators always pass, owners may delete
// and owners or managers may archive.
func CanManageProject(globalRole models.GlobalRole, isCreator bool, role models.ProjectRole, action ProjectAction) bool {
	if globalRole == models.RoleAdmin {
		return true
	}
	if isCreator {
		return true
	}
	switch action {
	case ActionDelete:
		return role == models.ProjectRoleOwner
	case ActionArchive:
		return role == models.ProjectRoleOwner || role == models.ProjectRoleManager
	}
	return false
}

// CanCreateProject reports whether a global role may open new projects.
func CanCreateProject(globalRole models.GlobalRole) bool {
	return globalRole == models.RoleAdmin || globalRole == models.RoleManager
}
