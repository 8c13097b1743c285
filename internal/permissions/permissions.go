// Package permissions resolves what a caller may do with a task or project
// from their global role, their project membership and task assignment.
package permissions

import (
	"sort"

	"taskboard/internal/models"
)

type Context struct {
	GlobalRole models.GlobalRole
	// ProjectRole is empty when the caller is not a member of the project.
	ProjectRole models.ProjectRole
	IsAssignee  bool
}

type Set struct {
	IsProjectManager bool `json:"isProjectManager"`
	IsProjectMember  bool `json:"isProjectMember"`
	IsAssignee       bool `json:"isAssignee"`

	CanRead       bool `json:"canRead"`
	CanWrite      bool `json:"canWrite"`
	CanEditMeta   bool `json:"canEditMeta"`
	CanEditStatus bool `json:"canEditStatus"`
	CanDelete     bool `json:"canDelete"`
	CanAssign     bool `json:"canAssign"`
	CanMoveList   bool `json:"canMoveList"`
}

func Resolve(ctx Context) Set {
	isAdmin := ctx.GlobalRole == models.RoleAdmin
	isManager := ctx.GlobalRole == models.RoleManager
	isMember := ctx.GlobalRole == models.RoleMember

	isProjectManager := ctx.ProjectRole == models.ProjectRoleOwner || ctx.ProjectRole == models.ProjectRoleManager
	isProjectMember := ctx.ProjectRole != ""

	s := Set{
		IsProjectManager: isProjectManager,
		IsProjectMember:  isProjectMember,
		IsAssignee:       ctx.IsAssignee,
	}

	s.CanRead = isAdmin || ctx.IsAssignee || isProjectMember
	s.CanEditMeta = isAdmin || isProjectManager || (isManager && isProjectMember)
	s.CanEditStatus = s.CanEditMeta || (isMember && ctx.IsAssignee)
	s.CanWrite = isAdmin || isProjectManager || (isManager && isProjectMember) || (isMember && isProjectMember)
	s.CanDelete = isAdmin || isProjectManager || (isManager && isProjectMember)
	s.CanAssign = isAdmin || isManager || isProjectManager
	s.CanMoveList = s.CanAssign

	return s
}

// ForTask builds the resolver context for user against a task whose
// project members and assignees are loaded.
func ForTask(user models.User, task *models.Task) Context {
	ctx := Context{
		GlobalRole: user.Role,
		IsAssignee: task.HasAssignee(user.ID),
	}
	if m := task.Project.MemberFor(user.ID); m != nil {
		ctx.ProjectRole = m.Role
	}
	return ctx
}

// IsArchiveTransition reports whether moving from one status to another
// enters or leaves the archived state.
func IsArchiveTransition(from, to models.TaskStatus) bool {
	return (from == models.StatusArchived) != (to == models.StatusArchived)
}

// MemberEditableFields are the only task fields a global member who does
// not manage the project may send in an update.
var MemberEditableFields = map[string]struct{}{
	"status":      {},
	"title":       {},
	"description": {},
	"priority":    {},
	"dueDate":     {},
	"storyPoints": {},
}

// DisallowedFields returns the sorted keys outside MemberEditableFields.
func DisallowedFields(keys []string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := MemberEditableFields[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// RestrictedToMemberFields reports whether the allow-list applies to the caller.
func RestrictedToMemberFields(ctx Context, set Set) bool {
	return ctx.GlobalRole == models.RoleMember && !set.IsProjectManager
}
