package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

const (
	permAdministrator = int64(discordgo.PermissionAdministrator)
	permManageRoles   = int64(discordgo.PermissionManageRoles)
)

func hasPermission(perms, flag int64) bool {
	return perms&flag == flag
}

func isAdministrator(perms int64) bool {
	return hasPermission(perms, permAdministrator)
}

func hasAnyRole(have, want []string) bool {
	for _, r := range want {
		if r != "" && slices.Contains(have, r) {
			return true
		}
	}
	return false
}

// canManageTasks covers creating, listing, deleting and the status overview.
func (b *Bot) canManageTasks(inv invocation) bool {
	return isAdministrator(inv.Permissions) || hasAnyRole(inv.Roles, []string{b.cfg.Roles.SpecialAdminRoleID})
}

// canViewTasks is required to see one's own tasks.
func (b *Bot) canViewTasks(inv invocation) bool {
	return isAdministrator(inv.Permissions) || hasAnyRole(inv.Roles, b.cfg.TaskManagerRoles())
}

// canReviewApplications is required to approve or reject staff applications.
func (b *Bot) canReviewApplications(inv invocation) bool {
	return isAdministrator(inv.Permissions) || hasPermission(inv.Permissions, permManageRoles)
}
