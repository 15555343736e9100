package discord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"guildstats/internal/config"
)

func testBot() *Bot {
	return &Bot{
		cfg: &config.Config{
			CommandPrefix: ".",
			Roles: config.RoleConfig{
				SpecialAdminRoleID: "special",
				AuthorizedRoleIDs:  []string{"mod", "helper"},
				StaffRoleID:        "staff",
			},
		},
		log: zap.NewNop(),
	}
}

func TestPermissions(t *testing.T) {
	b := testBot()

	tests := []struct {
		name   string
		inv    invocation
		manage bool
		view   bool
		review bool
	}{
		{"administrator", invocation{Permissions: permAdministrator}, true, true, true},
		{"special admin role", invocation{Roles: []string{"special"}}, true, true, false},
		{"authorized role", invocation{Roles: []string{"helper"}}, false, true, false},
		{"manage roles", invocation{Permissions: permManageRoles}, false, false, true},
		{"member", invocation{Roles: []string{"member"}}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.manage, b.canManageTasks(tt.inv))
			assert.Equal(t, tt.view, b.canViewTasks(tt.inv))
			assert.Equal(t, tt.review, b.canReviewApplications(tt.inv))
		})
	}
}

func TestHasAnyRole_IgnoresEmptyRoleIDs(t *testing.T) {
	assert.False(t, hasAnyRole([]string{"a"}, []string{""}))
	assert.False(t, hasAnyRole(nil, []string{"a"}))
	assert.True(t, hasAnyRole([]string{"a", "b"}, []string{"c", "b"}))
}

func TestInScope(t *testing.T) {
	b := testBot()
	assert.True(t, b.inScope("g1"))
	assert.False(t, b.inScope(""))

	b.cfg.GuildID = "g1"
	assert.True(t, b.inScope("g1"))
	assert.False(t, b.inScope("g2"))
}
