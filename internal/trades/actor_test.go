package trades

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"tradelane/trade-portal/trade-portal-backend/internal/auth"
)

func TestResolveRole(t *testing.T) {
	buyer, seller, logistics := uuid.New(), uuid.New(), uuid.New()
	trade := &Trade{
		ID:       uuid.New(),
		BuyerID:  buyer,
		SellerID: &seller,
		Metadata: JSONB{"logistics_company_id": logistics.String()},
	}
	org := func(id uuid.UUID) *uuid.UUID { return &id }

	cases := []struct {
		name   string
		caller auth.Caller
		want   Role
	}{
		{"admin without org", auth.Caller{IsAdmin: true}, RoleAdmin},
		{"admin of buyer org", auth.Caller{IsAdmin: true, OrganizationID: org(buyer)}, RoleAdmin},
		{"buyer", auth.Caller{OrganizationID: org(buyer)}, RoleBuyer},
		{"seller", auth.Caller{OrganizationID: org(seller)}, RoleSeller},
		{"logistics", auth.Caller{OrganizationID: org(logistics)}, RoleLogistics},
		{"stranger", auth.Caller{OrganizationID: org(uuid.New())}, RoleUnknown},
		{"no org", auth.Caller{}, RoleUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveRole(tc.caller, trade))
		})
	}
}

func TestResolveRoleBuyerWinsOverSeller(t *testing.T) {
	same := uuid.New()
	trade := &Trade{BuyerID: same, SellerID: &same}
	assert.Equal(t, RoleBuyer, ResolveRole(auth.Caller{OrganizationID: &same}, trade))
}

func TestResolveRoleIgnoresMalformedLogisticsID(t *testing.T) {
	org := uuid.New()
	trade := &Trade{BuyerID: uuid.New(), Metadata: JSONB{"logisticsCompanyId": "carrier-7"}}
	assert.Equal(t, RoleUnknown, ResolveRole(auth.Caller{OrganizationID: &org}, trade))
}

func TestRoleGuard(t *testing.T) {
	guard := NewRoleGuard(false)

	assert.True(t, guard.Allows(RoleBuyer, StatusRFQOpen))
	assert.False(t, guard.Allows(RoleSeller, StatusRFQOpen))
	assert.True(t, guard.Allows(RoleLogistics, StatusDelivered))
	assert.False(t, guard.Allows(RoleSeller, StatusDelivered))
	assert.False(t, guard.Allows(RoleBuyer, StatusSettled))
	assert.True(t, guard.Allows(RoleAdmin, StatusClosed))
	assert.False(t, guard.Allows(RoleUnknown, StatusDisputed))
	assert.True(t, guard.Allows(RoleSeller, StatusDraft))

	assert.ElementsMatch(t, []Role{RoleBuyer, RoleAdmin}, NewRoleGuard(true).AllowedRoles(StatusSettled))
	assert.Empty(t, guard.AllowedRoles(StatusDraft))
}

func TestAdminIsInEveryAllowList(t *testing.T) {
	guard := NewRoleGuard(false)
	for _, status := range AllStatuses {
		assert.True(t, guard.Allows(RoleAdmin, status), status)
	}
}
