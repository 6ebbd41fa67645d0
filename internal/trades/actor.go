package trades

import (
	"tradelane/trade-portal/trade-portal-backend/internal/auth"
)

// ResolveRole maps a caller onto the role it plays in trade.
// Admin wins over any organization match.
func ResolveRole(caller auth.Caller, trade *Trade) Role {
	if caller.IsAdmin {
		return RoleAdmin
	}
	if caller.OrganizationID == nil {
		return RoleUnknown
	}
	org := *caller.OrganizationID
	switch {
	case org == trade.BuyerID:
		return RoleBuyer
	case trade.SellerID != nil && org == *trade.SellerID:
		return RoleSeller
	}
	if logistics, ok := trade.LogisticsCompanyID(); ok && org == logistics {
		return RoleLogistics
	}
	return RoleUnknown
}

// RoleGuard holds the per-target allow-list of roles
type RoleGuard struct {
	allowed map[TradeStatus][]Role
}

// NewRoleGuard builds the guard. When buyerSettlement is set, a buyer may
// also request settled, subject to the buyerRelease flag checked later.
func NewRoleGuard(buyerSettlement bool) *RoleGuard {
	allowed := map[TradeStatus][]Role{
		StatusRFQOpen:         {RoleBuyer, RoleAdmin},
		StatusQuoted:          {RoleBuyer, RoleSeller, RoleAdmin},
		StatusContracted:      {RoleBuyer, RoleAdmin},
		StatusEscrowRequired:  {RoleBuyer, RoleSeller, RoleAdmin},
		StatusEscrowFunded:    {RoleBuyer, RoleAdmin},
		StatusProduction:      {RoleSeller, RoleAdmin},
		StatusPickupScheduled: {RoleLogistics, RoleSeller, RoleAdmin},
		StatusInTransit:       {RoleLogistics, RoleSeller, RoleAdmin},
		StatusDelivered:       {RoleLogistics, RoleAdmin},
		StatusAccepted:        {RoleBuyer, RoleAdmin},
		StatusSettled:         {RoleAdmin},
		StatusDisputed:        {RoleBuyer, RoleSeller, RoleAdmin},
		StatusClosed:          {RoleAdmin},
	}
	if buyerSettlement {
		allowed[StatusSettled] = []Role{RoleBuyer, RoleAdmin}
	}
	return &RoleGuard{allowed: allowed}
}

// Allows reports whether role may request target. Targets without an entry
// have no incoming edges and are left to the transition table to reject.
func (g *RoleGuard) Allows(role Role, target TradeStatus) bool {
	if role == RoleUnknown {
		return false
	}
	roles, ok := g.allowed[target]
	if !ok {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// AllowedRoles returns the roles that may request target
func (g *RoleGuard) AllowedRoles(target TradeStatus) []Role {
	return append([]Role(nil), g.allowed[target]...)
}
