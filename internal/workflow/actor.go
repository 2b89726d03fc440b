// Package workflow carries the request-scoped actor passed explicitly into every workflow operation.
package workflow

import (
	"github.com/google/uuid"

	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/outbox"
)

// Actor is the authenticated caller, resolved once per request from the access token.
type Actor struct {
	UserID       uuid.UUID
	DealerID     *uuid.UUID
	Capabilities []enums.Capability
}

// Has reports whether the actor holds the capability.
func (a Actor) Has(c enums.Capability) bool {
	for _, held := range a.Capabilities {
		if held == c {
			return true
		}
	}
	return false
}

// BelongsTo reports whether the actor is scoped to the dealer.
func (a Actor) BelongsTo(dealerID uuid.UUID) bool {
	return a.DealerID != nil && *a.DealerID == dealerID
}

// Validate fails when the actor carries no identity.
func (a Actor) Validate() error {
	if a.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return nil
}

// RequireDealerStaff checks the actor works for the dealer as staff or manager.
func (a Actor) RequireDealerStaff(dealerID uuid.UUID) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if !a.BelongsTo(dealerID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "actor does not belong to dealer")
	}
	if !a.Has(enums.CapabilityDealerStaff) && !a.Has(enums.CapabilityDealerManager) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "dealer staff capability required")
	}
	return nil
}

// RequireDealerManager checks the actor manages the dealer.
func (a Actor) RequireDealerManager(dealerID uuid.UUID) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if !a.Has(enums.CapabilityDealerManager) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "dealer manager capability required")
	}
	if !a.BelongsTo(dealerID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "manager does not belong to dealer")
	}
	return nil
}

// RequireManufacturer checks the actor may approve on behalf of the manufacturer.
func (a Actor) RequireManufacturer() error {
	if err := a.Validate(); err != nil {
		return err
	}
	if !a.Has(enums.CapabilityManufacturerApprover) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "manufacturer approver capability required")
	}
	return nil
}

// RequireApprover checks the actor may decide on the given route for the dealer.
func (a Actor) RequireApprover(route enums.ApprovalRoute, dealerID uuid.UUID) error {
	switch route {
	case enums.ApprovalRouteDealerManager:
		return a.RequireDealerManager(dealerID)
	case enums.ApprovalRouteManufacturer:
		return a.RequireManufacturer()
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown approval route")
	}
}

// Ref converts the actor into the outbox envelope form.
func (a Actor) Ref() *outbox.ActorRef {
	caps := make([]string, 0, len(a.Capabilities))
	for _, c := range a.Capabilities {
		caps = append(caps, c.String())
	}
	return &outbox.ActorRef{
		UserID:       a.UserID,
		DealerID:     a.DealerID,
		Capabilities: caps,
	}
}

// PoolFor maps an approval route to the inventory pool that gates it.
func PoolFor(route enums.ApprovalRoute) enums.InventoryPool {
	if route == enums.ApprovalRouteManufacturer {
		return enums.InventoryPoolFactory
	}
	return enums.InventoryPoolDealer
}
