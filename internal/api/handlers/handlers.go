package handlers

import (
	"github.com/Marga-Ghale/ora-admin-console/internal/service"
	"github.com/gin-gonic/gin"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	Organization *OrganizationHandler
}

// NewHandlers creates all handlers
func NewHandlers(services *service.Services) *Handlers {
	useJSONFieldNames()
	return &Handlers{
		Organization: &OrganizationHandler{orgService: services.Organization},
	}
}

// RegisterRoutes mounts the organization routes on an authenticated group.
func (h *Handlers) RegisterRoutes(protected *gin.RouterGroup) {
	orgs := protected.Group("/organizations")
	{
		orgs.GET("", h.Organization.List)
		orgs.GET("/:id", h.Organization.Get)
		orgs.GET("/:id/health", h.Organization.Health)
		orgs.POST("/:id/refresh", h.Organization.Refresh)

		// Activation & subscription
		orgs.POST("/:id/activate", h.Organization.Activate)
		orgs.POST("/:id/deactivate", h.Organization.Deactivate)
		orgs.POST("/:id/subscription/extend", h.Organization.ExtendSubscription)

		// Members
		orgs.POST("/:id/members", h.Organization.AddMember)
		orgs.POST("/:id/members/:memberId/grant", h.Organization.GrantAccess)
		orgs.POST("/:id/members/:memberId/revoke", h.Organization.RevokeAccess)
		orgs.POST("/:id/ownership", h.Organization.TransferOwnership)

		// Edit session
		orgs.GET("/:id/edit", h.Organization.EditView)
		orgs.POST("/:id/edit", h.Organization.BeginEdit)
		orgs.PATCH("/:id/edit", h.Organization.UpdateField)
		orgs.POST("/:id/edit/cancel", h.Organization.CancelEdit)
		orgs.POST("/:id/edit/resolve", h.Organization.ResolveCancel)
		orgs.POST("/:id/edit/save", h.Organization.SaveEdit)
	}
}
