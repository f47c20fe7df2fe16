package handlers

import (
	"net/http"

	"github.com/Marga-Ghale/ora-admin-console/internal/api/middleware"
	"github.com/Marga-Ghale/ora-admin-console/internal/editsession"
	"github.com/Marga-Ghale/ora-admin-console/internal/lifecycle"
	"github.com/Marga-Ghale/ora-admin-console/internal/membership"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/service"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/gin-gonic/gin"
)

// ============================================
// Organization Handler
// ============================================

type OrganizationHandler struct {
	orgService service.OrganizationService
}

func (h *OrganizationHandler) List(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	orgs, err := h.orgService.List(c.Request.Context(), actor)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, orgs)
}

func (h *OrganizationHandler) Get(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	detail, err := h.orgService.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// Health returns only the subscription health of an organization.
func (h *OrganizationHandler) Health(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	detail, err := h.orgService.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail.Subscription)
}

func (h *OrganizationHandler) Refresh(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	detail, err := h.orgService.Refresh(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// ============================================
// Activation & Subscription
// ============================================

func (h *OrganizationHandler) Activate(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	res, err := h.orgService.Activate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *OrganizationHandler) Deactivate(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	var req models.DeactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	res, err := h.orgService.Deactivate(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *OrganizationHandler) ExtendSubscription(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	var req models.ExtendSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	res, err := h.orgService.ExtendSubscription(c.Request.Context(), actor, c.Param("id"), types.PlanType(req.Duration))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// ============================================
// Members
// ============================================

func (h *OrganizationHandler) AddMember(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	var req models.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	role, known := types.ParseRole(req.Role)
	if !known {
		role = types.Role(req.Role)
	}

	res, err := h.orgService.AddMember(c.Request.Context(), actor, c.Param("id"), membership.NewMember{
		Name:  req.Name,
		Email: req.Email,
		Role:  role,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (h *OrganizationHandler) GrantAccess(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	res, err := h.orgService.GrantAccess(c.Request.Context(), actor, c.Param("id"), c.Param("memberId"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *OrganizationHandler) RevokeAccess(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	res, err := h.orgService.RevokeAccess(c.Request.Context(), actor, c.Param("id"), c.Param("memberId"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *OrganizationHandler) TransferOwnership(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	var req models.TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	transfer := lifecycle.TransferRequest{
		Mode:     membership.TransferMode(req.Mode),
		TargetID: req.TargetID,
	}
	if req.Profile != nil {
		transfer.Profile = membership.OwnerProfile{
			Name:          req.Profile.Name,
			Email:         req.Profile.Email,
			Phone:         req.Profile.Phone,
			TaxID:         req.Profile.TaxID,
			CitizenshipID: req.Profile.CitizenshipID,
			Address:       req.Profile.Address,
			Latitude:      req.Profile.Latitude,
			Longitude:     req.Profile.Longitude,
		}
	}

	res, err := h.orgService.TransferOwnership(c.Request.Context(), actor, c.Param("id"), transfer)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// ============================================
// Edit Session
// ============================================

func (h *OrganizationHandler) BeginEdit(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	view, err := h.orgService.BeginEdit(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// EditView returns the open session, or 204 when none is open.
func (h *OrganizationHandler) EditView(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	view, err := h.orgService.EditView(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if view == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, view)
}

// UpdateField always answers with the session view. An invalid value is
// reported in the view's errors, not as a failed request.
func (h *OrganizationHandler) UpdateField(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	var req models.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	view, err := h.orgService.UpdateField(c.Request.Context(), actor, c.Param("id"), editsession.Field(req.Field), req.Value)
	if err != nil && (view == nil || view.Errors[req.Field] == "") {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *OrganizationHandler) CancelEdit(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	var req models.CancelEditRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handleBindError(c, err)
			return
		}
	}
	cont := editsession.ContinueCancel
	if req.Continuation != "" {
		cont = editsession.Continuation(req.Continuation)
	}

	decision, err := h.orgService.CancelEdit(c.Request.Context(), actor, c.Param("id"), cont)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"decision": decision, "pending": decision.Pending()})
}

func (h *OrganizationHandler) ResolveCancel(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	var req models.ResolveCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	decision, res, err := h.orgService.ResolveCancel(c.Request.Context(), actor, c.Param("id"), editsession.Resolution(req.Decision))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	resp := gin.H{"decision": decision}
	if res != nil {
		resp["message"] = res.Message
		resp["organization"] = res.Organization
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OrganizationHandler) SaveEdit(c *gin.Context) {
	actor, ok := middleware.RequireActor(c)
	if !ok {
		return
	}

	res, err := h.orgService.SaveEdit(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
