package models

import "time"

// ============================================
// Lifecycle DTOs
// ============================================

type DeactivateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ExtendSubscriptionRequest struct {
	Duration string `json:"duration" binding:"required,oneof=6months 12months"`
}

// ============================================
// Member DTOs
// ============================================

// AddMemberRequest leaves format checks to the membership registry so all
// field errors come back together.
type AddMemberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type TransferOwnershipRequest struct {
	Mode     string            `json:"mode" binding:"required,oneof=existing new"`
	TargetID string            `json:"targetId" binding:"required_if=Mode existing"`
	Profile  *OwnerProfileForm `json:"profile" binding:"required_if=Mode new"`
}

type OwnerProfileForm struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	TaxID         string `json:"taxId"`
	CitizenshipID string `json:"citizenshipId"`
	Address       string `json:"address"`
	Latitude      string `json:"latitude"`
	Longitude     string `json:"longitude"`
}

// ============================================
// Edit Session DTOs
// ============================================

type UpdateFieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

type CancelEditRequest struct {
	Continuation string `json:"continuation" binding:"omitempty,oneof=cancel close"`
}

type ResolveCancelRequest struct {
	Decision string `json:"decision" binding:"required,oneof=discard saveAndContinue"`
}

// ============================================
// Responses
// ============================================

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}
