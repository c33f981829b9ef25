// Package web provides HTTP request and response types for the sequence administration API.
package web

import "github.com/dukex/followup/pkg/services"

// CreateSequenceRequest represents the request body for creating a new sequence.
type CreateSequenceRequest struct {
	Name               string `json:"name"                  validate:"required,min=1,max=200"`
	Description        string `json:"description"           validate:"max=2000"`
	AutoAssignNewLeads bool   `json:"auto_assign_new_leads"`
}

// UpdateSequenceRequest represents the request body for updating an existing sequence.
// All fields are optional to support partial updates.
type UpdateSequenceRequest struct {
	Name               *string `json:"name,omitempty"                  validate:"omitempty,min=1,max=200"`
	Description        *string `json:"description,omitempty"           validate:"omitempty,max=2000"`
	Active             *bool   `json:"active,omitempty"`
	AutoAssignNewLeads *bool   `json:"auto_assign_new_leads,omitempty"`
}

// AddStepRequest represents the request body for appending a step to a sequence.
type AddStepRequest struct {
	DelayDays   int    `json:"delay_days"            validate:"min=0,max=3650"`
	TriggerTag  string `json:"trigger_tag"           validate:"required,max=200"`
	Subject     string `json:"subject,omitempty"     validate:"max=500"`
	Description string `json:"description,omitempty"`
}

// EnrollRequest represents the request body for manually enrolling a lead.
type EnrollRequest struct {
	LeadID string `json:"lead_id" validate:"required"`
}

func (r CreateSequenceRequest) toService() services.CreateSequenceRequest {
	return services.CreateSequenceRequest{
		Name:               r.Name,
		Description:        r.Description,
		AutoAssignNewLeads: r.AutoAssignNewLeads,
	}
}

func (r UpdateSequenceRequest) toService() services.UpdateSequenceRequest {
	return services.UpdateSequenceRequest{
		Name:               r.Name,
		Description:        r.Description,
		Active:             r.Active,
		AutoAssignNewLeads: r.AutoAssignNewLeads,
	}
}

func (r AddStepRequest) toService() services.AddStepRequest {
	return services.AddStepRequest{
		DelayDays:   r.DelayDays,
		TriggerTag:  r.TriggerTag,
		Subject:     r.Subject,
		Description: r.Description,
	}
}
