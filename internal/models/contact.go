package models

import "time"

// EmailType identifies a notification kind; each kind has its own counter.
type EmailType string

const (
	EmailTypeContactForm  EmailType = "contact_form"
	EmailTypeVinRequest   EmailType = "vin_request"
	EmailTypeImportReport EmailType = "import_report"
)

type ContactFormRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required,max=50"`
	Message string `json:"message" validate:"required,max=5000"`
}

type VinRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required,max=50"`
	VIN     string `json:"vin" validate:"required,max=32"`
	Details string `json:"details,omitempty" validate:"max=5000"`
}

// EmailMetric is the per-type counter used to number outgoing messages.
type EmailMetric struct {
	Type       EmailType  `json:"type"`
	Count      int64      `json:"count"`
	LastSentAt *time.Time `json:"lastSentAt,omitempty"`
}
