package model

import (
	"time"

	"github.com/zavaops/ticketflow/constants"
)

// Patch types carry partial updates: only non-nil fields are applied, so a
// writer touching one stage never clobbers a sibling stage written
// concurrently. Field names mirror the Ticket document exactly.

type TicketPatch struct {
	Status      *constants.TicketStatus `json:"status,omitempty"`
	UpdatedAt   *time.Time              `json:"updatedAt,omitempty"`
	Raw         *RawTicketData          `json:"raw,omitempty"`
	Attachments *[]AttachmentInfo       `json:"attachments,omitempty"`

	Extraction        *ExtractionPatch        `json:"extraction,omitempty"`
	AIProcessing      *AIProcessingPatch      `json:"aiProcessing,omitempty"`
	InvoiceProcessing *InvoiceProcessingPatch `json:"invoiceProcessing,omitempty"`
}

type ExtractionPatch struct {
	Status           *constants.StageStatus `json:"status,omitempty"`
	CompletedAt      *time.Time             `json:"completedAt,omitempty"`
	ProcessingTimeMS *int64                 `json:"processingTimeMs,omitempty"`
	ExtractionMethod *string                `json:"extractionMethod,omitempty"`
	BasicMetadata    *BasicMetadata         `json:"basicMetadata,omitempty"`
	Fields           *InvoiceFields         `json:"fields,omitempty"`
	ErrorMessage     *string                `json:"errorMessage,omitempty"`
}

type AIProcessingPatch struct {
	Status            *constants.StageStatus `json:"status,omitempty"`
	CompletedAt       *time.Time             `json:"completedAt,omitempty"`
	ProcessingTimeMS  *int64                 `json:"processingTimeMs,omitempty"`
	AgentName         *string                `json:"agentName,omitempty"`
	AgentVersion      *string                `json:"agentVersion,omitempty"`
	StandardizedCodes *StandardizedCodes     `json:"standardizedCodes,omitempty"`
	Summary           *string                `json:"summary,omitempty"`
	NextAction        *string                `json:"nextAction,omitempty"`
	Flags             *[]string              `json:"flags,omitempty"`
	Confidence        *float64               `json:"confidence,omitempty"`
	ErrorMessage      *string                `json:"errorMessage,omitempty"`
}

type InvoiceProcessingPatch struct {
	Status            *constants.StageStatus `json:"status,omitempty"`
	CompletedAt       *time.Time             `json:"completedAt,omitempty"`
	ProcessingTimeMS  *int64                 `json:"processingTimeMs,omitempty"`
	AgentName         *string                `json:"agentName,omitempty"`
	AgentVersion      *string                `json:"agentVersion,omitempty"`
	Validations       *InvoiceValidations    `json:"validations,omitempty"`
	PaymentSubmission *PaymentSubmission     `json:"paymentSubmission,omitempty"`
	Errors            *[]string              `json:"errors,omitempty"`
	ErrorMessage      *string                `json:"errorMessage,omitempty"`
}

// Helpers for building patches inline.

func StrPtr(s string) *string        { return &s }
func Int64Ptr(n int64) *int64        { return &n }
func Float64Ptr(f float64) *float64  { return &f }
func TimePtr(t time.Time) *time.Time { return &t }

func StatusPtr(s constants.TicketStatus) *constants.TicketStatus { return &s }
func StagePtr(s constants.StageStatus) *constants.StageStatus    { return &s }
