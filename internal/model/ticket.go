package model

import (
	"time"

	"github.com/zavaops/ticketflow/constants"
)

// Ticket is the complete document for one unit of work, the single source
// of truth for a ticket's state across all pipeline stages. The ticket ID
// doubles as the partition/routing key in the document store.
type Ticket struct {
	ID        string                  `json:"id"`
	TicketID  string                  `json:"ticketId"`
	Status    constants.TicketStatus  `json:"status"`
	CreatedAt time.Time               `json:"createdAt"`
	UpdatedAt time.Time               `json:"updatedAt"`

	Raw         *RawTicketData   `json:"raw,omitempty"`
	Attachments []AttachmentInfo `json:"attachments"`

	Extraction        ExtractionResult        `json:"extraction"`
	AIProcessing      AIProcessingResult      `json:"aiProcessing"`
	InvoiceProcessing InvoiceProcessingResult `json:"invoiceProcessing"`
}

// RawTicketData captures the submission form fields verbatim.
type RawTicketData struct {
	Title                string             `json:"title"`
	Description          string             `json:"description"`
	Tags                 []string           `json:"tags,omitempty"`
	Priority             constants.Priority `json:"priority"`
	Submitter            string             `json:"submitter,omitempty"`
	SubmitterName        string             `json:"submitterName,omitempty"`
	SubmitterDepartment  string             `json:"submitterDepartment,omitempty"`
	ExtractionMethod     string             `json:"extractionMethod,omitempty"`
}

// AttachmentInfo describes an uploaded invoice document.
type AttachmentInfo struct {
	Filename    string `json:"filename"`
	BlobURL     string `json:"blobUrl"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// BasicMetadata holds physical document properties derived from raw bytes.
type BasicMetadata struct {
	PageCount       int        `json:"pageCount"`
	FileSizeBytes   int        `json:"fileSizeBytes"`
	FileSizeDisplay string     `json:"fileSizeDisplay"`
	CreationDate    *time.Time `json:"creationDate,omitempty"`
	RawTextPreview  string     `json:"rawTextPreview"`
	Error           string     `json:"error,omitempty"`
}

// LineItem is a single invoice line.
type LineItem struct {
	Description string  `json:"description"`
	ProductCode string  `json:"productCode"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`
}

// ConfidenceScores from the structured-field extraction tier that ran.
type ConfidenceScores struct {
	InvoiceNumber float64 `json:"invoiceNumber"`
	TotalAmount   float64 `json:"totalAmount"`
	VendorName    float64 `json:"vendorName"`
	Overall       float64 `json:"overall"`
}

// InvoiceFields is the canonical structured invoice record produced by any
// tier of the extractor cascade.
type InvoiceFields struct {
	InvoiceNumber string     `json:"invoiceNumber"`
	VendorName    string     `json:"vendorName"`
	VendorAddress string     `json:"vendorAddress"`
	InvoiceDate   string     `json:"invoiceDate,omitempty"`
	DueDate       string     `json:"dueDate,omitempty"`
	PONumber      string     `json:"poNumber"`
	Subtotal      float64    `json:"subtotal"`
	TaxAmount     float64    `json:"taxAmount"`
	TotalAmount   float64    `json:"totalAmount"`
	Currency      string     `json:"currency"`
	PaymentTerms  string     `json:"paymentTerms"`
	LineItems     []LineItem `json:"lineItems"`

	Confidence ConfidenceScores `json:"confidenceScores"`

	// Optional fields for special invoice types.
	HazardousFlag     bool    `json:"hazardousFlag"`
	DOTClassification string  `json:"dotClassification,omitempty"`
	BillOfLading      string  `json:"billOfLading,omitempty"`
	HazmatSurcharge   float64 `json:"hazmatSurcharge,omitempty"`

	// Set when extraction could not run at all (degenerate tier).
	Error string `json:"error,omitempty"`
}

// ExtractionResult is the stage 1 output.
type ExtractionResult struct {
	Status           constants.StageStatus `json:"status"`
	CompletedAt      *time.Time            `json:"completedAt,omitempty"`
	ProcessingTimeMS int64                 `json:"processingTimeMs"`
	ExtractionMethod string                `json:"extractionMethod,omitempty"`
	BasicMetadata    *BasicMetadata        `json:"basicMetadata,omitempty"`
	Fields           *InvoiceFields        `json:"fields,omitempty"`
	ErrorMessage     string                `json:"errorMessage,omitempty"`
}

// StandardizedCodes produced by stage 2.
type StandardizedCodes struct {
	VendorCode     string   `json:"vendorCode"`
	ProductCodes   []string `json:"productCodes"`
	DepartmentCode string   `json:"departmentCode"`
	CostCenter     string   `json:"costCenter"`
}

// AIProcessingResult is the stage 2 output.
type AIProcessingResult struct {
	Status            constants.StageStatus `json:"status"`
	CompletedAt       *time.Time            `json:"completedAt,omitempty"`
	ProcessingTimeMS  int64                 `json:"processingTimeMs"`
	AgentName         string                `json:"agentName,omitempty"`
	AgentVersion      string                `json:"agentVersion,omitempty"`
	StandardizedCodes *StandardizedCodes    `json:"standardizedCodes,omitempty"`
	Summary           string                `json:"summary,omitempty"`
	NextAction        string                `json:"nextAction,omitempty"`
	Flags             []string              `json:"flags,omitempty"`
	Confidence        float64               `json:"confidence,omitempty"`
	ErrorMessage      string                `json:"errorMessage,omitempty"`
}

// InvoiceValidations are the individual stage 3 checks.
type InvoiceValidations struct {
	InvoiceNumberValid bool `json:"invoiceNumberValid"`
	AmountCorrect      bool `json:"amountCorrect"`
	DueDateValid       bool `json:"dueDateValid"`
	VendorApproved     bool `json:"vendorApproved"`
	BudgetAvailable    bool `json:"budgetAvailable"`
}

// AllPass reports whether every validation check passed.
func (v InvoiceValidations) AllPass() bool {
	return v.InvoiceNumberValid && v.AmountCorrect && v.DueDateValid &&
		v.VendorApproved && v.BudgetAvailable
}

// PaymentSubmission records the (simulated) payment API outcome.
// Submitted=true is only reachable when all validations are true.
type PaymentSubmission struct {
	Submitted           bool       `json:"submitted"`
	PaymentID           string     `json:"paymentId,omitempty"`
	SubmittedAt         *time.Time `json:"submittedAt,omitempty"`
	ExpectedPaymentDate string     `json:"expectedPaymentDate,omitempty"`
	PaymentMethod       string     `json:"paymentMethod,omitempty"`
	Status              string     `json:"status"`
}

// InvoiceProcessingResult is the stage 3 output.
type InvoiceProcessingResult struct {
	Status            constants.StageStatus `json:"status"`
	CompletedAt       *time.Time            `json:"completedAt,omitempty"`
	ProcessingTimeMS  int64                 `json:"processingTimeMs"`
	AgentName         string                `json:"agentName,omitempty"`
	AgentVersion      string                `json:"agentVersion,omitempty"`
	Validations       *InvoiceValidations   `json:"validations,omitempty"`
	PaymentSubmission *PaymentSubmission    `json:"paymentSubmission,omitempty"`
	Errors            []string              `json:"errors,omitempty"`
	ErrorMessage      string                `json:"errorMessage,omitempty"`
}

// TicketSummary is the lightweight projection for list views.
type TicketSummary struct {
	TicketID             string                 `json:"ticketId"`
	Title                string                 `json:"title"`
	Status               constants.TicketStatus `json:"status"`
	Priority             constants.Priority     `json:"priority"`
	SubmitterName        string                 `json:"submitterName,omitempty"`
	CreatedAt            time.Time              `json:"createdAt"`
	UpdatedAt            time.Time              `json:"updatedAt"`
	HasExtraction        bool                   `json:"hasExtraction"`
	HasAIProcessing      bool                   `json:"hasAiProcessing"`
	HasInvoiceProcessing bool                   `json:"hasInvoiceProcessing"`
}

// Summarize projects a ticket into its list-view form.
func (t *Ticket) Summarize() TicketSummary {
	s := TicketSummary{
		TicketID:             t.TicketID,
		Title:                t.TicketID,
		Status:               t.Status,
		Priority:             constants.PriorityNormal,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		HasExtraction:        t.Extraction.Status != constants.StageStatusPending,
		HasAIProcessing:      t.AIProcessing.Status != constants.StageStatusPending,
		HasInvoiceProcessing: t.InvoiceProcessing.Status != constants.StageStatusPending,
	}
	if t.Raw != nil {
		if t.Raw.Title != "" {
			s.Title = t.Raw.Title
		}
		if t.Raw.Priority != "" {
			s.Priority = t.Raw.Priority
		}
		s.SubmitterName = t.Raw.SubmitterName
	}
	return s
}

// TicketList is a paginated page of summaries.
type TicketList struct {
	Tickets    []TicketSummary `json:"tickets"`
	TotalCount int             `json:"totalCount"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
}

// NewTicket builds a fresh document with all three stage records pending.
func NewTicket(ticketID string, raw *RawTicketData, attachments []AttachmentInfo, now time.Time) *Ticket {
	return &Ticket{
		ID:          ticketID,
		TicketID:    ticketID,
		Status:      constants.StatusIngested,
		CreatedAt:   now,
		UpdatedAt:   now,
		Raw:         raw,
		Attachments: attachments,
		Extraction:  ExtractionResult{Status: constants.StageStatusPending},
		AIProcessing: AIProcessingResult{
			Status: constants.StageStatusPending,
		},
		InvoiceProcessing: InvoiceProcessingResult{
			Status: constants.StageStatusPending,
		},
	}
}

// DashboardMetrics aggregates pipeline health for the dashboard endpoint.
type DashboardMetrics struct {
	TotalTickets               int            `json:"totalTickets"`
	TicketsByStatus            map[string]int `json:"ticketsByStatus"`
	AvgExtractionTimeMS        float64        `json:"avgExtractionTimeMs"`
	AvgAIProcessingTimeMS      float64        `json:"avgAiProcessingTimeMs"`
	AvgInvoiceProcessingTimeMS float64        `json:"avgInvoiceProcessingTimeMs"`
	AvgTotalPipelineTimeMS     float64        `json:"avgTotalPipelineTimeMs"`
	SuccessRate                float64        `json:"successRate"`
	TicketsProcessedToday      int            `json:"ticketsProcessedToday"`
	PaymentSubmittedCount      int            `json:"paymentSubmittedCount"`
	ManualReviewCount          int            `json:"manualReviewCount"`
	ErrorCount                 int            `json:"errorCount"`
}
