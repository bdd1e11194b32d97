package constants

// TicketStatus is the canonical pipeline status for a ticket document.
type TicketStatus string

// Stable values (store these exact strings in the document store).
const (
	StatusIngested          TicketStatus = "ingested"           // created, extraction not started
	StatusExtracting        TicketStatus = "extracting"         // stage 1 in progress
	StatusExtracted         TicketStatus = "extracted"          // stage 1 completed
	StatusAIProcessing      TicketStatus = "ai_processing"      // stage 2 in progress
	StatusAIProcessed       TicketStatus = "ai_processed"       // stage 2 completed
	StatusInvoiceProcessing TicketStatus = "invoice_processing" // stage 3 in progress
	StatusInvoiceProcessed  TicketStatus = "invoice_processed"  // stage 3 completed
	StatusError             TicketStatus = "error"              // terminal failure, reachable from any state
)

// StageStatus is the status of a single stage's result sub-record.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusCompleted StageStatus = "completed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusError     StageStatus = "error"
)

// Priority of the raw ticket submission.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ExtractionMethod selects a tier of the structured-field extractor cascade.
type ExtractionMethod string

const (
	MethodAuto     ExtractionMethod = "auto"     // analyzer if configured, else regex
	MethodRegex    ExtractionMethod = "regex"    // force the deterministic text parser
	MethodAnalyzer ExtractionMethod = "analyzer" // force the cloud document analyzer
)
