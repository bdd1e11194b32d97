package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/agent"
	"github.com/zavaops/ticketflow/internal/blob"
	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/extract"
	"github.com/zavaops/ticketflow/internal/model"
	"github.com/zavaops/ticketflow/internal/simulate"
	"github.com/zavaops/ticketflow/internal/store"
)

const (
	remoteStageBAgent = "information-processing-agent"
	remoteStageCAgent = "invoice-processing-agent"
)

// Orchestrator runs pipeline stages against the ticket store. Stages 2 and 3
// prefer the remote agents when configured and fall back to the local
// simulators on transient failures, unless fallback is disabled.
type Orchestrator struct {
	store        store.TicketStore
	blobs        blob.Store
	extractor    *extract.Extractor
	stageB       *agent.Caller
	stageC       *agent.Caller
	standardizer *simulate.Standardizer
	invoicer     *simulate.InvoiceProcessor
	logger       *slog.Logger

	devMode         bool
	disableFallback bool
	chainCooldown   time.Duration

	// sleep is the context-aware cooldown wait, replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	st store.TicketStore,
	blobs blob.Store,
	extractor *extract.Extractor,
	stageB, stageC *agent.Caller,
	standardizer *simulate.Standardizer,
	invoicer *simulate.InvoiceProcessor,
	cfg *common.Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:           st,
		blobs:           blobs,
		extractor:       extractor,
		stageB:          stageB,
		stageC:          stageC,
		standardizer:    standardizer,
		invoicer:        invoicer,
		logger:          logger,
		devMode:         cfg.IsDev(),
		disableFallback: cfg.Agents.DisableSimulationFallback,
		chainCooldown:   cfg.Pipeline.ChainCooldown,
		sleep:           ctxSleep,
	}
}

// Run dispatches one stage by identifier.
func (o *Orchestrator) Run(ctx context.Context, stage Stage, ticketID string) error {
	switch stage {
	case StageExtract:
		return o.RunExtraction(ctx, ticketID)
	case StageStandardize:
		return o.RunStageB(ctx, ticketID)
	case StageInvoice:
		return o.RunStageC(ctx, ticketID)
	default:
		return common.NewAppError("INVALID_STAGE", fmt.Sprintf("unknown stage %d", stage), common.ErrInvalidInput)
	}
}

// RunExtraction runs stage 1: PDF metadata plus structured-field extraction.
// Extraction never fails the ticket: a missing or corrupt attachment yields
// an empty field record with the error recorded, and the ticket still
// advances so the later stages can route it to manual review. On completion
// the standardization stage is chained immediately.
func (o *Orchestrator) RunExtraction(ctx context.Context, ticketID string) error {
	start := time.Now()
	t, err := o.store.Get(ctx, ticketID)
	if err != nil {
		return err
	}

	if _, err := o.store.Update(ctx, ticketID, &model.TicketPatch{
		Status: model.StatusPtr(constants.StatusExtracting),
	}); err != nil {
		return err
	}

	method := constants.MethodAuto
	if t.Raw != nil && t.Raw.ExtractionMethod != "" {
		method = constants.ExtractionMethod(t.Raw.ExtractionMethod)
	}

	var data []byte
	blobURL := ""
	if len(t.Attachments) > 0 {
		att := t.Attachments[0]
		blobURL = att.BlobURL
		data, err = o.blobs.Download(ctx, blob.NameFromURL(att.BlobURL))
		if err != nil {
			o.logger.Warn("pipeline.extract.blob_missing",
				"ticket_id", ticketID, "blob_url", att.BlobURL, "err", err)
			data = nil
		}
	}

	meta := extract.BasicMetadata(data)
	fields := o.extractor.Fields(ctx, method, data, blobURL)

	now := time.Now().UTC()
	elapsedMS := time.Since(start).Milliseconds()
	if _, err := o.store.Update(ctx, ticketID, &model.TicketPatch{
		Status: model.StatusPtr(constants.StatusExtracted),
		Extraction: &model.ExtractionPatch{
			Status:           model.StagePtr(constants.StageStatusCompleted),
			CompletedAt:      model.TimePtr(now),
			ProcessingTimeMS: model.Int64Ptr(elapsedMS),
			ExtractionMethod: model.StrPtr(string(method)),
			BasicMetadata: &model.BasicMetadata{
				PageCount:       meta.PageCount,
				FileSizeBytes:   meta.FileSizeBytes,
				FileSizeDisplay: meta.FileSizeDisplay,
				CreationDate:    meta.CreationDate,
				RawTextPreview:  meta.RawTextPreview,
				Error:           meta.Err,
			},
			Fields: fields,
		},
	}); err != nil {
		return err
	}

	o.logger.Info("pipeline.extract.done",
		"ticket_id", ticketID, "method", method,
		"pages", meta.PageCount, "elapsed_ms", elapsedMS)

	return o.RunStageB(ctx, ticketID)
}

// RunStageB runs stage 2: AI-assisted standardization and routing. When the
// routing decision is invoice processing, stage 3 is chained after the
// configured cooldown so a remote agent's writes settle first.
func (o *Orchestrator) RunStageB(ctx context.Context, ticketID string) error {
	t, err := o.store.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if !CanRun(StageStandardize, t.Status) {
		return common.NewAppError("CONFLICT",
			fmt.Sprintf("ticket %s is '%s', standardization requires extraction first", ticketID, t.Status),
			common.ErrConflict)
	}

	if _, err := o.store.Update(ctx, ticketID, &model.TicketPatch{
		Status: model.StatusPtr(constants.StatusAIProcessing),
	}); err != nil {
		return err
	}

	var patch *model.TicketPatch
	if o.useRemote(o.stageB) {
		patch, err = o.remoteStageB(ctx, t)
		if err != nil {
			return err
		}
	} else {
		patch = o.standardizer.Run(t)
	}

	updated, err := o.store.Update(ctx, ticketID, patch)
	if err != nil {
		return err
	}

	next := strings.ToLower(updated.AIProcessing.NextAction)
	o.logger.Info("pipeline.stage_b.done", "ticket_id", ticketID, "next_action", next)

	if !strings.Contains(next, constants.NextActionInvoiceProcessing) {
		return nil
	}
	if o.chainCooldown > 0 {
		o.logger.Info("pipeline.chain.wait",
			"ticket_id", ticketID, "cooldown", o.chainCooldown.String())
		if err := o.sleep(ctx, o.chainCooldown); err != nil {
			return err
		}
	}
	return o.RunStageC(ctx, ticketID)
}

// RunStageC runs stage 3: invoice validation and payment submission.
func (o *Orchestrator) RunStageC(ctx context.Context, ticketID string) error {
	t, err := o.store.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if !CanRun(StageInvoice, t.Status) {
		return common.NewAppError("CONFLICT",
			fmt.Sprintf("ticket %s is '%s', invoice processing requires standardization first", ticketID, t.Status),
			common.ErrConflict)
	}

	if _, err := o.store.Update(ctx, ticketID, &model.TicketPatch{
		Status: model.StatusPtr(constants.StatusInvoiceProcessing),
	}); err != nil {
		return err
	}

	var patch *model.TicketPatch
	if o.useRemote(o.stageC) {
		patch, err = o.remoteStageC(ctx, t)
		if err != nil {
			return err
		}
	} else {
		patch = o.invoicer.Run(t)
	}

	updated, err := o.store.Update(ctx, ticketID, patch)
	if err != nil {
		return err
	}

	o.logger.Info("pipeline.stage_c.done",
		"ticket_id", ticketID,
		"stage_status", updated.InvoiceProcessing.Status,
		"payment_submitted", updated.InvoiceProcessing.PaymentSubmission != nil &&
			updated.InvoiceProcessing.PaymentSubmission.Submitted)
	return nil
}

// useRemote reports whether a stage should call its remote agent. In dev
// mode a localhost agent URL is treated as unconfigured so local runs never
// wait out a connection timeout against a stale .env entry.
func (o *Orchestrator) useRemote(c *agent.Caller) bool {
	if c == nil || !c.Configured() {
		return false
	}
	if o.devMode && isLocalhost(c.URL()) {
		return false
	}
	return true
}

func isLocalhost(url string) bool {
	return strings.Contains(url, "localhost") || strings.Contains(url, "127.0.0.1")
}

func (o *Orchestrator) remoteStageB(ctx context.Context, t *model.Ticket) (*model.TicketPatch, error) {
	out := o.stageB.Call(ctx, t.TicketID)
	switch out.Kind {
	case agent.KindSuccess:
		if patch, ok := stageBPatch(out); ok {
			return patch, nil
		}
		return o.fallbackStageB(ctx, t, "agent returned an unusable response")
	case agent.KindPrecondition:
		return nil, common.NewAppError("AGENT_REJECTED", out.Err, preconditionSentinel(out))
	case agent.KindTimeout:
		o.failStage(ctx, t.TicketID, StageStandardize, out.Err)
		return nil, common.NewAppError("AGENT_TIMEOUT", out.Err, common.ErrUnavailable)
	default:
		return o.fallbackStageB(ctx, t, out.Err)
	}
}

func (o *Orchestrator) fallbackStageB(ctx context.Context, t *model.Ticket, reason string) (*model.TicketPatch, error) {
	if o.disableFallback {
		o.failStage(ctx, t.TicketID, StageStandardize, reason)
		return nil, common.NewAppError("AGENT_UNAVAILABLE", reason, common.ErrUnavailable)
	}
	o.logger.Warn("pipeline.stage_b.fallback", "ticket_id", t.TicketID, "reason", reason)
	return o.standardizer.Run(t), nil
}

func (o *Orchestrator) remoteStageC(ctx context.Context, t *model.Ticket) (*model.TicketPatch, error) {
	out := o.stageC.Call(ctx, t.TicketID)
	switch out.Kind {
	case agent.KindSuccess:
		if patch, ok := stageCPatch(out); ok {
			return patch, nil
		}
		return o.fallbackStageC(ctx, t, "agent returned an unusable response")
	case agent.KindPrecondition:
		return nil, common.NewAppError("AGENT_REJECTED", out.Err, preconditionSentinel(out))
	case agent.KindTimeout:
		o.failStage(ctx, t.TicketID, StageInvoice, out.Err)
		return nil, common.NewAppError("AGENT_TIMEOUT", out.Err, common.ErrUnavailable)
	default:
		return o.fallbackStageC(ctx, t, out.Err)
	}
}

func (o *Orchestrator) fallbackStageC(ctx context.Context, t *model.Ticket, reason string) (*model.TicketPatch, error) {
	if o.disableFallback {
		o.failStage(ctx, t.TicketID, StageInvoice, reason)
		return nil, common.NewAppError("AGENT_UNAVAILABLE", reason, common.ErrUnavailable)
	}
	o.logger.Warn("pipeline.stage_c.fallback", "ticket_id", t.TicketID, "reason", reason)
	return o.invoicer.Run(t), nil
}

// failStage marks the ticket terminally failed and records the stage error.
func (o *Orchestrator) failStage(ctx context.Context, ticketID string, stage Stage, msg string) {
	patch := &model.TicketPatch{Status: model.StatusPtr(constants.StatusError)}
	switch stage {
	case StageStandardize:
		patch.AIProcessing = &model.AIProcessingPatch{
			Status:       model.StagePtr(constants.StageStatusError),
			ErrorMessage: model.StrPtr(msg),
		}
	case StageInvoice:
		patch.InvoiceProcessing = &model.InvoiceProcessingPatch{
			Status:       model.StagePtr(constants.StageStatusError),
			ErrorMessage: model.StrPtr(msg),
		}
	}
	if _, err := o.store.Update(ctx, ticketID, patch); err != nil {
		o.logger.Error("pipeline.fail_stage.persist", "ticket_id", ticketID, "err", err)
	}
	o.logger.Error("pipeline.stage.failed", "ticket_id", ticketID, "stage", stage.String(), "err", msg)
}

func preconditionSentinel(out agent.Outcome) error {
	if out.StatusCode == 404 {
		return common.ErrNotFound
	}
	return common.ErrConflict
}

// stageBPatch turns a successful stage 2 agent response into a ticket patch.
// The agent either returns the aiProcessing sub-document directly (wrapped
// or flat) or a free-text "output" field that gets the lenient parse.
func stageBPatch(out agent.Outcome) (*model.TicketPatch, bool) {
	ap, ok := decodeStagePayload[model.AIProcessingPatch](out.Body, "aiProcessing")
	if ok && (ap.NextAction != nil || ap.Summary != nil || ap.StandardizedCodes != nil) {
		completeStageB(ap, out.ElapsedMS)
		return &model.TicketPatch{
			Status:       model.StatusPtr(constants.StatusAIProcessed),
			AIProcessing: ap,
		}, true
	}

	text, _ := out.Body["output"].(string)
	if text == "" {
		text, _ = out.Body["result"].(string)
	}
	parsed := agent.ParseResponse(text)
	if !parsed.Success {
		return nil, false
	}

	ap = &model.AIProcessingPatch{}
	if parsed.Summary != "" {
		ap.Summary = model.StrPtr(parsed.Summary)
	}
	if parsed.NextAction != "" {
		ap.NextAction = model.StrPtr(parsed.NextAction)
	}
	if parsed.Flags != nil {
		flags := parsed.Flags
		ap.Flags = &flags
	}
	if parsed.StandardizedCodes != nil {
		var codes model.StandardizedCodes
		if roundTrip(parsed.StandardizedCodes, &codes) {
			ap.StandardizedCodes = &codes
		}
	}
	completeStageB(ap, out.ElapsedMS)
	return &model.TicketPatch{
		Status:       model.StatusPtr(constants.StatusAIProcessed),
		AIProcessing: ap,
	}, true
}

func completeStageB(ap *model.AIProcessingPatch, elapsedMS int64) {
	if ap.Status == nil {
		ap.Status = model.StagePtr(constants.StageStatusCompleted)
	}
	if ap.CompletedAt == nil {
		ap.CompletedAt = model.TimePtr(time.Now().UTC())
	}
	if ap.AgentName == nil {
		ap.AgentName = model.StrPtr(remoteStageBAgent)
	}
	if ap.ProcessingTimeMS == nil {
		ap.ProcessingTimeMS = model.Int64Ptr(elapsedMS)
	}
}

// stageCPatch turns a successful stage 3 agent response into a ticket patch.
func stageCPatch(out agent.Outcome) (*model.TicketPatch, bool) {
	ip, ok := decodeStagePayload[model.InvoiceProcessingPatch](out.Body, "invoiceProcessing")
	if !ok || (ip.Validations == nil && ip.PaymentSubmission == nil && ip.Status == nil) {
		return nil, false
	}
	if ip.Status == nil {
		ip.Status = model.StagePtr(constants.StageStatusCompleted)
	}
	if ip.CompletedAt == nil {
		ip.CompletedAt = model.TimePtr(time.Now().UTC())
	}
	if ip.AgentName == nil {
		ip.AgentName = model.StrPtr(remoteStageCAgent)
	}
	if ip.ProcessingTimeMS == nil {
		ip.ProcessingTimeMS = model.Int64Ptr(out.ElapsedMS)
	}
	return &model.TicketPatch{
		Status:            model.StatusPtr(constants.StatusInvoiceProcessed),
		InvoiceProcessing: ip,
	}, true
}

// decodeStagePayload extracts a stage sub-document from a response body,
// accepting both the wrapped form {"aiProcessing": {...}} and the flat form
// with the stage fields at the top level.
func decodeStagePayload[T any](body map[string]any, key string) (*T, bool) {
	if body == nil {
		return nil, false
	}
	src := body
	if nested, ok := body[key].(map[string]any); ok {
		src = nested
	}
	var payload T
	if !roundTrip(src, &payload) {
		return nil, false
	}
	return &payload, true
}

func roundTrip(src, dst any) bool {
	raw, err := json.Marshal(src)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// ctxSleep waits for d or until the context is done.
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
