// Package services holds the orchestrator's dispatch pipeline.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/google/uuid"

	"mini-rpa/internal/apierr"
	"mini-rpa/internal/models"
	"mini-rpa/internal/orchestrator/client"
	"mini-rpa/internal/orchestrator/db"
	"mini-rpa/internal/orchestrator/events"
	"mini-rpa/pkg/metrics"
	"mini-rpa/pkg/validation"
)

// Sealer encrypts a credential for transit.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
}

// Relay performs the single call to an agent.
type Relay interface {
	Relay(ctx context.Context, agentURL, taskName string, body []byte) (*client.Reply, error)
}

// Journal records dispatches.
type Journal interface {
	Create(ctx context.Context, rec *db.DispatchRecord) error
	MarkDispatched(ctx context.Context, dispatchID string, at time.Time, agentStatus int) error
	MarkFailed(ctx context.Context, dispatchID string, f db.Failure) error
}

// Publisher emits dispatch events.
type Publisher interface {
	Publish(ctx context.Context, ev events.DispatchEvent) error
}

// DecodeDispatchRequest validates body against the dispatch request schema and decodes it.
func DecodeDispatchRequest(body []byte) (models.DispatchRequest, error) {
	var req models.DispatchRequest
	if err := validation.DispatchRequest.Validate(body); err != nil {
		return req, models.NewError(models.KindInvalidPayload, models.StageValidate, err, "invalid dispatch request")
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, models.NewError(models.KindInvalidPayload, models.StageValidate, err, "invalid dispatch request")
	}
	return req, nil
}

// DispatchService encrypts, relays and reports. Journal and Publisher are
// optional; their failures are logged and never fail a dispatch.
type DispatchService struct {
	sealer    Sealer
	relay     Relay
	journal   Journal
	publisher Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
	encode    func(any) ([]byte, error)
}

func NewDispatchService(sealer Sealer, relay Relay, journal Journal, publisher Publisher, m *metrics.Metrics) *DispatchService {
	return &DispatchService{
		sealer:    sealer,
		relay:     relay,
		journal:   journal,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
		newID:     uuid.NewString,
		encode:    json.Marshal,
	}
}

// Dispatch relays req to its agent and returns the agent's reply verbatim.
func (s *DispatchService) Dispatch(ctx context.Context, req models.DispatchRequest) (*models.DispatchResult, error) {
	dispatchID := s.newID()
	sum := sha256.Sum256([]byte(req.ScriptText))
	s.journalCreate(ctx, &db.DispatchRecord{
		DispatchID:   dispatchID,
		TaskName:     req.TaskName,
		AgentURL:     req.AgentURL,
		Username:     req.Username,
		ScriptSHA256: hex.EncodeToString(sum[:]),
		Status:       db.StatusDispatching,
	})

	res, err := s.dispatch(ctx, dispatchID, req)
	if err != nil {
		s.fail(ctx, dispatchID, req, err)
		return nil, err
	}
	return res, nil
}

func (s *DispatchService) dispatch(ctx context.Context, dispatchID string, req models.DispatchRequest) (*models.DispatchResult, error) {
	ciphertext, err := s.sealer.Seal([]byte(req.Password))
	if err != nil {
		return nil, models.NewError(models.KindCredentialEncryption, models.StageEncrypt, err, "failed to encrypt credential")
	}

	payload := models.JobPayload{
		TaskName:        req.TaskName,
		Username:        req.Username,
		CredCiphertext:  ciphertext,
		ScriptB64:       base64.StdEncoding.EncodeToString([]byte(req.ScriptText)),
		InteractiveHint: req.InteractiveHint,
	}
	if req.WorkingDir != "" {
		wd := req.WorkingDir
		payload.WorkingDir = &wd
	}
	body, err := s.encode(payload)
	if err != nil {
		return nil, models.NewError(models.KindInternal, models.StageEncode, err, "failed to encode job payload")
	}

	start := time.Now()
	reply, err := s.relay.Relay(ctx, req.AgentURL, req.TaskName, body)
	if err != nil {
		s.metrics.ObserveRelay(relayStatus(err), time.Since(start))
		return nil, err
	}
	s.metrics.ObserveRelay("2xx", time.Since(start))

	at := s.now().UTC()
	dispatchedAt := models.FormatDispatchTime(at)
	hlog.CtxInfof(ctx, "dispatch %s: task %q started on %s", dispatchID, req.TaskName, req.AgentURL)

	if s.journal != nil {
		if err := s.journal.MarkDispatched(ctx, dispatchID, at, reply.StatusCode); err != nil {
			hlog.CtxWarnf(ctx, "dispatch %s: journal update failed: %v", dispatchID, err)
		}
	}
	s.publish(ctx, events.DispatchEvent{
		DispatchID:   dispatchID,
		TaskName:     req.TaskName,
		AgentURL:     req.AgentURL,
		Status:       db.StatusDispatched,
		DispatchedAt: dispatchedAt,
		OccurredAt:   at,
	})
	s.metrics.IncDispatch(metrics.OutcomeOK)

	return &models.DispatchResult{
		DispatchID:    dispatchID,
		DispatchedAt:  dispatchedAt,
		AgentResponse: apierr.AgentResponse(reply.Body),
	}, nil
}

func (s *DispatchService) fail(ctx context.Context, dispatchID string, req models.DispatchRequest, err error) {
	f := db.Failure{Message: err.Error()}
	if e, ok := models.AsError(err); ok {
		f.Kind = string(e.Kind)
		f.Stage = e.Stage
		f.AgentStatus = e.AgentStatus
	}
	s.metrics.IncDispatch(f.Kind)
	hlog.CtxWarnf(ctx, "dispatch %s: task %q failed at %s: %v", dispatchID, req.TaskName, f.Stage, err)

	if s.journal != nil {
		if jerr := s.journal.MarkFailed(ctx, dispatchID, f); jerr != nil {
			hlog.CtxWarnf(ctx, "dispatch %s: journal update failed: %v", dispatchID, jerr)
		}
	}
	s.publish(ctx, events.DispatchEvent{
		DispatchID: dispatchID,
		TaskName:   req.TaskName,
		AgentURL:   req.AgentURL,
		Status:     db.StatusFailed,
		ErrorKind:  f.Kind,
		OccurredAt: s.now().UTC(),
	})
}

func (s *DispatchService) journalCreate(ctx context.Context, rec *db.DispatchRecord) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Create(ctx, rec); err != nil {
		hlog.CtxWarnf(ctx, "dispatch %s: journal create failed: %v", rec.DispatchID, err)
	}
}

func (s *DispatchService) publish(ctx context.Context, ev events.DispatchEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		hlog.CtxWarnf(ctx, "dispatch %s: event publish failed: %v", ev.DispatchID, err)
	}
}

func relayStatus(err error) string {
	if e, ok := models.AsError(err); ok && e.AgentStatus != 0 {
		return "non_2xx"
	}
	return "transport_error"
}
