package structuring

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Request is one structuring call. DoctorID and PatientID are optional and
// only used for prompt context and the ai_logs trail.
type Request struct {
	Text      string
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
}

// Outcome is a structured record together with the strategy that produced it.
// FallbackReason is set when the auto strategy had to fall back to local.
type Outcome struct {
	Result         *StructuredPrescription
	Strategy       Strategy
	FallbackReason string
}

type Service struct {
	local  *LocalExtractor
	remote *RemoteExtractor
	logs   AILogRepository
	logger zerolog.Logger
}

func NewService(local *LocalExtractor, remote *RemoteExtractor, logs AILogRepository, logger zerolog.Logger) *Service {
	if local == nil {
		local = NewLocalExtractor()
	}
	return &Service{local: local, remote: remote, logs: logs, logger: logger}
}

// RemoteConfigured reports whether the remote strategy can be used.
func (s *Service) RemoteConfigured() bool {
	return s.remote.Configured()
}

func (s *Service) StructureLocal(ctx context.Context, req Request) (*StructuredPrescription, error) {
	s.scopePatient(ctx, &req)
	return s.structureLocal(ctx, req)
}

func (s *Service) structureLocal(ctx context.Context, req Request) (*StructuredPrescription, error) {
	sp, err := s.local.Extract(req.Text)
	if err != nil {
		return nil, err
	}
	s.record(ctx, req, StrategyLocal, sp)
	return sp, nil
}

func (s *Service) StructureRemote(ctx context.Context, req Request) (*StructuredPrescription, error) {
	if !s.RemoteConfigured() {
		return nil, newError(ErrNotConfigured, nil)
	}
	if _, err := Normalize(req.Text); err != nil {
		return nil, newError(ErrInvalidInput, nil)
	}
	return s.structureRemote(ctx, req, s.scopePatient(ctx, &req))
}

func (s *Service) structureRemote(ctx context.Context, req Request, pc *PatientContext) (*StructuredPrescription, error) {
	sp, err := s.remote.extract(ctx, req.Text, pc)
	if err != nil {
		return nil, err
	}
	s.record(ctx, req, StrategyRemote, sp)
	return sp, nil
}

// StructureAuto tries the remote model and falls back to the local extractor
// on any error other than invalid input.
func (s *Service) StructureAuto(ctx context.Context, req Request) (*Outcome, error) {
	if _, err := Normalize(req.Text); err != nil {
		return nil, err
	}

	pc := s.scopePatient(ctx, &req)
	if s.RemoteConfigured() {
		sp, err := s.structureRemote(ctx, req, pc)
		if err == nil {
			return &Outcome{Result: sp, Strategy: StrategyRemote}, nil
		}
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		s.logger.Warn().Err(err).Msg("remote structuring failed, falling back to local extractor")
		sp, lerr := s.structureLocal(ctx, req)
		if lerr != nil {
			return nil, lerr
		}
		return &Outcome{Result: sp, Strategy: StrategyLocal, FallbackReason: err.Error()}, nil
	}

	sp, err := s.structureLocal(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Outcome{Result: sp, Strategy: StrategyLocal, FallbackReason: ErrNotConfigured.Error()}, nil
}

// scopePatient resolves the optional patient for the caller. The lookup only
// succeeds for patients the caller may see; otherwise the id is dropped and
// the run proceeds without patient context.
func (s *Service) scopePatient(ctx context.Context, req *Request) *PatientContext {
	if req.PatientID == nil {
		return nil
	}
	var lookup PatientLookup
	if s.remote != nil {
		lookup = s.remote.patients
	}
	if lookup == nil || *req.PatientID == uuid.Nil {
		req.PatientID = nil
		return nil
	}
	pc, err := lookup.PatientContext(ctx, *req.PatientID)
	if err != nil {
		s.logger.Debug().Err(err).Str("patient_id", req.PatientID.String()).Msg("patient not available for structuring")
		req.PatientID = nil
		return nil
	}
	return pc
}

func (s *Service) ListLogs(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*AILog, int, error) {
	if s.logs == nil {
		return []*AILog{}, 0, nil
	}
	return s.logs.ListByDoctor(ctx, doctorID, limit, offset)
}

// record writes an ai_logs row. Failures are logged and never surface.
func (s *Service) record(ctx context.Context, req Request, strategy Strategy, sp *StructuredPrescription) {
	if s.logs == nil {
		return
	}
	out, err := json.Marshal(sp)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal structuring result for ai log")
		return
	}
	l := &AILog{
		DoctorID:   req.DoctorID,
		PatientID:  req.PatientID,
		ActionType: ActionAISuggestion,
		Strategy:   strategy,
		InputText:  sp.Transcript,
		OutputText: string(out),
	}
	if err := s.logs.Create(ctx, l); err != nil {
		s.logger.Error().Err(err).Str("strategy", string(strategy)).Msg("failed to record ai log")
	}
}
