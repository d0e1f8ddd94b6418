package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campwire/bunkmate/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrEmptySlice     = errors.New("slice cannot be empty")
	ErrInvalidPerson  = errors.New("invalid person")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidRun     = errors.New("invalid solver run")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validatePersons validates a slice of persons.
func validatePersons(persons []model.Person) error {
	if persons == nil {
		return fmt.Errorf("%w: persons", ErrNilParameter)
	}
	if len(persons) == 0 {
		return fmt.Errorf("%w: persons", ErrEmptySlice)
	}
	for i, p := range persons {
		if p.ExternalID == "" {
			return fmt.Errorf("%w: person at index %d missing external id", ErrInvalidPerson, i)
		}
		if p.Year == 0 {
			return fmt.Errorf("%w: person %s missing year", ErrInvalidPerson, p.ExternalID)
		}
		if p.FirstName == "" && p.LastName == "" {
			return fmt.Errorf("%w: person %s has no name", ErrInvalidPerson, p.ExternalID)
		}
	}
	return nil
}

// validateResolvedRequest checks the fields the pipeline promises.
func validateResolvedRequest(r *model.ResolvedRequest) error {
	if r == nil {
		return fmt.Errorf("%w: request", ErrNilParameter)
	}
	if r.RequesterExternalID == "" {
		return fmt.Errorf("%w: missing requester", ErrInvalidRequest)
	}
	if r.SessionID == "" {
		return fmt.Errorf("%w: missing session", ErrInvalidRequest)
	}
	if r.Year == 0 {
		return fmt.Errorf("%w: missing year", ErrInvalidRequest)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidRequest)
	}
	switch r.Type {
	case model.RequestBunkWith, model.RequestNotBunkWith, model.RequestAgePreference:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, r.Type)
	}
	return nil
}

// validateRun checks a solver run record.
func validateRun(run *model.SolverRun) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if run.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRun)
	}
	if run.SessionID == "" {
		return fmt.Errorf("%w: missing session", ErrInvalidRun)
	}
	switch run.Status {
	case model.RunPending, model.RunRunning, model.RunSuccess, model.RunFailed, model.RunError:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRun, run.Status)
	}
	return nil
}
