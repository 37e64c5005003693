package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// ProcessingStatus is the per-file lifecycle. COMPLETED and FAILED are
// terminal; files are never deleted by the pipeline.
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "PENDING"
	ProcessingStatusProcessing ProcessingStatus = "PROCESSING"
	ProcessingStatusCompleted  ProcessingStatus = "COMPLETED"
	ProcessingStatusFailed     ProcessingStatus = "FAILED"
)

func (t ProcessingStatus) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *ProcessingStatus) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return err
	}
	switch ProcessingStatus(s) {
	case ProcessingStatusPending, ProcessingStatusProcessing, ProcessingStatusCompleted, ProcessingStatusFailed:
		*t = ProcessingStatus(s)
	default:
		return fmt.Errorf("invalid processing status %q", s)
	}
	return nil
}

// SessionStatus is the ingestion-session state machine:
// PENDING -> PROCESSING -> {COMPLETED, FAILED}. FAILED is reserved for
// session-level setup failures; per-file failures never drive it.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "PENDING"
	SessionStatusProcessing SessionStatus = "PROCESSING"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusFailed     SessionStatus = "FAILED"
)

func (t SessionStatus) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *SessionStatus) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return err
	}
	switch SessionStatus(s) {
	case SessionStatusPending, SessionStatusProcessing, SessionStatusCompleted, SessionStatusFailed:
		*t = SessionStatus(s)
	default:
		return fmt.Errorf("invalid session status %q", s)
	}
	return nil
}

// ChangeType classifies one field-level mutation in the change history.
// NEW and UPDATE come from the standard ingestion path; CORRECTION is
// emitted by explicit reprocessing, AUTO_MATCH by the cross-source
// matching pass.
type ChangeType string

const (
	ChangeTypeNew        ChangeType = "NEW"
	ChangeTypeUpdate     ChangeType = "UPDATE"
	ChangeTypeCorrection ChangeType = "CORRECTION"
	ChangeTypeAutoMatch  ChangeType = "AUTO_MATCH"
)

func (t ChangeType) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *ChangeType) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return err
	}
	switch ChangeType(s) {
	case ChangeTypeNew, ChangeTypeUpdate, ChangeTypeCorrection, ChangeTypeAutoMatch:
		*t = ChangeType(s)
	default:
		return fmt.Errorf("invalid change type %q", s)
	}
	return nil
}

// MatchStatus tracks cross-source matching on a canonical order. There is
// no hard delete; retirement is a match_status transition.
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusCorrected MatchStatus = "corrected"
)

func (t MatchStatus) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *MatchStatus) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return err
	}
	switch MatchStatus(s) {
	case MatchStatusUnmatched, MatchStatusMatched, MatchStatusCorrected:
		*t = MatchStatus(s)
	default:
		return fmt.Errorf("invalid match status %q", s)
	}
	return nil
}

func scanEnumString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.New("enum value must be string")
	}
}
