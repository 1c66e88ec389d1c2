package mds

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the error taxonomy of the engine's public contract.
// Every validation failure and every backend failure surfaces as one of
// these kinds, wrapped in a *StoreError.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindUnknownDocumentType
	ErrorKindUnknownDocumentID
	ErrorKindUnknownAttachmentID
	ErrorKindUnknownAssociation
	ErrorKindMismatchedAssociationTypes
	ErrorKindUnknownCache
	ErrorKindUnknownCacheValueName
	ErrorKindUnknownCollection
	ErrorKindUnknownIndex
	ErrorKindUnknownSelector
	ErrorKindWrongValueType
	ErrorKindIllegalInBatch
	ErrorKindBackendIO
	ErrorKindSerializationFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindUnknownDocumentType:
		return "UnknownDocumentType"
	case ErrorKindUnknownDocumentID:
		return "UnknownDocumentID"
	case ErrorKindUnknownAttachmentID:
		return "UnknownAttachmentID"
	case ErrorKindUnknownAssociation:
		return "UnknownAssociation"
	case ErrorKindMismatchedAssociationTypes:
		return "MismatchedAssociationTypes"
	case ErrorKindUnknownCache:
		return "UnknownCache"
	case ErrorKindUnknownCacheValueName:
		return "UnknownCacheValueName"
	case ErrorKindUnknownCollection:
		return "UnknownCollection"
	case ErrorKindUnknownIndex:
		return "UnknownIndex"
	case ErrorKindUnknownSelector:
		return "UnknownSelector"
	case ErrorKindWrongValueType:
		return "WrongValueType"
	case ErrorKindIllegalInBatch:
		return "IllegalInBatch"
	case ErrorKindBackendIO:
		return "BackendIO"
	case ErrorKindSerializationFailure:
		return "SerializationFailure"
	default:
		return "Unknown"
	}
}

// StoreError is the concrete error type returned by every Store operation
// that fails. Op names the failing operation (e.g. "document.create") for
// logging; Err, when present, is the underlying cause.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mds: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("mds: %s: %s", e.Op, e.Kind)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets callers check kind membership with errors.Is(err, mds.ErrUnknownDocumentID)
// style sentinels defined below.
func (e *StoreError) Is(target error) bool {
	var other *StoreError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind ErrorKind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// Sentinel instances usable with errors.Is(err, mds.ErrUnknownDocumentID), etc.
// Each carries its kind and no Op/Err so that StoreError.Is matches purely
// on Kind.
var (
	ErrUnknownDocumentType         = &StoreError{Kind: ErrorKindUnknownDocumentType}
	ErrUnknownDocumentID           = &StoreError{Kind: ErrorKindUnknownDocumentID}
	ErrUnknownAttachmentID         = &StoreError{Kind: ErrorKindUnknownAttachmentID}
	ErrUnknownAssociation          = &StoreError{Kind: ErrorKindUnknownAssociation}
	ErrMismatchedAssociationTypes  = &StoreError{Kind: ErrorKindMismatchedAssociationTypes}
	ErrUnknownCache                = &StoreError{Kind: ErrorKindUnknownCache}
	ErrUnknownCacheValueName       = &StoreError{Kind: ErrorKindUnknownCacheValueName}
	ErrUnknownCollection           = &StoreError{Kind: ErrorKindUnknownCollection}
	ErrUnknownIndex                = &StoreError{Kind: ErrorKindUnknownIndex}
	ErrUnknownSelector             = &StoreError{Kind: ErrorKindUnknownSelector}
	ErrWrongValueType              = &StoreError{Kind: ErrorKindWrongValueType}
	ErrIllegalInBatch              = &StoreError{Kind: ErrorKindIllegalInBatch}
	ErrBackendIO                   = &StoreError{Kind: ErrorKindBackendIO}
	ErrSerializationFailure        = &StoreError{Kind: ErrorKindSerializationFailure}
)
