package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents in-memory graph errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypePersistence represents graph database errors
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeRequest represents invalid caller input
	ErrorTypeRequest ErrorType = "request"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Category returns the error category; promoted to every typed error embedding BaseError
func (e *BaseError) Category() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Graph Errors

// ErrDuplicateKey is returned when a node or edge id already exists in a graph
type ErrDuplicateKey struct {
	*BaseError
	Kind string // node, edge
	ID   string
}

func NewDuplicateKey(kind, id string) *ErrDuplicateKey {
	return &ErrDuplicateKey{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("duplicate %s id: %s", kind, id), nil),
		Kind:      kind,
		ID:        id,
	}
}

// ErrDanglingReference is returned when an edge points at a node that is not in the graph
type ErrDanglingReference struct {
	*BaseError
	EdgeID string
	NodeID string
}

func NewDanglingReference(edgeID, nodeID string) *ErrDanglingReference {
	return &ErrDanglingReference{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("edge %s references missing node %s", edgeID, nodeID), nil),
		EdgeID:    edgeID,
		NodeID:    nodeID,
	}
}

// ErrNotFound is returned when a requested node or edge does not exist
type ErrNotFound struct {
	*BaseError
	Kind string // node, edge, relationship
	ID   string
}

func NewNotFound(kind, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("%s not found: %s", kind, id), nil),
		Kind:      kind,
		ID:        id,
	}
}

// Persistence Errors

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypePersistence, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypePersistence, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrCommitFailed is returned when forwarding a merge mutation to the backing store fails.
// Mutations committed before it are not rolled back.
type ErrCommitFailed struct {
	*BaseError
	Change   string
	TargetID string
}

func NewCommitFailed(change, targetID string, err error) *ErrCommitFailed {
	return &ErrCommitFailed{
		BaseError: NewBaseError(ErrorTypePersistence, fmt.Sprintf("commit %s %s failed", change, targetID), err),
		Change:    change,
		TargetID:  targetID,
	}
}

// Request Errors

// ErrInvalidIdentifier is returned when a label or relationship type cannot be used in Cypher
type ErrInvalidIdentifier struct {
	*BaseError
	Value string
}

func NewInvalidIdentifier(value string) *ErrInvalidIdentifier {
	return &ErrInvalidIdentifier{
		BaseError: NewBaseError(ErrorTypeRequest, fmt.Sprintf("invalid label or type: %q", value), nil),
		Value:     value,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var categorized interface{ Category() ErrorType }
	if stderrors.As(err, &categorized) {
		return categorized.Category() == errType
	}
	return false
}

// IsNotFound reports whether err is, or wraps, an ErrNotFound
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return stderrors.As(err, &nf)
}

// IsConflict reports whether err is, or wraps, a duplicate key or dangling reference
func IsConflict(err error) bool {
	var dup *ErrDuplicateKey
	var dangling *ErrDanglingReference
	return stderrors.As(err, &dup) || stderrors.As(err, &dangling)
}

// IsCommitFailed reports whether err is, or wraps, an ErrCommitFailed. It
// takes precedence over the cause it wraps: the store may be partially merged.
func IsCommitFailed(err error) bool {
	var commitErr *ErrCommitFailed
	return stderrors.As(err, &commitErr)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// A failed commit leaves the store partially merged; the caller must re-fetch first
	if IsCommitFailed(err) {
		return false
	}
	// Connection and query errors are retryable
	return IsErrorType(err, ErrorTypePersistence)
}
