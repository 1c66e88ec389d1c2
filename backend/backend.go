// Package backend defines the pluggable physical-layer contract shared by
// the ephemeral (in-memory) and durable (SQL) document stores, plus the
// shared data-transfer shapes (documents, attachments, associations,
// derived-structure rows) that flow between the engine in package mds and
// whichever Backend is in play.
//
// A Backend owns nothing about document-revision semantics beyond
// allocating the next revision number per document-type; everything about
// batching, selectors, and derived-structure recomputation lives in the
// engine. This mirrors the split in the original C++ implementation between
// CMDSDocumentStorage (engine) and CMDSEphemeral/CMDSSQLite (backends).
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

// Sentinel errors returned by Backend implementations. The mds package maps
// these onto its public ErrorKind taxonomy.
var (
	ErrNotFound              = errors.New("backend: document not found")
	ErrAttachmentNotFound    = errors.New("backend: attachment not found")
	ErrAlreadyExists         = errors.New("backend: document already exists")
	ErrAssociationNotFound   = errors.New("backend: association not found")
	ErrAssociationMismatch   = errors.New("backend: association type mismatch")
	ErrCacheNotFound         = errors.New("backend: cache not found")
	ErrCacheValueNameUnknown = errors.New("backend: unknown cache value name")
	ErrCollectionNotFound    = errors.New("backend: collection not found")
	ErrIndexNotFound         = errors.New("backend: index not found")
	ErrDocumentTypeUnknown   = errors.New("backend: unknown document type")
)

// DocumentInfo is the backend's view of one document's authoritative state.
type DocumentInfo struct {
	InternalID       int64
	DocID            string
	Type             string
	Revision         uint64
	Active           bool
	CreationTime     time.Time
	ModificationTime time.Time
	Properties       value.Dictionary
	Attachments      map[string]AttachmentInfo
}

// AttachmentInfo is one attachment's metadata, without its content.
type AttachmentInfo struct {
	ID       string
	Revision int
	Info     map[string]string
}

// ChangedProperties is the set of property names a write touched. A nil set
// means "unspecified" (e.g. a remove, or a fresh create) and must be treated
// by every derived structure as "recompute regardless of relevantProperties".
type ChangedProperties map[string]struct{}

// UpdateInfo is one entry of the fan-out the engine hands to the update
// pipeline after a document write reaches the backend.
type UpdateInfo struct {
	Document *DocumentInfo
	Revision uint64
	Changed  ChangedProperties
}

// UpdatesInfo batches every update (and every removal) the pipeline must
// apply for one document-type in one pass.
type UpdatesInfo struct {
	Type       string
	Updates    []UpdateInfo
	RemovedIDs []int64
}

// AssociationUpdate is one add/remove edit queued against a named
// association.
type AssociationUpdate struct {
	Add    bool
	FromID string
	ToID   string
}

// AssociationItem is one persisted (fromID, toID) pair.
type AssociationItem struct {
	FromID string
	ToID   string
}

// CacheValueInfo describes one named integer value a registered Cache
// computes per document.
type CacheValueInfo struct {
	Name       string
	SelectorID string
}

// IndexEntry is one (key -> internal id) pair produced by an Index's keys
// selector for one document. Later entries in the same Update call win over
// earlier ones for the same key.
type IndexEntry struct {
	Key        string
	InternalID int64
}

// Backend is the physical-layer contract. Implementations must be safe for
// concurrent use by multiple goroutines.
type Backend interface {
	// Documents

	DocumentCreate(ctx context.Context, docType, docID string, creationTime, modTime time.Time, props value.Dictionary) (*DocumentInfo, error)
	DocumentUpdate(ctx context.Context, docType, docID string, updated value.Dictionary, removed map[string]struct{}, modTime time.Time) (*DocumentInfo, error)
	DocumentRemove(ctx context.Context, docType, docID string) (*DocumentInfo, error)
	DocumentGet(ctx context.Context, docType, docID string) (*DocumentInfo, error)
	DocumentInternalID(ctx context.Context, docType, docID string) (int64, bool, error)
	DocumentIterateByIDs(ctx context.Context, docType string, docIDs []string, proc func(*DocumentInfo) error) error
	DocumentIterateSinceRevision(ctx context.Context, docType string, sinceRevision uint64, activeOnly bool, proc func(*DocumentInfo) error) error
	DocumentCount(ctx context.Context, docType string, activeOnly bool) (int, error)

	// DocumentByInternalIDs resolves a set of backend-internal ids (as
	// produced by association, cache, collection, and index lookups) back
	// to full document records, tombstoned ones included. Ids with no
	// matching stored document are simply absent from the result.
	DocumentByInternalIDs(ctx context.Context, docType string, internalIDs []int64) (map[int64]*DocumentInfo, error)

	// Attachments

	// AttachmentCreate persists a new attachment under a caller-supplied id
	// (the engine, not the backend, mints attachment ids so that a batched
	// attachmentAdd can hand the id back to the caller before commit).
	AttachmentCreate(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) error
	AttachmentUpdate(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) (int, error)
	AttachmentRemove(ctx context.Context, docType, docID, attachmentID string) error
	AttachmentInfoByID(ctx context.Context, docType, docID string) (map[string]AttachmentInfo, error)
	AttachmentContent(ctx context.Context, docType, docID, attachmentID string) ([]byte, error)

	// Associations

	AssociationRegister(ctx context.Context, name, fromType, toType string) (existingFromType, existingToType string, err error)
	AssociationGet(ctx context.Context, name string) ([]AssociationItem, error)
	AssociationIterateFrom(ctx context.Context, name, docID string, proc func(toID string) error) error
	AssociationIterateTo(ctx context.Context, name, docID string, proc func(fromID string) error) error
	AssociationInfosFrom(ctx context.Context, name, anchorID string, startIndex, count int) (totalCount int, toIDs []string, err error)
	AssociationInfosTo(ctx context.Context, name, anchorID string, startIndex, count int) (totalCount int, fromIDs []string, err error)
	AssociationUpdate(ctx context.Context, name string, updates []AssociationUpdate) error

	// Derived structures: Cache

	CacheRegister(ctx context.Context, name, docType string, relevantProperties []string, valueInfos []CacheValueInfo, version int) (lastRevision uint64, err error)
	CacheUpdate(ctx context.Context, name string, rows map[int64]map[string]int64, removedIDs []int64, newLastRevision uint64) error
	CacheSumValues(ctx context.Context, name string, internalIDs []int64, valueNames []string) (map[string]int64, error)
	CacheValueNames(ctx context.Context, name string) ([]string, error)

	// Derived structures: Collection

	CollectionRegister(ctx context.Context, name, docType string, relevantProperties []string, version int) (lastRevision uint64, err error)
	CollectionUpdate(ctx context.Context, name string, included, notIncluded, removedIDs []int64, newLastRevision uint64) error
	CollectionCount(ctx context.Context, name string) (int, error)
	CollectionIDs(ctx context.Context, name string) ([]int64, error)

	// Derived structures: Index

	IndexRegister(ctx context.Context, name, docType string, relevantProperties []string, version int) (lastRevision uint64, err error)
	IndexUpdate(ctx context.Context, name string, removedIDs []int64, entries []IndexEntry, newLastRevision uint64) error
	IndexLookup(ctx context.Context, name string, keys []string) (map[string]int64, error)

	// Info / Internal namespaces

	InfoGet(ctx context.Context, keys []string) (map[string]string, error)
	InfoSet(ctx context.Context, kv map[string]string) error
	InfoRemove(ctx context.Context, keys []string) error
	InternalGet(ctx context.Context, keys []string) (map[string]string, error)
	InternalSet(ctx context.Context, kv map[string]string) error
	InternalRemove(ctx context.Context, keys []string) error

	// Transaction bound

	// RunInTransaction bounds a physical transaction around fn. Backends
	// that have no native transaction concept (e.g. the ephemeral map
	// store) may implement this as a single coarse lock.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// VariableBindingLimit returns the maximum number of bound parameters a
	// single IN (...) query against this backend should carry. Backend
	// methods that build a multi-value IN clause (CacheSumValues,
	// IndexUpdate's removed-id delete) chunk their argument list to this
	// size rather than emitting one unbounded clause.
	VariableBindingLimit() int

	Close() error
}
