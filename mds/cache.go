package mds

import (
	"context"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

// cacheStruct is the registered shape of one named Cache: which document
// type it watches, which property changes make it recompute, and which
// named integer values it materializes per document.
type cacheStruct struct {
	name               string
	docType            string
	relevantProperties map[string]struct{}
	valueInfos         []backend.CacheValueInfo
	info               map[string]string
}

func (c *cacheStruct) Name() string    { return c.name }
func (c *cacheStruct) DocType() string { return c.docType }

func (c *cacheStruct) applyUpdates(ctx context.Context, s *Store, info backend.UpdatesInfo) error {
	rows := make(map[int64]map[string]int64)
	var maxRev uint64
	for _, u := range info.Updates {
		if !intersects(u.Changed, c.relevantProperties) {
			continue
		}
		dv := toDocumentView(u.Document)
		row := make(map[string]int64, len(c.valueInfos))
		for _, vi := range c.valueInfos {
			fn, ok := s.valuePerformer(vi.SelectorID)
			if !ok {
				return newErr(ErrorKindUnknownSelector, "cache.update", nil)
			}
			row[vi.Name] = fn(dv, c.info)
		}
		rows[u.Document.InternalID] = row
		if u.Revision > maxRev {
			maxRev = u.Revision
		}
	}
	if len(rows) == 0 && len(info.RemovedIDs) == 0 {
		return nil
	}
	return s.backend.CacheUpdate(ctx, c.name, rows, info.RemovedIDs, maxRev)
}

// RegisterCache registers (or re-registers) a named cache. A version change
// from a prior registration forces a full rebuild from revision zero; an
// unchanged version resumes from the backend's stored watermark.
func (s *Store) RegisterCache(ctx context.Context, name, docType string, relevantProperties []string, valueInfos []backend.CacheValueInfo, version int) error {
	for _, vi := range valueInfos {
		if _, ok := s.valuePerformer(vi.SelectorID); !ok {
			return newErr(ErrorKindUnknownSelector, "cache.register", nil)
		}
	}

	lastRevision, err := s.backend.CacheRegister(ctx, name, docType, relevantProperties, valueInfos, version)
	if err != nil {
		return newErr(ErrorKindBackendIO, "cache.register", err)
	}

	c := &cacheStruct{
		name:               name,
		docType:            docType,
		relevantProperties: toSet(relevantProperties),
		valueInfos:         valueInfos,
		info:               map[string]string{},
	}

	s.derivedMu.Lock()
	s.cachesByName[name] = c
	s.derivedByType[docType] = append(s.derivedByType[docType], c)
	s.derivedMu.Unlock()

	return s.rebuildOne(ctx, c, lastRevision)
}

// CacheSumValues sums the named value columns across internalIDs, resolving
// docIDs to internal ids first.
func (s *Store) CacheSumValues(ctx context.Context, name string, docType string, docIDs []string, valueNames []string) (map[string]int64, error) {
	if _, ok := s.cacheByName(name); !ok {
		return nil, newErr(ErrorKindUnknownCache, "cache.sum", nil)
	}

	ids, err := s.internalIDsFor(ctx, docType, docIDs)
	if err != nil {
		return nil, err
	}

	sums, err := s.backend.CacheSumValues(ctx, name, ids, valueNames)
	if err != nil {
		switch {
		case isBackendErr(err, backend.ErrCacheNotFound):
			return nil, newErr(ErrorKindUnknownCache, "cache.sum", err)
		case isBackendErr(err, backend.ErrCacheValueNameUnknown):
			return nil, newErr(ErrorKindUnknownCacheValueName, "cache.sum", err)
		default:
			return nil, newErr(ErrorKindBackendIO, "cache.sum", err)
		}
	}
	return sums, nil
}

// CacheValueNames reports the named integer values a registered cache
// materializes per document.
func (s *Store) CacheValueNames(ctx context.Context, name string) ([]string, error) {
	if _, ok := s.cacheByName(name); !ok {
		return nil, newErr(ErrorKindUnknownCache, "cache.valueNames", nil)
	}
	names, err := s.backend.CacheValueNames(ctx, name)
	if err != nil {
		return nil, newErr(ErrorKindBackendIO, "cache.valueNames", err)
	}
	return names, nil
}

func (s *Store) cacheByName(name string) (*cacheStruct, bool) {
	s.derivedMu.RLock()
	defer s.derivedMu.RUnlock()
	c, ok := s.cachesByName[name]
	return c, ok
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, i := range items {
		out[i] = struct{}{}
	}
	return out
}
