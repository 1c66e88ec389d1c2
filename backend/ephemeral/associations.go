package ephemeral

import (
	"context"
	"fmt"
	"sync"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

type pairKey struct {
	fromID string
	toID   string
}

type associationStore struct {
	mu       sync.RWMutex
	name     string
	fromType string
	toType   string
	order    []pairKey
	present  map[pairKey]struct{}
}

func (s *Store) AssociationRegister(ctx context.Context, name, fromType, toType string) (string, string, error) {
	s.assocMu.Lock()
	defer s.assocMu.Unlock()

	if existing, ok := s.associations[name]; ok {
		return existing.fromType, existing.toType, nil
	}
	s.associations[name] = &associationStore{
		name:     name,
		fromType: fromType,
		toType:   toType,
		present:  make(map[pairKey]struct{}),
	}
	return fromType, toType, nil
}

func (s *Store) assoc(name string) (*associationStore, error) {
	s.assocMu.RLock()
	defer s.assocMu.RUnlock()
	a, ok := s.associations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrAssociationNotFound, name)
	}
	return a, nil
}

func (s *Store) AssociationGet(ctx context.Context, name string) ([]backend.AssociationItem, error) {
	a, err := s.assoc(name)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]backend.AssociationItem, 0, len(a.order))
	for _, k := range a.order {
		if _, ok := a.present[k]; !ok {
			continue
		}
		out = append(out, backend.AssociationItem{FromID: k.fromID, ToID: k.toID})
	}
	return out, nil
}

func (s *Store) AssociationIterateFrom(ctx context.Context, name, docID string, proc func(toID string) error) error {
	a, err := s.assoc(name)
	if err != nil {
		return err
	}
	a.mu.RLock()
	matches := make([]string, 0)
	for _, k := range a.order {
		if k.fromID != docID {
			continue
		}
		if _, ok := a.present[k]; !ok {
			continue
		}
		matches = append(matches, k.toID)
	}
	a.mu.RUnlock()

	for _, toID := range matches {
		if err := proc(toID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AssociationIterateTo(ctx context.Context, name, docID string, proc func(fromID string) error) error {
	a, err := s.assoc(name)
	if err != nil {
		return err
	}
	a.mu.RLock()
	matches := make([]string, 0)
	for _, k := range a.order {
		if k.toID != docID {
			continue
		}
		if _, ok := a.present[k]; !ok {
			continue
		}
		matches = append(matches, k.fromID)
	}
	a.mu.RUnlock()

	for _, fromID := range matches {
		if err := proc(fromID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AssociationInfosFrom(ctx context.Context, name, anchorID string, startIndex, count int) (int, []string, error) {
	a, err := s.assoc(name)
	if err != nil {
		return 0, nil, err
	}
	if _, ok, err := s.DocumentInternalID(ctx, a.fromType, anchorID); err != nil {
		return 0, nil, err
	} else if !ok {
		return 0, nil, fmt.Errorf("%w: %s", backend.ErrNotFound, anchorID)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	matches := make([]string, 0)
	for _, k := range a.order {
		if k.fromID != anchorID {
			continue
		}
		if _, ok := a.present[k]; !ok {
			continue
		}
		matches = append(matches, k.toID)
	}
	return len(matches), paginate(matches, startIndex, count), nil
}

func (s *Store) AssociationInfosTo(ctx context.Context, name, anchorID string, startIndex, count int) (int, []string, error) {
	a, err := s.assoc(name)
	if err != nil {
		return 0, nil, err
	}
	if _, ok, err := s.DocumentInternalID(ctx, a.toType, anchorID); err != nil {
		return 0, nil, err
	} else if !ok {
		return 0, nil, fmt.Errorf("%w: %s", backend.ErrNotFound, anchorID)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	matches := make([]string, 0)
	for _, k := range a.order {
		if k.toID != anchorID {
			continue
		}
		if _, ok := a.present[k]; !ok {
			continue
		}
		matches = append(matches, k.fromID)
	}
	return len(matches), paginate(matches, startIndex, count), nil
}

func paginate(all []string, startIndex, count int) []string {
	if startIndex < 0 || startIndex >= len(all) {
		return nil
	}
	end := len(all)
	if count > 0 && startIndex+count < end {
		end = startIndex + count
	}
	return append([]string(nil), all[startIndex:end]...)
}

// AssociationUpdate applies add/remove edits. Remove is first-class and
// mirrors add exactly: removing a pair that is not present is a no-op, and
// re-adding a removed pair restores it.
func (s *Store) AssociationUpdate(ctx context.Context, name string, updates []backend.AssociationUpdate) error {
	a, err := s.assoc(name)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range updates {
		k := pairKey{fromID: u.FromID, toID: u.ToID}
		if u.Add {
			if _, ok := a.present[k]; ok {
				continue
			}
			a.present[k] = struct{}{}
			a.order = append(a.order, k)
		} else {
			if _, ok := a.present[k]; !ok {
				continue
			}
			delete(a.present, k)
			for i, o := range a.order {
				if o == k {
					a.order = append(a.order[:i], a.order[i+1:]...)
					break
				}
			}
		}
	}
	return nil
}
