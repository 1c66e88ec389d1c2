package mds_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend/ephemeral"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/mds"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

func newTestStore(t *testing.T) *mds.Store {
	t.Helper()
	b := ephemeral.NewStore()
	s := mds.NewStore(b)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestDocumentLifecycle covers spec §8 scenario 1: create, read, update,
// remove, and that removal tombstones rather than deletes.
func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateDocument(ctx, "thing", "", value.Dictionary{
		"n": value.NewUInt32(3),
		"s": value.NewString("hi"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := s.GetDocument(ctx, "thing", id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, doc.Revision)
	n, err := doc.Properties["n"].UInt32()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, s.UpdateDocument(ctx, "thing", id, value.Dictionary{"n": value.NewUInt32(5)}, nil))
	doc, err = s.GetDocument(ctx, "thing", id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, doc.Revision)
	n, err = doc.Properties["n"].UInt32()
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	require.NoError(t, s.RemoveDocument(ctx, "thing", id))

	var seen []string
	require.NoError(t, s.DocumentIterate(ctx, "thing", 0, true, func(v mds.DocumentView) error {
		seen = append(seen, v.ID)
		return nil
	}))
	assert.Empty(t, seen)

	doc, err = s.GetDocument(ctx, "thing", id)
	require.NoError(t, err)
	assert.False(t, doc.Active)
}

// TestCollectionIncremental covers spec §8 scenario 2.
func TestCollectionIncremental(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.RegisterIsIncludedPerformer("n-positive", func(doc mds.DocumentView, _ map[string]string) bool {
		n, ok := doc.Value("n")
		if !ok {
			return false
		}
		v, err := n.Int32()
		return err == nil && v > 0
	})
	require.NoError(t, s.RegisterCollection(ctx, "positives", "thing", []string{"n"}, "n-positive", 1))

	neg, err := s.CreateDocument(ctx, "thing", "", value.Dictionary{"n": value.NewInt32(-1)})
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, "thing", "", value.Dictionary{"n": value.NewInt32(0)})
	require.NoError(t, err)
	pos, err := s.CreateDocument(ctx, "thing", "", value.Dictionary{"n": value.NewInt32(2)})
	require.NoError(t, err)

	count, err := s.CollectionDocumentCount(ctx, "positives")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.UpdateDocument(ctx, "thing", neg, value.Dictionary{"n": value.NewInt32(7)}, nil))
	count, err = s.CollectionDocumentCount(ctx, "positives")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, s.RemoveDocument(ctx, "thing", pos))
	count, err = s.CollectionDocumentCount(ctx, "positives")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestIndexKeyUniqueness covers spec §8 scenario 3: last writer wins per key.
func TestIndexKeyUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.RegisterKeysPerformer("by-s", func(doc mds.DocumentView, _ map[string]string) []string {
		v, ok := doc.Value("s")
		if !ok {
			return nil
		}
		str, err := v.String()
		if err != nil {
			return nil
		}
		return []string{str}
	})
	require.NoError(t, s.RegisterIndex(ctx, "byS", "thing", []string{"s"}, "by-s", 1))

	d1, err := s.CreateDocument(ctx, "thing", "", value.Dictionary{"s": value.NewString("a")})
	require.NoError(t, err)
	d2, err := s.CreateDocument(ctx, "thing", "", value.Dictionary{"s": value.NewString("b")})
	require.NoError(t, err)

	byKey, err := s.IndexLookup(ctx, "byS", "thing", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": d1, "b": d2}, byKey)

	require.NoError(t, s.UpdateDocument(ctx, "thing", d2, value.Dictionary{"s": value.NewString("a")}, nil))
	byKey, err = s.IndexLookup(ctx, "byS", "thing", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": d2}, byKey)
}

// TestBatchCancelDiscardsEverything covers spec §8 scenario 4.
func TestBatchCancelDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cancelErr := errors.New("cancel")
	var pendingID string
	err := s.Batch(ctx, func(ctx context.Context) error {
		id, err := s.CreateDocument(ctx, "thing", "", value.Dictionary{"n": value.NewInt32(1)})
		require.NoError(t, err)
		pendingID = id
		require.NoError(t, s.UpdateDocument(ctx, "thing", id, value.Dictionary{"n": value.NewInt32(2)}, nil))

		doc, err := s.GetDocument(ctx, "thing", id)
		require.NoError(t, err)
		n, err := doc.Properties["n"].Int32()
		require.NoError(t, err)
		assert.EqualValues(t, 2, n, "batch reads should reflect the batch's own writes")

		return cancelErr
	})
	assert.ErrorIs(t, err, cancelErr)

	_, err = s.GetDocument(ctx, "thing", pendingID)
	var se *mds.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, mds.ErrorKindUnknownDocumentID, se.Kind)
}

// TestBatchCommitIdempotence covers spec §8: committing an empty batch is a
// no-op.
func TestBatchCommitIdempotence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var notified bool
	s.Notify(func(string, []string) { notified = true })

	require.NoError(t, s.Batch(ctx, func(ctx context.Context) error { return nil }))
	assert.False(t, notified)
}

// TestAssociationCacheSum covers spec §8 scenario 5, including in-batch
// visibility and cancel reverting to the pre-batch total.
func TestAssociationCacheSum(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.RegisterValuePerformer("price", func(doc mds.DocumentView, _ map[string]string) int64 {
		v, ok := doc.Value("price")
		if !ok {
			return 0
		}
		n, _ := v.Int64()
		return n
	})
	require.NoError(t, s.RegisterCache(ctx, "prices", "item", []string{"price"},
		[]backend.CacheValueInfo{{Name: "price", SelectorID: "price"}}, 1))
	require.NoError(t, s.RegisterAssociation(ctx, "A", "order", "item"))

	item1, err := s.CreateDocument(ctx, "item", "", value.Dictionary{"price": value.NewInt64(10)})
	require.NoError(t, err)
	item2, err := s.CreateDocument(ctx, "item", "", value.Dictionary{"price": value.NewInt64(20)})
	require.NoError(t, err)
	item3, err := s.CreateDocument(ctx, "item", "", value.Dictionary{"price": value.NewInt64(30)})
	require.NoError(t, err)
	order, err := s.CreateDocument(ctx, "order", "", nil)
	require.NoError(t, err)

	require.NoError(t, s.AssociationUpdate(ctx, "A", []mds.AssociationItem{
		{FromID: order, ToID: item1}, {FromID: order, ToID: item2}, {FromID: order, ToID: item3},
	}, nil))

	sums, err := s.AssociationIntegerValues(ctx, "A", "prices", []string{order}, []string{"price"})
	require.NoError(t, err)
	assert.EqualValues(t, 60, sums["price"])

	item4, err := s.CreateDocument(ctx, "item", "", value.Dictionary{"price": value.NewInt64(5)})
	require.NoError(t, err)

	cancelErr := errors.New("cancel")
	err = s.Batch(ctx, func(ctx context.Context) error {
		require.NoError(t, s.AssociationUpdate(ctx, "A", []mds.AssociationItem{{FromID: order, ToID: item4}}, nil))

		sums, err := s.AssociationIntegerValues(ctx, "A", "prices", []string{order}, []string{"price"})
		require.NoError(t, err)
		assert.EqualValues(t, 65, sums["price"], "in-batch sum should include the batched link")
		return cancelErr
	})
	assert.ErrorIs(t, err, cancelErr)

	sums, err = s.AssociationIntegerValues(ctx, "A", "prices", []string{order}, []string{"price"})
	require.NoError(t, err)
	assert.EqualValues(t, 60, sums["price"], "cancel should leave the sum unchanged")

	order2, err := s.CreateDocument(ctx, "order", "", nil)
	require.NoError(t, err)
	require.NoError(t, s.AssociationUpdate(ctx, "A", []mds.AssociationItem{
		{FromID: order2, ToID: item1}, {FromID: order2, ToID: item2},
	}, nil))

	sums, err = s.AssociationIntegerValues(ctx, "A", "prices", []string{order, order2}, []string{"price"})
	require.NoError(t, err)
	assert.EqualValues(t, 60, sums["price"], "item shared by two anchors must be counted once in the union sum")
}

// TestAttachmentLifecycle covers spec §8 scenario 6.
func TestAttachmentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateDocument(ctx, "thing", "", nil)
	require.NoError(t, err)

	attID, err := s.AttachmentAdd(ctx, "thing", id, map[string]string{"kind": "text"}, []byte("hello"))
	require.NoError(t, err)

	content, err := s.AttachmentContent(ctx, "thing", id, attID)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	rev, err := s.AttachmentUpdate(ctx, "thing", id, attID, map[string]string{"kind": "text"}, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, rev)

	require.NoError(t, s.AttachmentRemove(ctx, "thing", id, attID))

	infos, err := s.AttachmentInfos(ctx, "thing", id)
	require.NoError(t, err)
	_, ok := infos[attID]
	assert.False(t, ok)

	_, err = s.AttachmentContent(ctx, "thing", id, attID)
	var se *mds.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, mds.ErrorKindUnknownAttachmentID, se.Kind)
}

// TestValueWrongTypeAccessor covers spec §8: reading a property via the
// wrong typed accessor fails without mutating state.
func TestValueWrongTypeAccessor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateDocument(ctx, "thing", "", value.Dictionary{"n": value.NewUInt32(3)})
	require.NoError(t, err)

	doc, err := s.GetDocument(ctx, "thing", id)
	require.NoError(t, err)
	_, err = doc.Properties["n"].String()
	assert.ErrorIs(t, err, value.ErrWrongType)

	doc2, err := s.GetDocument(ctx, "thing", id)
	require.NoError(t, err)
	assert.True(t, doc.Properties["n"].Equal(doc2.Properties["n"]))
}

// TestAssociationRoundTrip covers spec §8: add/remove/add restores exactly
// once, and re-registration with mismatched types fails.
func TestAssociationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RegisterAssociation(ctx, "A", "order", "item"))

	err := s.RegisterAssociation(ctx, "A", "order", "other")
	var se *mds.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, mds.ErrorKindMismatchedAssociationTypes, se.Kind)

	order, err := s.CreateDocument(ctx, "order", "", nil)
	require.NoError(t, err)
	item, err := s.CreateDocument(ctx, "item", "", nil)
	require.NoError(t, err)
	pair := []mds.AssociationItem{{FromID: order, ToID: item}}

	require.NoError(t, s.AssociationUpdate(ctx, "A", pair, nil))
	require.NoError(t, s.AssociationUpdate(ctx, "A", nil, pair))
	items, err := s.AssociationItems(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, s.AssociationUpdate(ctx, "A", pair, nil))
	items, err = s.AssociationItems(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, pair, items)

	err = s.AssociationUpdate(ctx, "A", []mds.AssociationItem{{FromID: order, ToID: "missing-item"}}, nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, mds.ErrorKindUnknownDocumentID, se.Kind)
}

// TestAssociationFromToUnknownAnchor covers spec §4.4: paginated lookups
// fail with UnknownDocumentID when the anchor isn't in persistence, and
// succeed (possibly with zero results) for a known one.
func TestAssociationFromToUnknownAnchor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RegisterAssociation(ctx, "A", "order", "item"))

	order, err := s.CreateDocument(ctx, "order", "", nil)
	require.NoError(t, err)
	item, err := s.CreateDocument(ctx, "item", "", nil)
	require.NoError(t, err)
	require.NoError(t, s.AssociationUpdate(ctx, "A",
		[]mds.AssociationItem{{FromID: order, ToID: item}}, nil))

	total, toIDs, err := s.AssociationFrom(ctx, "A", order, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{item}, toIDs)

	total, fromIDs, err := s.AssociationTo(ctx, "A", item, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{order}, fromIDs)

	var se *mds.StoreError
	_, _, err = s.AssociationFrom(ctx, "A", "missing-order", 0, 0)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, mds.ErrorKindUnknownDocumentID, se.Kind)

	_, _, err = s.AssociationTo(ctx, "A", "missing-item", 0, 0)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, mds.ErrorKindUnknownDocumentID, se.Kind)
}

// TestAssociationRevisionAndFullInfos covers spec §6.1's
// getDocumentRevisionInfosFrom/To and getDocumentFullInfosFrom/To: the
// paginated lookups return {docID, revision} pairs and full document views,
// not bare ids.
func TestAssociationRevisionAndFullInfos(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RegisterAssociation(ctx, "A", "order", "item"))

	order, err := s.CreateDocument(ctx, "order", "", nil)
	require.NoError(t, err)
	item, err := s.CreateDocument(ctx, "item", "", value.Dictionary{"name": value.NewString("widget")})
	require.NoError(t, err)
	require.NoError(t, s.AssociationUpdate(ctx, "A",
		[]mds.AssociationItem{{FromID: order, ToID: item}}, nil))

	itemView, err := s.GetDocument(ctx, "item", item)
	require.NoError(t, err)

	total, revInfos, err := s.AssociationRevisionInfosFrom(ctx, "A", order, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, revInfos, 1)
	assert.Equal(t, item, revInfos[0].DocID)
	assert.Equal(t, itemView.Revision, revInfos[0].Revision)

	total, fullInfos, err := s.AssociationFullInfosFrom(ctx, "A", order, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, fullInfos, 1)
	assert.Equal(t, item, fullInfos[0].ID)
	v, ok := fullInfos[0].Value("name")
	require.True(t, ok)
	assert.Equal(t, value.NewString("widget"), v)

	total, revInfosTo, err := s.AssociationRevisionInfosTo(ctx, "A", item, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, revInfosTo, 1)
	assert.Equal(t, order, revInfosTo[0].DocID)

	var se *mds.StoreError
	_, _, err = s.AssociationRevisionInfosFrom(ctx, "A", "missing-order", 0, 0)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, mds.ErrorKindUnknownDocumentID, se.Kind)
}
