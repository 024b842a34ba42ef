package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/store"
)

// spyStore records the subtype passed to Evidence.
type spyStore struct {
	*store.MemoryStore
	evidenceFor []string
}

func (s *spyStore) Evidence(ctx context.Context, subtype string, device models.Device) ([]models.EvidenceItem, error) {
	s.evidenceFor = append(s.evidenceFor, subtype)
	return s.MemoryStore.Evidence(ctx, subtype, device)
}

func newService(t *testing.T) (*Service, *spyStore) {
	t.Helper()
	mem, err := store.NewMemoryStore(store.IndexSpec{Name: "idx", Dimensions: 4})
	require.NoError(t, err)
	_, err = mem.Import(context.Background(), &models.Catalog{CrimeSubtypes: []models.CatalogSubtype{
		{
			Name: "Cyberstalking",
			Evidence: []models.CatalogEvidence{{
				Name:         "Call logs",
				Significance: "Pattern of repeated contact",
				Locations: map[models.Device][]string{
					models.DeviceAndroid: {"/data/data/com.android.providers.contacts/databases/calllog.db"},
				},
			}},
		},
		{Name: "Identity theft"},
	}})
	require.NoError(t, err)
	spy := &spyStore{MemoryStore: mem}
	return NewService(spy, nil), spy
}

func TestResolve(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	name, ok, err := svc.ResolveExact(ctx, "Cyberstalking")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Cyberstalking", name)

	_, ok, err = svc.ResolveExact(ctx, "cyberstalking")
	require.NoError(t, err)
	assert.False(t, ok)

	name, ok, err = svc.ResolveFold(ctx, "cyberSTALKING")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Cyberstalking", name)

	name, ok, err = svc.Resolve(ctx, "identity THEFT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Identity theft", name)

	_, ok, err = svc.Resolve(ctx, "Ransomware")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookup_usesCanonicalName(t *testing.T) {
	svc, spy := newService(t)
	items, err := svc.Lookup(context.Background(), "cyberstalking", "Android")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Call logs", items[0].Name)
	assert.Equal(t, []string{"/data/data/com.android.providers.contacts/databases/calllog.db"}, items[0].Locations)
	assert.Equal(t, []string{"Cyberstalking"}, spy.evidenceFor)
}

func TestLookup_otherDeviceHasNoLocations(t *testing.T) {
	svc, _ := newService(t)
	items, err := svc.Lookup(context.Background(), "Cyberstalking", "windows")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].Locations)
}

func TestLookup_unknownSubtype(t *testing.T) {
	svc, spy := newService(t)
	items, err := svc.Lookup(context.Background(), "Ransomware", "windows")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Empty(t, spy.evidenceFor)
}

func TestLookup_invalidDevice(t *testing.T) {
	svc, spy := newService(t)
	_, err := svc.Lookup(context.Background(), "Cyberstalking", "ios")
	assert.ErrorIs(t, err, ErrInvalidDevice)
	assert.Empty(t, spy.evidenceFor)
}

func TestSubtypes(t *testing.T) {
	svc, _ := newService(t)
	names, err := svc.Subtypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Cyberstalking", "Identity theft"}, names)
}
