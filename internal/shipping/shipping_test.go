package shipping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/backend/internal/domain"
)

func TestAreaForReturnsFirstMatch(t *testing.T) {
	lookup := New([]Area{
		{Name: "first", Price: 100, ZipList: []int{1000, 2000}},
		{Name: "second", Price: 200, ZipList: []int{2000}},
	})

	area, ok := lookup.AreaFor(2000)
	require.True(t, ok)
	assert.Equal(t, "first", area.Name)
	assert.Equal(t, int64(100), area.Price)
}

func TestAreaForUnknownZip(t *testing.T) {
	_, ok := Default().AreaFor(9999)
	assert.False(t, ok)
}

func TestDefaultTableCoversCapital(t *testing.T) {
	area, ok := Default().AreaFor(1001)
	require.True(t, ok)
	assert.Equal(t, "CABA", area.Name)
	assert.Equal(t, domain.ShippingMethod{ID: "moto", Name: "Mensajería en moto"}, area.Method)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "areas.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"area":"x","price":10,"method":{"id":"a","name":"b"},"zipList":[42]}]`), 0o600))

	lookup, err := Load(path)
	require.NoError(t, err)

	area, ok := lookup.AreaFor(42)
	require.True(t, ok)
	assert.Equal(t, "x", area.Name)
}

func TestLoadRejectsNegativePrice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "areas.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"area":"x","price":-1,"zipList":[42]}]`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
