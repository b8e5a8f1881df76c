package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRangeInclusiveDays(t *testing.T) {
	r, err := ParseDateRange("2024-03-01", "2024-03-02")
	require.NoError(t, err)

	assert.True(t, r.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.Contains(time.Date(2024, 3, 2, 23, 59, 59, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)))
}

func TestParseDateRangeOpenBounds(t *testing.T) {
	r, err := ParseDateRange("", "")
	require.NoError(t, err)
	assert.Nil(t, r.From)
	assert.Nil(t, r.To)
	assert.True(t, r.Contains(time.Now()))
}

func TestParseDateRangeRejectsInvalid(t *testing.T) {
	_, err := ParseDateRange("01/03/2024", "")
	require.Error(t, err)

	_, err = ParseDateRange("2024-03-05", "2024-03-01")
	require.EqualError(t, err, "dateTo is before dateFrom")
}

func TestPageSortField(t *testing.T) {
	tests := []struct {
		sort     string
		field    string
		wantDesc bool
	}{
		{sort: "", field: "date", wantDesc: true},
		{sort: "-date", field: "date", wantDesc: true},
		{sort: "total", field: "total", wantDesc: false},
		{sort: "-amount", field: "amount", wantDesc: true},
		{sort: "name; DROP TABLE", field: "date", wantDesc: true},
	}
	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			field, desc := Page{Sort: tt.sort}.SortField()
			assert.Equal(t, tt.field, field)
			assert.Equal(t, tt.wantDesc, desc)
		})
	}
}

func TestStatusParsing(t *testing.T) {
	status, err := ToOrderStatus("done")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusDone, status)
	assert.False(t, status.InProgress())

	_, err = ToOrderStatus("shipped")
	require.Error(t, err)

	txStatus, err := ToTransactionStatus("approved")
	require.NoError(t, err)
	assert.True(t, txStatus.IsTerminal())
	assert.False(t, TxStatusPending.IsTerminal())
}
