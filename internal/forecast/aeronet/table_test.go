package aeronet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/forecast/aeronet"
	"github.com/aqforecast/aqforecast/internal/tabular"
)

func TestTextContent(t *testing.T) {
	text, err := aeronet.TextContent([]byte(`<html><script>var x = "a,b";</script><p>a,b&amp;c</p>
<p>1,2</p></html>`))
	require.NoError(t, err)
	assert.Equal(t, "a,b&c\n1,2", text)

	plain, err := aeronet.TextContent([]byte("x,y\n1,2"))
	require.NoError(t, err)
	assert.Equal(t, "x,y\n1,2", plain)
}

func TestSkipLines(t *testing.T) {
	assert.Equal(t, "c\nd", aeronet.SkipLines("a\r\nb\nc\nd", 2))
	assert.Equal(t, "", aeronet.SkipLines("a\nb", 2))
	assert.Equal(t, "", aeronet.SkipLines("a", 5))
}

func TestContainsError(t *testing.T) {
	assert.True(t, aeronet.ContainsError([]byte("Error: invalid date")))
	assert.False(t, aeronet.ContainsError([]byte("Site_Name,UTC_DATE")))
}

func TestRowsToRecords(t *testing.T) {
	rows := []tabular.Row{
		{"Site_Name": "Accra", "UTC_DATE": "2024-06-10", "Station": "GH1", "DAILY_AQI": "44", "Flag": "x"},
		{"Site_Name": "", "UTC_DATE": "2024-06-10"},
		{"Site_Name": "Accra", "UTC_DATE": "soon"},
		{"Site_Name": "Accra", "UTC_DATE": "2024-06-11", "DAILY_AQI": "NaN"},
	}

	records, skipped := aeronet.RowsToRecords(rows)
	assert.Equal(t, 2, skipped)
	require.Len(t, records, 2)
	assert.Equal(t, map[string]float64{"DAILY_AQI": 44}, records[0].Reading.Fields)
	assert.Empty(t, records[1].Reading.Fields)
}
