package geojson_test

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/forecast/geojson"
)

func TestDecoder_Malformed(t *testing.T) {
	dec := geojson.NewDecoder(zerolog.New(io.Discard))

	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>Error</html>`},
		{"missing features", `{"type": "FeatureCollection"}`},
		{"wrong type", `{"type": "Feature", "features": []}`},
		{"features not array", `{"type": "FeatureCollection", "features": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dec.Decode([]byte(tt.body))
			assert.ErrorIs(t, err, forecast.ErrSnapshotMalformed)
		})
	}
}

func TestDecoder_EmptyCollection(t *testing.T) {
	records, err := geojson.NewDecoder(zerolog.New(io.Discard)).Decode([]byte(`{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecoder_StringValuesAndBadGeometry(t *testing.T) {
	body := `{"features":[{"geometry":{"coordinates":[500,500]},"properties":{
		"Site_Name":"Accra","UTC_DATE":"2024-06-10 00:00:00","Station":"GH1",
		"_3HR_AQI(430)":"55","note":"n/a","Lat":5.6,"Lon":-0.2}}]}`

	records, err := geojson.NewDecoder(zerolog.New(io.Discard)).Decode([]byte(body))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "GH1", r.Reading.Station)
	assert.Equal(t, map[string]float64{"_3HR_AQI(430)": 55}, r.Reading.Fields)
	assert.Nil(t, r.Coordinate)
}
