package basisregisters

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/paulmach/orb"
)

func TestDecodePolygon(t *testing.T) {
	square := orb.Polygon{
		orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	}
	for _, tc := range []struct {
		name        string
		data        string
		expected    orb.Polygon
		expectedErr error
	}{
		{
			name:     "polygon",
			data:     `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`,
			expected: square,
		},
		{
			name:     "multipolygon",
			data:     `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]],[[[5,5],[6,5],[6,6],[5,5]]]]}`,
			expected: square,
		},
		{
			name:        "empty_multipolygon",
			data:        `{"type":"MultiPolygon","coordinates":[]}`,
			expectedErr: ErrNoBuilding,
		},
		{
			name:        "missing",
			expectedErr: ErrNoBuilding,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := decodePolygon([]byte(tc.data))
			if tc.expectedErr != nil {
				assert.IsError(t, err, tc.expectedErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}

	_, err := decodePolygon([]byte(`{"type":"Point","coordinates":[0,0]}`))
	assert.Error(t, err)
}
