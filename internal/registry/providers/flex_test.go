package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexString(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
		D FlexString `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"62.01-5-01","b":6201501,"c":null}`), &v))
	assert.Equal(t, FlexString("62.01-5-01"), v.A)
	assert.Equal(t, FlexString("6201501"), v.B)
	assert.Nil(t, v.C.Ptr())
	assert.Nil(t, v.D.Ptr())
}

func TestFlexFloat(t *testing.T) {
	cases := map[string]struct {
		raw   string
		want  float64
		valid bool
	}{
		"number":            {`1500000.5`, 1500000.5, true},
		"dotted string":     {`"1000.00"`, 1000, true},
		"brazilian decimal": {`"1.000,50"`, 1000.5, true},
		"null":              {`null`, 0, false},
		"garbage":           {`"n/a"`, 0, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var f FlexFloat
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &f))
			assert.Equal(t, tc.valid, f.Valid)
			if tc.valid {
				require.NotNil(t, f.Ptr())
				assert.InDelta(t, tc.want, *f.Ptr(), 0.0001)
			} else {
				assert.Nil(t, f.Ptr())
			}
		})
	}
}
