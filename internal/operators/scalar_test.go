package operators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScalarsEqual(t *testing.T) {
	tests := []struct {
		name string
		got  any
		want any
		eq   bool
	}{
		{"int64 vs int", int64(0), 0, true},
		{"bool vs string", true, "true", true},
		{"redshift t vs bool", "t", true, true},
		{"numeric text vs int", "1000.00", 1000, true},
		{"bytes vs string", []byte(" abc "), "abc", true},
		{"float vs int", float64(3), int64(3), true},
		{"fraction", 2.5, "2.5", true},
		{"mismatch", int64(3), 0, false},
		{"bool mismatch", false, "true", false},
		{"nil", nil, 0, false},
		{"nil vs nil", nil, nil, true},
		{"text", "DE", "DE", true},
		{"case sensitive text", "de", "DE", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eq, ScalarsEqual(tt.got, tt.want))
		})
	}
}

func TestFormatScalar_Time(t *testing.T) {
	ts := time.Date(2020, 5, 27, 5, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2020-05-27T03:00:00Z", FormatScalar(ts))
}
