package waifuvault

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionPeriodUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want RetentionPeriod
	}{
		{name: "milliseconds", raw: `3600000`, want: RetentionMillis(3600000)},
		{name: "float milliseconds", raw: `1500.0`, want: RetentionMillis(1500)},
		{name: "formatted", raw: `"59 minutes 59 seconds"`, want: RetentionFormatted("59 minutes 59 seconds")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got RetentionPeriod
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetentionPeriodRejectsOtherTypes(t *testing.T) {
	var got RetentionPeriod
	assert.Error(t, json.Unmarshal([]byte(`{"ms":1}`), &got))
	assert.Error(t, json.Unmarshal([]byte(`true`), &got))
}

func TestRetentionPeriodKeepsWireForm(t *testing.T) {
	data, err := json.Marshal(RetentionMillis(42))
	require.NoError(t, err)
	assert.Equal(t, `42`, string(data))

	data, err = json.Marshal(RetentionFormatted("1 day"))
	require.NoError(t, err)
	assert.Equal(t, `"1 day"`, string(data))
}

func TestRetentionPeriodDuration(t *testing.T) {
	assert.Equal(t, time.Hour, RetentionMillis(3600000).Duration())
	assert.Equal(t, "1h0m0s", RetentionMillis(3600000).String())
	assert.Zero(t, RetentionFormatted("1 hour").Duration())
	assert.Equal(t, "1 hour", RetentionFormatted("1 hour").String())
}
