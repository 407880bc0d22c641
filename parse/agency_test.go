package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAgency(t *testing.T) {
	for _, tc := range []struct {
		name      string
		content   string
		agencyIDs map[string]bool
		timezone  string
		err       bool
	}{
		{
			"minimal",
			`
agency_name,agency_url,agency_timezone
Agency Name,http://www.example.com,America/Costa_Rica`,
			map[string]bool{"": true},
			"America/Costa_Rica",
			false,
		},

		{
			"multiple agencies",
			`
agency_id,agency_name,agency_url,agency_timezone
1,Agency One,http://www.example.com/one,America/Costa_Rica
2,Agency Two,http://www.example.com/two,America/Costa_Rica`,
			map[string]bool{"1": true, "2": true},
			"America/Costa_Rica",
			false,
		},

		{
			"missing agency_name",
			`
agency_id,agency_url,agency_timezone
1,http://www.example.com,America/Costa_Rica`,
			nil, "", true,
		},

		{
			"missing agency_url",
			`
agency_id,agency_name,agency_timezone
1,Agency Name,America/Costa_Rica`,
			nil, "", true,
		},

		{
			"missing agency_timezone",
			`
agency_id,agency_name,agency_url
1,Agency Name,http://www.example.com`,
			nil, "", true,
		},

		{
			"invalid agency_timezone",
			`
agency_id,agency_name,agency_url,agency_timezone
1,Agency Name,http://www.example.com,Mars/Olympus_Mons`,
			nil, "", true,
		},

		{
			"multiple timezones",
			`
agency_id,agency_name,agency_url,agency_timezone
1,Agency One,http://www.example.com/one,America/Costa_Rica
2,Agency Two,http://www.example.com/two,America/New_York`,
			nil, "", true,
		},

		{
			"multiple agencies, with duplicate IDs",
			`
agency_id,agency_name,agency_url,agency_timezone
1,Agency One,http://www.example.com/one,America/Costa_Rica
1,Agency Two,http://www.example.com/two,America/Costa_Rica`,
			nil, "", true,
		},

		{
			"csv without records",
			`
agency_id,agency_name,agency_url,agency_timezone`,
			nil, "", true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			agency, tz, err := ParseAgency(bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.agencyIDs, agency)
			assert.Equal(t, tc.timezone, tz)
		})
	}
}
