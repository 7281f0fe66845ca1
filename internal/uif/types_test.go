package uif

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequest_Validate(t *testing.T) {
	tooMany := -1

	cases := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"empty request", Request{}, true},
		{"messages only", Request{Messages: []Message{{Role: RoleUser}}}, false},
		{"system only", Request{System: []Content{{Kind: ContentText, Text: "hi"}}}, false},
		{"negative max tokens", Request{Messages: []Message{{Role: RoleUser}}, MaxTokens: &tooMany}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUsage_Total(t *testing.T) {
	cacheRead := 10
	reasoning := 5

	u := Usage{
		InputTokens:          100,
		OutputTokens:         50,
		CacheReadInputTokens: &cacheRead,
		ReasoningTokens:      &reasoning,
	}

	assert.Equal(t, 165, u.Total())
}

func TestUsage_Total_NoOptionalFields(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 20}
	assert.Equal(t, 30, u.Total())
}
