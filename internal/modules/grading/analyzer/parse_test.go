package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want string
		ok   bool
	}{
		"bare":        {`{"a":1}`, `{"a":1}`, true},
		"fenced":      {"Here you go:\n```json\n{\"a\":1}\n```\nthanks", `{"a":1}`, true},
		"fenced bare": {"```\n{\"a\":2}\n```", `{"a":2}`, true},
		"prose":       {`The result is {"a":3} as requested.`, `{"a":3}`, true},
		"first fence": {"```json\n{\"a\":1}\n```\n```json\n{\"a\":2}\n```", `{"a":1}`, true},
		"no object":   {"sorry, I cannot read this image", "", false},
		"empty":       {"", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := ExtractJSON(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

type decodeTarget struct {
	Subject string `json:"subject" validate:"required"`
	Items   []struct {
		Number string `json:"number" validate:"required"`
	} `json:"items" validate:"dive"`
}

func TestDecode(t *testing.T) {
	out, err := Decode[decodeTarget]("```json\n{\"subject\":\"Math\",\"items\":[{\"number\":\"1\"}]}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Math", out.Subject)
	require.Len(t, out.Items, 1)

	_, err = Decode[decodeTarget](`{"subject":""}`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode[decodeTarget](`{"subject":"Math","items":[{"number":""}]}`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode[decodeTarget](`{"subject": "Math",`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode[decodeTarget]("no json here")
	assert.ErrorIs(t, err, ErrMalformed)
}
