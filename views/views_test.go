package views

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipant(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Participant(&buf, ParticipantPage{
		Title:      "Study",
		CSRFToken:  "tok-123",
		Nonce:      "n0nce",
		PollWaitMS: 25000,
	}))
	out := buf.String()
	assert.Contains(t, out, `<title>Study</title>`)
	assert.Contains(t, out, `content="tok-123"`)
	assert.Contains(t, out, `content="25000"`)
	assert.Contains(t, out, `nonce="n0nce"`)
}

func TestCharts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Charts(&buf, ChartPage{
		Title: "Session s-1",
		Nonce: "n0nce",
		Charts: []Chart{{
			ID:      "precision",
			Options: map[string]interface{}{"title": map[string]interface{}{"text": "Precision"}},
		}},
	}))
	out := buf.String()
	assert.Contains(t, out, `id="precision"`)
	assert.Contains(t, out, `"Precision"`)
	assert.Contains(t, out, `<script nonce="n0nce">`)
}

func TestStatic(t *testing.T) {
	f, err := Static().Open("experiment.js")
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.NotEmpty(t, body)

	_, err = Static().Open("missing.js")
	assert.Error(t, err)
}
