package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuedao/internal/models"
)

func TestRoundTripFund(t *testing.T) {
	in := models.Fund{
		Amount:    models.NewBalance(1500),
		Funder:    "alice.near",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out models.Fund
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, "1500", out.Amount.String())
	assert.Equal(t, in.Funder, out.Funder)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
}

func TestMarshal_Deterministic(t *testing.T) {
	log := models.Log{
		LogType: models.LogTypeComment,
		Message: "looks good",
		Status:  models.IssueStatusOpen,
		Sender:  "bob.near",
	}
	a, err := Marshal(log)
	require.NoError(t, err)
	b, err := Marshal(log)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestApplicantSeqNotEncoded(t *testing.T) {
	data, err := Marshal(models.Applicant{Seq: 7, Applicant: "carol.near"})
	require.NoError(t, err)

	var out models.Applicant
	require.NoError(t, Unmarshal(data, &out))
	assert.Zero(t, out.Seq)
	assert.Equal(t, models.Principal("carol.near"), out.Applicant)
}
