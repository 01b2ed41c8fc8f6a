package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mailflow/pkg/goutil"
)

func readyCampaign() *Campaign {
	return &Campaign{
		ID:         goutil.Uint64(1),
		Status:     CampaignStatusDraft,
		TemplateID: goutil.Uint64(10),
		ProviderID: goutil.Uint64(20),
		ListID:     goutil.Uint64(30),
		FromEmail:  goutil.String("news@example.com"),
		Subject:    goutil.String("Hello"),
	}
}

func TestCampaignCanEdit(t *testing.T) {
	c := readyCampaign()
	assert.NoError(t, c.CanEdit())

	for _, status := range []CampaignStatus{
		CampaignStatusScheduled,
		CampaignStatusSending,
		CampaignStatusSent,
		CampaignStatusFailed,
	} {
		c.Status = status
		assert.ErrorIs(t, c.CanEdit(), ErrCampaignNotEditable, CampaignStatuses[status])
	}
}

func TestCampaignCanSchedule(t *testing.T) {
	c := readyCampaign()
	future := uint64(time.Now().Add(time.Hour).Unix())
	past := uint64(time.Now().Add(-time.Hour).Unix())

	assert.NoError(t, c.CanSchedule(future))
	assert.ErrorIs(t, c.CanSchedule(past), ErrScheduleTimeInPast)

	c.Status = CampaignStatusSent
	assert.ErrorIs(t, c.CanSchedule(future), ErrCampaignNotSchedulable)
}

func TestCampaignCanCancel(t *testing.T) {
	c := readyCampaign()
	assert.ErrorIs(t, c.CanCancel(), ErrCampaignNotCancelable)

	c.Status = CampaignStatusScheduled
	assert.NoError(t, c.CanCancel())

	c.Status = CampaignStatusSending
	assert.ErrorIs(t, c.CanCancel(), ErrCampaignNotCancelable)
}

func TestCampaignValidateReady(t *testing.T) {
	assert.NoError(t, readyCampaign().ValidateReady())

	c := readyCampaign()
	c.TemplateID = nil
	assert.ErrorIs(t, c.ValidateReady(), ErrMissingTemplate)

	c = readyCampaign()
	c.ProviderID = nil
	assert.ErrorIs(t, c.ValidateReady(), ErrMissingProvider)

	c = readyCampaign()
	c.ListID = nil
	assert.ErrorIs(t, c.ValidateReady(), ErrMissingAudience)

	// a segment is as good as a list
	c.SegmentID = goutil.Uint64(40)
	assert.NoError(t, c.ValidateReady())

	c = readyCampaign()
	c.FromEmail = nil
	assert.ErrorIs(t, c.ValidateReady(), ErrMissingFromEmail)

	c = readyCampaign()
	c.Subject = goutil.String("")
	assert.ErrorIs(t, c.ValidateReady(), ErrMissingSubject)
}

func TestCampaignTrackingDefaults(t *testing.T) {
	c := new(Campaign)
	assert.True(t, c.GetTrackOpens())
	assert.True(t, c.GetTrackClicks())
	assert.True(t, c.GetRetryFailed())

	c.TrackOpens = goutil.Bool(false)
	c.TrackClicks = goutil.Bool(false)
	assert.False(t, c.GetTrackOpens())
	assert.False(t, c.GetTrackClicks())
}

func TestRecipientIsTerminal(t *testing.T) {
	r := &Recipient{Status: RecipientStatusPending}
	assert.False(t, r.IsTerminal())

	for _, status := range []RecipientStatus{
		RecipientStatusSent,
		RecipientStatusDelivered,
		RecipientStatusBounced,
		RecipientStatusComplained,
		RecipientStatusFailed,
	} {
		r.Status = status
		assert.True(t, r.IsTerminal(), RecipientStatuses[status])
	}
}
