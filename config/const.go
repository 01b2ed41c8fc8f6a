package config

const (
	PathHealthCheck    = "/"
	PathCreateCampaign = "/create_campaign"
	PathUpdateCampaign = "/update_campaign"
	PathGetCampaign    = "/get_campaign"
	PathGetCampaigns   = "/get_campaigns"
	PathDeleteCampaign = "/delete_campaign"

	PathScheduleCampaign = "/schedule_campaign"
	PathCancelCampaign   = "/cancel_campaign"
	PathSendCampaign     = "/send_campaign"

	PathGetCampaignStats = "/get_campaign_stats"
	PathGetDashboard     = "/get_dashboard"

	PathCreateContact = "/create_contact"
	PathGetContacts   = "/get_contacts"
)

// Raw paths, registered outside the /api/v1 envelope.
const (
	PathTrackOpen  = "/track/open/{tracking_id}"
	PathTrackClick = "/track/click/{short_code}"

	PathWebhookSES      = "/webhooks/ses"
	PathWebhookSendGrid = "/webhooks/sendgrid"
	PathWebhookSMTP     = "/webhooks/smtp"
)

const (
	DefaultPort   = 9090
	LogLevelDebug = "DEBUG"
)
