package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mailflow/entity"
)

var hrefRegex = regexp.MustCompile(`href="(https?://[^"]+)"`)

// render produces the final HTML and text bodies for one recipient:
// variables substituted, links rewritten through the redirect endpoint
// and the open pixel appended.
func (d *Dispatcher) render(
	ctx context.Context,
	campaign *entity.Campaign,
	template *entity.Template,
	contact *entity.Contact,
	recipient *entity.Recipient,
) (string, string, error) {
	html := personalize(template.GetHtmlContent(), contact)
	text := personalize(template.GetTextContent(), contact)

	if campaign.GetTrackClicks() {
		var rewriteErr error
		html = hrefRegex.ReplaceAllStringFunc(html, func(match string) string {
			if rewriteErr != nil {
				return match
			}

			originalURL := hrefRegex.FindStringSubmatch(match)[1]
			link, err := d.linkRepo.FindOrCreate(ctx, campaign.GetID(), originalURL)
			if err != nil {
				rewriteErr = err
				return match
			}

			return fmt.Sprintf(`href="%s/track/click/%s?tid=%s"`,
				d.cfg.Tracking.BaseURL, link.GetShortCode(), recipient.GetTrackingID())
		})
		if rewriteErr != nil {
			return "", "", rewriteErr
		}
	}

	if campaign.GetTrackOpens() {
		pixel := fmt.Sprintf(`<img src="%s/track/open/%s" width="1" height="1" alt="" style="display:none"/>`,
			d.cfg.Tracking.BaseURL, recipient.GetTrackingID())

		if idx := strings.LastIndex(html, "</body>"); idx >= 0 {
			html = html[:idx] + pixel + html[idx:]
		} else {
			html += pixel
		}
	}

	return html, text, nil
}

func personalize(content string, contact *entity.Contact) string {
	return strings.NewReplacer(
		"{{first_name}}", contact.GetFirstName(),
		"{{last_name}}", contact.GetLastName(),
		"{{email}}", contact.GetEmail(),
	).Replace(content)
}
