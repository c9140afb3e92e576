package email

import (
	"fmt"
	"html"
	"time"
)

// BuildSyncFailureBody builds the HTML body for a sync failure alert
func BuildSyncFailureBody(businessID, detail string, at time.Time) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #c0392b; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Sync failure</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">A queued operation could not be synchronized and was marked failed. The device will retry it on the next drain, but the underlying cause may need attention.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Business</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Detail</p>
			<p style="margin: 5px 0 0 0;">%s</p>
		</div>

		<p style="font-size: 14px; color: #666;">Reported at %s</p>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This email was sent automatically by the sync notifier.
		</p>
	</div>
</body>
</html>`, html.EscapeString(businessID), html.EscapeString(detail), at.Format(time.RFC3339))
}
