// Package logging builds the process logger for Switchboard.
//
// Components accept a *slog.Logger and fall back to slog.Default() when
// given nil. New returns a logger whose handler:
//
//   - masks phone numbers, email addresses and card numbers in string
//     attributes and in the message (callers speak these aloud, and
//     utterances and booking slots are logged)
//   - adds call_id, tenant_id and request_id from the context when the
//     *Context logging methods are used
//
// Example:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json", RedactPII: true})
//	ctx = logging.WithCallID(ctx, callID)
//	logger.InfoContext(ctx, "turn routed", "route", "booking")
package logging
