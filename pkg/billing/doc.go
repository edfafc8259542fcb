// Package billing keeps each organization's plan and subscription fields in
// step with the payment processor.
//
// Inbound webhook deliveries are verified with HMAC-SHA256 over
// "{timestamp}.{raw body}" before anything else happens. Subscription events
// are attributed through metadata.org_id only; checkout completions through
// the client reference captured when the session was created. Every applied
// event overwrites the latest known fields, so replays leave the row as it
// was apart from updated_at.
//
// Price ids map to plan tiers through a PriceTable, built from the
// environment and optionally merged with a YAML file that is reloaded when
// it changes. Unknown prices leave the plan unchanged.
package billing
