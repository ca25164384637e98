// Package escalate coordinates the two-sided escalation handshake: it builds
// the ticket from a submission, creates a brand-new conversation in the
// expert audience carrying the notification card, and resolves the
// transport's one-shot completion callback into an awaited result that the
// caller uses to correlate the ticket. Delivery is single-shot: no retries
// live here.
package escalate
