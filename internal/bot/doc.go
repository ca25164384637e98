// ABOUTME: Package bot holds the conversation router, the frontend-agnostic core
// ABOUTME: Connectors feed it turns; it speaks back through the Responder

// Package bot contains the conversation core of helpline. The router takes
// normalized turns from any frontend connector, answers them from the
// knowledge base, and escalates unanswered questions to the expert team.
package bot
