// Package answer queries the external knowledge-base answering service and
// decides between a Found outcome and NotFound (the sentinel id -1 on the
// first candidate). Service errors are surfaced as failed turns, never
// collapsed into "no match".
package answer
