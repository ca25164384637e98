// Package turn defines the normalized inbound conversational event and the
// payload classifier that maps card submissions onto a closed tagged union.
//
// The transport adapter decodes raw platform JSON into a CardValue before a
// Turn reaches this package, so classification works on known fields instead
// of duck-typed maps. Classify is pure and total: anything unrecognized is
// ShapeUnknown, never an error.
package turn
