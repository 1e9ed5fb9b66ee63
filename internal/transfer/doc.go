// Package transfer implements the consent-based file transfer protocol that
// runs over an established peer channel.
//
// Text messages carry JSON control messages:
//
//	{"type":"file-request","name":"a.txt","size":10,"checksum":"<blake3 hex>"}
//	{"type":"file-accept"}
//	{"type":"file-reject"}
//
// Binary messages carry raw file bytes in order, ChunkSize bytes each except
// the last. The checksum field is optional; peers that omit it get no
// integrity check.
package transfer
