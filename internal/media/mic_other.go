//go:build !linux

package media

import "context"

// openMicReader on platforms without mediadevices drivers sends paced opus
// silence so negotiation still carries a sendable audio track; the call
// becomes listen-only on this side.
func openMicReader(_ context.Context) (sampleReader, error) {
	return newSilenceReader(), nil
}
