package gosocks

import (
	"iter"
	"strings"
)

// FrameSeparator joins envelopes the server batches into a single frame.
const FrameSeparator = "}+{"

// Split returns the envelopes contained in one raw frame, in order.
//
// A frame without FrameSeparator yields itself unchanged. Otherwise the frame
// is cut at every separator and each fragment gets back the braces the cut
// consumed.
//
// Known limitation: a JSON string value that literally contains "}+{" is
// indistinguishable from a separator and will be split.
func Split(raw string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := raw
		first := true
		for {
			i := strings.Index(rest, FrameSeparator)
			if i < 0 {
				if first {
					yield(rest)
				} else {
					yield("{" + rest)
				}
				return
			}

			var part string
			if first {
				part = rest[:i] + "}"
			} else {
				part = "{" + rest[:i] + "}"
			}
			if !yield(part) {
				return
			}
			rest = rest[i+len(FrameSeparator):]
			first = false
		}
	}
}
