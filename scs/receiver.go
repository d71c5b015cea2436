package scs

import (
	"bytes"
	"time"
)

// ByteSource delivers received bytes. Read returns at most maxLen bytes and
// gives up when the deadline passes, returning whatever arrived.
type ByteSource interface {
	Read(maxLen int, deadline time.Time) []byte
}

// ReceiveFrame runs the receive state machine against src until a complete
// frame with a valid checksum is buffered or the deadline passes.
//
// Bytes preceding a header are discarded, so noise ahead of a frame does not
// prevent it from being recognised. A deadline with nothing ever received is
// RxTimeout; a deadline with some bytes received is RxCorrupt.
func (c *Codec) ReceiveFrame(src ByteSource, deadline time.Time) (Frame, CommResult) {
	var buf []byte
	want := MinFrameLength
	seen := false

	expired := func() (Frame, CommResult) {
		if !seen {
			return nil, RxTimeout
		}
		return nil, RxCorrupt
	}

	for {
		if len(buf) < want {
			chunk := src.Read(want-len(buf), deadline)
			if len(chunk) > 0 {
				seen = true
				buf = append(buf, chunk...)
			}
			if len(buf) < want {
				if !time.Now().Before(deadline) {
					return expired()
				}
				continue
			}
		}

		idx := headerIndex(buf)
		switch {
		case idx == 0:
			id, length := buf[2], int(buf[3])
			if id > 0xFD || length > MaxFrameLength {
				// 0xFF 0xFF inside payload data, not a real header.
				buf = buf[1:]
				want = MinFrameLength
				break
			}

			total := length + 4
			if total < MinFrameLength {
				return nil, RxCorrupt
			}
			if want != total {
				want = total
				continue
			}

			frame := make(Frame, total)
			copy(frame, buf[:total])
			if checksum(frame[2:total-1]) != frame.Checksum() {
				return nil, RxCorrupt
			}
			return frame, Success

		case idx > 0:
			buf = buf[idx:]
			want = MinFrameLength

		default:
			// Keep a trailing 0xFF, it may be the first half of a header.
			if buf[len(buf)-1] == headerByte {
				buf = buf[len(buf)-1:]
			} else {
				buf = buf[:0]
			}
			want = MinFrameLength
		}

		if !time.Now().Before(deadline) && len(buf) < want {
			return expired()
		}
	}
}

var header = []byte{headerByte, headerByte}

func headerIndex(buf []byte) int {
	return bytes.Index(buf, header)
}
