// Package protocol implements the AT console wire conventions: outbound
// frame splitting, command validation and notification rendering.
package protocol

// MaxFrameSize is the largest payload written to the characteristic in a
// single operation (the default ATT MTU of 23 minus the 3-byte header).
const MaxFrameSize = 20

// SplitFrames splits data into consecutive frames of at most size bytes.
// Concatenating the frames reproduces data exactly. Returns nil for empty
// data or a non-positive size.
func SplitFrames(data []byte, size int) [][]byte {
	if len(data) == 0 || size <= 0 {
		return nil
	}

	frames := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > 0 {
		n := min(size, len(data))
		// Full slice expression so an append to one frame cannot clobber the next.
		frames = append(frames, data[:n:n])
		data = data[n:]
	}
	return frames
}
