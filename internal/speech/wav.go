package speech

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// WAVDuration reads the playback length from a RIFF/WAVE header. A data
// chunk whose declared size exceeds the payload (streamed output, as written
// by espeak-ng --stdout) is measured by the bytes actually present.
func WAVDuration(data []byte) (time.Duration, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, errNotWAV
	}

	var byteRate uint32
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int64(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 > len(data) {
				return 0, fmt.Errorf("truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("data chunk before fmt chunk or zero byte rate")
			}
			avail := int64(len(data) - body)
			if size > avail {
				size = avail
			}
			return time.Duration(size) * time.Second / time.Duration(byteRate), nil
		}

		// chunks are word aligned
		next := int64(body) + size + size%2
		if next > int64(len(data)) {
			break
		}
		pos = int(next)
	}

	return 0, fmt.Errorf("no data chunk")
}
