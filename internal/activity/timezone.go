package activity

import "time"

// callerServerDelta converts a caller-supplied UTC-offset hint (signed
// hours) into the delta between the server's zone and the caller's zone:
// delta = server current UTC offset - caller offset. Adding the delta maps a
// caller-local date into the server-local stored timestamp space;
// subtracting it presents stored timestamps back in the caller's clock.
//
// The delta is recomputed from the current moment on every call so it tracks
// daylight-saving transitions of the server's own zone; callers must not
// cache it across a report's date range.
func callerServerDelta(callerOffsetHours float64) time.Duration {
	_, serverOffsetSec := time.Now().Zone()
	return time.Duration(serverOffsetSec)*time.Second - time.Duration(callerOffsetHours*float64(time.Hour))
}
