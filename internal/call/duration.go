package call

import (
	"fmt"
	"time"
)

// ZeroDuration is what the UI shows outside an active call.
const ZeroDuration = "00:00"

// FormatDuration renders elapsed connected time as zero-padded minutes and
// seconds. Minutes keep counting past 59; there is no hour component.
func FormatDuration(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	total := int64(elapsed / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
