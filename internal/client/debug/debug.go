package debug

import (
	"fmt"
	"os"
	"time"
)

var Enabled = os.Getenv("FORUMSYNC_DEBUG") != ""

// Log appends to forumsync-debug.log only if debug mode is enabled. The TUI
// owns stdout, so this file is the only place the client may write freely.
func Log(format string, args ...interface{}) {
	if !Enabled {
		return
	}
	f, err := os.OpenFile("forumsync-debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, time.Now().Format("15:04:05.000 ")+format+"\n", args...)
}
