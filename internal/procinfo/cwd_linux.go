package procinfo

import (
	"context"
	"os"
	"strconv"
)

func platformCwd(_ context.Context, pid int) (string, bool) {
	dir, err := os.Readlink("/proc/" + strconv.Itoa(pid) + "/cwd")
	if err != nil {
		return "", false
	}
	return dir, true
}
