package procinfo

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

func platformCwd(ctx context.Context, pid int) (string, bool) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", false
	}
	dir, err := p.CwdWithContext(ctx)
	if err != nil || dir == "" {
		return "", false
	}
	return dir, true
}
