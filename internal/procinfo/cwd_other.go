//go:build !linux && !darwin

package procinfo

import "context"

func platformCwd(context.Context, int) (string, bool) {
	return "", false
}
