package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironForcesTerminalVariables(t *testing.T) {
	env := Environ(
		[]string{"PATH=/usr/bin", "TERM=dumb", "HOME=/home/u"},
		[]string{"HOME=/tmp", "EDITOR=vi"},
	)
	assert.Equal(t, []string{
		"PATH=/usr/bin",
		"TERM=xterm-256color",
		"HOME=/tmp",
		"EDITOR=vi",
		"COLORTERM=truecolor",
		"LANG=en_US.UTF-8",
	}, env)
}

func TestDefaultShellPrefersEnv(t *testing.T) {
	t.Setenv("SHELL", "/usr/local/bin/fish")
	t.Setenv("COMSPEC", `C:\Windows\System32\cmd.exe`)
	sh := DefaultShell()
	assert.Contains(t, []string{"/usr/local/bin/fish", `C:\Windows\System32\cmd.exe`}, sh)
}
