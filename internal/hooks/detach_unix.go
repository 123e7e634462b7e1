//go:build unix

package hooks

import (
	"os/exec"
	"syscall"
)

// setDetached puts cmd in its own session so it survives the parent hook
// process exiting, per the detached-annotator requirement.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
