//go:build !unix

package hooks

import "os/exec"

// setDetached is a no-op on platforms without process groups; the child is
// still started without stdio and never waited on.
func setDetached(cmd *exec.Cmd) {}
