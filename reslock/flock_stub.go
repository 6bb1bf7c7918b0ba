//go:build !unix

package reslock

import "os"

// lockFile is a stub on non-Unix platforms; deployments there must
// guarantee a single worker process.
func lockFile(f *os.File) error { return nil }

// unlockFile is a stub counterpart to lockFile on non-Unix platforms.
func unlockFile(f *os.File) error { return nil }

func isWouldBlock(err error) bool { return false }
