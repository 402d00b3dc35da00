package executor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rosiefs/rosie/internal/canon"
	"github.com/rosiefs/rosie/internal/fault"
)

// moveResult reports how a move was carried out.
type moveResult struct {
	crossDevice bool
	fingerprint string
}

// renameFn and copyFn are swappable so tests can force the cross-device
// path and corrupt a copy in flight.
var (
	renameFn = os.Rename
	copyFn   = copyFile
)

// moveFile moves src to dst. Same-device moves are a single atomic rename.
// Cross-device moves copy, verify the destination fingerprint against the
// source, then delete the source; a verification mismatch removes the
// partial destination and leaves the source intact.
func moveFile(src, dst string) (moveResult, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return moveResult{}, fault.Wrap(fault.CodeVolumeIO, "create target dir", err)
	}
	if _, err := os.Lstat(dst); err == nil {
		return moveResult{}, fault.New(fault.CodeVolumeIO,
			fmt.Sprintf("target %s already exists", dst))
	}
	err := renameFn(src, dst)
	if err == nil {
		return moveResult{}, nil
	}
	if !isCrossDevice(err) {
		return moveResult{}, fault.Wrap(fault.CodeVolumeIO, "rename "+src, err)
	}
	fp, err := copyVerifyDelete(src, dst)
	if err != nil {
		return moveResult{}, err
	}
	return moveResult{crossDevice: true, fingerprint: fp}, nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return linkErr.Err == syscall.EXDEV
	}
	return errors.Is(err, syscall.EXDEV)
}

func copyVerifyDelete(src, dst string) (string, error) {
	srcFP, err := canon.FingerprintFile(src)
	if err != nil {
		return "", fault.Wrap(fault.CodeVolumeIO, "fingerprint source "+src, err)
	}
	if err := copyFn(src, dst); err != nil {
		os.Remove(dst)
		return "", err
	}
	dstFP, err := canon.FingerprintFile(dst)
	if err != nil {
		os.Remove(dst)
		return "", fault.Wrap(fault.CodeVolumeIO, "fingerprint target "+dst, err)
	}
	if dstFP != srcFP {
		os.Remove(dst)
		return "", fault.New(fault.CodeChecksumMismatch,
			fmt.Sprintf("copy of %s produced mismatched content", src))
	}
	if err := os.Remove(src); err != nil {
		// Both copies now exist. The destination is verified good, so
		// report the state rather than undoing a correct copy.
		return "", fault.Wrap(fault.CodeVolumeIO, "remove source after verified copy "+src, err)
	}
	return srcFP, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fault.Wrap(fault.CodeVolumeIO, "open source "+src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fault.Wrap(fault.CodeVolumeIO, "stat source "+src, err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fault.Wrap(fault.CodeVolumeIO, "create target "+dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fault.Wrap(fault.CodeVolumeIO, "copy to "+dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fault.Wrap(fault.CodeVolumeIO, "sync target "+dst, err)
	}
	if err := out.Close(); err != nil {
		return fault.Wrap(fault.CodeVolumeIO, "close target "+dst, err)
	}
	return nil
}

// createDir makes dir (and parents). Reports whether dir already existed,
// so reversal knows not to remove a directory it did not create.
func createDir(dir string) (existed bool, err error) {
	if info, statErr := os.Stat(dir); statErr == nil {
		if !info.IsDir() {
			return false, fault.New(fault.CodeVolumeIO,
				fmt.Sprintf("%s exists and is not a directory", dir))
		}
		return true, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fault.Wrap(fault.CodeVolumeIO, "create dir "+dir, err)
	}
	return false, nil
}
