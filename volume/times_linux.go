//go:build linux

package volume

import (
	"time"

	"golang.org/x/sys/unix"
)

func statTimes(path string) (fileTimes, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fileTimes{}, err
	}
	return fileTimes{
		atime: time.Unix(st.Atim.Unix()),
		mtime: time.Unix(st.Mtim.Unix()),
	}, nil
}
