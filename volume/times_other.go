//go:build !linux

package volume

import "os"

func statTimes(path string) (fileTimes, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileTimes{}, err
	}
	return fileTimes{atime: fi.ModTime(), mtime: fi.ModTime()}, nil
}
