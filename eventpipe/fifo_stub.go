//go:build !unix

package eventpipe

import "errors"

func mkfifo(string) error {
	return errors.New("named pipes not supported on this platform")
}

func wake(string) {}
