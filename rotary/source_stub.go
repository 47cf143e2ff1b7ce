//go:build !linux

package rotary

func openCdev(Config) (Source, error)     { return nil, ErrNotSupported }
func openGPIO(Config) (Source, error)     { return nil, ErrNotSupported }
func openKeyboard(Config) (Source, error) { return nil, ErrNotSupported }
