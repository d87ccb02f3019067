package autostart

import "runtime"

// ServiceName identifies the login service on every platform.
const ServiceName = "reposync"

// AutoStarter registers `reposync watch` to run when the user logs in.
type AutoStarter interface {
	Install(execPath string) error
	Uninstall() error
	IsInstalled() (bool, error)
}

func New() AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{}
	case "linux":
		return &LinuxAutoStarter{}
	default:
		return &UnsupportedAutoStarter{}
	}
}

type UnsupportedAutoStarter struct{}

func (u *UnsupportedAutoStarter) Install(_ string) error {
	return ErrUnsupported
}

func (u *UnsupportedAutoStarter) Uninstall() error {
	return ErrUnsupported
}

func (u *UnsupportedAutoStarter) IsInstalled() (bool, error) {
	return false, nil
}
