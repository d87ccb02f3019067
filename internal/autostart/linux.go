package autostart

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"reposync/internal/util"
)

const unitTemplate = `[Unit]
Description=reposync directory mirror
After=network-online.target
Wants=network-online.target

[Service]
ExecStart="{{.ExecPath}}" watch
Restart=on-failure
RestartSec={{.RestartSec}}

[Install]
WantedBy=default.target
`

var unitTmpl = template.Must(template.New("unit").Parse(unitTemplate))

type unitData struct {
	ExecPath   string
	RestartSec int
}

// RenderUnit returns the systemd user unit that runs execPath.
func RenderUnit(execPath string) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTmpl.Execute(&buf, unitData{ExecPath: execPath, RestartSec: 10}); err != nil {
		return nil, fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.Bytes(), nil
}

// LinuxAutoStarter manages a systemd user unit. UnitDir overrides
// ~/.config/systemd/user; Systemctl overrides the command runner.
type LinuxAutoStarter struct {
	UnitDir   string
	Systemctl func(args ...string) error
}

func (l *LinuxAutoStarter) unitPath() (string, error) {
	dir := l.UnitDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "systemd", "user")
	}

	return filepath.Join(dir, ServiceName+".service"), nil
}

func (l *LinuxAutoStarter) systemctl(args ...string) error {
	if l.Systemctl != nil {
		return l.Systemctl(args...)
	}

	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to run systemctl %v: %w\n%s", args, err, out)
	}
	return nil
}

func (l *LinuxAutoStarter) Install(execPath string) error {
	path, err := l.unitPath()
	if err != nil {
		return err
	}

	unit, err := RenderUnit(execPath)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(path, bytes.NewReader(unit)); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", ServiceName + ".service"},
		{"start", ServiceName + ".service"},
	} {
		if err := l.systemctl(args...); err != nil {
			return err
		}
	}

	return nil
}

func (l *LinuxAutoStarter) Uninstall() error {
	_ = l.systemctl("stop", ServiceName+".service")
	_ = l.systemctl("disable", ServiceName+".service")

	path, err := l.unitPath()
	if err != nil {
		return err
	}

	if err := util.RemoveIfExists(path); err != nil {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}

	return l.systemctl("daemon-reload")
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.unitPath()
	if err != nil {
		return false, err
	}

	return util.Exists(path), nil
}
