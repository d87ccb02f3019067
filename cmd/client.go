package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"reposync/internal/daemon"
	"reposync/internal/model"
)

var (
	errDaemonNotRunning = errors.New("daemon not running")
	errSyncInFlight     = errors.New("a sync is already in progress")
)

// Probes fail fast; operations may run for as long as git needs.
var (
	probeClient = &http.Client{Timeout: 500 * time.Millisecond}
	opClient    = &http.Client{Timeout: 10 * time.Minute}
)

type daemonStatus struct {
	model.StatusSnapshot
	Syncing bool              `json:"syncing"`
	Logs    []daemon.LogEntry `json:"logs"`
}

func daemonRunning() bool {
	resp, err := probeClient.Get(daemonURL("/status"))
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

func daemonGet(path string, out any) error {
	resp, err := opClient.Get(daemonURL(path))
	if err != nil {
		return fmt.Errorf("%w: %w", errDaemonNotRunning, err)
	}

	return decodeResponse(resp, out)
}

func daemonPost(path string, out any) error {
	resp, err := opClient.Post(daemonURL(path), "application/json", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errDaemonNotRunning, err)
	}

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
			return fmt.Errorf("daemon returned %s", resp.Status)
		}
		return errors.New(body.Error)
	}

	if resp.StatusCode == http.StatusAccepted {
		return errSyncInFlight
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode daemon response: %w", err)
	}

	return nil
}
