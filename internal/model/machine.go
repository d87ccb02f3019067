package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrCreateMachineID returns the identifier stamped into sync commits so
// that history shows which machine produced each commit.
func LoadOrCreateMachineID(dir string) (string, error) {
	idPath := filepath.Join(dir, "machine-id")

	if data, err := os.ReadFile(idPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate machine id: %w", err)
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	id := fmt.Sprintf("%s-%s", strings.ToLower(host), hex.EncodeToString(b))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(idPath, []byte(id), 0644); err != nil {
		return "", fmt.Errorf("failed to save machine id: %w", err)
	}

	return id, nil
}
