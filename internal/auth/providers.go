package auth

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

type envProvider struct {
	keys []string
}

func Env(keys ...string) Provider {
	return &envProvider{keys: keys}
}

func (p *envProvider) Name() string { return "env" }

func (p *envProvider) Token(_ context.Context) (string, bool) {
	for _, k := range p.keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v, true
		}
	}
	return "", false
}

type staticProvider struct {
	token string
}

func Static(token string) Provider {
	return &staticProvider{token: strings.TrimSpace(token)}
}

func (p *staticProvider) Name() string { return "config" }

func (p *staticProvider) Token(_ context.Context) (string, bool) {
	return p.token, p.token != ""
}

type fileProvider struct {
	path string
}

func File(path string) Provider {
	return &fileProvider{path: path}
}

func (p *fileProvider) Name() string { return "file" }

func (p *fileProvider) Token(_ context.Context) (string, bool) {
	if p.path == "" {
		return "", false
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", false
	}

	tok := strings.TrimSpace(string(data))
	return tok, tok != ""
}

type gitCredentialProvider struct {
	remoteURL string
}

// GitCredential asks the configured git credential helper for the password
// of an https remote. Prompting is disabled.
func GitCredential(remoteURL string) Provider {
	return &gitCredentialProvider{remoteURL: remoteURL}
}

func (p *gitCredentialProvider) Name() string { return "git-credential" }

func (p *gitCredentialProvider) Token(ctx context.Context) (string, bool) {
	u, err := url.Parse(p.remoteURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "", false
	}

	input := fmt.Sprintf("protocol=%s\nhost=%s\npath=%s\n\n",
		u.Scheme, u.Host, strings.TrimPrefix(u.Path, "/"))

	cmd := exec.CommandContext(ctx, "git", "credential", "fill")
	cmd.Stdin = strings.NewReader(input)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=", "SSH_ASKPASS=")

	out, err := cmd.Output()
	if err != nil {
		return "", false
	}

	return parseCredential(out)
}

func parseCredential(out []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if ok && key == "password" && value != "" {
			return value, true
		}
	}
	return "", false
}
