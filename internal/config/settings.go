package config

// Settings exposes a validated Config through the accessors the orchestrator
// consumes. The token is resolved lazily so a rotated secret is picked up on
// the next Initialize.
type Settings struct {
	cfg   *Config
	token func() (string, bool)
}

func (c *Config) Settings(token func() (string, bool)) *Settings {
	return &Settings{cfg: c, token: token}
}

func (s *Settings) RemoteURL() string { return s.cfg.RemoteURL }
func (s *Settings) WorkDir() string { return s.cfg.WorkDir }
func (s *Settings) SourceDir() string { return s.cfg.SourceDir }

func (s *Settings) Token() (string, bool) {
	if s.token == nil {
		return "", false
	}
	return s.token()
}
