package config

import (
	"os"
	"path/filepath"
)

// Paths locates the relay's files. Everything lives under one base
// directory, ~/.linebot unless LINEBOT_HOME points elsewhere.
type Paths struct {
	Base   string
	Config string // config.yaml
	Env    string // .env, loaded before the config is parsed
	Data   string // credential store
	Logs   string
}

func ResolvePaths() (Paths, error) {
	base := os.Getenv("LINEBOT_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".linebot")
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Env:    filepath.Join(base, ".env"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates the base, data and log directories owner-only, since
// the credential store holds users' API keys.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// StorePath returns the credential store file. A relative store.path is
// taken from the data directory; without one the driver picks the name.
// The redis driver ignores it.
func (p Paths) StorePath(cfg StoreConfig) string {
	switch {
	case cfg.Path != "":
		return p.under(p.Data, cfg.Path)
	case cfg.Driver == "sqlite":
		return filepath.Join(p.Data, "linebot.db")
	default:
		return filepath.Join(p.Data, "db.json")
	}
}

// LogFile returns where JSON log lines are appended, or "" to log to the
// console only. A relative logging.file is taken from the log directory.
func (p Paths) LogFile(cfg LoggingConfig) string {
	if cfg.File == "" {
		return ""
	}
	return p.under(p.Logs, cfg.File)
}

func (p Paths) under(dir, name string) string {
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
