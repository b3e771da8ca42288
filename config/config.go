// Package config parses tiny.conf (spec §6): a flat key=value file,
// one assignment per line, '#'-prefixed comment lines and blank lines
// ignored. Grounded on the line-oriented scanning idiom of
// caddyconfig/caddyfile/lexer.go's bufio.Reader-backed token reader,
// simplified from Caddyfile's whitespace/quote/heredoc token grammar
// down to tiny.conf's single-assignment-per-line grammar, since the
// format carries no nesting, directives, or quoting.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config holds every recognized tiny.conf key, decoded into its native
// type where the key has one (spec §6's key table).
type Config struct {
	Lang string
	Log  string
	Max  int

	BindFrom string
	Bind     string
	RPCFrom  string
	RPC      string

	Salt string

	DBHost   string
	DBPort   int
	DBName   string
	DBUser   string
	DBPwd    string
	SSLMode  string
	MaxDB    int
	Zone     string

	// Unknown holds any key=value pair this parser doesn't recognize by
	// name, so a caller can still see it rather than have it silently
	// dropped.
	Unknown map[string]string
}

// ErrMissingRequired is returned by Load when a required key (salt,
// db_host) is absent (spec §6 "salt and db_host are required; absence
// is fatal at startup").
type ErrMissingRequired struct{ Key string }

func (e *ErrMissingRequired) Error() string {
	return fmt.Sprintf("config: required key %q is missing", e.Key)
}

// Load reads and parses a tiny.conf file from path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads key=value lines from r into a Config, applying defaults
// (max="auto" resolves to runtime.NumCPU()) and validating the
// required keys.
func Parse(r io.Reader) (Config, error) {
	cfg := Config{Unknown: make(map[string]string)}
	raw := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitAssignment(line)
		if !ok {
			continue
		}
		raw[key] = value
	}
	if err := scanner.Err(); err != nil {
		return Config{}, err
	}

	cfg.Lang = raw["lang"]
	cfg.Log = raw["log"]
	cfg.Max = parseWorkerCount(raw["max"])
	cfg.BindFrom = raw["bind_from"]
	cfg.Bind = raw["bind"]
	cfg.RPCFrom = raw["rpc_from"]
	cfg.RPC = raw["rpc"]
	cfg.Salt = raw["salt"]
	cfg.DBHost = raw["db_host"]
	cfg.DBPort, _ = strconv.Atoi(raw["db_port"])
	cfg.DBName = raw["db_name"]
	cfg.DBUser = raw["db_user"]
	cfg.DBPwd = raw["db_pwd"]
	cfg.SSLMode = raw["sslmode"]
	cfg.MaxDB, _ = strconv.Atoi(raw["max_db"])
	cfg.Zone = raw["zone"]

	for _, known := range []string{
		"lang", "log", "max", "bind_from", "bind", "rpc_from", "rpc",
		"salt", "db_host", "db_port", "db_name", "db_user", "db_pwd",
		"sslmode", "max_db", "zone",
	} {
		delete(raw, known)
	}
	for k, v := range raw {
		cfg.Unknown[k] = v
	}

	if cfg.Salt == "" {
		return Config{}, &ErrMissingRequired{Key: "salt"}
	}
	if cfg.DBHost == "" {
		return Config{}, &ErrMissingRequired{Key: "db_host"}
	}
	return cfg, nil
}

func splitAssignment(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

func parseWorkerCount(v string) int {
	if v == "" {
		return 0
	}
	if strings.EqualFold(v, "auto") {
		return runtime.NumCPU()
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
