package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// dsnInfo is the loggable part of a database DSN. The password never appears.
type dsnInfo struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

func (i dsnInfo) String() string {
	if i.Type == "sqlite" {
		return "sqlite path=" + i.Path
	}
	return fmt.Sprintf("postgres host=%s port=%d db=%s user=%s sslmode=%s password_set=%t",
		i.Host, i.Port, i.Name, i.User, i.SSLMode, i.PasswordSet)
}

// describeDSN renders dsn for logs, or a placeholder when it cannot be parsed.
func describeDSN(dsn string) string {
	info, err := parseDSN(dsn)
	if err != nil {
		return "unparsed (" + err.Error() + ")"
	}
	return info.String()
}

func parseDSN(dsn string) (dsnInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return dsnInfo{}, fmt.Errorf("empty dsn")
	}

	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "file:") || strings.HasSuffix(lowered, ".db") {
		pathPart := trimmed
		if strings.HasPrefix(lowered, "file:") {
			pathPart = trimmed[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return dsnInfo{Type: "sqlite", Path: strings.TrimSpace(pathPart)}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return dsnInfo{}, fmt.Errorf("parse dsn: %w", errParse)
	}

	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return dsnInfo{}, fmt.Errorf("parse port: %w", errPort)
			}
			port = parsedPort
		}

		info := dsnInfo{
			Type:    "postgres",
			Host:    strings.TrimSpace(u.Hostname()),
			Port:    port,
			Name:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			SSLMode: strings.TrimSpace(u.Query().Get("sslmode")),
		}
		if u.User != nil {
			info.User = strings.TrimSpace(u.User.Username())
			_, info.PasswordSet = u.User.Password()
		}
		if info.SSLMode == "" {
			info.SSLMode = "disable"
		}
		return info, nil
	default:
		return dsnInfo{}, fmt.Errorf("unsupported dsn scheme")
	}
}
