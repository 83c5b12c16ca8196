// Package config parses the chat server's channel descriptor file. Parsing
// itself is plumbing (spec.md treats it as an external collaborator); the
// descriptors it produces drive the server's concurrency core.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Channel is one immutable channel descriptor loaded from the config file.
type Channel struct {
	Name     string
	Port     int
	Capacity int
}

// Error reports that the config file is syntactically or semantically
// invalid (bad name/port/capacity range, duplicate name, or zero channels).
// Reason carries the specific cause for diagnostics and tests; Error()
// always renders the fixed literal the spec requires on stderr.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "Error: Invalid configuration file." }

// NotFound reports that the config file path does not exist. Distinct from
// Error because the server CLI maps the two to different exit codes.
type NotFound struct {
	Path string
}

func (e *NotFound) Error() string { return fmt.Sprintf("config file not found: %s", e.Path) }

// Load reads channel descriptors from path. Each non-blank line must be
// "channel <name> <port> <capacity>" with name matching [A-Za-z0-9_]+, port
// in [1024, 65535], and capacity in [1, 8]. Channel names must be unique.
// A file that parses but yields zero channels is also invalid.
func Load(path string) ([]Channel, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFound{Path: path}
		}
		return nil, &Error{Reason: fmt.Sprintf("opening config file: %v", err)}
	}
	defer f.Close()

	channels, err := parse(f)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, &Error{Reason: "configuration file yields zero channels"}
	}
	return channels, nil
}

func parse(r io.Reader) ([]Channel, error) {
	var out []Channel
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 || fields[0] != "channel" {
			return nil, &Error{Reason: fmt.Sprintf("invalid config line: %q", line)}
		}
		ch, err := parseChannel(fields[1], fields[2], fields[3])
		if err != nil {
			return nil, err
		}
		if seen[ch.Name] {
			return nil, &Error{Reason: fmt.Sprintf("duplicate channel name: %s", ch.Name)}
		}
		seen[ch.Name] = true
		out = append(out, ch)
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("reading config file: %v", err)}
	}
	return out, nil
}

func parseChannel(name, portStr, capStr string) (Channel, error) {
	if !nameRE.MatchString(name) {
		return Channel{}, &Error{Reason: fmt.Sprintf("invalid channel name: %q", name)}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1024 || port > 65535 {
		return Channel{}, &Error{Reason: fmt.Sprintf("invalid port for channel %q: %q", name, portStr)}
	}
	capacity, err := strconv.Atoi(capStr)
	if err != nil || capacity < 1 || capacity > 8 {
		return Channel{}, &Error{Reason: fmt.Sprintf("invalid capacity for channel %q: %q", name, capStr)}
	}
	return Channel{Name: name, Port: port, Capacity: capacity}, nil
}
