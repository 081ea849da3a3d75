package htpasswd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// htpasswd holds a path to a system .htpasswd file and the machinery to
// verify user credentials against it. Only bcrypt entries are supported.
type htpasswd struct {
	entries map[string][]byte // maps username to password hash
}

func newHTPasswd(rd io.Reader) (*htpasswd, error) {
	entries, err := parseHTPasswd(rd)
	if err != nil {
		return nil, err
	}
	return &htpasswd{entries: entries}, nil
}

// authenticateUser checks a given user:password credential against the
// receiving htpasswd file. If the check passes, nil is returned.
func (htpasswd *htpasswd) authenticateUser(username string, password string) error {
	credentials, ok := htpasswd.entries[username]
	if !ok {
		// Timing-attack mitigation: burn a hash comparison even when the
		// user is unknown.
		bcrypt.CompareHashAndPassword([]byte{}, []byte(password))
		return ErrAuthenticationFailure
	}

	if err := bcrypt.CompareHashAndPassword(credentials, []byte(password)); err != nil {
		return ErrAuthenticationFailure
	}
	return nil
}

// parseHTPasswd parses the contents of htpasswd. This will read all the
// entries in the file, whether or not they are needed. An error is returned
// if a syntax errors are encountered or if the reader fails.
func parseHTPasswd(rd io.Reader) (map[string][]byte, error) {
	entries := map[string][]byte{}
	scanner := bufio.NewScanner(rd)
	var line int
	for scanner.Scan() {
		line++
		t := strings.TrimSpace(scanner.Text())
		if len(t) < 1 {
			continue
		}

		// lines that *begin* with a '#' are considered comments
		if t[0] == '#' {
			continue
		}

		i := strings.Index(t, ":")
		if i < 0 || i >= len(t) {
			return nil, fmt.Errorf("htpasswd: invalid entry at line %d: %q", line, scanner.Text())
		}

		entries[t[:i]] = []byte(t[i+1:])
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
