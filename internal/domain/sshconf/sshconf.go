// Package sshconf models the sshd_config file as an ordered list of lines.
// Only the directives bastion owns are ever rewritten; everything else,
// including comments and unknown directives, survives byte-for-byte.
package sshconf

import (
	"fmt"
	"sort"
	"strings"
)

// Directives owned by bastion. All other keys pass through untouched.
var ownedKeys = map[string]bool{
	"port":               true,
	"permitrootlogin":    true,
	"allowusers":         true,
	"allowtcpforwarding": true,
	"x11forwarding":      true,
}

// IsOwned reports whether bastion manages the given directive.
func IsOwned(key string) bool {
	return ownedKeys[strings.ToLower(key)]
}

type line struct {
	raw string
	key string // lower-cased directive name, "" for comments and blanks
}

// File is a parsed sshd_config.
type File struct {
	lines []line

	noFinalNewline bool
}

// Parse reads sshd_config content. Parsing never fails: sshd itself is the
// authority on validity, and unknown content must round-trip unchanged.
func Parse(content []byte) *File {
	f := &File{}
	text := strings.TrimSuffix(string(content), "\n")
	if text == "" && len(content) == 0 {
		return f
	}
	f.noFinalNewline = !strings.HasSuffix(string(content), "\n")
	for _, raw := range strings.Split(text, "\n") {
		f.lines = append(f.lines, line{raw: raw, key: directiveKey(raw)})
	}
	return f
}

func directiveKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// Get returns the value of the first occurrence of a directive, which is
// the one sshd honors.
func (f *File) Get(key string) (string, bool) {
	want := strings.ToLower(key)
	for _, l := range f.lines {
		if l.key == want {
			fields := strings.Fields(strings.TrimSpace(l.raw))
			return strings.Join(fields[1:], " "), true
		}
	}
	return "", false
}

// Set rewrites an owned directive in place, or appends it if absent.
// Later duplicate occurrences are commented out so the effective value is
// unambiguous. Setting a non-owned key is a programming error.
func (f *File) Set(key, value string) error {
	if !IsOwned(key) {
		return fmt.Errorf("directive %s is not managed by bastion", key)
	}

	want := strings.ToLower(key)
	replaced := false
	for i := range f.lines {
		if f.lines[i].key != want {
			continue
		}
		if !replaced {
			f.lines[i] = line{raw: key + " " + value, key: want}
			replaced = true
			continue
		}
		f.lines[i] = line{raw: "#" + f.lines[i].raw, key: ""}
	}

	if !replaced {
		f.lines = append(f.lines, line{raw: key + " " + value, key: want})
	}
	return nil
}

// Render serializes the file. A parsed-then-rendered file with no Set calls
// is byte-identical to its input.
func (f *File) Render() []byte {
	if len(f.lines) == 0 {
		return []byte{}
	}
	var b strings.Builder
	for _, l := range f.lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	out := b.String()
	if f.noFinalNewline {
		out = strings.TrimSuffix(out, "\n")
	}
	return []byte(out)
}

// Posture is the desired state of the owned directives.
type Posture struct {
	Port              int
	PermitRootLogin   bool
	AllowUsers        []string
	DisableForwarding bool
}

// Apply rewrites the owned directives to match the posture.
func (f *File) Apply(p Posture) error {
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("port %d out of range", p.Port)
	}

	if err := f.Set("Port", fmt.Sprintf("%d", p.Port)); err != nil {
		return err
	}
	if err := f.Set("PermitRootLogin", yesNo(p.PermitRootLogin)); err != nil {
		return err
	}
	if len(p.AllowUsers) > 0 {
		users := append([]string(nil), p.AllowUsers...)
		sort.Strings(users)
		if err := f.Set("AllowUsers", strings.Join(users, " ")); err != nil {
			return err
		}
	}
	if p.DisableForwarding {
		if err := f.Set("AllowTcpForwarding", "no"); err != nil {
			return err
		}
		if err := f.Set("X11Forwarding", "no"); err != nil {
			return err
		}
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
