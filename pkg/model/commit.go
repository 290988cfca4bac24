package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature identifies who did something to a commit, and when
type Signature struct {
	Name  string    `json:"name" yaml:"name"`
	Email string    `json:"email" yaml:"email"`
	When  time.Time `json:"when" yaml:"when"`
	_     struct{}
}

func (s Signature) String() string {
	if s.Email == "" {
		return s.Name
	}
	if s.Name == "" {
		return s.Email
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// GitDate renders the timestamp in git's internal format ("<unix seconds> <+hhmm>"),
// which git accepts back in GIT_AUTHOR_DATE and GIT_COMMITTER_DATE without any loss.
func (s Signature) GitDate() string {
	return strconv.FormatInt(s.When.Unix(), 10) + " " + s.When.Format("-0700")
}

// ParseSignature parses an identity line as found in a raw commit object:
//
//	Jane Doe <jane@example.com> 1700000000 +0100
func ParseSignature(line string) (Signature, error) {
	lt := strings.LastIndexByte(line, '<')
	gt := strings.LastIndexByte(line, '>')
	if lt < 0 || gt < lt {
		return Signature{}, fmt.Errorf("malformed identity %q", line)
	}
	sig := Signature{
		Name:  strings.TrimSpace(line[:lt]),
		Email: line[lt+1 : gt],
	}
	fields := strings.Fields(line[gt+1:])
	if len(fields) != 2 {
		return Signature{}, fmt.Errorf("malformed identity date %q", line)
	}
	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("malformed identity timestamp %q: %w", line, err)
	}
	offset, err := parseTZOffset(fields[1])
	if err != nil {
		return Signature{}, fmt.Errorf("malformed identity timezone %q: %w", line, err)
	}
	sig.When = time.Unix(secs, 0).In(time.FixedZone("", offset))
	return sig, nil
}

func parseTZOffset(tz string) (int, error) {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return 0, fmt.Errorf("expected [+-]hhmm, got %q", tz)
	}
	hours, err := strconv.Atoi(tz[1:3])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(tz[3:5])
	if err != nil {
		return 0, err
	}
	offset := hours*3600 + minutes*60
	if tz[0] == '-' {
		offset = -offset
	}
	return offset, nil
}

// Commit describes one commit of a linear history, as extracted from the repository
type Commit struct {
	ID        string    `json:"id" yaml:"id"`
	ParentID  string    `json:"parent" yaml:"parent"`
	Tree      string    `json:"tree" yaml:"tree"`
	Author    Signature `json:"author" yaml:"author"`
	Committer Signature `json:"committer" yaml:"committer"`
	Subject   string    `json:"subject" yaml:"subject"`
	Message   string    `json:"message" yaml:"message"` // full message, verbatim
	_         struct{}
}

// Short returns an abbreviated commit id, for display
func (c Commit) Short() string {
	return ShortID(c.ID)
}

// ShortID abbreviates a commit id for display
func ShortID(id string) string {
	const short = 10
	if len(id) > short {
		return id[:short]
	}
	return id
}

// SubjectOf returns the first line of a commit message
func SubjectOf(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return message[:i]
	}
	return message
}
