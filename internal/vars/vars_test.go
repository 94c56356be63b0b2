package vars

import (
	"bytes"
	"strings"
	"testing"
)

func TestFprint(t *testing.T) {
	var buf bytes.Buffer
	Fprint(&buf)

	for _, want := range []string{"name:     hyquery", "license:  MIT", "version:  "} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("build info %q missing %q", buf.String(), want)
		}
	}
}

func TestCommitShort(t *testing.T) {
	orig := Commit
	t.Cleanup(func() { Commit = orig })

	Commit = "da15c174cd2ada1ad247906536c101e8f6799def"
	if got := CommitShort(); got != "da15c17" {
		t.Fatalf("CommitShort = %q", got)
	}
	Commit = "abc"
	if got := CommitShort(); got != "abc" {
		t.Fatalf("CommitShort = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent(); !strings.HasPrefix(ua, Name+"/") || !strings.Contains(ua, URL) {
		t.Fatalf("UserAgent = %q", ua)
	}
}
