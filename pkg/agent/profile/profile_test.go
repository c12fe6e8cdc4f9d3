package profile

import (
	"strings"
	"testing"

	"concierge/pkg/routing"
)

func TestBuildIncludesBaseTemplate(t *testing.T) {
	got, err := Build(Params{Trust: routing.TrustFull})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !strings.Contains(got, "concierge assistant") {
		t.Fatalf("profile missing base template: %q", got)
	}
	if !strings.Contains(got, "Trust: full") {
		t.Fatalf("profile missing trust guidance: %q", got)
	}
}

func TestBuildVariesByTrust(t *testing.T) {
	full, err := Build(Params{Trust: routing.TrustFull})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	public, err := Build(Params{Trust: routing.TrustPublic})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if full == public {
		t.Fatal("expected different profiles for full and public trust")
	}
	if !strings.Contains(public, "stranger") {
		t.Fatalf("public profile missing stranger guidance: %q", public)
	}
}

func TestBuildMentionsKnownUser(t *testing.T) {
	got, err := Build(Params{Trust: routing.TrustInner, UserName: "Maija"})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !strings.Contains(got, "Maija") {
		t.Fatalf("profile missing user name: %q", got)
	}

	anonymous, err := Build(Params{Trust: routing.TrustPublic})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if strings.Contains(anonymous, "currently speaking with") {
		t.Fatal("anonymous profile should not name a user")
	}
}
