package routing

import (
	"testing"

	"concierge/pkg/bus"
	"concierge/pkg/config"
)

func testRouter() *Router {
	return NewRouter([]config.UserConfig{
		{Name: "sam", Channel: "telegram", SenderID: "100", Trust: "full", Primary: true},
		{Name: "kim", Channel: "telegram", SenderID: "200", Trust: "inner"},
		{Name: "typo", Channel: "telegram", SenderID: "300", Trust: "superuser"},
	}, nil)
}

func TestResolvePrimaryUserCollapsesToPrimarySession(t *testing.T) {
	t.Parallel()

	decision := testRouter().Resolve(bus.InboundMessage{Channel: "telegram", SenderID: "100", ChatID: "100"})

	if decision.SessionKey != PrimaryKey() {
		t.Fatalf("session key = %v, want primary", decision.SessionKey)
	}
	if decision.Trust != TrustFull {
		t.Fatalf("trust = %v, want full", decision.Trust)
	}
	if decision.User == nil || decision.User.Name != "sam" {
		t.Fatalf("user = %+v, want sam", decision.User)
	}
}

func TestResolveKnownUserGetsDirectSession(t *testing.T) {
	t.Parallel()

	decision := testRouter().Resolve(bus.InboundMessage{Channel: "telegram", SenderID: "200", ChatID: "200"})

	if decision.SessionKey != DirectKey("telegram", "200") {
		t.Fatalf("session key = %v, want direct", decision.SessionKey)
	}
	if decision.Trust != TrustInner {
		t.Fatalf("trust = %v, want inner", decision.Trust)
	}
}

func TestResolveUnknownSenderIsPublic(t *testing.T) {
	t.Parallel()

	decision := testRouter().Resolve(bus.InboundMessage{Channel: "telegram", SenderID: "999", ChatID: "999"})

	if decision.Trust != TrustPublic {
		t.Fatalf("trust = %v, want public", decision.Trust)
	}
	if decision.User != nil {
		t.Fatalf("user = %+v, want nil", decision.User)
	}
}

func TestResolveGroupSerializesOnChat(t *testing.T) {
	t.Parallel()

	router := testRouter()
	first := router.Resolve(bus.InboundMessage{Channel: "telegram", SenderID: "100", ChatID: "-500", IsGroup: true})
	second := router.Resolve(bus.InboundMessage{Channel: "telegram", SenderID: "200", ChatID: "-500", IsGroup: true})

	if first.SessionKey != second.SessionKey {
		t.Fatalf("group keys differ: %v vs %v", first.SessionKey, second.SessionKey)
	}
	if first.SessionKey != GroupKey("telegram", "-500") {
		t.Fatalf("session key = %v, want group", first.SessionKey)
	}
	// Trust still follows the sender, not the chat.
	if first.Trust != TrustFull || second.Trust != TrustInner {
		t.Fatalf("trusts = %v, %v, want full, inner", first.Trust, second.Trust)
	}
}

func TestUnknownTrustStringDowngradesToPublic(t *testing.T) {
	t.Parallel()

	decision := testRouter().Resolve(bus.InboundMessage{Channel: "telegram", SenderID: "300", ChatID: "300"})

	if decision.Trust != TrustPublic {
		t.Fatalf("trust = %v, want public for unparsable config", decision.Trust)
	}
}

func TestSessionKeyEquality(t *testing.T) {
	t.Parallel()

	if DirectKey("telegram", "1") == DirectKey("telegram", "2") {
		t.Fatal("distinct senders compared equal")
	}
	if DirectKey("telegram", "1") != DirectKey("telegram", " 1 ") {
		t.Fatal("whitespace should not change identity")
	}
	if CronKey("brief") == IsolatedKey("brief") {
		t.Fatal("kinds must keep keys distinct")
	}
	if PrimaryKey() != PrimaryKey() {
		t.Fatal("primary key must be a singleton value")
	}
}

func TestTrustOrdering(t *testing.T) {
	t.Parallel()

	if !TrustFull.AtLeast(TrustInner) || TrustPublic.AtLeast(TrustFamiliar) {
		t.Fatal("trust ordering broken")
	}

	if level, err := ParseTrust("inner"); err != nil || level != TrustInner {
		t.Fatalf("ParseTrust(inner) = %v, %v", level, err)
	}
	if level, err := ParseTrust("root"); err == nil || level != TrustPublic {
		t.Fatalf("ParseTrust(root) = %v, %v, want public + error", level, err)
	}
}

func TestSessionKeyString(t *testing.T) {
	t.Parallel()

	cases := map[SessionKey]string{
		DirectKey("telegram", "100"): "telegram:direct:100",
		GroupKey("telegram", "-5"):   "telegram:group:-5",
		PrimaryKey():                 "primary",
		CronKey("morning-brief"):     "cron:morning-brief",
		IsolatedKey("abc"):           "isolated:abc",
	}
	for key, want := range cases {
		if key.String() != want {
			t.Fatalf("String() = %q, want %q", key.String(), want)
		}
	}
}
