package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopicBuilders(t *testing.T) {
	require.Equal(t, "hush/announce/alice", AnnounceTopic("hush", "alice"))
	require.Equal(t, "hush/message/bob/alice", MessageTopic("hush", "bob", "alice"))
	require.Equal(t, "hush/announce/#", AnnouncePattern("hush"))
	require.Equal(t, "hush/message/bob/#", InboxPattern("hush", "bob"))
}

func TestParseTopic(t *testing.T) {
	addr, err := ParseTopic("hush", "hush/announce/alice")
	require.NoError(t, err)
	require.Equal(t, Address{Namespace: "hush", Kind: KindAnnounce, Target: "alice"}, addr)
	require.Equal(t, "hush/announce/alice", addr.String())

	addr, err = ParseTopic("hush", "hush/message/bob/alice")
	require.NoError(t, err)
	require.Equal(t, Address{Namespace: "hush", Kind: KindMessage, Target: "bob", Sender: "alice"}, addr)
	require.Equal(t, "hush/message/bob/alice", addr.String())
}

func TestParseTopicRejects(t *testing.T) {
	for _, topic := range []string{
		"",
		"hush",
		"hush/announce",
		"hush/announce/alice/extra",
		"hush/message/bob",
		"hush/message/bob/alice/extra",
		"hush/presence/alice",
		"hush/announce/",
		"hush/message//alice",
		"hush/message/bob/+",
	} {
		_, err := ParseTopic("hush", topic)
		require.ErrorIs(t, err, ErrMalformedTopic, topic)
	}

	_, err := ParseTopic("hush", "other/announce/alice")
	require.ErrorIs(t, err, ErrForeignNamespace)
}

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("alice"))
	require.NoError(t, ValidateName("node-1.local"))
	for _, name := range []string{"", "a/b", "a+", "#"} {
		require.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
}

func TestValidatePattern(t *testing.T) {
	for _, pattern := range []string{"#", "+", "hush/#", "hush/+/alice", "hush/message/bob/#", "a/b/c"} {
		require.NoError(t, ValidatePattern(pattern), pattern)
	}
	for _, pattern := range []string{"", "hush/#/bob", "hush/a+", "hush/#x"} {
		require.ErrorIs(t, ValidatePattern(pattern), ErrInvalidPattern, pattern)
	}
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		match   bool
	}{
		{"hush/announce/#", "hush/announce/alice", true},
		{"hush/announce/#", "hush/announce", true},
		{"hush/announce/#", "hush/message/bob/alice", false},
		{"hush/message/bob/#", "hush/message/bob/alice", true},
		{"hush/message/bob/#", "hush/message/carol/alice", false},
		{"hush/announce/+", "hush/announce/alice", true},
		{"hush/announce/+", "hush/announce/alice/x", false},
		{"hush/+/alice", "hush/announce/alice", true},
		{"#", "anything/at/all", true},
		{"hush/announce/alice", "hush/announce/alice", true},
		{"hush/announce/alice", "hush/announce/bob", false},
		{"hush/announce/alice", "hush/announce", false},
	}
	for _, c := range cases {
		require.Equal(t, c.match, MatchTopic(c.pattern, c.topic), "%s vs %s", c.pattern, c.topic)
	}
}

func TestPatternRoot(t *testing.T) {
	require.Equal(t, "hush", PatternRoot("hush/announce/#"))
	require.Equal(t, "hush", PatternRoot("hush"))
	require.Equal(t, "", PatternRoot("#"))
	require.Equal(t, "", PatternRoot("+/announce/#"))
}
