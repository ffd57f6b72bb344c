package overlay

import (
	"fmt"
	"strings"
)

// Kind is the second segment of an overlay topic.
type Kind string

const (
	KindAnnounce Kind = "announce"
	KindMessage  Kind = "message"
)

const (
	separator           = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// Address is a parsed overlay topic: {namespace}/{kind}/{target}/{sender?}.
// For announces Target is the announcer; for messages it is the recipient.
type Address struct {
	Namespace string
	Kind      Kind
	Target    string
	Sender    string
}

func (a Address) String() string {
	if a.Kind == KindMessage {
		return MessageTopic(a.Namespace, a.Target, a.Sender)
	}
	return AnnounceTopic(a.Namespace, a.Target)
}

// AnnounceTopic is where name publishes its public key.
func AnnounceTopic(namespace, name string) string {
	return strings.Join([]string{namespace, string(KindAnnounce), name}, separator)
}

// MessageTopic carries a message from sender encrypted for recipient.
func MessageTopic(namespace, recipient, sender string) string {
	return strings.Join([]string{namespace, string(KindMessage), recipient, sender}, separator)
}

// AnnouncePattern matches every announce in namespace.
func AnnouncePattern(namespace string) string {
	return strings.Join([]string{namespace, string(KindAnnounce), multiLevelWildcard}, separator)
}

// InboxPattern matches every message addressed to name.
func InboxPattern(namespace, name string) string {
	return strings.Join([]string{namespace, string(KindMessage), name, multiLevelWildcard}, separator)
}

// ValidateName checks that s can be used as a namespace or node name segment.
func ValidateName(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(s, separator+singleLevelWildcard+multiLevelWildcard) {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidName, s)
	}
	return nil
}

// ParseTopic parses topic as an address in namespace. Topics from other namespaces
// return ErrForeignNamespace; anything else that does not fit returns ErrMalformedTopic.
func ParseTopic(namespace, topic string) (Address, error) {
	segments := strings.Split(topic, separator)
	if len(segments) < 3 {
		return Address{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	if segments[0] != namespace {
		return Address{}, fmt.Errorf("%w: %q", ErrForeignNamespace, topic)
	}
	for _, s := range segments[1:] {
		if ValidateName(s) != nil {
			return Address{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
		}
	}

	addr := Address{Namespace: namespace, Kind: Kind(segments[1]), Target: segments[2]}
	switch {
	case addr.Kind == KindAnnounce && len(segments) == 3:
		return addr, nil
	case addr.Kind == KindMessage && len(segments) == 4:
		addr.Sender = segments[3]
		return addr, nil
	default:
		return Address{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
}

// ValidatePattern checks wildcard placement: "+" and "#" must fill a whole level
// and "#" may only be the last level.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	levels := strings.Split(pattern, separator)
	for i, level := range levels {
		switch {
		case level == multiLevelWildcard && i != len(levels)-1:
			return fmt.Errorf("%w: %q has %s before the last level", ErrInvalidPattern, pattern, multiLevelWildcard)
		case level != multiLevelWildcard && level != singleLevelWildcard &&
			strings.ContainsAny(level, singleLevelWildcard+multiLevelWildcard):
			return fmt.Errorf("%w: %q mixes wildcards into a level", ErrInvalidPattern, pattern)
		}
	}
	return nil
}

// MatchTopic reports whether topic matches pattern using MQTT wildcard rules.
// A trailing "#" also matches the parent level ("a/#" matches "a").
func MatchTopic(pattern, topic string) bool {
	p := strings.Split(pattern, separator)
	t := strings.Split(topic, separator)
	for i, level := range p {
		if level == multiLevelWildcard {
			return i == len(p)-1
		}
		if i >= len(t) {
			return false
		}
		if level != singleLevelWildcard && level != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}

// PatternRoot returns the first level of pattern, or "" when it is a wildcard.
func PatternRoot(pattern string) string {
	root, _, _ := strings.Cut(pattern, separator)
	if root == singleLevelWildcard || root == multiLevelWildcard {
		return ""
	}
	return root
}
