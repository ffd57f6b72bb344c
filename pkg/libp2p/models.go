package libp2p

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/baderanaas/hushmesh/pkg/overlay"
)

// Envelope carries one overlay publication inside the namespace's GossipSub topic.
type Envelope struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// decodeEnvelope parses data and checks that its topic belongs under root.
func decodeEnvelope(root string, data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := validateTopic(env.Topic); err != nil {
		return Envelope{}, err
	}
	if topicRoot(env.Topic) != root {
		return Envelope{}, fmt.Errorf("%w: %q published on %q", overlay.ErrForeignNamespace, env.Topic, root)
	}
	return env, nil
}

// validateTopic rejects topics a subscriber could never match exactly.
func validateTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", overlay.ErrMalformedTopic, topic)
	}
	return nil
}

func topicRoot(topic string) string {
	root, _, _ := strings.Cut(topic, "/")
	return root
}
