package kafka

import (
	"crypto/tls"
	"errors"
	"strings"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"

	"github.com/Goden-Gun/transport-core/pkg/config"
)

// Config defines Kafka connection and producer defaults. Topics and consumer
// groups belong to the channel binding, not to the connection.
type Config struct {
	Brokers       []string
	ClientID      string
	Username      string
	Password      string
	SASLMechanism string
	TLSEnabled    bool

	// RequiredAcks supports: "none" | "one" | "all" (default: all).
	RequiredAcks string
	// MaxAttempts controls producer retry max attempts (default: 3).
	MaxAttempts int
}

// FromConfig maps the loaded configuration section.
func FromConfig(c config.KafkaConfig) Config {
	return Config{
		Brokers:       c.Brokers,
		ClientID:      c.ClientID,
		Username:      c.Username,
		Password:      c.Password,
		SASLMechanism: c.SASLMechanism,
		TLSEnabled:    c.TLSEnabled,
	}
}

func (c Config) sarama() (*sarama.Config, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers empty")
	}
	base := sarama.NewConfig()
	base.Version = sarama.V2_1_0_0
	if c.ClientID != "" {
		base.ClientID = c.ClientID
	}

	base.Producer.Return.Successes = true
	base.Producer.Retry.Max = max(c.MaxAttempts, 3)
	base.Producer.RequiredAcks = parseRequiredAcks(c.RequiredAcks)

	base.Consumer.Return.Errors = true
	base.Consumer.Offsets.Initial = sarama.OffsetNewest

	if c.TLSEnabled {
		base.Net.TLS.Enable = true
		base.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if c.Username != "" {
		base.Net.SASL.Enable = true
		base.Net.SASL.User = c.Username
		base.Net.SASL.Password = c.Password
		switch strings.ToUpper(strings.TrimSpace(c.SASLMechanism)) {
		case "SCRAM-SHA-512":
			base.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			base.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{hash: scram.SHA512}
			}
		case "SCRAM-SHA-256":
			base.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			base.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{hash: scram.SHA256}
			}
		default:
			base.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}
	return base, nil
}

func parseRequiredAcks(v string) sarama.RequiredAcks {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none":
		return sarama.NoResponse
	case "one":
		return sarama.WaitForLocal
	default:
		return sarama.WaitForAll
	}
}

// scramClient adapts xdg-go/scram to sarama's SCRAM hook.
type scramClient struct {
	*scram.ClientConversation
	hash scram.HashGeneratorFcn
}

func (c *scramClient) Begin(userName, password, authzID string) error {
	client, err := c.hash.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	c.ClientConversation = client.NewConversation()
	return nil
}

func (c *scramClient) Step(challenge string) (string, error) {
	return c.ClientConversation.Step(challenge)
}

func (c *scramClient) Done() bool {
	return c.ClientConversation.Done()
}
