package client

import (
	"time"

	"github.com/spf13/viper"
)

// Config is everything the host application decides for us. It is passed
// explicitly into New; the client never reads ambient global configuration.
type Config struct {
	Relays         []string
	AutoConnect    bool
	MaxRelays      int
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	// MaxRetries per relay before a connection is marked failed; 0 retries forever.
	MaxRetries int
	SendBuffer int

	CacheTTL        time.Duration
	CacheMaxEntries int

	// capability switches; a disabled capability makes the matching client
	// method fail with ErrFeatureDisabled rather than silently no-op.
	PublishEnabled        bool
	SubscribeEnabled      bool
	DirectMessagesEnabled bool
	ContactListEnabled    bool
	CachingEnabled        bool
}

// DefaultConfig mirrors the defaults actors.InitConfig seeds into viper.
func DefaultConfig(relays []string) Config {
	return Config{
		Relays:                relays,
		AutoConnect:           true,
		MaxRelays:             10,
		ConnectTimeout:        10 * time.Second,
		PublishTimeout:        10 * time.Second,
		SendBuffer:            64,
		CacheTTL:              10 * time.Minute,
		CacheMaxEntries:       4096,
		PublishEnabled:        true,
		SubscribeEnabled:      true,
		DirectMessagesEnabled: true,
		ContactListEnabled:    true,
		CachingEnabled:        true,
	}
}

// ConfigFromViper converts the host's viper instance (see actors.InitConfig)
// into an explicit Config at the process edge.
func ConfigFromViper(v *viper.Viper) Config {
	return Config{
		Relays:                v.GetStringSlice("relays"),
		AutoConnect:           v.GetBool("autoConnect"),
		MaxRelays:             v.GetInt("maxRelays"),
		ConnectTimeout:        v.GetDuration("connectTimeout"),
		PublishTimeout:        v.GetDuration("publishTimeout"),
		MaxRetries:            v.GetInt("maxRetries"),
		SendBuffer:            v.GetInt("sendBuffer"),
		CacheTTL:              v.GetDuration("cacheTTL"),
		CacheMaxEntries:       v.GetInt("cacheMaxEntries"),
		PublishEnabled:        v.GetBool("publishEnabled"),
		SubscribeEnabled:      v.GetBool("subscribeEnabled"),
		DirectMessagesEnabled: v.GetBool("directMessagesEnabled"),
		ContactListEnabled:    v.GetBool("contactListEnabled"),
		CachingEnabled:        v.GetBool("cachingEnabled"),
	}
}
