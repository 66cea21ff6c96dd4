package actors

import (
	"os"

	"github.com/spf13/viper"
	"nostrkit/engine/library"
)

// InitConfig sets up our Viper config object and persists it so a first run
// leaves an editable config.yaml behind.
func InitConfig(config *viper.Viper) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	config.SetDefault("rootDir", homeDir+"/nostrkit/")
	config.SetConfigType("yaml")
	config.SetConfigFile(config.GetString("rootDir") + "config.yaml")
	err = config.ReadInConfig()
	if err != nil {
		library.LogCLI(err.Error(), 4)
	}
	config.SetDefault("relays", []string{"wss://nos.lol", "wss://relay.damus.io", "wss://nostr.mutinywallet.com"})
	config.SetDefault("autoConnect", true)
	config.SetDefault("maxRelays", 10)
	config.SetDefault("connectTimeout", "10s")
	config.SetDefault("publishTimeout", "10s")
	config.SetDefault("maxRetries", 0)
	config.SetDefault("sendBuffer", 64)
	config.SetDefault("cacheTTL", "10m")
	config.SetDefault("cacheMaxEntries", 4096)
	config.SetDefault("logLevel", 4)

	// capability switches, each gates the matching client method
	config.SetDefault("publishEnabled", true)
	config.SetDefault("subscribeEnabled", true)
	config.SetDefault("directMessagesEnabled", true)
	config.SetDefault("contactListEnabled", true)
	config.SetDefault("cachingEnabled", true)

	initRootDir(config)
	touch(config.GetString("rootDir") + "config.yaml")
	err = config.WriteConfig()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
}

func initRootDir(conf *viper.Viper) {
	_, err := os.Stat(conf.GetString("rootDir"))
	if os.IsNotExist(err) {
		err = os.Mkdir(conf.GetString("rootDir"), 0755)
		if err != nil {
			library.LogCLI(err, 0)
		}
	}
}

func touch(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			library.LogCLI(err.Error(), 0)
			return
		}
		f.Close()
	}
}

var conf *viper.Viper

func MakeOrGetConfig() *viper.Viper {
	return conf
}

func SetConfig(config *viper.Viper) {
	conf = config
}
