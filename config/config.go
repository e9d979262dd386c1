package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/hopnetwork/reconciler/executor"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/notifier"
	"github.com/hopnetwork/reconciler/reconciler"
	"github.com/hopnetwork/reconciler/transfersync"
	"github.com/hopnetwork/reconciler/watcher"
	"github.com/mitchellh/mapstructure"
	tomlv2 "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

const (
	// FlagCfg is the flag for cfg.
	FlagCfg = "cfg"
	// FlagComponents is the flag for components.
	FlagComponents = "components"
	// FlagSaveConfigPath is the flag to save the final configuration file
	FlagSaveConfigPath = "save-config-path"
	// FlagOutputFormat is the flag for the report output format
	FlagOutputFormat = "format"
	// FlagFrom is the flag for the start of the report window
	FlagFrom = "from"
	// FlagTo is the flag for the end of the report window
	FlagTo = "to"

	EnvVarPrefix       = "RECONCILER"
	ConfigType         = "toml"
	SaveConfigFileName = "reconciler_config.toml"

	DefaultCreationFilePermissions = os.FileMode(0600)
)

// Config is the configuration of the whole service, loaded from TOML.
type Config struct {
	// Configure log level for all the services, allow also to store the logs in a file
	Log log.Config
	// Token labels the bridge deployment this instance watches. Every bridge
	// deployment covers one token, one instance reconciles one deployment
	Token string
	// OriginChainID is the chain that carries the root lifecycle events
	// (bonds, confirmations, challenges). It must be one of Chains
	OriginChainID uint64
	// Chains are the networks to sync, one syncer and one DB each
	Chains []transfersync.Config
	// Reconciler is the configuration of the reconciliation engine
	Reconciler reconciler.Config
	// Watcher is the configuration of the periodic checks
	Watcher watcher.Config
	// Executor is the configuration of the remediation transaction queue
	Executor executor.Config
	// Notifier is the configuration of alert delivery
	Notifier notifier.Config
}

// Validate checks the cross-field constraints that TOML parsing cannot.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("config: no chains configured")
	}
	seen := make(map[uint64]bool, len(c.Chains))
	for _, chain := range c.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("config: chain with ChainID 0")
		}
		if seen[chain.ChainID] {
			return fmt.Errorf("config: duplicated chain %d", chain.ChainID)
		}
		seen[chain.ChainID] = true
		if chain.RPCURL == "" {
			return fmt.Errorf("config: chain %d has no RPCURL", chain.ChainID)
		}
		if chain.DBPath == "" {
			return fmt.Errorf("config: chain %d has no DBPath", chain.ChainID)
		}
	}
	if !seen[c.OriginChainID] {
		return fmt.Errorf("config: OriginChainID %d is not a configured chain", c.OriginChainID)
	}
	return nil
}

// Chain returns the config of one chain.
func (c *Config) Chain(chainID uint64) (transfersync.Config, bool) {
	for _, chain := range c.Chains {
		if chain.ChainID == chainID {
			return chain, true
		}
	}
	return transfersync.Config{}, false
}

// Load loads the configuration from the files given on the command line,
// merged over the defaults.
func Load(ctx *cli.Context) (*Config, error) {
	files, err := readFiles(ctx.StringSlice(FlagCfg))
	if err != nil {
		return nil, err
	}
	return LoadFiles(files, ctx.String(FlagSaveConfigPath))
}

func readFiles(files []string) ([]FileData, error) {
	result := make([]FileData, 0, len(files))
	for _, file := range files {
		content, err := readFileToString(file)
		if err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", file, err)
		}
		if ext := fileExtension(file); ext != ConfigType && ext != "json" {
			log.Warnf("config file %s has extension %s, assuming TOML", file, ext)
		}
		result = append(result, FileData{Name: file, Content: content})
	}
	return result, nil
}

func fileExtension(fileName string) string {
	return fileName[strings.LastIndex(fileName, ".")+1:]
}

// LoadFiles merges the given files over the default config, resolves the
// vars of the result and unmarshals it.
func LoadFiles(files []FileData, saveConfigPath string) (*Config, error) {
	fileData := make([]FileData, 0, len(files)+2)
	fileData = append(fileData,
		FileData{Name: "default_vars", Content: DefaultVars},
		FileData{Name: "default_values", Content: DefaultValues})
	fileData = append(fileData, files...)

	rendered, err := NewConfigRender(fileData, EnvVarPrefix).Render()
	if err != nil {
		return nil, err
	}
	if saveConfigPath != "" {
		fullPath := saveConfigPath + "/" + SaveConfigFileName
		err = os.WriteFile(fullPath, []byte(rendered), DefaultCreationFilePermissions)
		if err != nil {
			return nil, fmt.Errorf("error writing config file %s: %w", fullPath, err)
		}
	}
	return LoadString(rendered)
}

// LoadString unmarshals an already rendered TOML config. Any field can be
// overridden from the environment: RECONCILER_Log_Level=debug.
func LoadString(configData string) (*Config, error) {
	viper.SetConfigType(ConfigType)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix(EnvVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadConfig(bytes.NewBufferString(configData)); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg := &Config{}
	decodeHooks := []viper.DecoderConfigOption{
		// this allows arrays to be decoded from env var separated by ",", example: MY_VAR="value1,value2,value3"
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(), mapstructure.StringToSliceHookFunc(","))),
	}
	if err := viper.Unmarshal(cfg, decodeHooks...); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfigToString renders the effective config back to TOML.
func SaveConfigToString(cfg Config) (string, error) {
	b, err := tomlv2.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
