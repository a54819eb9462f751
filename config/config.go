package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

type Configs struct {
	Env string `toml:"env"`

	Database  DatabaseConfigs `toml:"database"`
	Redis     RedisConfigs    `toml:"redis"`
	ApiServer ServerConfigs   `toml:"api_server"`
	Chain     ChainConfigs    `toml:"chain"`
	Cache     CacheConfigs    `toml:"cache"`
	Sync      SyncConfigs     `toml:"sync"`
	Queue     QueueConfigs    `toml:"queue"`
	Search    SearchConfigs   `toml:"search"`
}

type DatabaseConfigs struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

func (d *DatabaseConfigs) ConnectionString() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)
}

type RedisConfigs struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
}

type ServerConfigs struct {
	Host string `toml:"host"`
	Port string `toml:"port"`

	// Endpoint is the posts API of another running instance, consulted as an
	// intermediate lookup tier. Empty disables that tier.
	Endpoint string `toml:"endpoint"`

	AllowCORS []string `toml:"allow_cors"`
}

func (c ServerConfigs) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type ChainConfigs struct {
	// DefaultChainID selects the contract set used until the connected wallet
	// reports another chain.
	DefaultChainID int64 `toml:"default_chain_id"`

	Chains []ChainConfig `toml:"chains"`
}

func (c ChainConfigs) Get(chainID int64) (ChainConfig, bool) {
	for _, chain := range c.Chains {
		if chain.ChainID == chainID {
			return chain, true
		}
	}

	return ChainConfig{}, false
}

type ChainConfig struct {
	Chain   string   `toml:"chain"`
	ChainID int64    `toml:"chain_id"`
	Rpcs    []string `toml:"rpcs"`

	PostsAddress   string `toml:"posts_address"`
	TribesAddress  string `toml:"tribes_address"`
	ProfileAddress string `toml:"profile_address"`
}

type CacheConfigs struct {
	// PostCapacity bounds the hot memory tier. The least recently used post
	// is evicted when a new id arrives at capacity.
	PostCapacity int `toml:"post_capacity"`

	MemoryTTL     time.Duration `toml:"memory_ttl"`
	PersistentTTL time.Duration `toml:"persistent_ttl"`
	FamilyTTL     time.Duration `toml:"family_ttl"`

	// RebuildBatchSize is the number of ids fetched per batch during a
	// family rebuild.
	RebuildBatchSize int `toml:"rebuild_batch_size"`

	// ProfileScanErrorLimit stops profile discovery after this many
	// consecutive missing-token errors, whether or not any profile was found.
	ProfileScanErrorLimit int `toml:"profile_scan_error_limit"`
}

type SyncConfigs struct {
	StartDelay time.Duration `toml:"start_delay"`
	Interval   time.Duration `toml:"interval"`
}

type QueueConfigs struct {
	Tick           time.Duration `toml:"tick"`
	ItemDelay      time.Duration `toml:"item_delay"`
	MaxAttempts    int           `toml:"max_attempts"`
	DefaultTimeout time.Duration `toml:"default_timeout"`
}

type SearchConfigs struct {
	IndexDir string `toml:"index_dir"`
}

// Default fills zero values so a partially written config file still brings
// up every service.
func (c *Configs) Default() {
	if c.Cache.PostCapacity == 0 {
		c.Cache.PostCapacity = 250
	}
	if c.Cache.MemoryTTL == 0 {
		c.Cache.MemoryTTL = 5 * time.Minute
	}
	if c.Cache.PersistentTTL == 0 {
		c.Cache.PersistentTTL = 24 * time.Hour
	}
	if c.Cache.FamilyTTL == 0 {
		c.Cache.FamilyTTL = 5 * time.Minute
	}
	if c.Cache.RebuildBatchSize == 0 {
		c.Cache.RebuildBatchSize = 20
	}
	if c.Cache.ProfileScanErrorLimit == 0 {
		c.Cache.ProfileScanErrorLimit = 5
	}
	if c.Sync.StartDelay == 0 {
		c.Sync.StartDelay = 5 * time.Second
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 30 * time.Second
	}
	if c.Queue.Tick == 0 {
		c.Queue.Tick = 5 * time.Second
	}
	if c.Queue.ItemDelay == 0 {
		c.Queue.ItemDelay = 50 * time.Millisecond
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.DefaultTimeout == 0 {
		c.Queue.DefaultTimeout = 30 * time.Second
	}
}

func Load(path string) (Configs, error) {
	var cfg Configs
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Configs{}, err
	}

	cfg.Default()
	return cfg, nil
}
