package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storecache/pkg/backing"
	"storecache/pkg/lock"
	"storecache/pkg/logging"
	"storecache/pkg/store"
)

var (
	flagCacheCapacity  int
	flagDeadlockPolicy string
	flagAcquireTimeout time.Duration
	flagBackend        string
	flagRedisAddr      string
	flagLogLevel       string
)

// rootCmd is the storecli entry point. Subcommands share the store
// construction logic in newStore so demo, bench, and watch all exercise the
// same Config surface spec §6 defines.
var rootCmd = &cobra.Command{
	Use:   "storecli",
	Short: "Drive a storecache Store from the terminal",
	Long: `storecli demonstrates the object-store caching core: per-transaction
buffering over a shared, LRU-evicted cache, guarded by a pessimistic
exclusive lock manager with deadlock detection.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagCacheCapacity, "cache-capacity", 1024, "maximum entries in the Shared Cache")
	rootCmd.PersistentFlags().StringVar(&flagDeadlockPolicy, "deadlock-policy", "requester_victim", "requester_victim | deterministic_victim")
	rootCmd.PersistentFlags().DurationVar(&flagAcquireTimeout, "acquire-timeout", 0, "max wait before lock acquisition fails with DEADLOCK (0 = infinite)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "memory", "memory | redis")
	rootCmd.PersistentFlags().StringVar(&flagRedisAddr, "redis-addr", "localhost:6379", "Redis address when --backend=redis")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "debug | info | warn | error")

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(watchCmd)
}

// Execute runs the storecli command tree.
func Execute() error {
	return rootCmd.Execute()
}

func parseDeadlockPolicy(s string) (lock.Policy, error) {
	switch s {
	case "requester_victim", "":
		return lock.RequesterVictim, nil
	case "deterministic_victim":
		return lock.DeterministicVictim, nil
	default:
		return lock.RequesterVictim, fmt.Errorf("unknown deadlock policy %q", s)
	}
}

func logLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// newStore builds a Store from the persistent flags, initializing the
// global logger on first use the way StoreMy's main.go initializes its own
// logging before touching the database. Subcommands (and demo's nested
// eviction scenario) may call newStore more than once per process, so a
// logger already initialized by an earlier call is left in place rather
// than treated as an error.
func newStore() (*store.Store, func(), error) {
	// The first call wins; a later call in the same process (e.g. demo's
	// nested eviction scenario, which needs its own smaller cache) reuses
	// whatever logger is already installed instead of erroring.
	_ = logging.Init(logging.Config{Level: logLevel(flagLogLevel)})

	policy, err := parseDeadlockPolicy(flagDeadlockPolicy)
	if err != nil {
		return nil, nil, err
	}

	var adapter backing.Adapter
	var closer func()
	switch flagBackend {
	case "memory", "":
		adapter = backing.NewMemoryAdapter()
		closer = func() {}
	case "redis":
		redisAdapter := backing.NewRedisAdapter(backing.RedisOptions{Addr: flagRedisAddr})
		adapter = redisAdapter
		closer = func() { redisAdapter.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", flagBackend)
	}

	s := store.New(adapter,
		store.WithCacheCapacity(flagCacheCapacity),
		store.WithDeadlockPolicy(policy),
		store.WithAcquireTimeout(flagAcquireTimeout),
	)

	cleanup := func() {
		closer()
		_ = logging.Close()
	}
	return s, cleanup, nil
}
