// Package commands implements the sentinel CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Thelastpoet/Sentinel/pkg/claim"
	"github.com/Thelastpoet/Sentinel/pkg/embedding"
	"github.com/Thelastpoet/Sentinel/pkg/hottrigger"
	"github.com/Thelastpoet/Sentinel/pkg/langpack"
	"github.com/Thelastpoet/Sentinel/pkg/langrouter"
	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
	"github.com/Thelastpoet/Sentinel/pkg/pipeline"
	"github.com/Thelastpoet/Sentinel/pkg/policy"
	"github.com/Thelastpoet/Sentinel/pkg/resultcache"
	"github.com/Thelastpoet/Sentinel/pkg/vectorstore"
)

// Settings are the process-level knobs resolved from flags and environment
// (SENTINEL_* variables via viper).
type Settings struct {
	ConfigPath       string
	LexiconSeed      string
	LangpackRegistry string
	RedisURL         string
	DatabaseURL      string
	VectorEnabled    bool
	ResultCacheTTL   time.Duration
	EmbeddingModel   string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	v.SetDefault("lexicon_seed", "data/lexicon_seed.json")
	v.SetDefault("langpack_registry", "data/langpacks/registry.yaml")
	v.SetDefault("vector_match_enabled", true)
	v.SetDefault("result_cache_ttl", resultcache.DefaultTTL)
	v.SetDefault("embedding_model", embedding.HashBOWName)
	return v
}

func resolveSettings(cmd *cobra.Command) (*Settings, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	if err := logging.Init(level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	v := newViper()
	return &Settings{
		ConfigPath:       configPath,
		LexiconSeed:      v.GetString("lexicon_seed"),
		LangpackRegistry: v.GetString("langpack_registry"),
		RedisURL:         v.GetString("redis_url"),
		DatabaseURL:      v.GetString("database_url"),
		VectorEnabled:    v.GetBool("vector_match_enabled"),
		ResultCacheTTL:   v.GetDuration("result_cache_ttl"),
		EmbeddingModel:   v.GetString("embedding_model"),
	}, nil
}

// buildPipeline wires the full decision pipeline from settings. Optional
// backends (Redis, Postgres) are attached only when configured.
func buildPipeline(ctx context.Context, settings *Settings) (*pipeline.Pipeline, *policy.Runtime, error) {
	cfg, err := policy.Load(settings.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	rt, err := policy.ResolveRuntime(cfg)
	if err != nil {
		return nil, nil, err
	}

	var pool *pgxpool.Pool
	if settings.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, settings.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
		}
	}

	holder, err := activateLexicon(ctx, settings, pool)
	if err != nil {
		return nil, nil, err
	}

	packs, err := langpack.Load(settings.LangpackRegistry)
	if err != nil {
		return nil, nil, err
	}

	router := langrouter.New(langrouter.Config{
		Hints: map[string][]string{
			"sw": cfg.LanguageHints.Swahili,
			"sh": cfg.LanguageHints.Sheng,
		},
		Priority:    cfg.HintPriority(),
		DefaultLang: "en",
	}, nil)

	scorer := claim.NewScorer(claim.DefaultTermSets())

	opts := pipeline.Options{
		Router:  router,
		Lexicon: holder,
		Packs:   packs,
		Claim:   scorer,
		Runtime: rt,
	}

	if settings.RedisURL != "" {
		hot, err := hottrigger.NewRedisCache(hottrigger.RedisOptions{URL: settings.RedisURL},
			func() *lexicon.Snapshot { return holder.Matcher().Snapshot() })
		if err != nil {
			return nil, nil, err
		}
		opts.HotTriggers = hot
		cache, err := resultcache.NewRedisCache(resultcache.RedisOptions{
			URL: settings.RedisURL,
			TTL: settings.ResultCacheTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		opts.ResultCache = cache
	} else {
		opts.HotTriggers = hottrigger.NewLocalCache(0,
			func() *lexicon.Snapshot { return holder.Matcher().Snapshot() })
		opts.ResultCache = resultcache.NewLocalCache(settings.ResultCacheTTL)
	}

	if settings.VectorEnabled {
		provider, err := embedding.Get(settings.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		opts.Embedder = provider
		if pool != nil {
			opts.VectorStore = vectorstore.NewPgVectorStore(vectorstore.PgVectorOptions{
				Pool:           pool,
				EmbeddingModel: provider.Version(),
			})
		} else {
			store, err := vectorstore.NewMemoryStore(ctx, holder.Matcher().Snapshot(), provider)
			if err != nil {
				return nil, nil, err
			}
			opts.VectorStore = store
		}
	}

	p, err := pipeline.New(opts)
	if err != nil {
		return nil, nil, err
	}
	return p, rt, nil
}

// activateLexicon loads the active release, preferring Postgres and falling
// back to the seed file.
func activateLexicon(ctx context.Context, settings *Settings, pool *pgxpool.Pool) (*lexicon.Holder, error) {
	var repo lexicon.Repository = &lexicon.FileRepository{Path: settings.LexiconSeed}
	if pool != nil {
		repo = &lexicon.FallbackRepository{
			Primary:  &lexicon.PostgresRepository{Pool: pool},
			Fallback: repo,
		}
	}
	snapshot, err := repo.FetchActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active lexicon release: %w", err)
	}
	holder := &lexicon.Holder{}
	holder.Activate(snapshot)
	return holder, nil
}
