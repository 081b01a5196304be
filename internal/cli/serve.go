package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/server"
	"github.com/watzon/syncstore/internal/service"
	"github.com/watzon/syncstore/internal/store"
)

var serveSeed bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the syncstore server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		manager, err := buildManager(cfg)
		if err != nil {
			return fmt.Errorf("building data manager: %w", err)
		}

		srv, err := server.New(cfg, manager)
		if err != nil {
			manager.Close()
			return err
		}

		if serveSeed {
			if err := seedDemo(context.Background(), srv.Service()); err != nil {
				_ = srv.Shutdown(context.Background())
				return fmt.Errorf("seeding demo data: %w", err)
			}
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			return srv.Shutdown(context.Background())
		}
	},
}

// buildManager loads the schema directory and opens one backend per
// namespace, honoring the configured in-memory namespaces.
func buildManager(cfg *config.Config) (*store.Manager, error) {
	namespaces, err := store.LoadSchemaDir(cfg.Store.SchemaDir)
	if err != nil {
		return nil, err
	}

	mb := store.NewManagerBuilder(cfg.Store.BaseDir, &cfg.Database)
	for namespace, schemas := range namespaces {
		if slices.Contains(cfg.Store.MemoryNamespaces, namespace) {
			mb.AddMemoryNamespace(namespace, schemas)
		} else {
			mb.AddNamespace(namespace, schemas)
		}
	}
	return mb.Build()
}

const (
	seedNamespace = "blog"
	seedOwner     = "demo"
	seedRepoName  = "demo"
)

// seedDemo inserts the example repo→post→comment tree into the blog
// namespace scaffolded by init. Re-running against an already-seeded store
// is a no-op.
func seedDemo(ctx context.Context, svc *service.Service) error {
	backend, err := svc.Manager().BackendFor(seedNamespace)
	if err != nil {
		log.Warn().Str("namespace", seedNamespace).Msg("Seed skipped: namespace not configured")
		return nil
	}
	for _, collection := range []string{"repo", "post", "comment"} {
		if _, ok := backend.Descriptor(collection); !ok {
			log.Warn().Str("collection", collection).Msg("Seed skipped: collection not registered")
			return nil
		}
	}

	if _, err := backend.GetByUnique(ctx, "repo", seedRepoName); err == nil {
		log.Info().Msg("Seed skipped: demo tree already present")
		return nil
	} else if !store.IsNotFound(err) {
		return err
	}

	repo, err := svc.Insert(ctx, seedNamespace, "repo",
		json.RawMessage(fmt.Sprintf(`{"name":%q,"description":"seeded demo repository"}`, seedRepoName)),
		seedOwner)
	if err != nil {
		return err
	}

	post, err := svc.Insert(ctx, seedNamespace, "post",
		json.RawMessage(fmt.Sprintf(
			`{"repo_id":%q,"title":"Welcome","content":"Seeded example post.","author":"demo"}`, repo.ID)),
		seedOwner)
	if err != nil {
		return err
	}

	if _, err := svc.Insert(ctx, seedNamespace, "comment",
		json.RawMessage(fmt.Sprintf(`{"post_id":%q,"content":"First!"}`, post.ID)),
		seedOwner); err != nil {
		return err
	}

	log.Info().
		Str("repo", repo.ID).
		Str("post", post.ID).
		Msg("Demo tree seeded")
	return nil
}

func init() {
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "insert the example repo/post/comment tree on startup")
	rootCmd.AddCommand(serveCmd)
}
