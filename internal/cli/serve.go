package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stride/internal/blob"
	"github.com/mesh-intelligence/stride/internal/config"
	"github.com/mesh-intelligence/stride/internal/paths"
	"github.com/mesh-intelligence/stride/internal/remote"
)

const (
	remoteDBFile  = "remote.db"
	remoteBlobDir = "remote-blobs"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a remote repository over HTTP",
		Long: "Serve the remote repository that replicas sync against. Records live\n" +
			"in server.db, or remote.db under the data directory. Attachment bytes\n" +
			"live in server.blob_dir, or remote-blobs under the data directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, err := paths.ResolveConfigDir(flags.configDir)
			if err != nil {
				return sysErr(fmt.Errorf("resolve config dir: %w", err))
			}
			loader, err := config.Load(configDir)
			if err != nil {
				return sysErr(err)
			}
			cfg, err := loader.Config()
			if err != nil {
				return userErr(err)
			}
			logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return userErr(err)
			}

			dbPath, blobDir := cfg.Server.DB, cfg.Server.BlobDir
			if dbPath == "" || blobDir == "" {
				dataDir, err := paths.ResolveDataDir(flags.dataDir, cfg.DataDir)
				if err != nil {
					return sysErr(fmt.Errorf("resolve data dir: %w", err))
				}
				if dbPath == "" {
					dbPath = filepath.Join(dataDir, remoteDBFile)
				}
				if blobDir == "" {
					blobDir = filepath.Join(dataDir, remoteBlobDir)
				}
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			repo, err := remote.OpenSQLStore(dbPath, nil)
			if err != nil {
				return sysErr(err)
			}
			defer repo.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := remote.NewServer(repo, logger.With("component", "server"),
				remote.WithBlobs(blob.New(blobDir, nil)))
			if err := srv.Run(ctx, addr); err != nil {
				return sysErr(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}
