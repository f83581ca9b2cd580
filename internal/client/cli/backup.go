package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/medsync/internal/client/backup"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/spf13/cobra"
)

func (a *App) backupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Encrypted backups of the local database",
	}
	cmd.AddCommand(a.backupCreateCommand(), a.backupRestoreCommand())
	return cmd
}

func (a *App) s3Config() backup.S3Config {
	return backup.S3Config{
		Bucket:    a.cfg.S3Bucket,
		Region:    a.cfg.S3Region,
		Endpoint:  a.cfg.S3BaseEndpoint,
		AccessKey: a.cfg.S3AccessKey,
		SecretKey: a.cfg.S3SecretKey,
	}
}

// uploader picks the destination: a local directory, the bucket directly,
// or a presigned URL from the server. The returned func releases it.
func (a *App) uploader(ctx context.Context, s *store.Store) (backup.Uploader, func(), error) {
	switch {
	case a.cfg.BackupDir != "":
		return backup.DirUploader{Dir: a.cfg.BackupDir}, func() {}, nil
	case a.cfg.S3Bucket != "":
		u, err := backup.NewS3Uploader(ctx, a.s3Config())
		return u, func() {}, err
	}
	r, err := a.dial(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	return backup.PresignedUploader{Remote: r}, func() { _ = r.Close() }, nil
}

func (a *App) backupCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Snapshot, encrypt and upload the local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pass, err := GetPassphrase(a.in, a.errOut, true)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pass)

			return a.withStore(ctx, func(s *store.Store) error {
				u, release, err := a.uploader(ctx, s)
				if err != nil {
					return err
				}
				defer release()

				res, err := backup.NewService(s, u, a.logger).Create(ctx, pass)
				if err != nil {
					return err
				}
				a.printf("backup %s stored at %s (%d bytes)\n", res.Name, res.Location, res.Size)
				return nil
			})
		},
	}
}

func (a *App) backupRestoreCommand() *cobra.Command {
	var fromS3 bool
	cmd := &cobra.Command{
		Use:   "restore <file|name>",
		Short: "Replace the local database with a decrypted backup",
		Long: `Restore reads a sealed backup from a file, or from the configured bucket
with --s3, decrypts it and installs it as the database given by --db.
Stop any running daemon first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var sealed []byte
			if fromS3 {
				if a.cfg.S3Bucket == "" {
					return fmt.Errorf("%w: --s3 needs --s3-bucket", common.ErrValidation)
				}
				u, err := backup.NewS3Uploader(ctx, a.s3Config())
				if err != nil {
					return err
				}
				if sealed, err = u.Download(ctx, filepath.Base(args[0])); err != nil {
					return err
				}
			} else {
				b, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				sealed = b
			}

			pass, err := GetPassphrase(a.in, a.errOut, false)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pass)

			if err := backup.Restore(ctx, sealed, pass, a.cfg.DatabasePath); err != nil {
				return err
			}
			a.printf("restored %s into %s\n", args[0], a.cfg.DatabasePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromS3, "s3", false, "download the backup from the configured bucket")
	return cmd
}
