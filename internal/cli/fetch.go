package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ralt/rpmprefetch/internal/models"
	"github.com/ralt/rpmprefetch/internal/prefetch"
	"github.com/ralt/rpmprefetch/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// NewFetchCmd creates the fetch command
func NewFetchCmd() *cobra.Command {
	req := models.DefaultRequest()

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the rpms of a lockfile into local repositories",
		Long: `Reads rpms.lock.yaml from the source directory, downloads every listed
rpm into <output-dir>/deps/rpm, generates SBOM components and repository
metadata, and prints the result as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate configuration
			if err := validateRequest(&req); err != nil {
				return err
			}

			logrus.Info("Starting rpm prefetch...")
			logrus.Debugf("Configuration: %+v", redacted(req))

			tools, err := prefetch.NewTools(req)
			if err != nil {
				return err
			}

			output, err := prefetch.FetchRPMSource(cmd.Context(), req, tools)
			if err != nil {
				return err
			}

			if err := writeOutput(cmd.OutOrStdout(), req.OutputFile, output); err != nil {
				return err
			}

			logrus.Info("Rpm prefetch completed successfully!")
			return nil
		},
	}

	// Input/Output flags
	cmd.Flags().StringVarP(&req.SourceDir, "source-dir", "s", req.SourceDir, "Directory containing rpms.lock.yaml")
	cmd.Flags().StringVarP(&req.OutputDir, "output-dir", "o", req.OutputDir, "Output directory, rpms go to <output-dir>/deps/rpm")
	cmd.Flags().StringVar(&req.OutputFile, "output-file", req.OutputFile, "Write the JSON result here instead of stdout")

	// Download flags
	cmd.Flags().IntVarP(&req.Concurrency, "concurrency", "j", req.Concurrency, "Maximum simultaneous downloads")
	cmd.Flags().IntVar(&req.Retries, "retries", req.Retries, "Retries per failed request")
	cmd.Flags().Float64Var(&req.RequestsPerSecond, "rate-limit", req.RequestsPerSecond, "Maximum requests started per second, 0 for unlimited")
	cmd.Flags().BoolVar(&req.StrictVerify, "strict-verify", req.StrictVerify, "Fail on size or checksum mismatches instead of warning")

	// Tool flags
	cmd.Flags().StringVar(&req.RPMPath, "rpm", req.RPMPath, "rpm binary used to query package headers")
	cmd.Flags().StringVar(&req.Indexer, "indexer", req.Indexer, "Repository indexer (createrepo, native)")
	cmd.Flags().StringVar(&req.CreaterepoPath, "createrepo", req.CreaterepoPath, "createrepo_c binary")

	// Native indexer flags
	cmd.Flags().StringVar(&req.CompressType, "compress-type", req.CompressType, "Compression of native repodata (gz, xz, zst)")
	cmd.Flags().StringVarP(&req.GPGKeyPath, "gpg-key", "k", req.GPGKeyPath, "Path to GPG private key for signing native repodata")
	cmd.Flags().StringVarP(&req.GPGPassphrase, "gpg-passphrase", "p", req.GPGPassphrase, "GPG key passphrase")

	return cmd
}

func validateRequest(req *models.Request) error {
	if req.SourceDir == "" {
		return &models.PrefetchError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("source-dir is required"),
		}
	}

	if req.OutputDir == "" {
		return &models.PrefetchError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("output-dir is required"),
		}
	}

	if req.Concurrency < 1 {
		return &models.PrefetchError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("concurrency must be positive, got %d", req.Concurrency),
		}
	}

	if req.Retries < 0 || req.RequestsPerSecond < 0 {
		return &models.PrefetchError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("retries and rate-limit must not be negative"),
		}
	}

	switch req.Indexer {
	case models.IndexerCreaterepo, models.IndexerNative:
	default:
		return &models.PrefetchError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("unknown indexer %q", req.Indexer),
		}
	}

	switch req.CompressType {
	case utils.CompressGzip, utils.CompressXz, utils.CompressZstd:
	default:
		return &models.PrefetchError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("unsupported compress-type %q", req.CompressType),
		}
	}

	return nil
}

func redacted(req models.Request) models.Request {
	if req.GPGPassphrase != "" {
		req.GPGPassphrase = "***"
	}
	return req
}

func writeOutput(stdout io.Writer, outputFile string, output *models.RequestOutput) error {
	if outputFile == "" {
		return output.WriteJSON(stdout)
	}

	var buf bytes.Buffer
	if err := output.WriteJSON(&buf); err != nil {
		return err
	}
	if err := utils.WriteFile(afero.NewOsFs(), outputFile, buf.Bytes(), 0644); err != nil {
		return &models.PrefetchError{
			Type: models.ErrFileOp,
			Err:  fmt.Errorf("failed to write output file: %w", err),
		}
	}
	logrus.Infof("Request output written to %s", outputFile)
	return nil
}
