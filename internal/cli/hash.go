package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ferry/internal/core/checksum"
	"github.com/Ning0612/ferry/internal/domain"
)

func newHashCommand(a *app) *cobra.Command {
	var algorithm string

	cmd := &cobra.Command{
		Use:   "hash [-a sha1|sha256|md5] <path>...",
		Short: "Print the chunked fingerprint of files",
		Long: `Print a digest over the hex digests of every chunk of the file, SHA-1 by
default. Two fingerprints only compare equal when they were computed with
the same algorithm and the same transfer.chunk_size.`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			algo, err := checksum.ParseAlgorithm(algorithm)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
			}
			for _, arg := range args {
				ep, err := a.resolve(cmd.Context(), arg)
				if err != nil {
					a.fail("hash", arg, err)
					continue
				}
				sum, err := a.engine.ComputeHashWith(cmd.Context(), ep.Backend, ep.Info.Path, algo)
				if err != nil {
					a.fail("hash", arg, err)
					continue
				}
				a.printf("%s  %s\n", sum, arg)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", string(checksum.SHA1), "chunk digest: sha1, sha256 or md5")
	return cmd
}
