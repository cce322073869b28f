package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hancock/internal/client"
	"hancock/internal/security"
	"hancock/internal/session/domain"
)

func createCmd(newClient func() *client.Client) *cobra.Command {
	var d domain.Details
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a signature session and print the signing link",
		Long: `Create a signature session. The signee is notified by the server;
the signing link is also printed here.

Example:
  hancockctl create --title NDA --declaration "I agree" --email a@b.com --redirect https://x/done`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := d.Validate(); err != nil {
				return err
			}
			res, err := newClient().CreateSession(cmd.Context(), d)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderCreated(res))
			return nil
		},
	}
	cmd.Flags().StringVar(&d.Title, "title", "", "Document title")
	cmd.Flags().StringVar(&d.Declaration, "declaration", "", "Declaration the signee agrees to")
	cmd.Flags().StringVar(&d.SigneeEmail, "email", "", "Signee e-mail address")
	cmd.Flags().StringVar(&d.RedirectURI, "redirect", "", "Where to send the signee after signing")
	return cmd
}

func statusCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <sid>",
		Short: "Show a session and whether it has been signed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newClient().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(st))
			return nil
		},
	}
}

func artifactCmd(newClient func() *client.Client) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "artifact <sid>",
		Short: "Download the signature SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newClient().Artifact(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(b), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func hashKeyCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-key <organisation> <secret>",
		Short: "Print an API_KEYS entry with a bcrypt-hashed secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" || args[1] == "" {
				return errors.New("organisation and secret must be non-empty")
			}
			hash, err := security.NewHasher(cost).Hash([]byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", args[0], hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost (4-31)")
	return cmd
}
