package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/simp-lee/advocatedir/internal/client"
	"github.com/simp-lee/advocatedir/internal/domain"
)

func newAdminCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Create, update and delete advocates (requires --token)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				return errors.New("admin commands require --token")
			}
			return opts.setupLogger(cmd.ErrOrStderr())
		},
	}
	cmd.AddCommand(
		newAdminWriteCmd(opts, "create", "Create an advocate from a JSON file"),
		newAdminWriteCmd(opts, "update <id>", "Replace an advocate from a JSON file"),
		newAdminDeleteCmd(opts),
		newAdminInvalidateCmd(opts),
	)
	return cmd
}

func newAdminWriteCmd(opts *rootOptions, use, short string) *cobra.Command {
	var file string
	update := use != "create"
	var argsFn cobra.PositionalArgs = cobra.NoArgs
	if update {
		argsFn = cobra.ExactArgs(1)
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  argsFn,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readAdvocateBody(file)
			if err != nil {
				return err
			}
			c, err := opts.newClient()
			if err != nil {
				return err
			}

			var a *domain.AdvocateWithRelations
			if update {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				a, err = c.UpdateAdvocate(cmd.Context(), id, body)
				if err != nil {
					return fmt.Errorf("update advocate: %s", client.Message(err))
				}
			} else {
				a, err = c.CreateAdvocate(cmd.Context(), body)
				if err != nil {
					return fmt.Errorf("create advocate: %s", client.Message(err))
				}
			}

			out := cmd.OutOrStdout()
			renderAdvocates(out, newStyles(out, opts.noColor), []domain.AdvocateWithRelations{*a})
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `advocate JSON ("-" for stdin)`)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readAdvocateBody(path string) (client.AdvocateBody, error) {
	var body client.AdvocateBody
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return body, fmt.Errorf("read advocate: %w", err)
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return body, fmt.Errorf("decode advocate: %w", err)
	}
	return body, nil
}

func newAdminDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an advocate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			if err := c.DeleteAdvocate(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete advocate %d: %s", id, client.Message(err))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, newStyles(out, opts.noColor).Success.Render(fmt.Sprintf("Deleted advocate %d", id)))
			return nil
		},
	}
}

func newAdminInvalidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate-cache",
		Short: "Drop every cached query result on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			if err := c.InvalidateCache(cmd.Context()); err != nil {
				return fmt.Errorf("invalidate cache: %s", client.Message(err))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, newStyles(out, opts.noColor).Success.Render("Cache invalidated"))
			return nil
		},
	}
}
