package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-clinical/internal/rbac"
)

func newResetSessionCmd(opts *rootOptions) *cobra.Command {
	var learnerID, caseID string
	cmd := &cobra.Command{
		Use:   "reset-session",
		Short: "Delete a learner's session for a case",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if learnerID == "" || caseID == "" {
				return errors.New("--learner and --case are required")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.engine.ResetSession(cmd.Context(), learnerID, caseID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session reset: learner=%s case=%s\n", learnerID, caseID)
			return nil
		},
	}
	cmd.Flags().StringVar(&learnerID, "learner", "", "learner id (token subject)")
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	return cmd
}

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var username, role, password string
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a local account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("CLINICAL_USER_PASSWORD")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			u, err := a.users.Create(cmd.Context(), username, role, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", u.Username, u.Role, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&role, "role", rbac.RoleLearner, "learner, instructor or admin")
	cmd.Flags().StringVar(&password, "password", "", "password (or CLINICAL_USER_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
