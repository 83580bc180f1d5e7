package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/airqa/qaportal/internal/mockapi"
	"github.com/spf13/cobra"
)

var defaultSeedUsers = []string{
	"admin:qec:qec-password",
	"instructor:instructor:instructor-password",
	"course_lead:lead:lead-password",
}

func newMockServerCmd(a *app) *cobra.Command {
	var (
		addr      string
		origins   []string
		seedUsers []string
		tokenTTL  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory QA portal backend for local development",
		Long: `Serves the QA portal routes from memory. State is lost when the process exits.

Seed users are given as role:username:password, for example --seed-user admin:qec:secret.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds, err := parseSeedUsers(seedUsers)
			if err != nil {
				return err
			}

			srv, err := mockapi.NewServer(mockapi.Config{
				TokenTTL:       tokenTTL,
				AllowedOrigins: origins,
				Logger:         a.log,
			})
			if err != nil {
				return err
			}
			for _, seed := range seeds {
				user, err := srv.AddUser(seed)
				if err != nil {
					return err
				}
				a.log.Info("seeded user", slog.String("username", user.Username), slog.String("role", user.Role))
			}

			return srv.Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringArrayVar(&origins, "allow-origin", nil, "CORS origin allowed to call the server (repeatable)")
	cmd.Flags().StringArrayVar(&seedUsers, "seed-user", defaultSeedUsers, "user to create at startup as role:username:password (repeatable)")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", mockapi.DefaultTokenTTL, "lifetime of issued access tokens")
	return cmd
}

func parseSeedUsers(entries []string) ([]mockapi.SeedUser, error) {
	seeds := make([]mockapi.SeedUser, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid seed user %q, expected role:username:password", entry)
		}
		seeds = append(seeds, mockapi.SeedUser{
			Role:     parts[0],
			Username: parts[1],
			Email:    parts[1] + "@example.edu",
			Password: parts[2],
			FullName: parts[1],
		})
	}
	return seeds, nil
}
