package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/insptop/inspirer-foundation"
	"github.com/insptop/inspirer-foundation/internal/auth/entity"
	"github.com/insptop/inspirer-foundation/keys"
)

const (
	listApplication = "application"
	listDomain      = "domain"
	listUser        = "user"
)

func (a *App) Commands(reg *inspirer.CommandRegistry) {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
	}
	reg.Register(migrate, func(ctx context.Context, b *inspirer.Booter, args []string) error {
		if err := entity.Migrate(a.db.WithContext(ctx)); err != nil {
			return errors.Wrap(err, "failed to migrate")
		}
		fmt.Fprintln(migrate.OutOrStdout(), "Done!")
		return nil
	})

	var pw string
	initCmd := &cobra.Command{
		Use:   "app:init",
		Short: "Seed a domain, an application and a user named after app_name",
		Args:  cobra.NoArgs,
	}
	initCmd.Flags().StringVar(&pw, "password", "", "Password of the seeded user, defaults to app_name")
	reg.Register(initCmd, func(ctx context.Context, b *inspirer.Booter, args []string) error {
		out := initCmd.OutOrStdout()
		fmt.Fprintln(out, "Ready to init data.")
		s, err := a.seeder.All(ctx, pw)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "domain: %s\napp: %s\nuser: %s\n", s.Domain, s.App, s.User)
		fmt.Fprintln(out, "Done!")
		return nil
	})

	list := &cobra.Command{
		Use:       "list <application|domain|user>",
		Short:     "Print the stored records as a table",
		ValidArgs: []string{listApplication, listDomain, listUser},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	}
	reg.Register(list, func(ctx context.Context, b *inspirer.Booter, args []string) error {
		return a.list(ctx, list.OutOrStdout(), args[0])
	})

	var keyOut string
	genKey := &cobra.Command{
		Use:   "keys:generate",
		Short: "Generate a P-256 signing key and print its JWKS",
		Args:  cobra.NoArgs,
	}
	genKey.Flags().StringVarP(&keyOut, "out", "o", "", "Write the private key PEM to this file instead of stdout")
	reg.Register(genKey, func(ctx context.Context, b *inspirer.Booter, args []string) error {
		return generateKey(genKey.OutOrStdout(), keyOut)
	})
}

func generateKey(out io.Writer, path string) error {
	kp, err := keys.Generate()
	if err != nil {
		return err
	}
	pem, err := kp.PrivateKeyPEM()
	if err != nil {
		return err
	}
	if path != "" {
		if err := os.WriteFile(path, pem, 0o600); err != nil {
			return errors.Wrap(err, "failed to write key")
		}
	} else if _, err := out.Write(pem); err != nil {
		return err
	}

	jwks, err := json.MarshalIndent(kp.JWKS(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", jwks)
	return err
}

func optional(s *string) string {
	if s == nil {
		return "None"
	}
	return *s
}

func (a *App) list(ctx context.Context, out io.Writer, target string) error {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)

	switch target {
	case listApplication:
		apps, err := a.apps.List(ctx)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"ID", "UUID", "Domain", "Name", "Display Name", "Secret", "Endpoint",
			"Access Token TTL", "ID Token TTL", "Refresh Token TTL", "Authorize Code TTL", "Created At"})
		for _, app := range apps {
			o := app.Setting.OIDCSetting
			t.AppendRow(table.Row{
				app.ID, app.UUID, app.DomainUUID, app.Name, app.DisplayName,
				base64.StdEncoding.EncodeToString(app.Secret), app.Setting.BaseSetting.Endpoint,
				o.AccessTokenExpireIn, o.IDTokenExpireIn, o.RefreshTokenExpireIn, o.AuthorizeCodeExpireIn,
				app.CreatedAt.Format(time.RFC3339),
			})
		}
	case listDomain:
		domains, err := a.apps.Domains(ctx)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"ID", "UUID", "Name", "Display Name", "Created At"})
		for _, d := range domains {
			t.AppendRow(table.Row{d.ID, d.UUID, d.Name, d.DisplayName, d.CreatedAt.Format(time.RFC3339)})
		}
	case listUser:
		users, err := a.users.List(ctx)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"ID", "UUID", "Domain", "Username", "Email", "Name", "Created At"})
		for _, u := range users {
			t.AppendRow(table.Row{u.ID, u.UUID, u.DomainUUID, optional(u.Username), optional(u.Email),
				u.Profile.Name, u.CreatedAt.Format(time.RFC3339)})
		}
	default:
		return fmt.Errorf("unknown list target %q", target)
	}

	t.Render()
	return nil
}
