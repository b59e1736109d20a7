package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tryon/internal/infra/credentials"
)

func newCredentialsCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage provider credentials stored in postgres",
	}
	cmd.AddCommand(newCredentialsSetCmd(d))
	return cmd
}

func newCredentialsSetCmd(d *deps) *cobra.Command {
	var provider, key, accessKey, secretKey string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a provider key in integration_tokens",
		Long: `Store provider credentials so the API can start without them in the
environment. Requires HISTORY_BACKEND=postgres.

Examples:
  tryonctl credentials set --provider gemini --key AIza...
  tryonctl credentials set --provider klingai --access-key ak --secret-key sk`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider = strings.ToLower(strings.TrimSpace(provider))
			switch provider {
			case credentials.ProviderGemini:
				if key == "" {
					key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
				}
				if key == "" {
					return errors.New("gemini key is required via --key or GEMINI_API_KEY")
				}
			case credentials.ProviderKlingAI:
				if accessKey == "" {
					accessKey = strings.TrimSpace(os.Getenv("KLINGAI_ACCESS_KEY"))
				}
				if secretKey == "" {
					secretKey = strings.TrimSpace(os.Getenv("KLINGAI_SECRET_KEY"))
				}
				if accessKey == "" || secretKey == "" {
					return errors.New("klingai needs --access-key and --secret-key")
				}
			default:
				return fmt.Errorf("unsupported provider %q (want gemini or klingai)", provider)
			}

			ctx := cmd.Context()
			b, _, err := d.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.Credentials == nil {
				return fmt.Errorf("credentials need the postgres backend, current backend is %s", b.Name)
			}

			if provider == credentials.ProviderGemini {
				err = b.Credentials.SetGeminiAPIKey(ctx, key)
			} else {
				err = b.Credentials.SetKlingKeys(ctx, accessKey, secretKey)
			}
			if err != nil {
				return fmt.Errorf("persist %s credentials: %w", provider, err)
			}
			_, _ = fmt.Fprintf(d.out, "%s credentials stored\n", provider)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", credentials.ProviderGemini, "Provider to configure (gemini or klingai)")
	cmd.Flags().StringVar(&key, "key", "", "Gemini API key (defaults to GEMINI_API_KEY)")
	cmd.Flags().StringVar(&accessKey, "access-key", "", "KlingAI access key (defaults to KLINGAI_ACCESS_KEY)")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "KlingAI secret key (defaults to KLINGAI_SECRET_KEY)")
	return cmd
}
