package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/retro/rshop/internal/services"
)

// passwordEnv is read when --pass is not given.
const passwordEnv = "RSHOP_PASSWORD"

// connFlags are the share selection flags shared by test, ls and get.
type connFlags struct {
	host      string
	port      int
	share     string
	user      string
	pass      string
	domain    string
	localRoot string
}

func (f *connFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "host", "", "Server host name or address (required)")
	cmd.Flags().IntVar(&f.port, "port", 0, "Server port (default from config, 445)")
	cmd.Flags().StringVar(&f.share, "share", "", "Share name (required)")
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "User name (default guest)")
	cmd.Flags().StringVarP(&f.pass, "pass", "p", "", "Password (or set "+passwordEnv+")")
	cmd.Flags().StringVar(&f.domain, "domain", "", "Domain for NTLM authentication")
	cmd.Flags().StringVar(&f.localRoot, "local-root", "", "Serve shares from subdirectories of this local directory instead of SMB")
	_ = cmd.Flags().MarkHidden("local-root")
}

func (f *connFlags) args(path string) services.ConnectionArgs {
	pass := f.pass
	if pass == "" {
		pass = os.Getenv(passwordEnv)
	}
	return services.ConnectionArgs{
		Host:   f.host,
		Port:   f.port,
		Share:  f.share,
		Path:   path,
		User:   f.user,
		Pass:   pass,
		Domain: f.domain,
	}
}
