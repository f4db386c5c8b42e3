// Command moonlive serves the Moonstream sidebar as a live view.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/moonstream-to/moonlive/internal/config"
	"github.com/moonstream-to/moonlive/internal/server"
	"github.com/moonstream-to/moonlive/internal/sitemap"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "moonlive",
		Short:         "Live Moonstream navigation sidebar",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(versionLine() + "\n")
	root.AddCommand(newServeCmd(), newSitemapCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func versionLine() string {
	if commit != "" && commit != "none" {
		return fmt.Sprintf("moonlive %s (%s)", version, commit)
	}
	return "moonlive " + version
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and live socket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, addr)
			if err != nil {
				return err
			}
			srv, err := server.New(cfg, server.WithVersion(version))
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func loadConfig(path, addr string) (*config.Config, error) {
	cfg, err := config.Load(path, nil)
	if err != nil {
		return nil, err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, "")
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), cfg.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	return cmd
}

func newSitemapCmd() *cobra.Command {
	var (
		mobile bool
		footer bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "sitemap",
		Short: "Print the built-in site map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := sitemap.Default()
			var v any = m
			switch {
			case mobile:
				v = m.MobileLinks()
			case footer:
				v = m.FooterLinks()
			}
			return encode(cmd.OutOrStdout(), v, asJSON)
		},
	}
	cmd.Flags().BoolVar(&mobile, "mobile", false, "only the links the mobile drawer shows")
	cmd.Flags().BoolVar(&footer, "footer", false, "only the footer links")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")
	cmd.MarkFlagsMutuallyExclusive("mobile", "footer")
	return cmd
}

func encode(w io.Writer, v any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), versionLine())
			return err
		},
	}
}
