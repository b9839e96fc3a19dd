package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/vending/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagListenAddr           = "listen-addr"
	flagGRPCListenAddr       = "grpc-listen-addr"
	flagDatabaseURL          = "database-url"
	flagStore                = "store"
	flagSessionCacheURL      = "session-cache-url"
	flagSessionTTL           = "session-ttl"
	flagJWTSigningKey        = "jwt-signing-key"
	flagJWTIssuer            = "jwt-issuer"
	flagJWTAudience          = "jwt-audience"
	flagAllowedOrigins       = "allowed-origins"
	flagSerializeBalances    = "serialize-balances"
	flagLoginRateLimit       = "login-rate-limit"
	flagLoginBurst           = "login-burst"
	flagRequireActiveSession = "require-active-session"
	flagShutdownTimeout      = "shutdown-timeout"
	flagEnvFile              = "env-file"
	envPrefix                = "VENDING"
)

var configFlags = []string{
	flagListenAddr,
	flagGRPCListenAddr,
	flagDatabaseURL,
	flagStore,
	flagSessionCacheURL,
	flagSessionTTL,
	flagJWTSigningKey,
	flagJWTIssuer,
	flagJWTAudience,
	flagAllowedOrigins,
	flagSerializeBalances,
	flagLoginRateLimit,
	flagLoginBurst,
	flagRequireActiveSession,
	flagShutdownTimeout,
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vendingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "vendingd",
		Short:         "Vending machine backend (HTTP API and gRPC health)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address (default :8080)")
	cmd.Flags().String(flagGRPCListenAddr, "", "gRPC health listen address (default :7000)")
	cmd.Flags().String(flagDatabaseURL, "", "postgres:// URL, sqlite:// URL or sqlite file path")
	cmd.Flags().String(flagStore, config.StoreGorm, "persistence backend: gorm or pgx")
	cmd.Flags().String(flagSessionCacheURL, "", "memory:// or redis://host:port/db")
	cmd.Flags().Duration(flagSessionTTL, 0, "login session lifetime (default 60m)")
	cmd.Flags().String(flagJWTSigningKey, "", "HS256 signing key for bearer tokens (required)")
	cmd.Flags().String(flagJWTIssuer, "", "token issuer claim")
	cmd.Flags().String(flagJWTAudience, "", "token audience claim")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().Bool(flagSerializeBalances, false, "serialize balance mutations per account in this process")
	cmd.Flags().Float64(flagLoginRateLimit, 0, "login/logout requests per second per client")
	cmd.Flags().Int(flagLoginBurst, 0, "login/logout burst per client")
	cmd.Flags().Bool(flagRequireActiveSession, false, "reject bearer tokens whose login session has ended")
	cmd.Flags().Duration(flagShutdownTimeout, 0, "grace period for in-flight HTTP requests on shutdown (default 5s)")
	cmd.Flags().String(flagEnvFile, ".env", "optional dotenv file loaded before reading the environment")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	envFile, err := cmd.Flags().GetString(flagEnvFile)
	if err != nil {
		return err
	}
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, flagName := range configFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}
	// DATABASE_URL is honoured without the prefix for platform compatibility.
	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.Store = strings.TrimSpace(v.GetString(flagStore))
	cfg.SessionCacheURL = strings.TrimSpace(v.GetString(flagSessionCacheURL))
	cfg.SessionTTL = v.GetDuration(flagSessionTTL)
	cfg.JWTSigningKey = v.GetString(flagJWTSigningKey)
	cfg.JWTIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.JWTAudience = strings.TrimSpace(v.GetString(flagJWTAudience))
	cfg.AllowedOrigins = config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SerializeBalances = v.GetBool(flagSerializeBalances)
	cfg.LoginRateLimit = v.GetFloat64(flagLoginRateLimit)
	cfg.LoginBurst = v.GetInt(flagLoginBurst)
	cfg.RequireActiveSession = v.GetBool(flagRequireActiveSession)
	cfg.ShutdownTimeout = v.GetDuration(flagShutdownTimeout)

	return cfg.Validate()
}

// loadEnvFile applies path without overriding variables already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}
