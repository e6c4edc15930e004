// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package cmd contains the CLI commands of keystone-auth
package cmd

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sapcc/go-bits/logg"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "keystone-auth",
	Short: "Web login against an OpenStack Keystone identity service",
	Long: `keystone-auth serves login, logout and project switch pages. Users log on
with their Keystone credentials, the resulting project-scoped token and service
catalog are kept in a server-side session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (any format viper can read)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "print debug log messages")
	_ = viper.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("keystone.user_domain_name", "Default")
	v.SetDefault("keystone.token_cache_time", 15*time.Minute)
	v.SetDefault("web.bind_address", ":8080")
	v.SetDefault("web.login_url", "/auth/login")
	v.SetDefault("web.login_redirect_url", "/")
	v.SetDefault("web.secure_cookies", true)
	v.SetDefault("session.ttl", 12*time.Hour)
	v.SetDefault("log.debug", false)
}

// initConfig reads in the config file and ENV variables and configures logging
func initConfig() error {
	viper.SetEnvPrefix("KEYSTONE_AUTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "reading config file %s", cfgFile)
		}
	}

	logg.ShowDebug = viper.GetBool("log.debug")
	if used := viper.ConfigFileUsed(); used != "" {
		logg.Debug("using config file %s", used)
	}
	return nil
}

// Execute adds all child commands to the root command and runs it
func Execute() error {
	return rootCmd.Execute()
}
