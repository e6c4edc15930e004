// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sapcc/keystone-auth/pkg/keystone"
	"github.com/sapcc/keystone-auth/pkg/timeutil"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration without starting the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkConfig(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

// checkConfig validates everything the server would otherwise only notice at startup
func checkConfig() error {
	authURL := viper.GetString("keystone.auth_url")
	if authURL == "" {
		return errors.New("keystone.auth_url is not set")
	}
	if err := checkURL(authURL); err != nil {
		return errors.Wrap(err, "keystone.auth_url")
	}
	regions, err := keystone.RegionsFromConfig()
	if err != nil {
		return err
	}
	for _, region := range regions {
		if err := checkURL(region.AuthURL); err != nil {
			return errors.Wrapf(err, "keystone.regions: region %s", region.Name)
		}
	}

	if _, err := timeutil.NewClock(viper.GetString("keystone.timezone"), viper.GetString("keystone.datetime_format")); err != nil {
		return errors.Wrap(err, "keystone.timezone")
	}
	if key := viper.GetString("web.csrf_key"); key != "" && len(key) < 32 {
		return errors.Errorf("web.csrf_key must have at least 32 bytes, got %d", len(key))
	}
	if viper.GetDuration("session.ttl") <= 0 {
		return errors.Errorf("session.ttl must be positive, got %q", viper.GetString("session.ttl"))
	}

	// builds the driver the same way "serve" does, policy file included
	if _, err := keystone.NewKeystoneDriver(); err != nil {
		return errors.Wrap(err, "keystone")
	}
	return nil
}

func checkURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("%q is not an absolute http(s) URL", value)
	}
	return nil
}
