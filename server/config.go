// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "jgrep"

var errorMessagePrefix = "error mapping configuration to command flags"

// loadConfig fills the flags of the command that weren't set on the command
// line. Environment variables like JGREP_PORT take precedence over the keys
// of the configuration file, if one is given. The macros of the
// configuration file are returned as they can't be expressed as a flag.
func loadConfig(command *cobra.Command, configFile string) (macros map[string]string, err error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err = v.ReadInConfig(); err != nil {
			return
		}
		log.Debugf("Using config file: %s", v.ConfigFileUsed())
	}

	var errs []string
	command.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		if err := command.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
			errs = append(errs, err.Error())
		}
	})
	if len(errs) > 0 {
		err = fmt.Errorf("%s: %s", errorMessagePrefix, strings.Join(errs, "; "))
		return
	}

	macros = v.GetStringMapString("macros")
	return
}

// setupLogging sets the log level and the formatter shared by every command.
func setupLogging(debug bool) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
