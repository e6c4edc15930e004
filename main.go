// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/keystone-auth/pkg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logg.Fatal(err.Error())
	}
}
