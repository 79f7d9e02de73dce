// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"mellium.im/courier/x509"
)

func certsCommand() *cli.Command {
	return &cli.Command{
		Name:      "certs",
		Usage:     "Show the XMPP identities of a certificate chain",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "domain",
				Usage: "Check that the leaf certificate identifies `DOMAIN`",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("usage: courier certs <file>", 2)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return cli.Exit(err, 1)
			}
			chain := x509.ParseChain(data)
			if len(chain) == 0 {
				return cli.Exit(fmt.Sprintf("no certificates found in %s", path), 1)
			}
			printChain(c.App.Writer, chain)
			if domain := c.String("domain"); domain != "" {
				if err := chain[0].VerifyDomain(domain); err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Fprintf(c.App.Writer, "valid for %s\n", domain)
			}
			return nil
		},
	}
}

func printChain(w io.Writer, chain []*x509.Certificate) {
	for i, crt := range chain {
		fmt.Fprintf(w, "%d: %s\n", i, crt.Subject)
		fmt.Fprintf(w, "   issuer:     %s\n", crt.Issuer)
		fmt.Fprintf(w, "   valid:      %s to %s\n", crt.NotBefore.Format(time.RFC3339), crt.NotAfter.Format(time.RFC3339))
		if len(crt.DNSNames) > 0 {
			fmt.Fprintf(w, "   dns:        %s\n", strings.Join(crt.DNSNames, ", "))
		}
		if len(crt.SRVNames) > 0 {
			fmt.Fprintf(w, "   srv:        %s\n", strings.Join(crt.SRVNames, ", "))
		}
		if len(crt.XMPPAddresses) > 0 {
			fmt.Fprintf(w, "   xmpp:       %s\n", strings.Join(crt.XMPPAddresses, ", "))
		}
	}
}
