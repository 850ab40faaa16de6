// Command accountctl signs in to an accountd server from the terminal and
// manages the signed in account.
//
//	accountctl [-server URL] signup|login|resend|whoami|rename|passwd|logout|servers
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/caarlos0/env/v11"

	"github.com/panyam/accounts/client"
	"github.com/panyam/accounts/client/stores/fs"
)

type cliConfig struct {
	Server      string `env:"ACCOUNTS_SERVER" envDefault:"http://localhost:8080"`
	Credentials string `env:"ACCOUNTS_CREDENTIALS"`
}

func main() {
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	flag.StringVar(&cfg.Server, "server", cfg.Server, "accountd base URL")
	flag.StringVar(&cfg.Credentials, "credentials", cfg.Credentials, "credentials file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: accountctl [flags] <%s>\n", commandNames())
		flag.PrintDefaults()
	}
	flag.Parse()

	if cfg.Credentials == "" {
		path, err := fs.DefaultPath("")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg.Credentials = path
	}
	store, err := fs.Open(cfg.Credentials)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{
		client: client.NewAccountClient(cfg.Server, store),
		store:  store,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	if err := a.run(ctx, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
