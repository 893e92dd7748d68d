// Command weevil drives one fuzzing campaign against a single deployed
// EVM contract: it loads the target's bytecode and ABI, runs the
// evolutionary engine with the symbolic-execution stagnation pass wired
// in, and writes a JSON report of coverage and bug-oracle findings.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "weevil",
		Usage: "evolutionary EVM bytecode vulnerability fuzzer",
		Commands: []*cli.Command{
			&fuzzCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}

	return logrus.NewEntry(log)
}
