package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"
	"github.com/chzyer/readline"

	"github.com/florann/databend/client"
	plog "github.com/florann/databend/log"
)

var arguments struct {
	Config   kong.ConfigFlag `help:"Path to an optional HCL config file" type:"existingfile"`
	Addr     string          `help:"Address of the Databend server to connect to." default:"127.0.0.1:6584"`
	User     string          `help:"Name of the user to bind the session to."`
	Password string          `help:"Password of the user to bind the session to."`
	VI       bool            `help:"Enable VI mode."`
	Log      plog.Config     `help:"Configuration for the logger" embed:"" prefix:"log-"`
}

func main() {
	parser, err := kong.New(&arguments, kong.Configuration(konghcl.Loader))
	if err != nil {
		panic(err)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = arguments.Log.Configure()
	kctx.FatalIfErrorf(err)

	cl := client.NewClient(arguments.Addr)
	if arguments.User != "" {
		cl.SetCredentials(arguments.User, arguments.Password)
	}
	err = cl.Start()
	kctx.FatalIfErrorf(err)
	defer func() {
		if err := cl.Stop(); err != nil {
			// Ignore
		}
	}()

	home, err := os.UserHomeDir()
	kctx.FatalIfErrorf(err)

	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:            filepath.Join(home, ".databend.history"),
		DisableAutoSaveHistory: true,
		VimMode:                arguments.VI,
	})
	kctx.FatalIfErrorf(err)
	for {
		// Gather multi-line statement terminated by a ;
		rl.SetPrompt("databend> ")
		cmd := []string{}
		for {
			line, err := rl.Readline()
			if err == io.EOF {
				kctx.Exit(0)
			}
			if err != nil && err.Error() == "Interrupt" {
				// This occurs when CTRL-C is pressed - we should exit silently
				kctx.Exit(0)
			}
			kctx.FatalIfErrorf(err)
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			cmd = append(cmd, line)
			if strings.HasSuffix(line, ";") {
				break
			}
			rl.SetPrompt("          ")
		}
		statement := strings.Join(cmd, " ")
		_ = rl.SaveHistory(statement)

		if err := sendStatement(statement, cl); err != nil {
			kctx.Errorf("%s", err)
		}
	}
}

func sendStatement(statement string, cl *client.Client) error {
	ch, err := cl.ExecuteStatement(statement)
	if err != nil {
		return err
	}
	for line := range ch {
		fmt.Println(line)
	}
	return nil
}
