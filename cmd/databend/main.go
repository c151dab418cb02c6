package main

import (
	"encoding/json"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"muzzammil.xyz/jsonc"

	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
	plog "github.com/florann/databend/log"
	"github.com/florann/databend/server"
)

func main() {
	r := &runner{}
	if err := r.run(os.Args[1:], true); err != nil {
		log.Fatal(err.Error())
	}
	select {} // prevent main exiting
}

type runner struct {
	server *server.Server
}

func (r *runner) run(args []string, start bool) error {
	if len(args) != 4 {
		return errors.New("please run with -conf <config_file> -node <node_id>")
	}
	sNodeID := args[3]
	nodeID, err := strconv.ParseInt(sNodeID, 10, 32)
	if err != nil {
		return errors.WithStack(err)
	}
	confFile := args[1]
	b, err := os.ReadFile(confFile)
	if err != nil {
		return errors.WithStack(err)
	}
	cfg := conf.Config{}
	// We use jsonc as it supports comments in JSON
	b = jsonc.ToJSON(b)
	if err := json.Unmarshal(b, &cfg); err != nil {
		return errors.WithStack(err)
	}
	cfg.NodeID = int(nodeID)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := configureLogging(cfg); err != nil {
		return err
	}
	s, err := server.NewServer(cfg)
	if err != nil {
		return err
	}
	r.server = s
	if start {
		if err := s.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) getServer() *server.Server {
	return r.server
}

func configureLogging(cfg conf.Config) error {
	logConf := plog.Config{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
	}
	// A config file that says nothing about logging gets the logrus defaults.
	if logConf.Format == "" {
		logConf.Format = "text"
	}
	return logConf.Configure()
}
